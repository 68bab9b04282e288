// Package version reports which v4lcap build is running and on which
// kernel. V4L2 driver behaviour follows the kernel release, so it is part
// of every version report.
//
// Build values are injected at link time:
//
//	go build -ldflags "-X github.com/smazurov/v4lcap/internal/version.Version=1.2.0 \
//		-X github.com/smazurov/v4lcap/internal/version.GitCommit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

// Set via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Kernel    string `json:"kernel"`
}

// Get returns version and build information.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Kernel:    kernelRelease(),
	}
}

var kernelRelease = sync.OnceValue(func() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "unknown"
	}
	return unix.ByteSliceToString(uts.Release[:])
})

// String is the line printed by --version.
func (i Info) String() string {
	return fmt.Sprintf("v4lcap %s (commit %s, built %s) %s %s, kernel %s",
		i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.Platform, i.Kernel)
}

// String returns the bare version, as used in the OpenAPI document.
func String() string {
	return Version
}
