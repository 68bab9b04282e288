package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version || info.GoVersion != runtime.Version() {
		t.Errorf("Get() = %+v", info)
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", info.Platform)
	}
	if info.Kernel == "" || info.Kernel == "unknown" {
		t.Errorf("Kernel = %q, want the running kernel release", info.Kernel)
	}
}

func TestInfoString(t *testing.T) {
	info := Info{Version: "1.2.0", GitCommit: "abc1234", BuildDate: "2025-01-27", GoVersion: "go1.24.11", Platform: "linux/arm64", Kernel: "6.6.0-rk"}
	got := info.String()
	for _, want := range []string{"v4lcap 1.2.0", "abc1234", "2025-01-27", "linux/arm64", "kernel 6.6.0-rk"} {
		if !strings.Contains(got, want) {
			t.Errorf("String() = %q, missing %q", got, want)
		}
	}
}
