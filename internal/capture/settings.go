package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/v4lcap/pkg/linuxav/camera"
	"github.com/smazurov/v4lcap/pkg/linuxav/v4l2"
)

// Settings are capture options as they arrive from flags, env or TOML.
type Settings struct {
	Device      string
	Width       int
	Height      int
	PixelFormat string // fourcc, empty keeps the device's current format
	IOMethod    string // mmap or read
	TimeoutUs   int    // negative selects the default
	LogSeverity string
	ZeroCopy    bool
}

// Config validates s and converts it to a Runner Config.
func (s Settings) Config() (Config, error) {
	var errs []error

	if s.Width < 0 || s.Height < 0 {
		errs = append(errs, fmt.Errorf("invalid size %dx%d", s.Width, s.Height))
	}
	if (s.Width == 0) != (s.Height == 0) {
		errs = append(errs, fmt.Errorf("width and height must be set together, got %dx%d", s.Width, s.Height))
	}

	var pixelFormat uint32
	if s.PixelFormat != "" {
		pf, err := v4l2.ParseFourCC(s.PixelFormat)
		if err != nil {
			errs = append(errs, err)
		}
		pixelFormat = pf
	}

	method, err := camera.ParseIOMethod(s.IOMethod)
	if err != nil {
		errs = append(errs, err)
	}

	severity := camera.SeverityInfo
	if s.LogSeverity != "" {
		severity, err = camera.ParseSeverity(s.LogSeverity)
		if err != nil {
			errs = append(errs, err)
		}
	}

	timeout := time.Duration(s.TimeoutUs) * time.Microsecond
	if s.TimeoutUs < 0 {
		timeout = camera.DefaultTimeout
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	return Config{
		DevicePath: s.Device,
		Format: camera.Format{
			Width:       uint32(s.Width),
			Height:      uint32(s.Height),
			PixelFormat: pixelFormat,
		},
		IOMethod:    method,
		Timeout:     timeout,
		LogSeverity: severity,
		ZeroCopy:    s.ZeroCopy,
	}, nil
}
