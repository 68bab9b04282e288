// Package devices enumerates V4L2 capture devices and reports hotplug changes.
package devices

import (
	"cmp"
	"slices"
)

// DeviceInfo represents information about a V4L2 capture device.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	DeviceID   string
	Caps       uint32
}

// FormatInfo represents information about a video format.
type FormatInfo struct {
	PixelFormat uint32
	FormatName  string
	Emulated    bool
}

// Resolution represents a video resolution.
type Resolution struct {
	Width  uint32
	Height uint32
}

// Framerate represents a video framerate as a frame interval.
type Framerate struct {
	Numerator   uint32
	Denominator uint32
}

// FPS returns frames per second.
func (f Framerate) FPS() float64 {
	if f.Numerator == 0 {
		return 0
	}
	return float64(f.Denominator) / float64(f.Numerator)
}

// SizeDetail is one frame size with its frame rates.
type SizeDetail struct {
	Resolution
	Framerates []Framerate
}

// FormatDetail is one pixel format with every size it supports.
type FormatDetail struct {
	FormatInfo
	Sizes []SizeDetail
}

// Detector provides device discovery.
type Detector interface {
	// FindDevices returns all currently available capture devices
	FindDevices() ([]DeviceInfo, error)

	// GetDeviceFormats returns supported formats for a device
	GetDeviceFormats(devicePath string) ([]FormatInfo, error)

	// GetDeviceResolutions returns supported resolutions for a format
	GetDeviceResolutions(devicePath string, pixelFormat uint32) ([]Resolution, error)

	// GetDeviceFramerates returns supported framerates for a resolution
	GetDeviceFramerates(devicePath string, pixelFormat uint32, width, height uint32) ([]Framerate, error)
}

// NewDetector creates the V4L2 detector.
func NewDetector() Detector {
	return newDetector()
}

// Describe walks formats, sizes and rates of a device. A format whose sizes
// cannot be enumerated is still listed, with no sizes.
func Describe(d Detector, devicePath string) ([]FormatDetail, error) {
	formats, err := d.GetDeviceFormats(devicePath)
	if err != nil {
		return nil, err
	}

	details := make([]FormatDetail, 0, len(formats))
	for _, f := range formats {
		detail := FormatDetail{FormatInfo: f}

		sizes, err := d.GetDeviceResolutions(devicePath, f.PixelFormat)
		if err == nil {
			slices.SortFunc(sizes, func(a, b Resolution) int {
				return cmp.Or(cmp.Compare(b.Width, a.Width), cmp.Compare(b.Height, a.Height))
			})
			for _, s := range sizes {
				rates, err := d.GetDeviceFramerates(devicePath, f.PixelFormat, s.Width, s.Height)
				if err != nil {
					rates = nil
				}
				detail.Sizes = append(detail.Sizes, SizeDetail{Resolution: s, Framerates: rates})
			}
		}

		details = append(details, detail)
	}
	return details, nil
}
