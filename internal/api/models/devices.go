package models

// DeviceInfo represents a video device with snake_case fields
type DeviceInfo struct {
	DevicePath   string   `json:"device_path" example:"/dev/video0" doc:"System device path"`
	DeviceName   string   `json:"device_name" example:"USB Camera" doc:"Device name"`
	DeviceID     string   `json:"device_id" example:"usb-0000:00:14.0-1" doc:"Stable device identifier"`
	Caps         uint32   `json:"caps" example:"84000001" doc:"Raw V4L2 capability flags"`
	Capabilities []string `json:"capabilities" example:"[\"Video Capture\", \"Streaming I/O\"]" doc:"Device capabilities"`
}

// Framerate represents video framerate with snake_case fields
type Framerate struct {
	Numerator   uint32  `json:"numerator" example:"1" doc:"Frame interval numerator"`
	Denominator uint32  `json:"denominator" example:"30" doc:"Frame interval denominator"`
	FPS         float64 `json:"fps" example:"30.0" doc:"Frames per second"`
}

// FrameSize is one supported size with its frame rates.
type FrameSize struct {
	Width      uint32      `json:"width" example:"1920" doc:"Video width in pixels"`
	Height     uint32      `json:"height" example:"1080" doc:"Video height in pixels"`
	Framerates []Framerate `json:"framerates" doc:"Supported frame rates"`
}

// FormatInfo is one pixel format with every size it supports.
type FormatInfo struct {
	PixelFormat string      `json:"pixel_format" example:"YUYV" doc:"Pixel format fourcc"`
	FormatName  string      `json:"format_name" example:"YUYV 4:2:2" doc:"Driver description"`
	Emulated    bool        `json:"emulated" example:"false" doc:"Whether format is emulated by libv4l"`
	Convertible bool        `json:"convertible" example:"true" doc:"Whether frames can be converted to RGB24"`
	Sizes       []FrameSize `json:"sizes" doc:"Supported frame sizes, largest first"`
}

// Device API response models
type DeviceData struct {
	Devices []DeviceInfo `json:"devices" doc:"List of available video devices"`
	Count   int          `json:"count" example:"2" doc:"Number of devices found"`
}

type DeviceResponse struct {
	Body DeviceData
}

type DeviceFormatsData struct {
	DevicePath string       `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	Formats    []FormatInfo `json:"formats" doc:"Supported video formats"`
}

type DeviceFormatsResponse struct {
	Body DeviceFormatsData
}
