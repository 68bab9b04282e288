package models

// CaptureFormat is the negotiated capture format.
type CaptureFormat struct {
	Width       uint32 `json:"width" example:"640" doc:"Frame width in pixels"`
	Height      uint32 `json:"height" example:"480" doc:"Frame height in pixels"`
	Stride      uint32 `json:"stride" example:"1280" doc:"Bytes per row"`
	SizeImage   uint32 `json:"size_image" example:"614400" doc:"Bytes per frame"`
	PixelFormat string `json:"pixel_format" example:"YUYV" doc:"Pixel format fourcc"`
}

// CaptureStatusData describes the capture session.
type CaptureStatusData struct {
	Running         bool              `json:"running" example:"true" doc:"Whether frames are being acquired"`
	DevicePath      string            `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	State           string            `json:"state" example:"streaming" enum:"unopened,negotiated,streaming,stopped,closed" doc:"Session lifecycle state"`
	IOMethod        string            `json:"io_method" example:"mmap" enum:"mmap,read" doc:"Frame transfer method"`
	Format          CaptureFormat     `json:"format" doc:"Negotiated format"`
	Buffers         int               `json:"buffers" example:"4" doc:"Buffer pool size"`
	Frames          uint64            `json:"frames" example:"1800" doc:"Frames acquired"`
	NoFrames        uint64            `json:"no_frames" example:"3" doc:"Acquisitions that timed out"`
	RequeueFailures uint64            `json:"requeue_failures" example:"0" doc:"Buffers that could not be re-queued"`
	LostBuffers     int               `json:"lost_buffers" example:"0" doc:"Buffers currently out of rotation"`
	FPS             float64           `json:"fps" example:"30.0" doc:"Measured frames per second"`
	MeanLuma        float64           `json:"mean_luma" example:"118.4" doc:"Mean luma of the last sampled frame"`
	LogSeverity     string            `json:"log_severity" example:"info" doc:"Minimum session log severity"`
	LastError       string            `json:"last_error,omitempty" doc:"Most recent capture error"`
	Errors          map[string]uint64 `json:"errors,omitempty" doc:"Capture errors by kind since the device appeared"`
}

type CaptureStatusResponse struct {
	Body CaptureStatusData
}

// LogSeverityBody sets the capture session's minimum log severity.
type LogSeverityBody struct {
	Severity string `json:"severity" enum:"info,warn,error,none" example:"warn" doc:"Minimum severity to log"`
}

type LogSeverityRequest struct {
	Body LogSeverityBody
}

type LogSeverityResponse struct {
	Body LogSeverityBody
}
