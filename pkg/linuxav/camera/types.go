package camera

import (
	"fmt"
	"strings"
	"time"

	"github.com/smazurov/v4lcap/pkg/linuxav/v4l2"
)

// DefaultDevicePath is opened when Open is given an empty path.
const DefaultDevicePath = "/dev/video0"

// DefaultTimeout is one frame interval at 30 fps.
const DefaultTimeout = 33333 * time.Microsecond

// requestedBuffers is the mmap pool size asked of the driver; minBuffers is the least it may grant.
const (
	requestedBuffers = 4
	minBuffers       = 2
)

// Format is the capture format. Caller values passed to Open are hints;
// the values returned by Open are what the device settled on.
type Format struct {
	Width       uint32
	Height      uint32
	Stride      uint32 // bytes per row
	SizeImage   uint32 // bytes per frame
	PixelFormat uint32 // fourcc
}

func (f Format) isZero() bool {
	return f.Width == 0 && f.Height == 0 && f.PixelFormat == 0
}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d %s stride=%d size=%d",
		f.Width, f.Height, v4l2.FormatFourCC(f.PixelFormat), f.Stride, f.SizeImage)
}

// IOMethod selects how frames move from the driver to the process.
type IOMethod int

// I/O methods.
const (
	IOMethodMMAP IOMethod = iota // kernel-shared mmap buffers
	IOMethodRead                 // read(2) into one heap buffer
)

func (m IOMethod) String() string {
	switch m {
	case IOMethodMMAP:
		return "mmap"
	case IOMethodRead:
		return "read"
	default:
		return fmt.Sprintf("iomethod(%d)", int(m))
	}
}

// ParseIOMethod parses "mmap" or "read".
func ParseIOMethod(s string) (IOMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mmap":
		return IOMethodMMAP, nil
	case "read":
		return IOMethodRead, nil
	default:
		return IOMethodMMAP, fmt.Errorf("unknown io method %q", s)
	}
}

// State is the lifecycle position of a Session.
type State int

// Session states.
const (
	StateUnopened State = iota
	StateNegotiated
	StateStreaming
	StateStopped
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateNegotiated:
		return "negotiated"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Buffer is one raw frame. Data borrows driver or session memory and is
// only valid until the next acquisition call on the same session.
type Buffer struct {
	Data      []byte
	Index     int // mmap buffer index, -1 for read
	BytesUsed int
}

// Surface is a frame described by its geometry and pixel format.
type Surface struct {
	Data        []byte
	Width       int
	Height      int
	PixelFormat uint32
}

// Stats counts acquisition outcomes over the life of a session.
type Stats struct {
	Frames          uint64
	NoFrames        uint64
	RequeueFailures uint64
	LostBuffers     int
}
