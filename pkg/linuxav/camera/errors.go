package camera

import (
	"errors"
	"fmt"
)

// Kind classifies a capture failure by how the caller is expected to react.
type Kind string

// Error kinds.
const (
	KindConfiguration Kind = "configuration" // bad path, not a device, missing capability
	KindNegotiation   Kind = "negotiation"   // format rejected by the device
	KindResource      Kind = "resource"      // buffer request, mapping or queueing failed
	KindTransient     Kind = "transient"     // no frame ready, retry
	KindRuntimeIO     Kind = "runtime_io"    // unexpected errno while capturing
	KindTeardown      Kind = "teardown"      // stream-off, unmap or close failed
	KindState         Kind = "state"         // operation invalid in the current state
)

// Sentinel errors, matched with errors.Is.
var (
	ErrNotFound         = errors.New("device not found")
	ErrOpenDevice       = errors.New("cannot open device")
	ErrNotCaptureDevice = errors.New("not a video capture device")

	ErrFormatNegotiation = errors.New("format negotiation failed")

	ErrInsufficientBuffers = errors.New("insufficient buffer memory")
	ErrMapFailed           = errors.New("buffer mapping failed")
	ErrStreamStart         = errors.New("stream start failed")

	ErrNoFrame = errors.New("no frame available")

	ErrWait            = errors.New("wait for frame failed")
	ErrRead            = errors.New("frame read failed")
	ErrDequeue         = errors.New("buffer dequeue failed")
	ErrBufferIndex     = errors.New("buffer index out of range")
	ErrNoQueuedBuffers = errors.New("no buffers queued to the device")

	ErrStreamStop  = errors.New("stream stop failed")
	ErrUnmap       = errors.New("buffer unmap failed")
	ErrCloseDevice = errors.New("device close failed")

	ErrInvalidState  = errors.New("invalid session state")
	ErrSessionClosed = errors.New("session closed")
)

var kinds = map[error]Kind{
	ErrNotFound:            KindConfiguration,
	ErrOpenDevice:          KindConfiguration,
	ErrNotCaptureDevice:    KindConfiguration,
	ErrFormatNegotiation:   KindNegotiation,
	ErrInsufficientBuffers: KindResource,
	ErrMapFailed:           KindResource,
	ErrStreamStart:         KindResource,
	ErrNoFrame:             KindTransient,
	ErrWait:                KindRuntimeIO,
	ErrRead:                KindRuntimeIO,
	ErrDequeue:             KindRuntimeIO,
	ErrBufferIndex:         KindRuntimeIO,
	ErrNoQueuedBuffers:     KindRuntimeIO,
	ErrStreamStop:          KindTeardown,
	ErrUnmap:               KindTeardown,
	ErrCloseDevice:         KindTeardown,
	ErrInvalidState:        KindState,
	ErrSessionClosed:       KindState,
}

// Error is a categorized capture failure. Err is one of the package
// sentinels and Cause carries the underlying errno, if any.
type Error struct {
	Kind  Kind
	Op    string
	Err   error
	Cause error
}

func newError(op string, sentinel, cause error) *Error {
	return &Error{
		Kind:  kinds[sentinel],
		Op:    op,
		Err:   sentinel,
		Cause: cause,
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Err, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
