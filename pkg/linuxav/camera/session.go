// Package camera captures frames from a V4L2 device: it negotiates the
// capture format, manages the buffer pool and returns frames either raw
// or converted to RGB24.
//
// A Session is owned by one goroutine at a time. It does no locking;
// callers that share one must serialise every call, Close included.
package camera

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/smazurov/v4lcap/pkg/linuxav/v4l2"
)

// Session is one open capture device.
type Session struct {
	dev    Device
	path   string
	method IOMethod
	format Format
	state  State

	logger *slog.Logger
	level  *slog.LevelVar

	pool     *bufferPool
	rgb      []byte
	convert  ConvertFunc
	zeroCopy bool
	stats    Stats
}

// Open opens the device at path (DefaultDevicePath if empty), checks its
// capabilities against method, negotiates requested and allocates the
// buffer pool. A zero requested keeps the device's current format.
func Open(path string, requested Format, method IOMethod, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if path == "" {
		path = DefaultDevicePath
	}

	base := o.logger
	if base == nil {
		base = slog.Default()
	}
	level := &slog.LevelVar{}
	level.Set(o.severity.Level())
	logger := slog.New(newSeverityHandler(base.Handler(), level)).With("device", path)

	dev, err := o.opener(path)
	if err != nil {
		sentinel := ErrOpenDevice
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, v4l2.ErrNotCharDevice) {
			sentinel = ErrNotFound
		}
		return nil, logFailure(logger, newError("open", sentinel, err))
	}

	s := &Session{
		dev:      dev,
		path:     path,
		method:   method,
		state:    StateUnopened,
		logger:   logger,
		level:    level,
		zeroCopy: o.zeroCopy,
	}

	if err := s.negotiate(requested, o.converters); err != nil {
		s.abort()
		return nil, logFailure(logger, err)
	}

	pool, perr := newBufferPool(dev, method, s.format.SizeImage, logger)
	if perr != nil {
		s.abort()
		return nil, logFailure(logger, perr)
	}
	s.pool = pool
	s.state = StateNegotiated

	return s, nil
}

func (s *Session) negotiate(requested Format, converters Converters) *Error {
	caps, err := s.dev.QueryCapability()
	if err != nil {
		return newError("query capability", ErrNotCaptureDevice, err)
	}
	if !caps.Has(v4l2.CapVideoCapture) {
		return newError("query capability", ErrNotCaptureDevice, nil)
	}
	switch s.method {
	case IOMethodRead:
		if !caps.Has(v4l2.CapReadWrite) {
			return newError("query capability", ErrNotCaptureDevice, errors.New("read i/o not supported"))
		}
	case IOMethodMMAP:
		if !caps.Has(v4l2.CapStreaming) {
			return newError("query capability", ErrNotCaptureDevice, errors.New("streaming i/o not supported"))
		}
	}

	// Not every device supports cropping.
	_ = s.dev.ResetCrop()

	var pix v4l2.PixFormat
	if requested.isZero() {
		pix, err = s.dev.GetFormat()
		if err != nil {
			return newError("get format", ErrFormatNegotiation, err)
		}
	} else {
		pix = v4l2.PixFormat{
			Width:       requested.Width,
			Height:      requested.Height,
			PixelFormat: requested.PixelFormat,
		}
		if err := s.dev.SetFormat(&pix); err != nil {
			return newError("set format", ErrFormatNegotiation, err)
		}
	}
	if pix.Width == 0 || pix.Height == 0 {
		return newError("negotiate format", ErrFormatNegotiation, errors.New("device reported empty geometry"))
	}

	// Drivers sometimes under-report; assume at least 16 bits per pixel.
	if minStride := pix.Width * 2; pix.BytesPerLine < minStride {
		pix.BytesPerLine = minStride
	}
	if minSize := pix.BytesPerLine * pix.Height; pix.SizeImage < minSize {
		pix.SizeImage = minSize
	}

	s.format = Format{
		Width:       pix.Width,
		Height:      pix.Height,
		Stride:      pix.BytesPerLine,
		SizeImage:   pix.SizeImage,
		PixelFormat: pix.PixelFormat,
	}
	s.rgb = make([]byte, int(pix.Width)*int(pix.Height)*3)
	s.convert = converters.Lookup(pix.PixelFormat)

	s.logger.Info("Opened capture device",
		"card", caps.Card,
		"driver", caps.Driver,
		"io_method", s.method.String(),
		"width", s.format.Width,
		"height", s.format.Height,
		"stride", s.format.Stride,
		"size", s.format.SizeImage,
		"format", v4l2.FormatFourCC(s.format.PixelFormat))

	if s.convert == nil {
		s.logger.Warn("No RGB conversion for pixel format, frames will be returned raw",
			"format", v4l2.FormatFourCC(s.format.PixelFormat))
	}
	return nil
}

// abort closes the device after a failed Open.
func (s *Session) abort() {
	if err := s.dev.Close(); err != nil {
		s.logger.Error("Failed to close device", "error", err)
	}
	s.state = StateClosed
}

// Begin queues the buffer pool and starts streaming. It is valid after
// Open or End.
func (s *Session) Begin() error {
	if err := s.checkState("begin", StateNegotiated, StateStopped); err != nil {
		return err
	}
	if err := s.pool.begin(); err != nil {
		return s.fail(err)
	}
	s.state = StateStreaming
	s.logger.Debug("Capture started", "buffers", s.pool.size())
	return nil
}

// End stops streaming. The session is Stopped afterwards even if the
// driver reported a failure, so no further frames are acquired.
func (s *Session) End() error {
	switch s.state {
	case StateStopped:
		return nil
	case StateStreaming:
	default:
		return s.checkState("end", StateStreaming)
	}

	err := s.pool.end()
	s.state = StateStopped
	if err != nil {
		return s.fail(err)
	}
	s.logger.Debug("Capture stopped")
	return nil
}

// Close stops streaming if needed, releases every buffer and closes the
// device. Teardown continues past failures and reports all of them.
// Closing a closed session returns ErrSessionClosed.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return newError("close", ErrSessionClosed, nil)
	}

	var errs []error
	if s.state == StateStreaming {
		if err := s.End(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.pool != nil {
		if err := s.pool.close(); err != nil {
			errs = append(errs, err)
		}
		s.pool = nil
	}
	s.rgb = nil

	if err := s.dev.Close(); err != nil {
		errs = append(errs, s.fail(newError("close", ErrCloseDevice, err)))
	}
	s.state = StateClosed

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Debug("Capture device closed")
	return nil
}

// SetMinimumLogSeverity changes which records the session logs.
func (s *Session) SetMinimumLogSeverity(sev Severity) {
	s.level.Set(sev.Level())
}

// Format returns the negotiated format.
func (s *Session) Format() Format {
	return s.format
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Path returns the device node path.
func (s *Session) Path() string {
	return s.path
}

// IOMethod returns the I/O method in use.
func (s *Session) IOMethod() IOMethod {
	return s.method
}

// BufferCount returns the size of the buffer pool, or 0 once closed.
func (s *Session) BufferCount() int {
	if s.pool == nil {
		return 0
	}
	return s.pool.size()
}

// Stats returns acquisition counters.
func (s *Session) Stats() Stats {
	st := s.stats
	if s.pool != nil {
		st.LostBuffers = s.pool.lostSize
	}
	return st
}

func (s *Session) checkState(op string, allowed ...State) error {
	if s.state == StateClosed {
		return newError(op, ErrSessionClosed, nil)
	}
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	s.logger.Warn("Operation not valid in current state", "op", op, "state", s.state.String())
	return newError(op, ErrInvalidState, nil)
}

// fail logs err at the severity matching its kind and returns it.
func (s *Session) fail(err *Error) error {
	return logFailure(s.logger, err)
}

func logFailure(logger *slog.Logger, err *Error) error {
	switch err.Kind {
	case KindTransient:
	case KindState:
		logger.Warn("Capture operation failed", "op", err.Op, "kind", string(err.Kind), "error", err)
	default:
		logger.Error("Capture operation failed", "op", err.Op, "kind", string(err.Kind), "error", err)
	}
	return err
}
