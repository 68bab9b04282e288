package camera

import (
	"bytes"
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smazurov/v4lcap/pkg/linuxav/v4l2"
)

// AcquireRawFrame waits up to timeout for a frame and returns its bytes
// unconverted. A negative timeout means DefaultTimeout and zero polls.
// ErrNoFrame is returned when nothing arrived in time.
//
// For mmap I/O the buffer is handed back to the driver before returning,
// so Data may be overwritten by the next acquisition call.
func (s *Session) AcquireRawFrame(timeout time.Duration) (Buffer, error) {
	if err := s.checkState("acquire", StateStreaming); err != nil {
		return Buffer{}, err
	}
	if s.pool.exhausted() {
		return Buffer{}, s.fail(newError("acquire", ErrNoQueuedBuffers, nil))
	}

	ready, err := s.wait(timeout)
	if err != nil {
		return Buffer{}, s.fail(newError("wait", ErrWait, err))
	}
	if !ready {
		s.stats.NoFrames++
		return Buffer{}, newError("wait", ErrNoFrame, nil)
	}

	var buf Buffer
	var ferr *Error
	if s.method == IOMethodRead {
		buf, ferr = s.readFrame()
	} else {
		buf, ferr = s.dequeueFrame()
	}
	if ferr != nil {
		if errors.Is(ferr, ErrNoFrame) {
			s.stats.NoFrames++
		}
		return Buffer{}, s.fail(ferr)
	}

	s.stats.Frames++
	return buf, nil
}

// wait blocks until the device is readable, restarting with the remaining
// time when interrupted by a signal.
func (s *Session) wait(timeout time.Duration) (bool, error) {
	if timeout < 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		ready, err := s.dev.WaitReadable(timeout)
		if errors.Is(err, unix.EINTR) {
			timeout = max(time.Until(deadline), 0)
			continue
		}
		return ready, err
	}
}

func (s *Session) readFrame() (Buffer, *Error) {
	data := s.pool.buffers[0]
	n, err := s.dev.Read(data)
	if errors.Is(err, unix.EAGAIN) || (err == nil && n == 0) {
		return Buffer{}, newError("read", ErrNoFrame, nil)
	}
	if err != nil {
		return Buffer{}, newError("read", ErrRead, err)
	}
	return Buffer{Data: data[:n], Index: -1, BytesUsed: n}, nil
}

func (s *Session) dequeueFrame() (Buffer, *Error) {
	index, used, err := s.dev.DequeueBuffer()
	if errors.Is(err, unix.EAGAIN) {
		return Buffer{}, newError("dequeue", ErrNoFrame, nil)
	}
	if err != nil {
		return Buffer{}, newError("dequeue", ErrDequeue, err)
	}
	if int(index) >= s.pool.size() {
		return Buffer{}, newError("dequeue", ErrBufferIndex, nil)
	}

	i := int(index)
	data := s.pool.buffers[i]
	if used > 0 && int(used) <= len(data) {
		data = data[:used]
	}

	if err := s.pool.requeue(i); err != nil {
		s.stats.RequeueFailures++
		s.logger.Error("Failed to requeue buffer, frame kept",
			"index", i,
			"lost", s.pool.lostSize,
			"error", err)
	}

	return Buffer{Data: data, Index: i, BytesUsed: len(data)}, nil
}

// AcquireFrame is AcquireRawFrame followed by conversion to RGB24 when a
// converter is registered for the negotiated format. Other formats are
// returned raw with their own fourcc. Data is a copy owned by the caller
// unless the session was opened WithZeroCopy.
func (s *Session) AcquireFrame(timeout time.Duration) (Surface, error) {
	raw, err := s.AcquireRawFrame(timeout)
	if err != nil {
		return Surface{}, err
	}

	surface := Surface{
		Data:        raw.Data,
		Width:       int(s.format.Width),
		Height:      int(s.format.Height),
		PixelFormat: s.format.PixelFormat,
	}

	if s.convert != nil {
		s.convert(s.rgb, raw.Data, Geometry{
			Width:  surface.Width,
			Height: surface.Height,
			Stride: int(s.format.Stride),
		})
		surface.Data = s.rgb
		surface.PixelFormat = v4l2.PixFmtRGB24
	}

	if !s.zeroCopy {
		surface.Data = bytes.Clone(surface.Data)
	}
	return surface, nil
}
