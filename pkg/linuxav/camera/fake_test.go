package camera

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smazurov/v4lcap/pkg/linuxav/v4l2"
)

// fakeDevice is an in-memory Device that records resource use.
type fakeDevice struct {
	caps     v4l2.Capability
	current  v4l2.PixFormat
	adjust   func(*v4l2.PixFormat)
	granted  uint32
	bufLen   uint32
	frames   [][]byte // frames delivered in order by read or dequeue
	dqIndex  []uint32 // overrides the dequeued index when set
	readable bool

	errCap, errSetFmt, errGetFmt, errReqbufs error
	errMapAt                                  int // map call that fails, -1 for none
	errQueueAt                                int // queue call that fails, -1 for none
	errQueue, errStreamOn, errStreamOff       error
	errWait, errRead, errDequeue, errUnmap    error
	errClose                                  error
	waitEINTR                                 int

	mapped    map[*byte]bool
	bufs      map[uint32][]byte
	mapCalls  int
	queueCall int
	queued    map[uint32]bool
	streaming bool
	closed    bool
	closes    int
	cropReset bool
	lastSet   *v4l2.PixFormat
	waits     []time.Duration
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		caps: v4l2.Capability{
			Driver: "fake",
			Card:   "Fake Camera",
			Caps:   v4l2.CapVideoCapture | v4l2.CapStreaming | v4l2.CapReadWrite,
		},
		current: v4l2.PixFormat{
			Width: 4, Height: 2, PixelFormat: v4l2.PixFmtYUYV,
			BytesPerLine: 8, SizeImage: 16,
		},
		granted:    4,
		bufLen:     16,
		errMapAt:   -1,
		errQueueAt: -1,
		mapped:     map[*byte]bool{},
		bufs:       map[uint32][]byte{},
		queued:     map[uint32]bool{},
	}
}

func (f *fakeDevice) opener() Opener {
	return func(string) (Device, error) { return f, nil }
}

func (f *fakeDevice) QueryCapability() (v4l2.Capability, error) {
	return f.caps, f.errCap
}

func (f *fakeDevice) ResetCrop() error {
	f.cropReset = true
	return unix.EINVAL
}

func (f *fakeDevice) SetFormat(p *v4l2.PixFormat) error {
	if f.errSetFmt != nil {
		return f.errSetFmt
	}
	set := *p
	f.lastSet = &set
	if f.adjust != nil {
		f.adjust(p)
	}
	f.current = *p
	return nil
}

func (f *fakeDevice) GetFormat() (v4l2.PixFormat, error) {
	return f.current, f.errGetFmt
}

func (f *fakeDevice) RequestBuffers(count uint32) (uint32, error) {
	if f.errReqbufs != nil {
		return 0, f.errReqbufs
	}
	if count == 0 {
		return 0, nil
	}
	return min(count, f.granted), nil
}

func (f *fakeDevice) QueryBuffer(index uint32) (uint32, uint32, error) {
	return f.bufLen, index * 4096, nil
}

func (f *fakeDevice) Map(offset, length uint32) ([]byte, error) {
	call := f.mapCalls
	f.mapCalls++
	if call == f.errMapAt {
		return nil, unix.ENOMEM
	}
	b := make([]byte, length)
	f.mapped[&b[0]] = true
	f.bufs[offset/4096] = b
	return b, nil
}

func (f *fakeDevice) Unmap(b []byte) error {
	if f.errUnmap != nil {
		return f.errUnmap
	}
	if !f.mapped[&b[0]] {
		return unix.EINVAL
	}
	delete(f.mapped, &b[0])
	return nil
}

func (f *fakeDevice) QueueBuffer(index uint32) error {
	call := f.queueCall
	f.queueCall++
	if call == f.errQueueAt {
		return unix.EINVAL
	}
	if f.errQueue != nil {
		return f.errQueue
	}
	// The kernel refuses to queue a buffer it already owns.
	if f.queued[index] {
		return unix.EINVAL
	}
	f.queued[index] = true
	return nil
}

func (f *fakeDevice) DequeueBuffer() (uint32, uint32, error) {
	if f.errDequeue != nil {
		return 0, 0, f.errDequeue
	}
	if len(f.frames) == 0 {
		return 0, 0, unix.EAGAIN
	}
	var index uint32
	if len(f.dqIndex) > 0 {
		index, f.dqIndex = f.dqIndex[0], f.dqIndex[1:]
	} else {
		for i := range f.granted {
			if f.queued[i] {
				index = i
				break
			}
		}
	}
	frame := f.frames[0]
	f.frames = f.frames[1:]
	delete(f.queued, index)
	if b, ok := f.bufs[index]; ok {
		copy(b, frame)
	}
	return index, uint32(len(frame)), nil
}

func (f *fakeDevice) StreamOn() error {
	if f.errStreamOn != nil {
		return f.errStreamOn
	}
	f.streaming = true
	return nil
}

func (f *fakeDevice) StreamOff() error {
	f.streaming = false
	clear(f.queued)
	return f.errStreamOff
}

func (f *fakeDevice) WaitReadable(timeout time.Duration) (bool, error) {
	f.waits = append(f.waits, timeout)
	if f.waitEINTR > 0 {
		f.waitEINTR--
		return false, unix.EINTR
	}
	if f.errWait != nil {
		return false, f.errWait
	}
	return f.readable || len(f.frames) > 0, nil
}

func (f *fakeDevice) Read(p []byte) (int, error) {
	if f.errRead != nil {
		return 0, f.errRead
	}
	if len(f.frames) == 0 {
		return 0, unix.EAGAIN
	}
	n := copy(p, f.frames[0])
	f.frames = f.frames[1:]
	return n, nil
}

func (f *fakeDevice) Close() error {
	f.closes++
	f.closed = true
	return f.errClose
}

// push schedules a frame for the next read or dequeue.
func (f *fakeDevice) push(frame []byte) {
	f.frames = append(f.frames, frame)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errBoom = errors.New("boom")
