package camera

import (
	"errors"
	"io/fs"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/smazurov/v4lcap/pkg/linuxav/v4l2"
)

func openFake(t *testing.T, f *fakeDevice, requested Format, method IOMethod, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithOpener(f.opener()), WithLogger(discardLogger())}, opts...)
	s, err := Open("/dev/video0", requested, method, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestOpenUsesCurrentFormat(t *testing.T) {
	f := newFakeDevice()
	s := openFake(t, f, Format{}, IOMethodMMAP)

	got := s.Format()
	want := Format{Width: 4, Height: 2, Stride: 8, SizeImage: 16, PixelFormat: v4l2.PixFmtYUYV}
	if got != want {
		t.Errorf("Format() = %+v, want %+v", got, want)
	}
	if f.lastSet != nil {
		t.Error("zero requested format should not issue S_FMT")
	}
	if !f.cropReset {
		t.Error("expected crop reset")
	}
	if s.State() != StateNegotiated {
		t.Errorf("State() = %v, want negotiated", s.State())
	}
	if s.BufferCount() != requestedBuffers {
		t.Errorf("BufferCount() = %d, want %d", s.BufferCount(), requestedBuffers)
	}
	if len(s.rgb) != 4*2*3 {
		t.Errorf("scratch buffer = %d bytes, want %d", len(s.rgb), 4*2*3)
	}
}

func TestOpenDefaultPath(t *testing.T) {
	f := newFakeDevice()
	var opened string
	s, err := Open("", Format{}, IOMethodMMAP,
		WithLogger(discardLogger()),
		WithOpener(func(path string) (Device, error) {
			opened = path
			return f, nil
		}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if opened != DefaultDevicePath {
		t.Errorf("opened %q, want %q", opened, DefaultDevicePath)
	}
	if s.Path() != DefaultDevicePath {
		t.Errorf("Path() = %q, want %q", s.Path(), DefaultDevicePath)
	}
}

func TestOpenSetsRequestedFormat(t *testing.T) {
	f := newFakeDevice()
	f.adjust = func(p *v4l2.PixFormat) {
		// Driver snaps to its nearest supported size.
		p.Width, p.Height = 640, 480
		p.BytesPerLine = 1280
		p.SizeImage = 1280 * 480
	}
	f.bufLen = 1280 * 480

	s := openFake(t, f, Format{Width: 641, Height: 479, PixelFormat: v4l2.PixFmtYUYV}, IOMethodMMAP)

	if f.lastSet == nil {
		t.Fatal("expected S_FMT")
	}
	if f.lastSet.Width != 641 || f.lastSet.Height != 479 || f.lastSet.PixelFormat != v4l2.PixFmtYUYV {
		t.Errorf("S_FMT sent %+v", *f.lastSet)
	}
	got := s.Format()
	if got.Width != 640 || got.Height != 480 || got.Stride != 1280 || got.SizeImage != 1280*480 {
		t.Errorf("Format() = %+v, want driver-adjusted 640x480", got)
	}
}

func TestOpenFloorCorrection(t *testing.T) {
	tests := []struct {
		name       string
		stride     uint32
		size       uint32
		wantStride uint32
		wantSize   uint32
	}{
		{name: "under-reported", stride: 0, size: 0, wantStride: 8, wantSize: 16},
		{name: "short size", stride: 8, size: 10, wantStride: 8, wantSize: 16},
		{name: "padded rows kept", stride: 12, size: 30, wantStride: 12, wantSize: 30},
		{name: "padded stride raises size", stride: 12, size: 16, wantStride: 12, wantSize: 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeDevice()
			f.current.BytesPerLine = tt.stride
			f.current.SizeImage = tt.size

			s := openFake(t, f, Format{}, IOMethodRead)
			got := s.Format()
			if got.Stride != tt.wantStride || got.SizeImage != tt.wantSize {
				t.Errorf("stride=%d size=%d, want stride=%d size=%d",
					got.Stride, got.SizeImage, tt.wantStride, tt.wantSize)
			}
			if len(s.pool.buffers[0]) != int(tt.wantSize) {
				t.Errorf("read buffer = %d bytes, want %d", len(s.pool.buffers[0]), tt.wantSize)
			}
		})
	}
}

func TestOpenErrors(t *testing.T) {
	tests := []struct {
		name      string
		method    IOMethod
		openErr   error
		setup     func(f *fakeDevice)
		requested Format
		want      error
		kind      Kind
	}{
		{name: "missing node", openErr: &fs.PathError{Op: "stat", Path: "/dev/video9", Err: fs.ErrNotExist}, want: ErrNotFound, kind: KindConfiguration},
		{name: "not a char device", openErr: v4l2.ErrNotCharDevice, want: ErrNotFound, kind: KindConfiguration},
		{name: "permission denied", openErr: unix.EACCES, want: ErrOpenDevice, kind: KindConfiguration},
		{
			name:  "querycap fails",
			setup: func(f *fakeDevice) { f.errCap = unix.ENOTTY },
			want:  ErrNotCaptureDevice, kind: KindConfiguration,
		},
		{
			name:  "no capture",
			setup: func(f *fakeDevice) { f.caps.Caps = v4l2.CapStreaming },
			want:  ErrNotCaptureDevice, kind: KindConfiguration,
		},
		{
			name:   "mmap without streaming",
			method: IOMethodMMAP,
			setup:  func(f *fakeDevice) { f.caps.Caps = v4l2.CapVideoCapture | v4l2.CapReadWrite },
			want:   ErrNotCaptureDevice, kind: KindConfiguration,
		},
		{
			name:   "read without read/write",
			method: IOMethodRead,
			setup:  func(f *fakeDevice) { f.caps.Caps = v4l2.CapVideoCapture | v4l2.CapStreaming },
			want:   ErrNotCaptureDevice, kind: KindConfiguration,
		},
		{
			name:      "set format rejected",
			setup:     func(f *fakeDevice) { f.errSetFmt = unix.EINVAL },
			requested: Format{Width: 640, Height: 480},
			want:      ErrFormatNegotiation, kind: KindNegotiation,
		},
		{
			name:  "get format fails",
			setup: func(f *fakeDevice) { f.errGetFmt = unix.EINVAL },
			want:  ErrFormatNegotiation, kind: KindNegotiation,
		},
		{
			name:  "empty geometry",
			setup: func(f *fakeDevice) { f.current.Width = 0 },
			want:  ErrFormatNegotiation, kind: KindNegotiation,
		},
		{
			name:  "reqbufs fails",
			setup: func(f *fakeDevice) { f.errReqbufs = unix.EINVAL },
			want:  ErrInsufficientBuffers, kind: KindResource,
		},
		{
			name:  "one buffer granted",
			setup: func(f *fakeDevice) { f.granted = 1 },
			want:  ErrInsufficientBuffers, kind: KindResource,
		},
		{
			name:  "mapping fails midway",
			setup: func(f *fakeDevice) { f.errMapAt = 2 },
			want:  ErrMapFailed, kind: KindResource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeDevice()
			if tt.setup != nil {
				tt.setup(f)
			}
			opener := func(string) (Device, error) {
				if tt.openErr != nil {
					return nil, tt.openErr
				}
				return f, nil
			}

			s, err := Open("/dev/video0", tt.requested, tt.method,
				WithOpener(opener), WithLogger(discardLogger()))
			if s != nil {
				t.Error("expected nil session on failure")
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Open() error = %v, want %v", err, tt.want)
			}
			if got := KindOf(err); got != tt.kind {
				t.Errorf("KindOf() = %q, want %q", got, tt.kind)
			}
			if tt.openErr == nil && !f.closed {
				t.Error("device left open after failed Open")
			}
			if len(f.mapped) != 0 {
				t.Errorf("%d buffers left mapped", len(f.mapped))
			}
		})
	}
}

func TestOpenBeginEndCloseCycles(t *testing.T) {
	for _, method := range []IOMethod{IOMethodMMAP, IOMethodRead} {
		t.Run(method.String(), func(t *testing.T) {
			for i := 0; i < 5; i++ {
				f := newFakeDevice()
				s := openFake(t, f, Format{}, method)
				if err := s.Begin(); err != nil {
					t.Fatalf("Begin: %v", err)
				}
				if err := s.End(); err != nil {
					t.Fatalf("End: %v", err)
				}
				if err := s.Close(); err != nil {
					t.Fatalf("Close: %v", err)
				}
				if len(f.mapped) != 0 {
					t.Errorf("cycle %d: %d buffers left mapped", i, len(f.mapped))
				}
				if f.closes != 1 {
					t.Errorf("cycle %d: device closed %d times, want 1", i, f.closes)
				}
				if f.streaming {
					t.Errorf("cycle %d: device still streaming", i)
				}
			}
		})
	}
}

func TestBeginQueuesAllBuffers(t *testing.T) {
	f := newFakeDevice()
	s := openFake(t, f, Format{}, IOMethodMMAP)
	defer s.Close()

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if len(f.queued) != 4 {
		t.Errorf("queued %d buffers, want 4", len(f.queued))
	}
	if !f.streaming {
		t.Error("expected STREAMON")
	}
	if s.State() != StateStreaming {
		t.Errorf("State() = %v, want streaming", s.State())
	}
}

func TestBeginFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fakeDevice)
	}{
		{name: "queue fails", setup: func(f *fakeDevice) { f.errQueueAt = 1 }},
		{name: "stream on fails", setup: func(f *fakeDevice) { f.errStreamOn = unix.EIO }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeDevice()
			s := openFake(t, f, Format{}, IOMethodMMAP)
			defer s.Close()
			tt.setup(f)

			err := s.Begin()
			if !errors.Is(err, ErrStreamStart) {
				t.Fatalf("Begin() error = %v, want ErrStreamStart", err)
			}
			if KindOf(err) != KindResource {
				t.Errorf("KindOf() = %q, want resource", KindOf(err))
			}
			if s.State() != StateNegotiated {
				t.Errorf("State() = %v, want negotiated", s.State())
			}
			if _, err := s.AcquireRawFrame(0); !errors.Is(err, ErrInvalidState) {
				t.Errorf("acquire after failed Begin: %v, want ErrInvalidState", err)
			}
			if len(f.queued) != 0 {
				t.Errorf("%d buffers left queued after failed Begin", len(f.queued))
			}

			// A retry must not trip over buffers queued by the failed attempt.
			f.errQueueAt, f.errStreamOn = -1, nil
			if err := s.Begin(); err != nil {
				t.Fatalf("Begin() retry error = %v", err)
			}
			if len(f.queued) != int(f.granted) || !f.streaming {
				t.Errorf("after retry queued=%d streaming=%v, want %d true", len(f.queued), f.streaming, f.granted)
			}
		})
	}
}

func TestStateTransitions(t *testing.T) {
	f := newFakeDevice()
	s := openFake(t, f, Format{}, IOMethodMMAP)

	if _, err := s.AcquireRawFrame(0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("acquire before Begin: %v, want ErrInvalidState", err)
	}
	if err := s.End(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("End before Begin: %v, want ErrInvalidState", err)
	}
	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := s.Begin(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Begin: %v, want ErrInvalidState", err)
	}
	if err := s.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := s.End(); err != nil {
		t.Errorf("second End: %v, want nil", err)
	}
	if _, err := s.AcquireFrame(0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("acquire after End: %v, want ErrInvalidState", err)
	}

	// Restart after stop.
	if err := s.Begin(); err != nil {
		t.Fatalf("Begin after End: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close while streaming: %v", err)
	}
	if f.streaming {
		t.Error("Close should stop streaming")
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}

	for name, err := range map[string]error{
		"Close":   s.Close(),
		"Begin":   s.Begin(),
		"End":     s.End(),
		"Acquire": func() error { _, err := s.AcquireRawFrame(0); return err }(),
	} {
		if !errors.Is(err, ErrSessionClosed) {
			t.Errorf("%s on closed session: %v, want ErrSessionClosed", name, err)
		}
	}
	if f.closes != 1 {
		t.Errorf("device closed %d times, want 1", f.closes)
	}
}

func TestEndFailureStopsSession(t *testing.T) {
	f := newFakeDevice()
	s := openFake(t, f, Format{}, IOMethodMMAP)
	defer s.Close()

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	f.errStreamOff = unix.EIO

	err := s.End()
	if !errors.Is(err, ErrStreamStop) || KindOf(err) != KindTeardown {
		t.Fatalf("End() error = %v, want teardown ErrStreamStop", err)
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	f.push(make([]byte, 16))
	if _, err := s.AcquireRawFrame(0); !errors.Is(err, ErrInvalidState) {
		t.Errorf("acquire after failed End: %v, want ErrInvalidState", err)
	}
}

func TestCloseTeardownErrors(t *testing.T) {
	tests := []struct {
		name  string
		begin bool
		setup func(f *fakeDevice)
		want  []error
	}{
		{name: "unmap fails", setup: func(f *fakeDevice) { f.errUnmap = unix.EINVAL }, want: []error{ErrUnmap}},
		{name: "close fails", setup: func(f *fakeDevice) { f.errClose = unix.EIO }, want: []error{ErrCloseDevice}},
		{
			name:  "stream off and unmap fail",
			begin: true,
			setup: func(f *fakeDevice) {
				f.errStreamOff = unix.EIO
				f.errUnmap = unix.EINVAL
			},
			want: []error{ErrStreamStop, ErrUnmap},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeDevice()
			s := openFake(t, f, Format{}, IOMethodMMAP)
			if tt.begin {
				if err := s.Begin(); err != nil {
					t.Fatalf("Begin: %v", err)
				}
			}
			tt.setup(f)

			err := s.Close()
			for _, want := range tt.want {
				if !errors.Is(err, want) {
					t.Errorf("Close() error = %v, want %v", err, want)
				}
			}
			if KindOf(err) != KindTeardown {
				t.Errorf("KindOf() = %q, want teardown", KindOf(err))
			}
			if !f.closed {
				t.Error("device should be closed despite earlier failures")
			}
			if s.State() != StateClosed {
				t.Errorf("State() = %v, want closed", s.State())
			}
		})
	}
}

func TestMultipleSessions(t *testing.T) {
	a, b := newFakeDevice(), newFakeDevice()
	sa := openFake(t, a, Format{}, IOMethodMMAP)
	sb := openFake(t, b, Format{}, IOMethodRead)

	if err := sa.Begin(); err != nil {
		t.Fatalf("Begin a: %v", err)
	}
	if err := sb.Begin(); err != nil {
		t.Fatalf("Begin b: %v", err)
	}
	if err := sa.Close(); err != nil {
		t.Fatalf("Close a: %v", err)
	}
	if sb.State() != StateStreaming {
		t.Errorf("closing one session changed the other: %v", sb.State())
	}
	if err := sb.Close(); err != nil {
		t.Fatalf("Close b: %v", err)
	}
}
