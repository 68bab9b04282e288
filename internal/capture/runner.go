// Package capture runs a camera session in the background and reports on it.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/v4lcap/internal/events"
	"github.com/smazurov/v4lcap/internal/metrics"
	"github.com/smazurov/v4lcap/pkg/linuxav/camera"
	"github.com/smazurov/v4lcap/pkg/linuxav/v4l2"
)

// ErrAlreadyRunning is returned by Start on a running Runner.
var ErrAlreadyRunning = errors.New("capture already running")

// ErrDeviceRemoved ends a run whose device was unplugged.
var ErrDeviceRemoved = errors.New("capture device removed")

const fpsWindow = time.Second

// pollInterval paces a zero-timeout loop while the device has no frame.
const pollInterval = 5 * time.Millisecond

// Config selects the device and how it is captured.
type Config struct {
	DevicePath  string
	Format      camera.Format
	IOMethod    camera.IOMethod
	Timeout     time.Duration // per-frame wait; zero polls every pollInterval, negative uses camera.DefaultTimeout
	LogSeverity camera.Severity
	ZeroCopy    bool
	// FrameLimit stops the run after this many frames. Zero means no limit.
	FrameLimit uint64
}

// Frame is one delivered frame.
type Frame struct {
	camera.Surface
	Sequence  uint64
	Timestamp time.Time
}

// FrameHandler receives frames on the acquisition goroutine. Surface data
// is only valid for the duration of the call when ZeroCopy is set.
type FrameHandler func(Frame)

// Status is a point-in-time view of a Runner.
type Status struct {
	Running         bool
	DevicePath      string
	State           string
	IOMethod        string
	Format          camera.Format
	Buffers         int
	Frames          uint64
	NoFrames        uint64
	RequeueFailures uint64
	LostBuffers     int
	FPS             float64
	MeanLuma        float64
	LogSeverity     string
	LastError       string
}

// Runner owns one camera session. The session is only touched from the
// acquisition goroutine once Start returns, so End and Close never race a
// wait in progress.
type Runner struct {
	cfg     Config
	bus     *events.Bus
	logger  *slog.Logger
	handler FrameHandler
	opts    []camera.Option

	mu       sync.Mutex
	session  *camera.Session
	status   Status
	severity camera.Severity
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

// NewRunner creates a Runner. bus and handler may be nil. opts are passed
// to camera.Open after the Runner's own options.
func NewRunner(cfg Config, bus *events.Bus, logger *slog.Logger, handler FrameHandler, opts ...camera.Option) *Runner {
	if cfg.DevicePath == "" {
		cfg.DevicePath = camera.DefaultDevicePath
	}
	return &Runner{
		cfg:      cfg,
		bus:      bus,
		logger:   logger,
		handler:  handler,
		opts:     opts,
		severity: cfg.LogSeverity,
		status: Status{
			DevicePath:  cfg.DevicePath,
			State:       camera.StateUnopened.String(),
			IOMethod:    cfg.IOMethod.String(),
			LogSeverity: cfg.LogSeverity.String(),
		},
	}
}

// Start opens the device, begins streaming and runs acquisition until ctx
// is cancelled, Stop is called, the device is removed, FrameLimit is
// reached or a capture error occurs.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		select {
		case <-r.done:
		default:
			return ErrAlreadyRunning
		}
	}

	opts := []camera.Option{
		camera.WithLogger(r.logger.With("device", r.cfg.DevicePath)),
		camera.WithMinimumLogSeverity(r.severity),
	}
	if r.cfg.ZeroCopy {
		opts = append(opts, camera.WithZeroCopy())
	}
	opts = append(opts, r.opts...)

	session, err := camera.Open(r.cfg.DevicePath, r.cfg.Format, r.cfg.IOMethod, opts...)
	if err != nil {
		r.recordError(err)
		r.status.LastError = err.Error()
		return err
	}
	r.transition(camera.StateUnopened, session.State())

	if err := session.Begin(); err != nil {
		r.recordError(err)
		r.status.LastError = err.Error()
		if cerr := session.Close(); cerr != nil {
			r.logger.Warn("Failed to close session after begin failure", "error", cerr)
		}
		r.transition(camera.StateNegotiated, camera.StateClosed)
		return err
	}
	r.transition(camera.StateNegotiated, camera.StateStreaming)

	r.session = session
	r.err = nil
	r.status = Status{
		Running:     true,
		DevicePath:  session.Path(),
		State:       session.State().String(),
		IOMethod:    session.IOMethod().String(),
		Format:      session.Format(),
		Buffers:     session.BufferCount(),
		LogSeverity: r.severity.String(),
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	removed := make(chan struct{}, 1)
	var unsubscribe func()
	if r.bus != nil {
		unsubscribe = r.bus.Subscribe(func(e events.DeviceRemovedEvent) {
			if e.DevicePath == r.cfg.DevicePath {
				select {
				case removed <- struct{}{}:
				default:
				}
				cancel()
			}
		})
	}

	r.logger.Info("Capture started",
		"format", session.Format().String(),
		"io_method", session.IOMethod().String(),
		"buffers", session.BufferCount())

	go func() {
		defer close(r.done)
		if unsubscribe != nil {
			defer unsubscribe()
		}
		defer cancel()

		runErr := r.loop(runCtx, session)
		select {
		case <-removed:
			runErr = ErrDeviceRemoved
		default:
		}
		r.teardown(session, runErr)
		if errors.Is(runErr, ErrDeviceRemoved) {
			metrics.DeleteCaptureMetrics(r.cfg.DevicePath)
		}
	}()

	return nil
}

// Stop cancels acquisition and waits for teardown. It returns the error
// that ended the run, if any.
func (r *Runner) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return r.Err()
}

// Wait blocks until the current run ends and returns its error.
func (r *Runner) Wait() error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	if done == nil {
		return nil
	}
	<-done
	return r.Err()
}

// Err returns the error that ended the last run.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Status returns a snapshot of the runner.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// SetLogSeverity changes the session's minimum log severity, including a
// session that is currently streaming.
func (r *Runner) SetLogSeverity(sev camera.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.severity = sev
	r.status.LogSeverity = sev.String()
	if r.session != nil {
		r.session.SetMinimumLogSeverity(sev)
	}
}

func (r *Runner) loop(ctx context.Context, session *camera.Session) error {
	var (
		seq         uint64
		windowStart = time.Now()
		windowCount int
		requeued    uint64
	)

	for {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		surface, err := session.AcquireFrame(r.cfg.Timeout)
		stats := session.Stats()
		if stats.RequeueFailures > requeued {
			metrics.AddRequeueFailures(r.cfg.DevicePath, stats.RequeueFailures-requeued)
			requeued = stats.RequeueFailures
		}

		if err != nil {
			if errors.Is(err, camera.ErrNoFrame) {
				metrics.RecordNoFrame(r.cfg.DevicePath)
				r.update(func(s *Status) { s.NoFrames = stats.NoFrames })
				if r.cfg.Timeout == 0 {
					select {
					case <-ctx.Done():
					case <-time.After(pollInterval):
					}
				}
				continue
			}
			r.recordError(err)
			r.update(func(s *Status) { s.LastError = err.Error() })
			return err
		}

		seq++
		now := time.Now()
		metrics.RecordFrame(r.cfg.DevicePath)

		windowCount++
		var fps, luma float64
		sampled := false
		if elapsed := now.Sub(windowStart); elapsed >= fpsWindow {
			fps = float64(windowCount) / elapsed.Seconds()
			windowStart, windowCount = now, 0
			metrics.SetFPS(r.cfg.DevicePath, fps)
			if l, ok := MeanLuma(surface); ok {
				luma = l
				metrics.SetMeanLuma(r.cfg.DevicePath, luma)
			}
			sampled = true
		}

		r.update(func(s *Status) {
			s.Frames = stats.Frames
			s.NoFrames = stats.NoFrames
			s.RequeueFailures = stats.RequeueFailures
			s.LostBuffers = stats.LostBuffers
			if sampled {
				s.FPS = fps
				s.MeanLuma = luma
			}
		})

		if r.handler != nil {
			r.handler(Frame{Surface: surface, Sequence: seq, Timestamp: now})
		}

		if r.cfg.FrameLimit > 0 && seq >= r.cfg.FrameLimit {
			return nil
		}
	}
}

func (r *Runner) teardown(session *camera.Session, runErr error) {
	from := session.State()
	if err := session.End(); err != nil {
		r.recordError(err)
		runErr = errors.Join(runErr, err)
	}
	r.transition(from, session.State())

	from = session.State()
	if err := session.Close(); err != nil {
		r.recordError(err)
		runErr = errors.Join(runErr, err)
	}
	r.transition(from, session.State())

	r.mu.Lock()
	r.session = nil
	r.err = runErr
	if runErr != nil {
		r.status.LastError = runErr.Error()
	}
	r.status.Running = false
	r.status.State = session.State().String()
	r.status.Buffers = 0
	r.mu.Unlock()

	if runErr != nil {
		r.logger.Warn("Capture stopped", "error", runErr)
	} else {
		r.logger.Info("Capture stopped")
	}
}

func (r *Runner) update(fn func(*Status)) {
	r.mu.Lock()
	fn(&r.status)
	r.mu.Unlock()
}

// recordError counts err by kind and publishes it. The session has already
// logged it.
func (r *Runner) recordError(err error) {
	kind := camera.KindOf(err)
	if kind == "" {
		kind = "unknown"
	}
	metrics.RecordError(r.cfg.DevicePath, string(kind))

	r.publish(events.CaptureErrorEvent{
		DevicePath: r.cfg.DevicePath,
		Kind:       string(kind),
		Error:      err.Error(),
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}

func (r *Runner) transition(from, to camera.State) {
	if from == to {
		return
	}
	r.publish(events.SessionStateChangedEvent{
		DevicePath: r.cfg.DevicePath,
		From:       from.String(),
		To:         to.String(),
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}

func (r *Runner) publish(ev events.Event) {
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}

// String describes the configured capture.
func (c Config) String() string {
	pf := "current"
	if c.Format.PixelFormat != 0 {
		pf = v4l2.FormatFourCC(c.Format.PixelFormat)
	}
	return fmt.Sprintf("%s %dx%d %s via %s", c.DevicePath, c.Format.Width, c.Format.Height, pf, c.IOMethod)
}
