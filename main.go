package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/v4lcap/cmd"
	"github.com/smazurov/v4lcap/internal/api"
	"github.com/smazurov/v4lcap/internal/capture"
	"github.com/smazurov/v4lcap/internal/config"
	"github.com/smazurov/v4lcap/internal/devices"
	"github.com/smazurov/v4lcap/internal/events"
	"github.com/smazurov/v4lcap/internal/logging"
	"github.com/smazurov/v4lcap/internal/metrics"
	"github.com/smazurov/v4lcap/internal/version"
	"github.com/smazurov/v4lcap/pkg/linuxav/camera"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings, empty username disables auth
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	MetricsEnabled bool `help:"Expose Prometheus metrics on /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Capture settings
	CaptureDevice      string `help:"Capture device path or /dev/v4l id" default:"/dev/video0" toml:"capture.device" env:"CAPTURE_DEVICE"`
	CaptureWidth       int    `help:"Requested frame width, 0 keeps the driver's" default:"0" toml:"capture.width" env:"CAPTURE_WIDTH"`
	CaptureHeight      int    `help:"Requested frame height, 0 keeps the driver's" default:"0" toml:"capture.height" env:"CAPTURE_HEIGHT"`
	CapturePixelFormat string `help:"Requested pixel format fourcc (YUYV, MJPG, RGB3)" default:"" toml:"capture.pixel_format" env:"CAPTURE_PIXEL_FORMAT"`
	CaptureIOMethod    string `help:"I/O method (mmap, read)" default:"mmap" toml:"capture.io_method" env:"CAPTURE_IO_METHOD"`
	CaptureTimeoutUs   int    `help:"Per-frame wait in microseconds, 0 polls" default:"33333" toml:"capture.timeout_us" env:"CAPTURE_TIMEOUT_US"`
	CaptureLogSeverity string `help:"Capture session log severity (info, warn, error, none)" default:"info" toml:"capture.log_severity" env:"CAPTURE_LOG_SEVERITY"`
	CaptureZeroCopy    bool   `help:"Hand out driver buffers without copying" default:"false" toml:"capture.zero_copy" env:"CAPTURE_ZERO_COPY"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingDevices string `help:"Devices logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
}

func (o *Options) captureSettings() capture.Settings {
	return capture.Settings{
		Device:      o.CaptureDevice,
		Width:       o.CaptureWidth,
		Height:      o.CaptureHeight,
		PixelFormat: o.CapturePixelFormat,
		IOMethod:    o.CaptureIOMethod,
		TimeoutUs:   o.CaptureTimeoutUs,
		LogSeverity: o.CaptureLogSeverity,
		ZeroCopy:    o.CaptureZeroCopy,
	}
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"capture": o.LoggingCapture,
			"api":     o.LoggingAPI,
			"devices": o.LoggingDevices,
		},
	}
}

func main() {
	// Filled before any subcommand runs.
	var settings capture.Settings

	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		settings = opts.captureSettings()

		// OnStart runs in its own goroutine, OnStop on signal.
		var running atomic.Pointer[service]
		hooks.OnStart(func() {
			svc, err := newService(opts, settings, logger)
			if err != nil {
				logger.Error("Invalid capture configuration", "error", err)
				os.Exit(1)
			}
			svc.start()
			running.Store(svc)

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := svc.server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			if svc := running.Load(); svc != nil {
				svc.stop()
			}
		})
	})

	cli.Root().Use = "v4lcap"
	cli.Root().Short = "V4L2 capture service"
	cli.Root().Version = version.Get().String()

	cli.Root().AddCommand(cmd.NewGrabCmd(&settings))
	cli.Root().AddCommand(cmd.NewDevicesCmd(devices.NewDetector()))

	// Run the CLI
	cli.Run()
}

// service is everything the root command runs.
type service struct {
	logger  *slog.Logger
	cfg     capture.Config
	bus     *events.Bus
	monitor *devices.Monitor
	runner  *capture.Runner
	server  *api.Server
	watcher *config.Watcher[config.Reloadable]

	ctx    context.Context
	cancel context.CancelFunc
	unsubs []func()
}

func newService(opts *Options, settings capture.Settings, logger *slog.Logger) (*service, error) {
	cfg, err := settings.Config()
	if err != nil {
		return nil, err
	}
	if cfg.DevicePath != "" {
		if path, resolveErr := devices.ResolveDevicePath(cfg.DevicePath); resolveErr == nil {
			cfg.DevicePath = path
		} else {
			logger.Warn("Capture device not present yet", "device", cfg.DevicePath, "error", resolveErr)
		}
	}

	// Create event bus for in-process event handling
	bus := events.New()
	detector := devices.NewDetector()

	s := &service{
		logger:  logger,
		cfg:     cfg,
		bus:     bus,
		monitor: devices.NewMonitor(detector, bus, logging.GetLogger("devices")),
		runner:  capture.NewRunner(cfg, bus, logging.GetLogger("capture"), nil),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	apiOpts := &api.Options{
		AuthUsername: opts.AuthUsername,
		AuthPassword: opts.AuthPassword,
		Detector:     detector,
		Capture:      s.runner,
		Events:       bus,
	}
	if opts.MetricsEnabled {
		apiOpts.PrometheusHandler = metrics.Handler()
	}
	s.server = api.NewServer(apiOpts)

	s.watcher = config.NewConfigWatcher(opts.Config, config.LoadReloadable, logger,
		config.WithDebounce[config.Reloadable](time.Second))
	s.unsubs = append(s.unsubs, s.watcher.OnReload(s.reload))

	return s, nil
}

func (s *service) start() {
	go func() {
		if err := s.monitor.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Device monitor stopped", "error", err)
		}
	}()

	if err := s.watcher.Start(); err != nil {
		s.logger.Warn("Config hot reload disabled", "error", err)
	}

	// Restart capture when the configured device comes back.
	s.unsubs = append(s.unsubs, s.bus.Subscribe(func(e events.DeviceAddedEvent) {
		if e.DevicePath != s.cfg.DevicePath || s.runner.Status().Running {
			return
		}
		s.logger.Info("Capture device reappeared, restarting", "device", e.DevicePath)
		s.startCapture()
	}))

	s.startCapture()
}

func (s *service) startCapture() {
	if err := s.runner.Start(s.ctx); err != nil && !errors.Is(err, capture.ErrAlreadyRunning) {
		s.logger.Error("Failed to start capture", "device", s.cfg.DevicePath, "error", err)
	}
}

func (s *service) reload(r config.Reloadable) {
	logging.UpdateLevels(r.Logging.Level, r.Logging.Modules)

	sev, err := camera.ParseSeverity(r.CaptureLogSeverity)
	if err != nil {
		s.logger.Warn("Ignoring capture.log_severity", "error", err)
		return
	}
	s.runner.SetLogSeverity(sev)
	s.logger.Info("Configuration reloaded", "level", r.Logging.Level, "capture_log_severity", sev)
}

func (s *service) stop() {
	s.logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Stop(ctx); err != nil {
		s.logger.Error("Error stopping HTTP server", "error", err)
	}

	for _, unsub := range s.unsubs {
		unsub()
	}
	if err := s.runner.Stop(); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("Capture ended with error", "error", err)
	}
	if err := s.watcher.Stop(); err != nil {
		s.logger.Warn("Error stopping config watcher", "error", err)
	}
	s.cancel()
}
