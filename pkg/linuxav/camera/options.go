package camera

import "log/slog"

// Option configures Open.
type Option func(*options)

type options struct {
	opener     Opener
	logger     *slog.Logger
	converters Converters
	severity   Severity
	zeroCopy   bool
}

func defaultOptions() options {
	return options{
		opener:     openV4L2,
		converters: DefaultConverters(),
		severity:   SeverityInfo,
	}
}

// WithOpener replaces the function used to open the device node.
func WithOpener(o Opener) Option {
	return func(opts *options) {
		opts.opener = o
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = l
	}
}

// WithConverters replaces the conversion registry used by AcquireFrame.
// The session keeps its own copy of c.
func WithConverters(c Converters) Option {
	return func(opts *options) {
		opts.converters = c.Clone()
	}
}

// WithMinimumLogSeverity sets the initial minimum log severity.
func WithMinimumLogSeverity(s Severity) Option {
	return func(opts *options) {
		opts.severity = s
	}
}

// WithZeroCopy makes AcquireFrame return data that borrows session memory
// instead of a caller-owned copy.
func WithZeroCopy() Option {
	return func(opts *options) {
		opts.zeroCopy = true
	}
}
