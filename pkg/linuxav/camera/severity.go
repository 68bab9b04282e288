package camera

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Severity is the minimum level a session logs at.
type Severity int

// Severities, in increasing order.
const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
	SeverityNone
)

// levelNone sits above every level the package emits.
const levelNone = slog.LevelError + 4

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	case SeverityNone:
		return "none"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Level returns the slog level that corresponds to s.
func (s Severity) Level() slog.Level {
	switch s {
	case SeverityWarn:
		return slog.LevelWarn
	case SeverityError:
		return slog.LevelError
	case SeverityNone:
		return levelNone
	default:
		return slog.LevelInfo
	}
}

// ParseSeverity parses info, warn, error or none.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return SeverityInfo, nil
	case "warn", "warning":
		return SeverityWarn, nil
	case "error":
		return SeverityError, nil
	case "none", "off":
		return SeverityNone, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown log severity %q", s)
	}
}

// severityHandler drops records below a runtime-adjustable minimum before
// handing them to the wrapped handler.
type severityHandler struct {
	next slog.Handler
	min  *slog.LevelVar
}

func newSeverityHandler(next slog.Handler, min *slog.LevelVar) *severityHandler {
	return &severityHandler{next: next, min: min}
}

func (h *severityHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min.Level() && h.next.Enabled(ctx, level)
}

func (h *severityHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.next.Handle(ctx, r)
}

func (h *severityHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &severityHandler{next: h.next.WithAttrs(attrs), min: h.min}
}

func (h *severityHandler) WithGroup(name string) slog.Handler {
	return &severityHandler{next: h.next.WithGroup(name), min: h.min}
}
