package camera

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{in: "info", want: SeverityInfo},
		{in: "WARN", want: SeverityWarn},
		{in: "error", want: SeverityError},
		{in: "none", want: SeverityNone},
		{in: "debug", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSeverity(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSeverity(%q) error = %v", tt.in, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseSeverity(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSessionSeverityFilter(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	f := newFakeDevice()
	s, err := Open("/dev/video0", Format{}, IOMethodMMAP,
		WithOpener(f.opener()),
		WithLogger(logger),
		WithMinimumLogSeverity(SeverityWarn))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if strings.Contains(out.String(), "Opened capture device") {
		t.Error("info record logged below minimum severity warn")
	}

	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	f.errWait = unix.EBADF

	s.SetMinimumLogSeverity(SeverityNone)
	out.Reset()
	_, _ = s.AcquireRawFrame(0)
	if out.Len() != 0 {
		t.Errorf("severity none still logged: %s", out.String())
	}

	s.SetMinimumLogSeverity(SeverityError)
	_, _ = s.AcquireRawFrame(0)
	if !strings.Contains(out.String(), "level=ERROR") {
		t.Errorf("expected error record, got %q", out.String())
	}
}

func TestNoFrameIsNotLogged(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, nil))

	f := newFakeDevice()
	s, err := Open("/dev/video0", Format{}, IOMethodMMAP, WithOpener(f.opener()), WithLogger(logger))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	out.Reset()
	f.readable = true
	_, _ = s.AcquireRawFrame(0)
	if out.Len() != 0 {
		t.Errorf("no-frame logged: %s", out.String())
	}
}
