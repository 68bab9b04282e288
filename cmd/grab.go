// Package cmd holds the v4lcap subcommands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/v4lcap/internal/capture"
	"github.com/smazurov/v4lcap/internal/devices"
	"github.com/smazurov/v4lcap/internal/logging"
)

// NewGrabCmd creates the grab command. settings is filled from flags,
// env and config before the command runs.
func NewGrabCmd(settings *capture.Settings) *cobra.Command {
	var (
		count  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "grab",
		Short: "Capture frames to files",
		Long: `Opens the capture device, acquires --count frames and writes each one to --output. ` +
			`Frames that can be converted are written as RGB PPM images, others as raw payloads.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1, got %d", count)
			}
			cfg, err := settings.Config()
			if err != nil {
				return err
			}
			cfg.FrameLimit = uint64(count)
			if cfg.DevicePath != "" {
				if cfg.DevicePath, err = devices.ResolveDevicePath(cfg.DevicePath); err != nil {
					return err
				}
			}

			if err := os.MkdirAll(output, 0o755); err != nil {
				return fmt.Errorf("failed to create output directory %s: %w", output, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return grab(ctx, cmd, cfg, output)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of frames to capture")
	cmd.Flags().StringVarP(&output, "output", "o", ".", "Directory to write frames to")
	return cmd
}

func grab(ctx context.Context, cmd *cobra.Command, cfg capture.Config, output string) error {
	logger := logging.GetLogger("capture")

	var (
		written  []string
		writeErr error
	)
	handler := func(f capture.Frame) {
		if writeErr != nil {
			return
		}
		name := filepath.Join(output, fmt.Sprintf("frame-%04d%s", f.Sequence, capture.FrameExtension(f.PixelFormat)))
		file, err := os.Create(name)
		if err != nil {
			writeErr = err
			return
		}
		if err := capture.WriteFrame(file, f.Surface); err != nil {
			_ = file.Close()
			writeErr = fmt.Errorf("failed to write %s: %w", name, err)
			return
		}
		if err := file.Close(); err != nil {
			writeErr = err
			return
		}
		written = append(written, name)
	}

	runner := capture.NewRunner(cfg, nil, logger, handler)

	start := time.Now()
	if err := runner.Start(ctx); err != nil {
		return err
	}
	runErr := runner.Wait()
	elapsed := time.Since(start)

	st := runner.Status()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Device:   %s (%s)\n", st.DevicePath, st.IOMethod)
	fmt.Fprintf(out, "Format:   %s\n", st.Format)
	fmt.Fprintf(out, "Frames:   %d in %s", st.Frames, elapsed.Round(time.Millisecond))
	if elapsed > 0 && st.Frames > 0 {
		fmt.Fprintf(out, " (%.1f fps)", float64(st.Frames)/elapsed.Seconds())
	}
	fmt.Fprintln(out)
	if st.NoFrames > 0 || st.RequeueFailures > 0 {
		fmt.Fprintf(out, "Missed:   %d timeouts, %d requeue failures\n", st.NoFrames, st.RequeueFailures)
	}
	for _, name := range written {
		fmt.Fprintf(out, "Wrote:    %s\n", name)
	}

	if runErr != nil {
		return runErr
	}
	return writeErr
}
