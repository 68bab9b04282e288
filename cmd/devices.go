package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/v4lcap/internal/devices"
	"github.com/smazurov/v4lcap/pkg/linuxav/camera"
	"github.com/smazurov/v4lcap/pkg/linuxav/v4l2"
)

// NewDevicesCmd creates the devices command.
func NewDevicesCmd(detector devices.Detector) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "devices [path-or-id...]",
		Short: "List V4L2 capture devices and their formats",
		Long: `Without arguments every capture device is listed. With arguments, or --verbose, ` +
			`the pixel formats, frame sizes and frame rates of each device are printed too.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if len(args) > 0 {
				for _, arg := range args {
					path, err := devices.ResolveDevicePath(arg)
					if err != nil {
						return err
					}
					if err := printFormats(out, detector, path); err != nil {
						return err
					}
				}
				return nil
			}

			found, err := detector.FindDevices()
			if err != nil {
				return fmt.Errorf("failed to find devices: %w", err)
			}
			if len(found) == 0 {
				fmt.Fprintln(out, "No V4L2 capture devices found.")
				return nil
			}

			fmt.Fprintf(out, "Found %d V4L2 capture devices:\n", len(found))
			for i, dev := range found {
				fmt.Fprintf(out, "%d. Device Path: %s\n", i+1, dev.DevicePath)
				fmt.Fprintf(out, "   Device Name: %s\n", dev.DeviceName)
				fmt.Fprintf(out, "   Device ID:   %s\n", dev.DeviceID)
				fmt.Fprintf(out, "   I/O:         %s\n", ioMethods(dev.Caps))
				if verbose {
					if err := printFormats(out, detector, dev.DevicePath); err != nil {
						fmt.Fprintf(out, "   Formats:     %v\n", err)
					}
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Also list formats, sizes and rates")
	return cmd
}

func ioMethods(caps uint32) string {
	var methods []string
	if caps&v4l2.CapStreaming != 0 {
		methods = append(methods, "mmap")
	}
	if caps&v4l2.CapReadWrite != 0 {
		methods = append(methods, "read")
	}
	if len(methods) == 0 {
		return "none"
	}
	return strings.Join(methods, ", ")
}

func printFormats(out io.Writer, detector devices.Detector, path string) error {
	details, err := devices.Describe(detector, path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	converters := camera.DefaultConverters()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "   %s\tFORMAT\tSIZE\tFPS\n", path)
	for _, f := range details {
		name := v4l2.FormatFourCC(f.PixelFormat)
		if converters.Lookup(f.PixelFormat) != nil {
			name += " (rgb)"
		}
		if f.Emulated {
			name += " (emulated)"
		}
		if len(f.Sizes) == 0 {
			fmt.Fprintf(tw, "\t%s\t-\t-\n", name)
			continue
		}
		for _, s := range f.Sizes {
			rates := make([]string, len(s.Framerates))
			for i, r := range s.Framerates {
				rates[i] = fmt.Sprintf("%g", r.FPS())
			}
			fmt.Fprintf(tw, "\t%s\t%dx%d\t%s\n", name, s.Width, s.Height, strings.Join(rates, " "))
		}
	}
	return tw.Flush()
}
