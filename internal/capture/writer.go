package capture

import (
	"bufio"
	"fmt"
	"io"

	"github.com/smazurov/v4lcap/pkg/linuxav/camera"
	"github.com/smazurov/v4lcap/pkg/linuxav/v4l2"
)

// WriteFrame writes an RGB24 surface as a binary PPM image and any other
// format as its raw bytes.
func WriteFrame(w io.Writer, s camera.Surface) error {
	if s.PixelFormat != v4l2.PixFmtRGB24 {
		_, err := w.Write(s.Data)
		return err
	}

	size := s.Width * s.Height * 3
	if len(s.Data) < size {
		return fmt.Errorf("short RGB24 frame: %d bytes for %dx%d", len(s.Data), s.Width, s.Height)
	}

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "P6\n%d %d\n255\n", s.Width, s.Height); err != nil {
		return err
	}
	if _, err := bw.Write(s.Data[:size]); err != nil {
		return err
	}
	return bw.Flush()
}

// FrameExtension returns the file extension WriteFrame output should use.
func FrameExtension(pixelFormat uint32) string {
	switch pixelFormat {
	case v4l2.PixFmtRGB24:
		return ".ppm"
	case v4l2.PixFmtMJPEG:
		return ".jpg"
	case v4l2.PixFmtH264:
		return ".h264"
	default:
		return ".raw"
	}
}
