package capture

import (
	"github.com/smazurov/v4lcap/pkg/linuxav/camera"
	"github.com/smazurov/v4lcap/pkg/linuxav/v4l2"
)

// MeanLuma returns the average BT.601 luma of a frame, 0-255. Only RGB24
// and YUYV frames are understood.
func MeanLuma(s camera.Surface) (float64, bool) {
	pixels := s.Width * s.Height
	if pixels <= 0 {
		return 0, false
	}

	var sum uint64
	switch s.PixelFormat {
	case v4l2.PixFmtRGB24:
		if len(s.Data) < pixels*3 {
			return 0, false
		}
		for i := 0; i < pixels*3; i += 3 {
			r, g, b := uint64(s.Data[i]), uint64(s.Data[i+1]), uint64(s.Data[i+2])
			sum += (77*r + 150*g + 29*b) >> 8
		}
	case v4l2.PixFmtYUYV:
		if len(s.Data) < pixels*2 {
			return 0, false
		}
		for i := 0; i < pixels*2; i += 2 {
			sum += uint64(s.Data[i])
		}
	default:
		return 0, false
	}

	return float64(sum) / float64(pixels), true
}
