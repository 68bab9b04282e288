package camera

import (
	"maps"

	"github.com/smazurov/v4lcap/pkg/linuxav/v4l2"
)

// Geometry describes the source frame handed to a ConvertFunc.
type Geometry struct {
	Width  int
	Height int
	Stride int // source bytes per row
}

// ConvertFunc writes an interleaved RGB24 image of g.Width*g.Height pixels
// into dst, reading rows of g.Stride bytes from src. It must tolerate a
// short src by leaving the unfilled part of dst untouched.
type ConvertFunc func(dst, src []byte, g Geometry)

// Converters maps a source fourcc to its RGB24 conversion.
type Converters map[uint32]ConvertFunc

// DefaultConverters returns a fresh registry with the built-in conversions.
func DefaultConverters() Converters {
	return Converters{
		v4l2.PixFmtYUYV: ConvertYUYV,
	}
}

// Clone returns a copy that can be modified independently.
func (c Converters) Clone() Converters {
	return maps.Clone(c)
}

// Lookup returns the conversion for pixelFormat, or nil.
func (c Converters) Lookup(pixelFormat uint32) ConvertFunc {
	if c == nil {
		return nil
	}
	return c[pixelFormat]
}

// ConvertYUYV converts packed 4:2:2 YUYV (Y0 U Y1 V) to RGB24 using
// fixed-point BT.601 coefficients. An odd trailing column is left untouched.
func ConvertYUYV(dst, src []byte, g Geometry) {
	for row := 0; row < g.Height; row++ {
		in := row * g.Stride
		out := row * g.Width * 3
		for x := 0; x+1 < g.Width; x += 2 {
			s := in + x*2
			d := out + x*3
			if s+4 > len(src) || d+6 > len(dst) {
				return
			}

			u := int32(src[s+1]) - 128
			v := int32(src[s+3]) - 128
			dr := 409 * v
			dg := -100*u - 210*v
			db := 519 * u

			y0 := 298 * (int32(src[s]) - 16)
			y1 := 298 * (int32(src[s+2]) - 16)

			dst[d] = clamp8((y0 + dr) >> 8)
			dst[d+1] = clamp8((y0 + dg) >> 8)
			dst[d+2] = clamp8((y0 + db) >> 8)
			dst[d+3] = clamp8((y1 + dr) >> 8)
			dst[d+4] = clamp8((y1 + dg) >> 8)
			dst[d+5] = clamp8((y1 + db) >> 8)
		}
	}
}

func clamp8(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
