package pipeline

import (
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when a plane holds fewer bytes than its
// declared geometry requires.
var ErrShortBuffer = errors.New("buffer shorter than declared geometry")

// Converter turns three packed 4:2:0 planes into one interleaved RGBA
// buffer of width*height*4 bytes. The returned slice may be reused or
// invalidated by the next call, so callers copy it out.
type Converter interface {
	Convert(y, u, v []byte, width, height, strideY, strideU, strideV int) ([]byte, error)
}

// FixedPointConverter applies a BT.601 limited-range transform in integer
// arithmetic. The zero value is ready to use.
type FixedPointConverter struct {
	out []byte
}

// Convert implements Converter.
func (c *FixedPointConverter) Convert(y, u, v []byte, width, height, strideY, strideU, strideV int) ([]byte, error) {
	if err := checkPlanes(y, u, v, width, height, strideY, strideU, strideV); err != nil {
		return nil, err
	}

	n := width * height * 4
	if len(c.out) != n {
		c.out = make([]byte, n)
	}
	yuvToRGBA(y, u, v, width, height, strideY, strideU, strideV, c.out)
	return c.out, nil
}

func checkPlanes(y, u, v []byte, width, height, strideY, strideU, strideV int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid size %dx%d", width, height)
	}
	cw, ch := (width+1)/2, (height+1)/2
	if strideY < width || strideU < cw || strideV < cw {
		return fmt.Errorf("strides %d/%d/%d too small for width %d", strideY, strideU, strideV, width)
	}
	if len(y) < (height-1)*strideY+width {
		return fmt.Errorf("luma: %w", ErrShortBuffer)
	}
	if len(u) < (ch-1)*strideU+cw {
		return fmt.Errorf("chroma u: %w", ErrShortBuffer)
	}
	if len(v) < (ch-1)*strideV+cw {
		return fmt.Errorf("chroma v: %w", ErrShortBuffer)
	}
	return nil
}

func yuvToRGBA(y, u, v []byte, width, height, strideY, strideU, strideV int, out []byte) {
	o := 0
	for j := 0; j < height; j++ {
		yRow := y[j*strideY:]
		uRow := u[(j/2)*strideU:]
		vRow := v[(j/2)*strideV:]
		for i := 0; i < width; i++ {
			c := int(yRow[i]) - 16
			d := int(uRow[i/2]) - 128
			e := int(vRow[i/2]) - 128

			out[o] = clampByte((256*c + 359*e + 128) >> 8)
			out[o+1] = clampByte((256*c - 88*d - 183*e + 128) >> 8)
			out[o+2] = clampByte((256*c + 454*d + 128) >> 8)
			out[o+3] = 255
			o += 4
		}
	}
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
