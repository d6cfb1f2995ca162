package pipeline

import (
	"fmt"
	"math"
)

// ColorMode selects how a normalized field is painted.
type ColorMode int

const (
	// ColorGray replicates the value into the three color channels.
	ColorGray ColorMode = iota
	// ColorTurbo paints with a polynomial approximation of the turbo colormap.
	ColorTurbo
)

func (m ColorMode) String() string {
	if m == ColorTurbo {
		return "turbo"
	}
	return "gray"
}

// Fifth-degree turbo fit, lowest order first.
var (
	turboRed   = [6]float64{0.13572138, 4.61539260, -42.66032258, 132.13108234, -152.94239396, 59.28637943}
	turboGreen = [6]float64{0.09140261, 2.19418839, 4.84296658, -14.18503333, 4.27729857, 2.82956604}
	turboBlue  = [6]float64{0.10667330, 12.64194608, -60.58204836, 110.36276771, -89.90310912, 27.34824973}
)

// Colorize upsamples an outW×outH field to width×height with
// nearest-neighbor sampling and writes opaque RGBA into dst.
func Colorize(field []float32, outW, outH int, dst []byte, width, height int, mode ColorMode) error {
	if outW <= 0 || outH <= 0 || len(field) < outW*outH {
		return fmt.Errorf("colorize: field of %d values is not %dx%d", len(field), outW, outH)
	}
	if width <= 0 || height <= 0 || len(dst) < width*height*4 {
		return fmt.Errorf("colorize: destination of %d bytes is not %dx%dx4", len(dst), width, height)
	}

	o := 0
	for y := 0; y < height; y++ {
		sy := y * outH / height
		row := field[sy*outW : (sy+1)*outW]
		for x := 0; x < width; x++ {
			r, g, b := shade(row[x*outW/width], mode)
			dst[o] = r
			dst[o+1] = g
			dst[o+2] = b
			dst[o+3] = 255
			o += 4
		}
	}
	return nil
}

func shade(v float32, mode ColorMode) (byte, byte, byte) {
	t := clampUnit(float64(v))
	if mode != ColorTurbo {
		g := unitToByte(t)
		return g, g, g
	}
	return unitToByte(clampUnit(poly5(turboRed, t))),
		unitToByte(clampUnit(poly5(turboGreen, t))),
		unitToByte(clampUnit(poly5(turboBlue, t)))
}

func poly5(c [6]float64, t float64) float64 {
	return c[0] + t*(c[1]+t*(c[2]+t*(c[3]+t*(c[4]+t*c[5]))))
}

func unitToByte(t float64) byte {
	v := math.Round(t * 255)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
