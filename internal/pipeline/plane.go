package pipeline

import "github.com/5usu/depthcam/internal/frame"

// ExtractPlane copies the logical samples of src into dst, which must be
// exactly src.Width*src.Height bytes. Sample x of row y is read at
// y*RowStride + x*PixelStride.
//
// It returns the number of rows copied. A short source stops the copy early
// and leaves the trailing rows of dst with their previous contents.
func ExtractPlane(src frame.Plane, dst []byte) int {
	w, h := src.Width, src.Height
	if w <= 0 || h <= 0 || len(dst) != w*h {
		return 0
	}

	need := (w-1)*src.PixelStride + 1
	for y := 0; y < h; y++ {
		off := y * src.RowStride
		if off >= len(src.Data) {
			return y
		}

		n := src.RowStride
		if rem := len(src.Data) - off; rem < n {
			n = rem
		}
		line := src.Data[off : off+n]
		if len(line) < need {
			return y
		}

		out := dst[y*w : (y+1)*w]
		if src.PixelStride == 1 {
			copy(out, line[:w])
			continue
		}
		for x := range out {
			out[x] = line[x*src.PixelStride]
		}
	}
	return h
}
