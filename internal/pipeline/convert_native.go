package pipeline

import (
	"fmt"

	"gocv.io/x/gocv"
)

// NativeConverter converts through OpenCV. The returned slice points into an
// OpenCV matrix and is only valid until the next Convert or Close.
type NativeConverter struct {
	i420     []byte
	rgba     gocv.Mat
	fallback FixedPointConverter
}

// NewNativeConverter allocates the OpenCV output matrix.
func NewNativeConverter() *NativeConverter {
	return &NativeConverter{rgba: gocv.NewMat()}
}

// Convert implements Converter. OpenCV needs even dimensions for I420, so
// odd-sized frames go through the fixed-point path.
func (c *NativeConverter) Convert(y, u, v []byte, width, height, strideY, strideU, strideV int) ([]byte, error) {
	if width%2 != 0 || height%2 != 0 {
		return c.fallback.Convert(y, u, v, width, height, strideY, strideU, strideV)
	}
	if err := checkPlanes(y, u, v, width, height, strideY, strideU, strideV); err != nil {
		return nil, err
	}

	cw, ch := width/2, height/2
	ySize, cSize := width*height, cw*ch
	if len(c.i420) != ySize+2*cSize {
		c.i420 = make([]byte, ySize+2*cSize)
	}
	packRows(c.i420[:ySize], y, width, height, strideY)
	packRows(c.i420[ySize:ySize+cSize], u, cw, ch, strideU)
	packRows(c.i420[ySize+cSize:], v, cw, ch, strideV)

	src, err := gocv.NewMatFromBytes(height*3/2, width, gocv.MatTypeCV8U, c.i420)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap i420 buffer: %w", err)
	}
	defer src.Close()

	if err := gocv.CvtColor(src, &c.rgba, gocv.ColorYUVToRGBAIYUV); err != nil {
		return nil, fmt.Errorf("failed to convert i420 to rgba: %w", err)
	}

	out, err := c.rgba.DataPtrUint8()
	if err != nil {
		return nil, fmt.Errorf("failed to read rgba matrix: %w", err)
	}
	return out, nil
}

// Close releases the OpenCV matrix.
func (c *NativeConverter) Close() error {
	return c.rgba.Close()
}

func packRows(dst, src []byte, w, h, stride int) {
	if stride == w {
		copy(dst, src[:w*h])
		return
	}
	for y := 0; y < h; y++ {
		copy(dst[y*w:(y+1)*w], src[y*stride:y*stride+w])
	}
}
