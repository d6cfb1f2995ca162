package display

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/5usu/depthcam/internal/pipeline"
)

// Encoder turns a finished view into bytes a viewer can show.
type Encoder interface {
	Encode(v pipeline.View) ([]byte, error)
}

// JPEGEncoder converts RGBA views to JPEG, applying the rotation hint.
// It keeps its intermediate Mats between calls and is not safe for
// concurrent use.
type JPEGEncoder struct {
	quality int
	bgr     gocv.Mat
	rotated gocv.Mat
}

func NewJPEGEncoder(quality int) *JPEGEncoder {
	return &JPEGEncoder{
		quality: quality,
		bgr:     gocv.NewMat(),
		rotated: gocv.NewMat(),
	}
}

func (e *JPEGEncoder) Encode(v pipeline.View) ([]byte, error) {
	if len(v.Pixels) < v.Width*v.Height*4 {
		return nil, fmt.Errorf("view of %d bytes is not %dx%d RGBA", len(v.Pixels), v.Width, v.Height)
	}

	src, err := gocv.NewMatFromBytes(v.Height, v.Width, gocv.MatTypeCV8UC4, v.Pixels)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap view: %w", err)
	}
	defer src.Close()

	if err := gocv.CvtColor(src, &e.bgr, gocv.ColorRGBAToBGR); err != nil {
		return nil, fmt.Errorf("failed to convert view: %w", err)
	}

	out := e.bgr
	if code, ok := rotateFlag(v.Rotation); ok {
		if err := gocv.Rotate(e.bgr, &e.rotated, code); err != nil {
			return nil, fmt.Errorf("failed to rotate view: %w", err)
		}
		out = e.rotated
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, out, []int{gocv.IMWriteJpegQuality, e.quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode view: %w", err)
	}
	defer buf.Close()

	image := make([]byte, len(buf.GetBytes()))
	copy(image, buf.GetBytes())
	return image, nil
}

func (e *JPEGEncoder) Close() {
	e.bgr.Close()
	e.rotated.Close()
}

// rotateFlag maps a rotation hint in degrees to a gocv rotation.
func rotateFlag(degrees int) (gocv.RotateFlag, bool) {
	switch ((degrees % 360) + 360) % 360 {
	case 90:
		return gocv.Rotate90Clockwise, true
	case 180:
		return gocv.Rotate180Clockwise, true
	case 270:
		return gocv.Rotate90CounterClockwise, true
	default:
		return 0, false
	}
}
