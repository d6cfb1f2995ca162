package source

import (
	"context"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/5usu/depthcam/internal/frame"
	"github.com/5usu/depthcam/internal/logger"
)

// Webcam captures frames from a local video device and hands them on as
// I420 planes.
type Webcam struct {
	device   int
	rotation int
	logger   *logger.Logger
}

func NewWebcam(device, rotation int, logger *logger.Logger) *Webcam {
	return &Webcam{device: device, rotation: rotation, logger: logger}
}

// Run reads frames until ctx is cancelled or the device fails.
func (w *Webcam) Run(ctx context.Context, publish func(*frame.Frame)) error {
	capture, err := gocv.OpenVideoCapture(w.device)
	if err != nil {
		return fmt.Errorf("failed to open video device %d: %w", w.device, err)
	}
	defer capture.Close()

	img := gocv.NewMat()
	defer img.Close()

	w.logger.Info("Webcam %d opened", w.device)
	for ctx.Err() == nil {
		if ok := capture.Read(&img); !ok {
			return fmt.Errorf("video device %d closed", w.device)
		}
		if img.Empty() {
			continue
		}

		f, err := toI420(img, w.rotation)
		if err != nil {
			w.logger.Warning("Dropping webcam frame: %v", err)
			continue
		}
		publish(f)
	}
	return nil
}

// toI420 converts a BGR image into a frame that owns a fresh I420 Mat,
// closed when the frame is released.
func toI420(img gocv.Mat, rotation int) (*frame.Frame, error) {
	width, height := img.Cols(), img.Rows()
	if width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("odd capture size %dx%d", width, height)
	}

	yuv := gocv.NewMat()
	if err := gocv.CvtColor(img, &yuv, gocv.ColorBGRToYUVI420); err != nil {
		yuv.Close()
		return nil, fmt.Errorf("failed to convert to I420: %w", err)
	}
	data, err := yuv.DataPtrUint8()
	if err != nil {
		yuv.Close()
		return nil, fmt.Errorf("failed to read I420 data: %w", err)
	}

	cw, ch := frame.ChromaSize(width, height)
	yLen, cLen := width*height, cw*ch
	if len(data) < yLen+2*cLen {
		yuv.Close()
		return nil, fmt.Errorf("I420 buffer holds %d bytes, want %d", len(data), yLen+2*cLen)
	}

	y := frame.Plane{Data: data[:yLen], RowStride: width, PixelStride: 1, Width: width, Height: height}
	u := frame.Plane{Data: data[yLen : yLen+cLen], RowStride: cw, PixelStride: 1, Width: cw, Height: ch}
	v := frame.Plane{Data: data[yLen+cLen : yLen+2*cLen], RowStride: cw, PixelStride: 1, Width: cw, Height: ch}
	return frame.New(y, u, v, width, height, rotation, func() { yuv.Close() }), nil
}
