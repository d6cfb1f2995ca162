package estimator

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/5usu/depthcam/internal/pipeline"
)

// ErrNotReady is returned by Estimate when no backend is loaded.
var ErrNotReady = errors.New("estimator not ready")

// Backend runs one forward pass of a depth network.
type Backend interface {
	// InputSize is the spatial size of the planar RGB input tensor.
	InputSize() (width, height int)
	// Forward consumes a 3×H×W tensor in [0,1] and returns the flat raw
	// estimate map. dst may be reused for the result.
	Forward(input, dst []float32) ([]float32, error)
	Close() error
}

// Estimate is one raw estimator output.
type Estimate struct {
	Raw       []float32
	LatencyMS int64
}

// Adapter turns RGBA frames into depth images. Readiness is decided when the
// adapter is built and only ends when it is closed.
type Adapter struct {
	backend Backend
	ready   bool
	closed  atomic.Bool
	clock   func() time.Time

	mu    sync.Mutex
	rng   pipeline.Range
	input []float32
	raw   []float32
	field []float32
}

// NewAdapter wraps b. A nil backend yields an adapter that is never ready.
func NewAdapter(b Backend) *Adapter {
	return &Adapter{
		backend: b,
		ready:   b != nil,
		clock:   time.Now,
	}
}

func (a *Adapter) Ready() bool {
	return a.ready && !a.closed.Load()
}

// Estimate resamples color (w×h RGBA) to the backend input and runs it.
// The returned Raw slice is reused by the next call.
func (a *Adapter) Estimate(color []byte, w, h int) (Estimate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.estimate(color, w, h)
}

func (a *Adapter) estimate(color []byte, w, h int) (Estimate, error) {
	if !a.ready || a.closed.Load() {
		return Estimate{}, ErrNotReady
	}
	if w <= 0 || h <= 0 || len(color) < w*h*4 {
		return Estimate{}, fmt.Errorf("color buffer of %d bytes is not %dx%d RGBA", len(color), w, h)
	}

	tw, th := a.backend.InputSize()
	if n := 3 * tw * th; len(a.input) != n {
		a.input = make([]float32, n)
	}
	PackCHW(color, w, h, a.input, tw, th)

	start := a.clock()
	raw, err := a.backend.Forward(a.input, a.raw)
	if err != nil {
		return Estimate{}, fmt.Errorf("forward pass: %w", err)
	}
	a.raw = raw
	return Estimate{Raw: raw, LatencyMS: a.clock().Sub(start).Milliseconds()}, nil
}

// Infer paints the depth image of color back into color. When the adapter is
// not ready or already closed color is returned untouched. Reported min/max are the smoothed
// range used for normalization.
func (a *Adapter) Infer(color []byte, w, h int, colorize bool) ([]byte, pipeline.DepthStats, error) {
	if !a.ready {
		return color, pipeline.DepthStats{}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return color, pipeline.DepthStats{}, nil
	}

	est, err := a.estimate(color, w, h)
	if err != nil {
		return nil, pipeline.DepthStats{}, err
	}

	ow, oh, err := pipeline.InferShape(len(est.Raw))
	if err != nil {
		return nil, pipeline.DepthStats{}, err
	}
	if len(a.field) < len(est.Raw) {
		a.field = make([]float32, len(est.Raw))
	}
	field := a.field[:len(est.Raw)]
	if _, err := pipeline.Normalize(est.Raw, &a.rng, field); err != nil {
		return nil, pipeline.DepthStats{}, err
	}

	mode := pipeline.ColorGray
	if colorize {
		mode = pipeline.ColorTurbo
	}
	if err := pipeline.Colorize(field, ow, oh, color, w, h, mode); err != nil {
		return nil, pipeline.DepthStats{}, err
	}

	return color, pipeline.DepthStats{Min: a.rng.Min, Max: a.rng.Max, LatencyMS: est.LatencyMS}, nil
}

// Range returns the current smoothing state.
func (a *Adapter) Range() pipeline.Range {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rng
}

// Close waits for an in-flight inference and releases the backend.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Swap(true) || a.backend == nil {
		return nil
	}
	return a.backend.Close()
}

// PackCHW samples an RGBA image into a planar 3×th×tw tensor with values in
// [0,1], using nearest-neighbor selection.
func PackCHW(color []byte, w, h int, dst []float32, tw, th int) {
	plane := tw * th
	for oy := 0; oy < th; oy++ {
		row := (oy * h / th) * w
		for ox := 0; ox < tw; ox++ {
			p := (row + ox*w/tw) * 4
			i := oy*tw + ox
			dst[i] = float32(color[p]) / 255
			dst[plane+i] = float32(color[p+1]) / 255
			dst[2*plane+i] = float32(color[p+2]) / 255
		}
	}
}
