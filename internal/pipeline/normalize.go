package pipeline

import (
	"errors"
	"fmt"
	"math"
)

const (
	// SmoothingFactor is the EMA weight given to each new observation.
	SmoothingFactor = 0.1
	// MinRange is the floor applied to the smoothed span before dividing.
	MinRange = 1e-6
)

// WidthCandidates are tried in order when inferring the width of a raw
// estimate map.
var WidthCandidates = [...]int{64, 80, 96, 128, 160, 192, 224, 256, 320, 384}

// ErrShapeInference means the raw estimate length has no usable 2-D shape.
var ErrShapeInference = errors.New("cannot infer estimate shape")

// Range is the exponentially smoothed [min, max] of the estimator output.
// It is owned by one pipeline and threaded into every Normalize call.
type Range struct {
	Min         float64
	Max         float64
	Initialized bool
}

// Update folds an observed min/max into the range. The first observation
// seeds it without smoothing.
func (r *Range) Update(lo, hi float64) {
	if !r.Initialized {
		r.Min, r.Max = lo, hi
		r.Initialized = true
		return
	}
	r.Min += SmoothingFactor * (lo - r.Min)
	r.Max += SmoothingFactor * (hi - r.Max)
}

// Span returns the divisor used for normalization.
func (r Range) Span() float64 {
	return math.Max(r.Max-r.Min, MinRange)
}

// Observed is the exact min/max of one raw estimate map.
type Observed struct {
	Min float64
	Max float64
}

// Normalize updates r from raw and writes the normalized field into dst,
// which must be at least len(raw). NaN and Inf are not filtered.
func Normalize(raw []float32, r *Range, dst []float32) (Observed, error) {
	if len(raw) == 0 {
		return Observed{}, fmt.Errorf("%w: empty estimate", ErrShapeInference)
	}
	if len(dst) < len(raw) {
		return Observed{}, fmt.Errorf("normalize: destination holds %d values, need %d", len(dst), len(raw))
	}

	lo, hi := float64(raw[0]), float64(raw[0])
	for _, v := range raw[1:] {
		lo = math.Min(lo, float64(v))
		hi = math.Max(hi, float64(v))
	}
	r.Update(lo, hi)

	base, span := r.Min, r.Span()
	for i, v := range raw {
		dst[i] = float32(clampUnit((float64(v) - base) / span))
	}
	return Observed{Min: lo, Max: hi}, nil
}

// InferShape picks the width of a flat estimate map of n values: the first
// entry of WidthCandidates dividing n, else floor(sqrt(n)).
func InferShape(n int) (width, height int, err error) {
	if n <= 0 {
		return 0, 0, fmt.Errorf("%w: length %d", ErrShapeInference, n)
	}
	for _, c := range WidthCandidates {
		if n%c == 0 {
			return c, n / c, nil
		}
	}

	width = int(math.Sqrt(float64(n)))
	if width < 1 {
		width = 1
	}
	if n%width != 0 {
		return 0, 0, fmt.Errorf("%w: length %d", ErrShapeInference, n)
	}
	return width, n / width, nil
}

// clampUnit clamps v to [0,1]; NaN maps to 0.
func clampUnit(v float64) float64 {
	if !(v >= 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
