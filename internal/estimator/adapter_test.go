package estimator

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/5usu/depthcam/internal/frame"
	"github.com/5usu/depthcam/internal/pipeline"
)

type fakeBackend struct {
	width, height int
	raw           []float32
	err           error
	inputs        [][]float32
	closed        int
}

func (b *fakeBackend) InputSize() (int, int) { return b.width, b.height }

func (b *fakeBackend) Forward(input, dst []float32) ([]float32, error) {
	b.inputs = append(b.inputs, append([]float32(nil), input...))
	if b.err != nil {
		return nil, b.err
	}
	return append(dst[:0], b.raw...), nil
}

func (b *fakeBackend) Close() error {
	b.closed++
	return nil
}

func ramp(n int, lo, hi float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float32(i)/float32(n-1)
	}
	return out
}

func solidRGBA(w, h int, r, g, b byte) []byte {
	out := make([]byte, w*h*4)
	for i := 0; i < len(out); i += 4 {
		out[i], out[i+1], out[i+2], out[i+3] = r, g, b, 255
	}
	return out
}

// steppingClock advances by step on every read.
func steppingClock(step time.Duration) func() time.Time {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t := now
		now = now.Add(step)
		return t
	}
}

func TestAdapter_NotReadyPassesThrough(t *testing.T) {
	a := NewAdapter(nil)
	color := solidRGBA(4, 4, 10, 20, 30)
	before := append([]byte(nil), color...)

	if a.Ready() {
		t.Fatal("Adapter without backend must not be ready")
	}

	out, stats, err := a.Infer(color, 4, 4, true)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if &out[0] != &color[0] || !bytes.Equal(out, before) {
		t.Error("Expected the input buffer back unchanged")
	}
	if stats != (pipeline.DepthStats{}) {
		t.Errorf("Expected empty stats, got %+v", stats)
	}

	if _, err := a.Estimate(color, 4, 4); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
}

func TestPackCHW_NearestNeighbor(t *testing.T) {
	// 2x2 image: red, green / blue, white.
	color := []byte{
		255, 0, 0, 255, 0, 255, 0, 255,
		0, 0, 255, 255, 255, 255, 255, 255,
	}
	dst := make([]float32, 3*4*4)

	PackCHW(color, 2, 2, dst, 4, 4)

	plane := 16
	at := func(c, x, y int) float32 { return dst[c*plane+y*4+x] }

	if at(0, 0, 0) != 1 || at(1, 0, 0) != 0 || at(2, 0, 0) != 0 {
		t.Errorf("Expected red at (0,0)")
	}
	if at(1, 3, 0) != 1 || at(0, 3, 0) != 0 {
		t.Errorf("Expected green at (3,0)")
	}
	if at(2, 1, 3) != 1 || at(0, 1, 3) != 0 {
		t.Errorf("Expected blue at (1,3)")
	}
	if at(0, 2, 2) != 1 || at(1, 2, 2) != 1 || at(2, 2, 2) != 1 {
		t.Errorf("Expected white at (2,2)")
	}
}

func TestAdapter_Estimate(t *testing.T) {
	backend := &fakeBackend{width: 4, height: 4, raw: ramp(49, 0, 10)}
	a := NewAdapter(backend)
	a.clock = steppingClock(12 * time.Millisecond)

	est, err := a.Estimate(solidRGBA(8, 6, 255, 0, 51), 8, 6)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if est.LatencyMS != 12 {
		t.Errorf("Expected 12ms latency, got %d", est.LatencyMS)
	}
	if len(est.Raw) != 49 {
		t.Errorf("Expected 49 raw values, got %d", len(est.Raw))
	}

	input := backend.inputs[0]
	if len(input) != 48 {
		t.Fatalf("Expected 3x4x4 input, got %d values", len(input))
	}
	if input[0] != 1 || input[16] != 0 || input[32] != 0.2 {
		t.Errorf("Unexpected packed channels %v %v %v", input[0], input[16], input[32])
	}
}

func TestAdapter_InferPaintsDepth(t *testing.T) {
	backend := &fakeBackend{width: 4, height: 4, raw: ramp(49, 2, 8)}
	a := NewAdapter(backend)
	a.clock = steppingClock(5 * time.Millisecond)
	color := solidRGBA(14, 7, 1, 2, 3)

	out, stats, err := a.Infer(color, 14, 7, false)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if &out[0] != &color[0] {
		t.Error("Expected depth to be painted in place")
	}

	if stats.Min != 2 || stats.Max != 8 || stats.LatencyMS != 5 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	// 7x7 field stretched over 14x7: the top-left pixel is the minimum and
	// the bottom-right one the maximum.
	if out[0] != 0 || out[1] != 0 || out[2] != 0 {
		t.Errorf("Expected black at the minimum, got %v", out[:4])
	}
	last := len(out) - 4
	if out[last] != 255 || out[last+1] != 255 || out[last+2] != 255 {
		t.Errorf("Expected white at the maximum, got %v", out[last:])
	}
	for i := 3; i < len(out); i += 4 {
		if out[i] != 255 {
			t.Fatalf("Pixel %d: expected opaque alpha", i/4)
		}
	}
}

func TestAdapter_SmoothsAcrossFrames(t *testing.T) {
	backend := &fakeBackend{width: 2, height: 2, raw: ramp(64, 0, 10)}
	a := NewAdapter(backend)

	if _, _, err := a.Infer(solidRGBA(4, 4, 0, 0, 0), 4, 4, true); err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	backend.raw = ramp(64, 10, 20)
	_, stats, err := a.Infer(solidRGBA(4, 4, 0, 0, 0), 4, 4, true)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	if stats.Min != 1 || stats.Max != 11 {
		t.Errorf("Expected smoothed range [1, 11], got [%v, %v]", stats.Min, stats.Max)
	}
	if r := a.Range(); r.Min != stats.Min || r.Max != stats.Max {
		t.Errorf("Range %+v does not match reported stats %+v", r, stats)
	}
}

func TestAdapter_ShapeFailureLeavesColor(t *testing.T) {
	backend := &fakeBackend{width: 2, height: 2, raw: ramp(50, 0, 1)}
	a := NewAdapter(backend)
	color := solidRGBA(4, 4, 9, 9, 9)
	before := append([]byte(nil), color...)

	_, _, err := a.Infer(color, 4, 4, false)
	if !errors.Is(err, pipeline.ErrShapeInference) {
		t.Fatalf("Expected ErrShapeInference, got %v", err)
	}
	if !bytes.Equal(color, before) {
		t.Error("Color must not change when the shape is unknown")
	}
	if a.Range().Initialized {
		t.Error("Range must not be touched by a shape failure")
	}
}

func TestAdapter_ForwardError(t *testing.T) {
	boom := errors.New("boom")
	a := NewAdapter(&fakeBackend{width: 2, height: 2, err: boom})

	if _, _, err := a.Infer(solidRGBA(2, 2, 0, 0, 0), 2, 2, false); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped backend error, got %v", err)
	}
	if !a.Ready() {
		t.Error("Readiness must not change after a failed frame")
	}
}

func TestAdapter_Close(t *testing.T) {
	backend := &fakeBackend{width: 2, height: 2, raw: ramp(64, 0, 1)}
	a := NewAdapter(backend)

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
	if backend.closed != 1 {
		t.Errorf("Expected backend closed once, got %d", backend.closed)
	}
	if a.Ready() {
		t.Error("Expected a closed adapter to report not ready")
	}
	if _, err := a.Estimate(solidRGBA(2, 2, 0, 0, 0), 2, 2); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady after close, got %v", err)
	}

	color := solidRGBA(2, 2, 4, 5, 6)
	before := append([]byte(nil), color...)
	out, stats, err := a.Infer(color, 2, 2, false)
	if err != nil {
		t.Fatalf("Expected pass-through after close, got %v", err)
	}
	if !bytes.Equal(out, before) || stats != (pipeline.DepthStats{}) {
		t.Errorf("Expected untouched color and empty stats, got %+v", stats)
	}
	if len(backend.inputs) != 0 {
		t.Errorf("Expected no forward pass after close, got %d", len(backend.inputs))
	}
}

func TestAdapter_ClosedDuringDriveCountsNoFailures(t *testing.T) {
	a := NewAdapter(&fakeBackend{width: 2, height: 2, raw: ramp(64, 0, 1)})
	pres := &countingPresenter{}
	d := pipeline.NewDriver(&pipeline.FixedPointConverter{}, a, pres, pipeline.NewMode(pipeline.ModeState{Depth: true}), pipeline.Options{})

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	outcome, err := d.Process(packedFrame(8, 8))
	if err != nil || outcome != pipeline.Presented {
		t.Fatalf("Expected the frame presented without depth, got %v (%v)", outcome, err)
	}
	if s := d.Stats(); s.Failures != 0 || s.Processed != 1 {
		t.Errorf("Unexpected stats %+v", s)
	}
	if pres.depth != 0 {
		t.Error("Expected a color view after close")
	}
}

// reusingBackend returns a constant map through dst without allocating once
// dst is large enough.
type reusingBackend struct {
	width, height int
	raw           []float32
}

func (b *reusingBackend) InputSize() (int, int) { return b.width, b.height }

func (b *reusingBackend) Forward(input, dst []float32) ([]float32, error) {
	if cap(dst) < len(b.raw) {
		dst = make([]float32, len(b.raw))
	}
	dst = dst[:len(b.raw)]
	copy(dst, b.raw)
	return dst, nil
}

func (b *reusingBackend) Close() error { return nil }

type countingPresenter struct {
	presented int
	depth     int
}

func (p *countingPresenter) Present(v pipeline.View) {
	p.presented++
	if v.Depth {
		p.depth++
	}
}

func (p *countingPresenter) ReportFPS(float64) {}

func packedFrame(w, h int) *frame.Frame {
	cw, ch := frame.ChromaSize(w, h)
	y := frame.Plane{Data: make([]byte, w*h), RowStride: w, PixelStride: 1, Width: w, Height: h}
	u := frame.Plane{Data: make([]byte, cw*ch), RowStride: cw, PixelStride: 1, Width: cw, Height: ch}
	v := frame.Plane{Data: make([]byte, cw*ch), RowStride: cw, PixelStride: 1, Width: cw, Height: ch}
	for i := range y.Data {
		y.Data[i] = byte(16 + i%200)
	}
	return frame.New(y, u, v, w, h, 0, nil)
}

func TestDriver_DepthSteadyStateDoesNotAllocate(t *testing.T) {
	for _, colorize := range []bool{false, true} {
		a := NewAdapter(&reusingBackend{width: 8, height: 8, raw: ramp(64*2, 1, 9)})
		pres := &countingPresenter{}
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		d := pipeline.NewDriver(&pipeline.FixedPointConverter{}, a, pres,
			pipeline.NewMode(pipeline.ModeState{Depth: true, Colorize: colorize}),
			pipeline.Options{Clock: func() time.Time { return now }})
		f := packedFrame(64, 48)

		allocs := testing.AllocsPerRun(50, func() {
			now = now.Add(40 * time.Millisecond)
			if _, err := d.Process(f); err != nil {
				t.Fatalf("Process failed: %v", err)
			}
		})

		if allocs != 0 {
			t.Errorf("colorize=%v: expected zero allocations per depth frame, got %v", colorize, allocs)
		}
		if pres.depth != pres.presented || pres.presented != 51 {
			t.Errorf("colorize=%v: expected 51 depth views, got %d of %d", colorize, pres.depth, pres.presented)
		}
	}
}
