package pipeline

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/5usu/depthcam/internal/frame"
)

const (
	// DefaultMinInterval caps processing at roughly 30 frames per second.
	DefaultMinInterval = 33 * time.Millisecond
	// DefaultFPSWindow is the minimum span of one FPS report.
	DefaultFPSWindow = time.Second
)

// DepthStats accompanies a depth-annotated view.
type DepthStats struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	LatencyMS int64   `json:"latency_ms"`
}

// Estimator is the depth stage as seen by the driver. Infer paints depth
// into color and returns it; when the estimator is not ready it returns
// color unchanged and no error.
type Estimator interface {
	Ready() bool
	Infer(color []byte, width, height int, colorize bool) ([]byte, DepthStats, error)
}

// View is one finished image handed to the display side. Pixels belongs to
// the driver and is overwritten by the next presented frame, so a Presenter
// must copy or encode it before returning.
type View struct {
	Pixels   []byte
	Width    int
	Height   int
	Rotation int
	Depth    bool
	Stats    DepthStats
	TraceID  string
}

// Presenter receives finished views and FPS reports. Implementations must
// not block on I/O.
type Presenter interface {
	Present(v View)
	ReportFPS(fps float64)
}

// Outcome says what happened to a frame passed to Process.
type Outcome int

const (
	Presented Outcome = iota
	Dropped
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Presented:
		return "presented"
	case Dropped:
		return "dropped"
	default:
		return "skipped"
	}
}

// Options tune a Driver. Zero values fall back to the defaults.
type Options struct {
	MinInterval time.Duration
	FPSWindow   time.Duration
	Limits      frame.Limits
	Clock       func() time.Time
}

// Stats is a snapshot of driver counters, safe to read from any goroutine.
type Stats struct {
	Processed     uint64  `json:"processed"`
	Throttled     uint64  `json:"throttled"`
	ShortReads    uint64  `json:"short_reads"`
	ShapeFailures uint64  `json:"shape_failures"`
	Failures      uint64  `json:"failures"`
	FPS           float64 `json:"fps"`
	Allocations   int64   `json:"allocations"`
}

// Driver runs the per-frame pipeline. It owns every scratch buffer and all
// timing state, and must be driven from a single goroutine.
type Driver struct {
	converter Converter
	estimator Estimator
	presenter Presenter
	mode      *Mode
	arena     Arena

	minInterval time.Duration
	fpsWindow   time.Duration
	limits      frame.Limits
	clock       func() time.Time

	lastProcessed time.Time
	started       bool
	frameCount    int
	lastReport    time.Time

	processed     atomic.Uint64
	throttled     atomic.Uint64
	shortReads    atomic.Uint64
	shapeFailures atomic.Uint64
	failures      atomic.Uint64
	fpsBits       atomic.Uint64
}

// NewDriver wires a driver. est may be nil when depth is unavailable.
func NewDriver(conv Converter, est Estimator, pres Presenter, mode *Mode, opts Options) *Driver {
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.FPSWindow <= 0 {
		opts.FPSWindow = DefaultFPSWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if mode == nil {
		mode = NewMode(ModeState{})
	}
	return &Driver{
		converter:   conv,
		estimator:   est,
		presenter:   pres,
		mode:        mode,
		minInterval: opts.MinInterval,
		fpsWindow:   opts.FPSWindow,
		limits:      opts.Limits,
		clock:       opts.Clock,
	}
}

// Process runs f through the pipeline. It does not release f.
func (d *Driver) Process(f *frame.Frame) (Outcome, error) {
	now := d.clock()
	if d.started && now.Sub(d.lastProcessed) < d.minInterval {
		d.throttled.Add(1)
		return Dropped, nil
	}

	// A rejected frame leaves the throttle slot open for the next one.
	if err := f.ValidateWithin(d.limits); err != nil {
		d.failures.Add(1)
		return Skipped, fmt.Errorf("invalid frame %s: %w", f.TraceID, err)
	}
	if !d.started {
		d.started = true
		d.lastReport = now
	}
	d.lastProcessed = now

	mode := d.mode.Snapshot()

	w, h := f.Width, f.Height
	cw, ch := frame.ChromaSize(w, h)
	luma := d.arena.Ensure(SlotLuma, w*h)
	chromaU := d.arena.Ensure(SlotChromaU, cw*ch)
	chromaV := d.arena.Ensure(SlotChromaV, cw*ch)

	short := ExtractPlane(f.Y, luma) < f.Y.Height
	short = ExtractPlane(f.U, chromaU) < f.U.Height || short
	short = ExtractPlane(f.V, chromaV) < f.V.Height || short
	if short {
		d.shortReads.Add(1)
	}

	rgba, err := d.converter.Convert(luma, chromaU, chromaV, w, h, w, cw, cw)
	if err != nil {
		d.failures.Add(1)
		return Skipped, fmt.Errorf("convert frame %s: %w", f.TraceID, err)
	}
	color := d.arena.Ensure(SlotColor, w*h*4)
	copy(color, rgba)

	view := View{Width: w, Height: h, Rotation: f.Rotation, TraceID: f.TraceID}
	if mode.Depth && d.estimator != nil && d.estimator.Ready() {
		out, stats, err := d.estimator.Infer(color, w, h, mode.Colorize)
		if err != nil {
			if errors.Is(err, ErrShapeInference) {
				d.shapeFailures.Add(1)
			} else {
				d.failures.Add(1)
			}
			return Skipped, fmt.Errorf("depth frame %s: %w", f.TraceID, err)
		}
		if len(out) == len(color) && &out[0] != &color[0] {
			copy(color, out)
		}
		view.Depth = true
		view.Stats = stats
	}

	display := d.arena.Ensure(SlotDisplay, len(color))
	copy(display, color)
	view.Pixels = display
	d.presenter.Present(view)
	d.processed.Add(1)

	d.meter(now)
	return Presented, nil
}

func (d *Driver) meter(now time.Time) {
	d.frameCount++
	elapsed := now.Sub(d.lastReport)
	if elapsed < d.fpsWindow {
		return
	}

	fps := float64(d.frameCount) / elapsed.Seconds()
	d.fpsBits.Store(math.Float64bits(fps))
	d.presenter.ReportFPS(fps)
	d.frameCount = 0
	d.lastReport = now
}

// Stats returns the current counters.
func (d *Driver) Stats() Stats {
	return Stats{
		Processed:     d.processed.Load(),
		Throttled:     d.throttled.Load(),
		ShortReads:    d.shortReads.Load(),
		ShapeFailures: d.shapeFailures.Load(),
		Failures:      d.failures.Load(),
		FPS:           math.Float64frombits(d.fpsBits.Load()),
		Allocations:   d.arena.Allocations(),
	}
}
