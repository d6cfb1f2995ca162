package frame

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Plane is a view over one single-channel sample grid (luma or one chroma
// channel) inside a camera buffer. It is only valid until the owning Frame
// is released.
type Plane struct {
	Data        []byte
	RowStride   int // bytes between consecutive rows
	PixelStride int // bytes between consecutive samples in a row
	Width       int
	Height      int
}

const (
	// MaxPixelStride covers packed, semi-planar and 4-byte interleaved layouts.
	MaxPixelStride = 4
	// MaxRowPadding bounds the bytes a producer may add after each row.
	MaxRowPadding = 4096
)

// Validate checks that the logical plane fits inside one physical row and
// that its strides stay within the producer limits. Callers bound Width
// first.
func (p Plane) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("invalid plane size %dx%d", p.Width, p.Height)
	}
	if p.PixelStride < 1 || p.PixelStride > MaxPixelStride {
		return fmt.Errorf("invalid pixel stride %d", p.PixelStride)
	}
	if p.RowStride/p.PixelStride < p.Width {
		return fmt.Errorf("row stride %d smaller than %d samples of stride %d", p.RowStride, p.Width, p.PixelStride)
	}
	if p.RowStride-p.PixelStride*p.Width > MaxRowPadding {
		return fmt.Errorf("row stride %d pads more than %d bytes", p.RowStride, MaxRowPadding)
	}
	return nil
}

// rowSpan is the number of bytes one row of samples covers.
func (p Plane) rowSpan() int {
	return (p.Width-1)*p.PixelStride + 1
}

// Len returns the size of the plane once tightly packed.
func (p Plane) Len() int {
	return p.Width * p.Height
}

// ChromaSize returns the size of a 4:2:0 chroma plane for a w×h luma plane.
func ChromaSize(w, h int) (int, int) {
	return (w + 1) / 2, (h + 1) / 2
}

// Frame is one camera frame in planar 4:2:0 form. The pipeline must call
// Release exactly once when it is done with the frame; further calls are
// no-ops.
type Frame struct {
	Y, U, V   Plane
	Width     int
	Height    int
	Rotation  int // display rotation hint in degrees
	Timestamp time.Time
	TraceID   string

	release func()
	once    sync.Once
}

// New builds a frame over the given planes. release may be nil.
func New(y, u, v Plane, width, height, rotation int, release func()) *Frame {
	return &Frame{
		Y:         y,
		U:         u,
		V:         v,
		Width:     width,
		Height:    height,
		Rotation:  rotation,
		Timestamp: time.Now(),
		TraceID:   uuid.New().String(),
		release:   release,
	}
}

// Release hands the frame's buffers back to the producer.
func (f *Frame) Release() {
	f.once.Do(func() {
		if f.release != nil {
			f.release()
		}
	})
}

// Limits bounds the frame size a producer may declare. Zero fields fall back
// to DefaultLimits.
type Limits struct {
	MaxWidth  int
	MaxHeight int
}

// DefaultLimits admits 4K frames in either orientation.
var DefaultLimits = Limits{MaxWidth: 4096, MaxHeight: 4096}

func (l Limits) orDefault() Limits {
	if l.MaxWidth <= 0 {
		l.MaxWidth = DefaultLimits.MaxWidth
	}
	if l.MaxHeight <= 0 {
		l.MaxHeight = DefaultLimits.MaxHeight
	}
	return l
}

// Validate checks plane geometry against the declared frame size, bounded by
// DefaultLimits.
func (f *Frame) Validate() error {
	return f.ValidateWithin(DefaultLimits)
}

// ValidateWithin is Validate with explicit size limits.
func (f *Frame) ValidateWithin(limits Limits) error {
	limits = limits.orDefault()
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	if f.Width > limits.MaxWidth || f.Height > limits.MaxHeight {
		return fmt.Errorf("frame size %dx%d exceeds %dx%d", f.Width, f.Height, limits.MaxWidth, limits.MaxHeight)
	}
	if f.Y.Width != f.Width || f.Y.Height != f.Height {
		return fmt.Errorf("luma plane is %dx%d, frame is %dx%d", f.Y.Width, f.Y.Height, f.Width, f.Height)
	}
	if err := f.Y.Validate(); err != nil {
		return fmt.Errorf("plane y: %w", err)
	}
	cw, ch := ChromaSize(f.Width, f.Height)
	if err := validateChroma("u", f.U, cw, ch); err != nil {
		return err
	}
	return validateChroma("v", f.V, cw, ch)
}

func validateChroma(name string, p Plane, cw, ch int) error {
	if p.Width != cw || p.Height != ch {
		return fmt.Errorf("chroma plane %s is %dx%d, want %dx%d", name, p.Width, p.Height, cw, ch)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("plane %s: %w", name, err)
	}
	return nil
}
