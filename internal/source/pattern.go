package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/5usu/depthcam/internal/frame"
)

// Bar colors of a 75% color-bar chart in limited-range YUV.
var bars = [...][3]byte{
	{180, 128, 128}, // white
	{162, 44, 142},  // yellow
	{131, 156, 44},  // cyan
	{112, 72, 58},   // green
	{84, 184, 198},  // magenta
	{65, 100, 212},  // red
	{35, 212, 114},  // blue
}

// Pattern generates scrolling color bars with padded rows, the way camera
// buffers usually arrive.
type Pattern struct {
	width    int
	height   int
	padding  int
	interval time.Duration
	rotation int

	pool sync.Pool
}

// NewPattern creates a width×height generator emitting one frame per
// interval. padding is the number of unused bytes after each luma row.
func NewPattern(width, height, padding int, interval time.Duration) (*Pattern, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid pattern size %dx%d", width, height)
	}
	if padding < 0 {
		return nil, fmt.Errorf("invalid padding %d", padding)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("invalid interval %v", interval)
	}
	p := &Pattern{width: width, height: height, padding: padding, interval: interval}
	size := p.yStride()*height + 2*p.cStride()*((height+1)/2)
	p.pool.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return p, nil
}

func (p *Pattern) yStride() int { return p.width + p.padding }

func (p *Pattern) cStride() int { return (p.width+1)/2 + p.padding/2 }

// Frame renders frame n. Bars move left by four pixels per frame.
func (p *Pattern) Frame(n int) *frame.Frame {
	bufp := p.pool.Get().(*[]byte)
	buf := *bufp

	cw, ch := frame.ChromaSize(p.width, p.height)
	ys, cs := p.yStride(), p.cStride()
	yLen := ys * p.height
	cLen := cs * ch

	y := frame.Plane{Data: buf[:yLen], RowStride: ys, PixelStride: 1, Width: p.width, Height: p.height}
	u := frame.Plane{Data: buf[yLen : yLen+cLen], RowStride: cs, PixelStride: 1, Width: cw, Height: ch}
	v := frame.Plane{Data: buf[yLen+cLen : yLen+2*cLen], RowStride: cs, PixelStride: 1, Width: cw, Height: ch}

	shift := n * 4
	for row := 0; row < p.height; row++ {
		line := y.Data[row*ys : row*ys+p.width]
		for x := range line {
			line[x] = bars[p.barAt(x+shift)][0]
		}
	}
	for row := 0; row < ch; row++ {
		uLine := u.Data[row*cs : row*cs+cw]
		vLine := v.Data[row*cs : row*cs+cw]
		for x := range uLine {
			c := bars[p.barAt(2*x+shift)]
			uLine[x] = c[1]
			vLine[x] = c[2]
		}
	}

	return frame.New(y, u, v, p.width, p.height, p.rotation, func() {
		p.pool.Put(bufp)
	})
}

func (p *Pattern) barAt(x int) int {
	x %= p.width
	return x * len(bars) / p.width
}

// Run publishes frames until ctx is cancelled.
func (p *Pattern) Run(ctx context.Context, publish func(*frame.Frame)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			publish(p.Frame(n))
		}
	}
}
