package pipeline

import "sync/atomic"

// Slot names one reusable scratch buffer in an Arena.
type Slot int

const (
	SlotLuma Slot = iota
	SlotChromaU
	SlotChromaV
	SlotColor
	SlotDisplay
	slotCount
)

var slotNames = [slotCount]string{"luma", "chroma-u", "chroma-v", "color", "display"}

func (s Slot) String() string {
	if s < 0 || s >= slotCount {
		return "unknown"
	}
	return slotNames[s]
}

// Arena holds the driver's scratch buffers by role. A slot is replaced,
// never grown, when the requested size changes.
type Arena struct {
	bufs   [slotCount][]byte
	allocs atomic.Int64
}

// Ensure returns the buffer for s sized exactly n.
func (a *Arena) Ensure(s Slot, n int) []byte {
	if len(a.bufs[s]) != n {
		a.bufs[s] = make([]byte, n)
		a.allocs.Add(1)
	}
	return a.bufs[s]
}

// Get returns the current buffer for s, or nil if it was never allocated.
func (a *Arena) Get(s Slot) []byte {
	return a.bufs[s]
}

// Allocations reports how many times a slot has been (re)allocated.
func (a *Arena) Allocations() int64 {
	return a.allocs.Load()
}
