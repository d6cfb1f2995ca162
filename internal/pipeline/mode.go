package pipeline

import "sync/atomic"

// ModeState is the caller's view of the render mode.
type ModeState struct {
	Depth    bool `json:"depth"`
	Colorize bool `json:"colorize"`
}

// Mode is the render mode shared between the control API and the worker.
type Mode struct {
	depth    atomic.Bool
	colorize atomic.Bool
}

// NewMode creates a Mode with the given initial state.
func NewMode(s ModeState) *Mode {
	m := &Mode{}
	m.Set(s)
	return m
}

// Set replaces the mode.
func (m *Mode) Set(s ModeState) {
	m.depth.Store(s.Depth)
	m.colorize.Store(s.Colorize)
}

// Snapshot reads the mode once.
func (m *Mode) Snapshot() ModeState {
	return ModeState{Depth: m.depth.Load(), Colorize: m.colorize.Load()}
}
