package model

import "time"

// Report represents one persisted FPS window of the frame pipeline.
type Report struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	FPS           float64   `json:"fps"`
	DepthMin      float64   `json:"depth_min"`
	DepthMax      float64   `json:"depth_max"`
	LatencyMS     int64     `json:"latency_ms"`
	Depth         bool      `json:"depth"`
	Processed     uint64    `json:"processed"`
	Throttled     uint64    `json:"throttled"`
	ShapeFailures uint64    `json:"shape_failures"`
	Timestamp     time.Time `json:"timestamp"`
}
