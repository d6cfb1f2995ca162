package display

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/5usu/depthcam/internal/logger"
	"github.com/5usu/depthcam/internal/model"
	"github.com/5usu/depthcam/internal/pipeline"
	"github.com/5usu/depthcam/internal/services/telemetry"
)

// Broadcaster delivers messages to viewers without blocking.
type Broadcaster interface {
	BroadcastFrame(header, image []byte) bool
	BroadcastText(data []byte) bool
	GetClientCount() int
}

type fpsMessage struct {
	Type string  `json:"type"`
	FPS  float64 `json:"fps"`
}

type frameMessage struct {
	Type    string `json:"type"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Depth   bool   `json:"depth"`
	TraceID string `json:"trace_id"`
	pipeline.DepthStats
}

// Presenter is the display side of the pipeline: it encodes views for the
// viewers and turns FPS reports into telemetry.
type Presenter struct {
	encoder   Encoder
	hub       Broadcaster
	sinks     []telemetry.Sink
	sessionID string
	logger    *logger.Logger

	mu           sync.Mutex
	counters     func() pipeline.Stats
	lastDepth    bool
	lastStats    pipeline.DepthStats
	encodeErrors int
}

func NewPresenter(encoder Encoder, hub Broadcaster, sessionID string, logger *logger.Logger, sinks ...telemetry.Sink) *Presenter {
	return &Presenter{
		encoder:   encoder,
		hub:       hub,
		sinks:     sinks,
		sessionID: sessionID,
		logger:    logger,
	}
}

// SetCounters attaches the pipeline counters included in each report.
func (p *Presenter) SetCounters(fn func() pipeline.Stats) {
	p.mu.Lock()
	p.counters = fn
	p.mu.Unlock()
}

func (p *Presenter) Present(v pipeline.View) {
	p.mu.Lock()
	p.lastDepth = v.Depth
	if v.Depth {
		p.lastStats = v.Stats
	}
	p.mu.Unlock()

	if p.hub.GetClientCount() == 0 {
		return
	}

	image, err := p.encoder.Encode(v)
	if err != nil {
		p.mu.Lock()
		p.encodeErrors++
		first := p.encodeErrors == 1
		p.mu.Unlock()
		if first {
			p.logger.Error("Failed to encode view %s: %v", v.TraceID, err)
		}
		return
	}

	meta, err := json.Marshal(frameMessage{
		Type:       "frame",
		Width:      v.Width,
		Height:     v.Height,
		Depth:      v.Depth,
		TraceID:    v.TraceID,
		DepthStats: v.Stats,
	})
	if err != nil {
		p.logger.Error("Failed to marshal frame header %s: %v", v.TraceID, err)
		return
	}
	p.hub.BroadcastFrame(meta, image)
}

func (p *Presenter) ReportFPS(fps float64) {
	if msg, err := json.Marshal(fpsMessage{Type: "fps", FPS: fps}); err == nil {
		p.hub.BroadcastText(msg)
	}

	p.mu.Lock()
	report := model.Report{
		SessionID: p.sessionID,
		FPS:       fps,
		Depth:     p.lastDepth,
		Timestamp: time.Now(),
	}
	if p.lastDepth {
		report.DepthMin = p.lastStats.Min
		report.DepthMax = p.lastStats.Max
		report.LatencyMS = p.lastStats.LatencyMS
	}
	counters := p.counters
	p.mu.Unlock()

	if counters != nil {
		s := counters()
		report.Processed = s.Processed
		report.Throttled = s.Throttled
		report.ShapeFailures = s.ShapeFailures
	}

	for _, sink := range p.sinks {
		sink.Observe(report)
	}
}

// LastDepth returns the stats of the most recent view and whether it was a
// depth view.
func (p *Presenter) LastDepth() (bool, pipeline.DepthStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastDepth, p.lastStats
}

// EncodeErrors reports how many views could not be encoded.
func (p *Presenter) EncodeErrors() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encodeErrors
}
