package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/5usu/depthcam/internal/config"
	"github.com/5usu/depthcam/internal/frame"
	"github.com/5usu/depthcam/internal/logger"
	"github.com/5usu/depthcam/internal/model"
	"github.com/5usu/depthcam/internal/pipeline"
	"github.com/5usu/depthcam/internal/source"
)

type fakeEstimator struct {
	mu     sync.Mutex
	closed int
}

func (e *fakeEstimator) Ready() bool { return true }

func (e *fakeEstimator) Infer(color []byte, w, h int, colorize bool) ([]byte, pipeline.DepthStats, error) {
	return color, pipeline.DepthStats{Min: 1, Max: 5, LatencyMS: 3}, nil
}

func (e *fakeEstimator) Close() error {
	e.mu.Lock()
	e.closed++
	e.mu.Unlock()
	return nil
}

func (e *fakeEstimator) closeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

type chanPresenter struct {
	mu    sync.Mutex
	last  pipeline.View
	views chan pipeline.View
}

func newChanPresenter() *chanPresenter {
	return &chanPresenter{views: make(chan pipeline.View, 64)}
}

func (p *chanPresenter) Present(v pipeline.View) {
	p.mu.Lock()
	p.last = v
	p.mu.Unlock()
	select {
	case p.views <- v:
	default:
	}
}

func (p *chanPresenter) ReportFPS(float64) {}

func (p *chanPresenter) LastDepth() (bool, pipeline.DepthStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last.Depth, p.last.Stats
}

type fakeViewers struct{}

func (fakeViewers) GetClientCount() int { return 2 }
func (fakeViewers) Dropped() uint64     { return 7 }

type fakeNotices struct {
	mu      sync.Mutex
	notices []model.Notice
}

func (r *fakeNotices) Insert(n *model.Notice) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, *n)
	return int64(len(r.notices)), nil
}

func (r *fakeNotices) GetBySession(string) ([]model.Notice, error) { return nil, nil }
func (r *fakeNotices) GetRecent(int) ([]model.Notice, error)       { return nil, nil }

func (r *fakeNotices) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

type failingSource struct{}

func (failingSource) Run(ctx context.Context, publish func(*frame.Frame)) error {
	return errors.New("device unplugged")
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	t.Cleanup(l.Close)
	return l
}

type testRig struct {
	manager   *Manager
	presenter *chanPresenter
	estimator *fakeEstimator
	notices   *fakeNotices
}

func newTestRig(t *testing.T, state pipeline.ModeState) *testRig {
	t.Helper()
	est := &fakeEstimator{}
	pres := newChanPresenter()
	notices := &fakeNotices{}
	mode := pipeline.NewMode(state)
	driver := pipeline.NewDriver(&pipeline.FixedPointConverter{}, est, pres, mode, pipeline.Options{MinInterval: time.Nanosecond})
	m := NewManager(driver, mode, est, fakeViewers{}, pres, notices, "session-1", newTestLogger(t))
	t.Cleanup(m.Stop)
	return &testRig{manager: m, presenter: pres, estimator: est, notices: notices}
}

func (r *testRig) waitView(t *testing.T) pipeline.View {
	t.Helper()
	select {
	case v := <-r.presenter.views:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a presented view")
		return pipeline.View{}
	}
}

func TestManager_ProcessesPublishedFrames(t *testing.T) {
	rig := newTestRig(t, pipeline.ModeState{})
	pattern, err := source.NewPattern(16, 8, 4, time.Millisecond)
	if err != nil {
		t.Fatalf("NewPattern failed: %v", err)
	}

	rig.manager.Publish(pattern.Frame(0))
	v := rig.waitView(t)

	if v.Width != 16 || v.Height != 8 || len(v.Pixels) != 16*8*4 {
		t.Errorf("Unexpected view %dx%d with %d bytes", v.Width, v.Height, len(v.Pixels))
	}
	if v.Depth {
		t.Error("Depth must be off by default")
	}
}

func TestManager_ModeChangeAppliesToNextFrame(t *testing.T) {
	rig := newTestRig(t, pipeline.ModeState{})
	pattern, err := source.NewPattern(16, 8, 0, time.Millisecond)
	if err != nil {
		t.Fatalf("NewPattern failed: %v", err)
	}

	rig.manager.Publish(pattern.Frame(0))
	rig.waitView(t)

	rig.manager.SetMode(pipeline.ModeState{Depth: true, Colorize: true})
	if got := rig.manager.Mode(); !got.Depth || !got.Colorize {
		t.Fatalf("Mode not stored, got %+v", got)
	}

	rig.manager.Publish(pattern.Frame(1))
	v := rig.waitView(t)
	if !v.Depth || v.Stats.Max != 5 {
		t.Errorf("Expected a depth view, got %+v", v)
	}

	stats := rig.manager.Stats()
	if stats.SessionID != "session-1" || !stats.EstimatorReady || stats.Depth.Max != 5 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if stats.Viewers != 2 || stats.ViewerDrops != 7 {
		t.Errorf("Viewer counters missing from %+v", stats)
	}
	if stats.Pipeline.Processed < 2 || stats.Mailbox.Published < 2 {
		t.Errorf("Expected at least two processed frames, got %+v", stats)
	}
}

func TestManager_StartRunsSource(t *testing.T) {
	rig := newTestRig(t, pipeline.ModeState{})
	pattern, err := source.NewPattern(8, 8, 2, time.Millisecond)
	if err != nil {
		t.Fatalf("NewPattern failed: %v", err)
	}

	rig.manager.Start("pattern", pattern)
	for i := 0; i < 3; i++ {
		rig.waitView(t)
	}
}

func TestManager_SourceFailureRecordsNotice(t *testing.T) {
	rig := newTestRig(t, pipeline.ModeState{})
	rig.manager.Start("webcam", failingSource{})

	deadline := time.Now().Add(2 * time.Second)
	for rig.notices.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Expected a notice for the failed source")
		}
		time.Sleep(time.Millisecond)
	}

	n := rig.notices.notices[0]
	if n.Source != "webcam" || n.SessionID != "session-1" || n.Message != "device unplugged" {
		t.Errorf("Unexpected notice %+v", n)
	}
}

func TestManager_StopIsIdempotentAndReleasesLateFrames(t *testing.T) {
	rig := newTestRig(t, pipeline.ModeState{})
	rig.manager.Stop()
	rig.manager.Stop()

	if rig.estimator.closeCount() != 1 {
		t.Errorf("Expected the estimator to be closed once, got %d", rig.estimator.closeCount())
	}

	released := false
	plane := frame.Plane{Data: make([]byte, 4), RowStride: 2, PixelStride: 1, Width: 2, Height: 2}
	chroma := frame.Plane{Data: make([]byte, 1), RowStride: 1, PixelStride: 1, Width: 1, Height: 1}
	rig.manager.Publish(frame.New(plane, chroma, chroma, 2, 2, 0, func() { released = true }))
	if !released {
		t.Error("Frames published after Stop must be released")
	}
}
