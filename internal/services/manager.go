package services

import (
	"context"
	"sync"
	"time"

	"github.com/5usu/depthcam/internal/dto"
	"github.com/5usu/depthcam/internal/frame"
	"github.com/5usu/depthcam/internal/logger"
	"github.com/5usu/depthcam/internal/model"
	"github.com/5usu/depthcam/internal/pipeline"
	"github.com/5usu/depthcam/internal/repository"
)

const errorLogInterval = 5 * time.Second

// Estimator is the part of the depth stage the manager owns.
type Estimator interface {
	Ready() bool
	Close() error
}

// Viewers exposes the viewer hub counters.
type Viewers interface {
	GetClientCount() int
	Dropped() uint64
}

// DepthReporter exposes the stats of the latest presented view.
type DepthReporter interface {
	LastDepth() (bool, pipeline.DepthStats)
}

// Manager owns the processing worker. Frames from any source go through a
// single-slot mailbox to one goroutine that runs the driver, so every
// pipeline buffer is touched by that goroutine only.
type Manager struct {
	driver    *pipeline.Driver
	mode      *pipeline.Mode
	estimator Estimator
	viewers   Viewers
	depth     DepthReporter
	notices   repository.NoticeRepository
	sessionID string
	logger    *logger.Logger

	mailbox *frame.Mailbox
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stop    sync.Once

	lastErrorLog time.Time
	suppressed   int
}

// NewManager starts the processing worker. estimator, depth and notices
// may be nil.
func NewManager(driver *pipeline.Driver, mode *pipeline.Mode, estimator Estimator, viewers Viewers, depth DepthReporter, notices repository.NoticeRepository, sessionID string, logger *logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		driver:    driver,
		mode:      mode,
		estimator: estimator,
		viewers:   viewers,
		depth:     depth,
		notices:   notices,
		sessionID: sessionID,
		logger:    logger,
		mailbox:   frame.NewMailbox(),
		ctx:       ctx,
		cancel:    cancel,
	}

	m.wg.Add(1)
	go m.processingWorker()

	state := mode.Snapshot()
	m.logger.Info("Manager started - session %s, depth=%v colorize=%v", sessionID, state.Depth, state.Colorize)
	return m
}

// Publish hands a frame to the worker. It never blocks; an unconsumed
// older frame is released.
func (m *Manager) Publish(f *frame.Frame) {
	m.mailbox.Publish(f)
}

// Start runs src until the manager stops or src fails.
func (m *Manager) Start(name string, src frame.Source) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.logger.Info("Source %s started", name)
		if err := src.Run(m.ctx, m.Publish); err != nil {
			m.logger.Error("Source %s stopped: %v", name, err)
			m.RecordNotice(name, err.Error())
			return
		}
		m.logger.Info("Source %s stopped", name)
	}()
}

// RecordNotice persists an operator notice for this session.
func (m *Manager) RecordNotice(source, message string) {
	if m.notices == nil {
		return
	}
	n := &model.Notice{
		SessionID: m.sessionID,
		Source:    source,
		Message:   message,
		Timestamp: time.Now(),
	}
	if _, err := m.notices.Insert(n); err != nil {
		m.logger.Error("Failed to save notice: %v", err)
	}
}

func (m *Manager) processingWorker() {
	defer m.wg.Done()

	m.logger.Info("Processing worker started")
	for {
		f := m.mailbox.Next()
		if f == nil {
			break
		}
		_, err := m.driver.Process(f)
		f.Release()
		if err != nil {
			m.logError(err)
		}
	}
	m.logger.Info("Processing worker stopped")
}

// logError keeps a broken stream from flooding the error log.
func (m *Manager) logError(err error) {
	now := time.Now()
	if now.Sub(m.lastErrorLog) < errorLogInterval {
		m.suppressed++
		return
	}
	if m.suppressed > 0 {
		m.logger.Error("Frame failed: %v (%d similar errors suppressed)", err, m.suppressed)
	} else {
		m.logger.Error("Frame failed: %v", err)
	}
	m.lastErrorLog = now
	m.suppressed = 0
}

func (m *Manager) Mode() pipeline.ModeState {
	return m.mode.Snapshot()
}

// SetMode takes effect from the next processed frame.
func (m *Manager) SetMode(s pipeline.ModeState) {
	m.mode.Set(s)
	m.logger.Info("Mode changed: depth=%v colorize=%v", s.Depth, s.Colorize)
}

func (m *Manager) EstimatorReady() bool {
	return m.estimator != nil && m.estimator.Ready()
}

func (m *Manager) SessionID() string {
	return m.sessionID
}

// Stats collects a live snapshot of the whole pipeline.
func (m *Manager) Stats() dto.StatsResponse {
	resp := dto.StatsResponse{
		SessionID:      m.sessionID,
		Mode:           m.mode.Snapshot(),
		EstimatorReady: m.EstimatorReady(),
		Pipeline:       m.driver.Stats(),
		Mailbox:        m.mailbox.Stats(),
	}
	if m.depth != nil {
		if ok, stats := m.depth.LastDepth(); ok {
			resp.Depth = stats
		}
	}
	if m.viewers != nil {
		resp.Viewers = m.viewers.GetClientCount()
		resp.ViewerDrops = m.viewers.Dropped()
	}
	return resp
}

// Stop cancels the sources, drains the worker and releases the estimator.
func (m *Manager) Stop() {
	m.stop.Do(func() {
		m.cancel()
		m.mailbox.Close()
		m.wg.Wait()
		if m.estimator != nil {
			if err := m.estimator.Close(); err != nil {
				m.logger.Error("Failed to close estimator: %v", err)
			}
		}
		m.logger.Info("All processing workers stopped")
	})
}
