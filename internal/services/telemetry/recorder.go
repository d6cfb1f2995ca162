package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/5usu/depthcam/internal/logger"
	"github.com/5usu/depthcam/internal/model"
	"github.com/5usu/depthcam/internal/repository"
)

// Sink receives one report per FPS window. Observe must not block.
type Sink interface {
	Observe(r model.Report)
}

// Recorder buffers reports in memory and flushes them to the repository
// periodically. Reports beyond the buffer limit are dropped until the next
// flush.
type Recorder struct {
	repo        repository.ReportRepository
	reports     []model.Report
	bufferLimit int
	dropped     int
	mu          sync.Mutex
	logger      *logger.Logger
}

func NewRecorder(repo repository.ReportRepository, bufferLimit int, logger *logger.Logger) *Recorder {
	if bufferLimit <= 0 {
		bufferLimit = 1
	}
	return &Recorder{
		repo:        repo,
		bufferLimit: bufferLimit,
		reports:     make([]model.Report, 0, bufferLimit),
		logger:      logger,
	}
}

// Run flushes on every tick until ctx is cancelled, then flushes once more.
func (s *Recorder) Run(ctx context.Context, flushInterval time.Duration) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Flush()
			return
		case <-ticker.C:
			s.Flush()
		}
	}
}

func (s *Recorder) Observe(r model.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.reports) >= s.bufferLimit {
		s.dropped++
		return
	}
	s.reports = append(s.reports, r)
}

// Flush writes buffered reports. The buffer is swapped out first so Observe
// never waits on the database. On failure the batch is put back.
func (s *Recorder) Flush() {
	s.mu.Lock()
	batch := s.reports
	dropped := s.dropped
	s.reports = make([]model.Report, 0, s.bufferLimit)
	s.dropped = 0
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if err := s.repo.InsertBatch(batch); err != nil {
		s.logger.Error("Error saving telemetry: %v", err)
		s.mu.Lock()
		room := s.bufferLimit - len(s.reports)
		if room > len(batch) {
			room = len(batch)
		}
		s.reports = append(batch[:room:room], s.reports...)
		s.dropped += dropped + len(batch) - room
		s.mu.Unlock()
		return
	}

	if dropped > 0 {
		s.logger.Warning("Telemetry buffer full, %d report(s) dropped", dropped)
	}
}

// Pending returns the number of buffered reports.
func (s *Recorder) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}
