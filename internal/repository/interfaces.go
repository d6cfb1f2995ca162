package repository

import (
	"time"

	"github.com/5usu/depthcam/internal/dto"
	"github.com/5usu/depthcam/internal/model"
)

// ReportRepository defines the interface for telemetry history operations.
type ReportRepository interface {
	// Create operations
	InsertBatch(reports []model.Report) error

	// Read operations
	GetAll(filter *dto.ReportFilter) ([]model.Report, error)
	GetTotalCount(filter *dto.ReportFilter) (int, error)

	// Delete operations
	DeleteBefore(t time.Time) (int64, error)
}

// NoticeRepository defines the interface for user-visible notices.
type NoticeRepository interface {
	Insert(n *model.Notice) (int64, error)
	GetBySession(sessionID string) ([]model.Notice, error)
	GetRecent(limit int) ([]model.Notice, error)
}
