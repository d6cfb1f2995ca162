package sqlite

import (
	"fmt"
	"time"

	"github.com/5usu/depthcam/internal/dto"
	"github.com/5usu/depthcam/internal/model"
)

// ReportRepository implements repository.ReportRepository for SQLite.
type ReportRepository struct {
	db *DB
}

// NewReportRepository creates a new SQLite report repository.
func NewReportRepository(db *DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// InsertBatch stores reports in one transaction.
func (r *ReportRepository) InsertBatch(reports []model.Report) error {
	if len(reports) == 0 {
		return nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO reports (session_id, fps, depth_min, depth_max, latency_ms, depth, processed, throttled, shape_failures, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rep := range reports {
		if _, err := stmt.Exec(rep.SessionID, rep.FPS, rep.DepthMin, rep.DepthMax, rep.LatencyMS,
			rep.Depth, rep.Processed, rep.Throttled, rep.ShapeFailures, rep.Timestamp.UTC()); err != nil {
			return fmt.Errorf("failed to insert report: %w", err)
		}
	}

	return tx.Commit()
}

func reportWhere(filter *dto.ReportFilter) (string, []interface{}) {
	where := " WHERE 1=1"
	args := []interface{}{}
	if filter == nil {
		return where, args
	}

	if filter.SessionID != "" {
		where += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if !filter.Since.IsZero() {
		where += " AND timestamp >= ?"
		args = append(args, filter.Since.UTC())
	}
	return where, args
}

// GetAll returns reports matching the filter, newest first.
func (r *ReportRepository) GetAll(filter *dto.ReportFilter) ([]model.Report, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := reportWhere(filter)
	query := `
		SELECT id, session_id, fps, depth_min, depth_max, latency_ms, depth, processed, throttled, shape_failures, timestamp
		FROM reports` + where + " ORDER BY timestamp DESC, id DESC"

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := []model.Report{}
	for rows.Next() {
		var rep model.Report
		if err := rows.Scan(&rep.ID, &rep.SessionID, &rep.FPS, &rep.DepthMin, &rep.DepthMax, &rep.LatencyMS,
			&rep.Depth, &rep.Processed, &rep.Throttled, &rep.ShapeFailures, &rep.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reports: %w", err)
	}
	return reports, nil
}

// GetTotalCount returns the number of reports matching the filter.
func (r *ReportRepository) GetTotalCount(filter *dto.ReportFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := reportWhere(filter)
	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM reports`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return count, nil
}

// DeleteBefore removes reports older than t.
func (r *ReportRepository) DeleteBefore(t time.Time) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM reports WHERE timestamp < ?`, t.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete reports: %w", err)
	}
	return result.RowsAffected()
}
