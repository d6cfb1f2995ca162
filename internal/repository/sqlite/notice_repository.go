package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/5usu/depthcam/internal/model"
)

// NoticeRepository implements repository.NoticeRepository for SQLite.
type NoticeRepository struct {
	db *DB
}

func NewNoticeRepository(db *DB) *NoticeRepository {
	return &NoticeRepository{db: db}
}

func (r *NoticeRepository) Insert(n *model.Notice) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO notices (session_id, source, message, timestamp)
		VALUES (?, ?, ?, ?)
	`, n.SessionID, n.Source, n.Message, n.Timestamp.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert notice: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	n.ID = id
	return id, nil
}

// GetBySession returns the notices raised by one run, oldest first.
func (r *NoticeRepository) GetBySession(sessionID string) ([]model.Notice, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, session_id, source, message, timestamp
		FROM notices WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notices: %w", err)
	}
	return scanNotices(rows)
}

// GetRecent returns the newest notices across all runs.
func (r *NoticeRepository) GetRecent(limit int) ([]model.Notice, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, session_id, source, message, timestamp
		FROM notices ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notices: %w", err)
	}
	return scanNotices(rows)
}

func scanNotices(rows *sql.Rows) ([]model.Notice, error) {
	defer rows.Close()

	notices := []model.Notice{}
	for rows.Next() {
		var n model.Notice
		if err := rows.Scan(&n.ID, &n.SessionID, &n.Source, &n.Message, &n.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan notice: %w", err)
		}
		notices = append(notices, n)
	}
	return notices, rows.Err()
}
