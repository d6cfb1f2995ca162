package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/5usu/depthcam/internal/dto"
	"github.com/5usu/depthcam/internal/logger"
	"github.com/5usu/depthcam/internal/model"
	"github.com/5usu/depthcam/internal/repository"
)

const (
	defaultHistoryLimit = 60
	maxHistoryLimit     = 1000
)

// StatsProvider exposes the live pipeline snapshot.
type StatsProvider interface {
	Stats() dto.StatsResponse
	SessionID() string
}

// StatsHandler serves the live snapshot at /api/stats.
func StatsHandler(provider StatsProvider, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, provider.Stats())
	}
}

// StatsHistoryHandler lists persisted FPS reports, newest first. The
// current session is shown unless session=all or another id is given.
func StatsHistoryHandler(provider StatsProvider, reports repository.ReportRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := &dto.ReportFilter{
			SessionID: q.Get("session"),
			Since:     parseSince(q.Get("since")),
			Limit:     atoiDefault(q.Get("limit"), defaultHistoryLimit),
			Offset:    atoiDefault(q.Get("offset"), 0),
		}
		switch filter.SessionID {
		case "":
			filter.SessionID = provider.SessionID()
		case "all":
			filter.SessionID = ""
		}
		if filter.Limit == 0 {
			filter.Limit = defaultHistoryLimit
		}
		if filter.Limit > maxHistoryLimit {
			filter.Limit = maxHistoryLimit
		}

		items, err := reports.GetAll(filter)
		if err != nil {
			logger.Error("Error querying reports from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		total, err := reports.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting reports: %v", err)
			total = len(items)
		}
		if items == nil {
			items = []model.Report{}
		}

		writeJSON(w, logger, dto.HistoryResponse{
			Reports: items,
			Total:   total,
			Limit:   filter.Limit,
			Offset:  filter.Offset,
		})
	}
}

// NoticesHandler lists operator notices, by session when one is given.
func NoticesHandler(notices repository.NoticeRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var (
			items []model.Notice
			err   error
		)
		if session := q.Get("session"); session != "" {
			items, err = notices.GetBySession(session)
		} else {
			items, err = notices.GetRecent(atoiDefault(q.Get("limit"), 20))
		}
		if err != nil {
			logger.Error("Error querying notices: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if items == nil {
			items = []model.Notice{}
		}
		writeJSON(w, logger, items)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value < 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}

// parseSince accepts RFC 3339 timestamps.
func parseSince(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
