package dto

import (
	"github.com/5usu/depthcam/internal/frame"
	"github.com/5usu/depthcam/internal/model"
	"github.com/5usu/depthcam/internal/pipeline"
)

// StatsResponse is the live pipeline snapshot served at /api/stats.
type StatsResponse struct {
	SessionID      string              `json:"session_id"`
	Mode           pipeline.ModeState  `json:"mode"`
	EstimatorReady bool                `json:"estimator_ready"`
	Pipeline       pipeline.Stats      `json:"pipeline"`
	Depth          pipeline.DepthStats `json:"depth"`
	Mailbox        frame.MailboxStats  `json:"mailbox"`
	Viewers        int                 `json:"viewers"`
	ViewerDrops    uint64              `json:"viewer_drops"`
}

// HistoryResponse is one page of persisted telemetry.
type HistoryResponse struct {
	Reports []model.Report `json:"reports"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}
