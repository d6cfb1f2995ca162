package model

import "time"

// Notice is a user-visible message about a startup degradation, such as an
// estimator that failed to load.
type Notice struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
