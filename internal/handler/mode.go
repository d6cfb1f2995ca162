package handler

import (
	"encoding/json"
	"net/http"

	"github.com/5usu/depthcam/internal/logger"
	"github.com/5usu/depthcam/internal/pipeline"
)

// ModeController reads and changes the render mode.
type ModeController interface {
	Mode() pipeline.ModeState
	SetMode(s pipeline.ModeState)
}

// modeRequest leaves a flag unchanged when it is omitted.
type modeRequest struct {
	Depth    *bool `json:"depth"`
	Colorize *bool `json:"colorize"`
}

// ModeHandler serves GET and POST /api/mode. The new mode applies from the
// next processed frame.
func ModeHandler(controller ModeController, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
		case http.MethodPost:
			var req modeRequest
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
				http.Error(w, "Invalid mode request", http.StatusBadRequest)
				return
			}
			state := controller.Mode()
			if req.Depth != nil {
				state.Depth = *req.Depth
			}
			if req.Colorize != nil {
				state.Colorize = *req.Colorize
			}
			controller.SetMode(state)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		writeJSON(w, logger, controller.Mode())
	}
}

func writeJSON(w http.ResponseWriter, logger *logger.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}
