package route

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/5usu/depthcam/internal/config"
	"github.com/5usu/depthcam/internal/frame"
	"github.com/5usu/depthcam/internal/handler"
	"github.com/5usu/depthcam/internal/logger"
	"github.com/5usu/depthcam/internal/middleware"
	"github.com/5usu/depthcam/internal/repository"
	"github.com/5usu/depthcam/internal/services"
)

// StaticDir holds the viewer pages.
const StaticDir = "static"

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join(StaticDir, filepath.Clean("/"+path)+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// SetupRoutes registers HTTP routes, static file serving, API endpoints,
// and wraps the mux with the authentication middleware.
func SetupRoutes(manager *services.Manager, hub handler.ViewerHub, cfg *config.Config, logger *logger.Logger,
	reportRepo repository.ReportRepository, noticeRepo repository.NoticeRepository) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(StaticDir))))

	// Frame transport
	mux.HandleFunc("/camera", handler.CameraWebsocketHandler(manager, frame.Limits{MaxWidth: cfg.MaxFrameWidth, MaxHeight: cfg.MaxFrameHeight}, logger))
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(hub, logger))

	// Control and telemetry
	mux.HandleFunc("/api/mode", handler.ModeHandler(manager, logger))
	mux.HandleFunc("/api/stats", handler.StatsHandler(manager, logger))
	mux.HandleFunc("/api/stats/history", handler.StatsHistoryHandler(manager, reportRepo, logger))
	mux.HandleFunc("/api/notices", handler.NoticesHandler(noticeRepo, logger))

	// Log endpoints
	for _, name := range []string{"info", "warning", "error"} {
		file := name + ".log"
		mux.HandleFunc("/logs/"+name, handler.ShowLogsHandler(logger, file))
		mux.HandleFunc("/logs/"+name+"/clear", handler.ClearLogsHandler(logger, file))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, logger))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	// Automatic HTML handler mapping for example: /login -> /static/login.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	return middleware.AuthMiddleware(mux)
}
