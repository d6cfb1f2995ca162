package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/5usu/depthcam/internal/config"
	"github.com/5usu/depthcam/internal/estimator"
	"github.com/5usu/depthcam/internal/frame"
	"github.com/5usu/depthcam/internal/logger"
	"github.com/5usu/depthcam/internal/pipeline"
	"github.com/5usu/depthcam/internal/repository/sqlite"
	"github.com/5usu/depthcam/internal/route"
	"github.com/5usu/depthcam/internal/services"
	"github.com/5usu/depthcam/internal/services/display"
	"github.com/5usu/depthcam/internal/services/telemetry"
	"github.com/5usu/depthcam/internal/services/websocket"
	"github.com/5usu/depthcam/internal/source"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config    *config.Config
	logger    *logger.Logger
	db        *sqlite.DB
	sessionID string

	reportRepo *sqlite.ReportRepository
	noticeRepo *sqlite.NoticeRepository

	hubService *websocket.HubService
	recorder   *telemetry.Recorder
	emitter    *telemetry.MQTTEmitter
	encoder    *display.JPEGEncoder
	native     *pipeline.NativeConverter
	manager    *services.Manager
	server     *http.Server
}

func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &App{
		config:     cfg,
		logger:     log,
		db:         db,
		sessionID:  uuid.New().String(),
		reportRepo: sqlite.NewReportRepository(db),
		noticeRepo: sqlite.NewNoticeRepository(db),
		hubService: websocket.NewHubService(log),
		encoder:    display.NewJPEGEncoder(cfg.JPEGQuality),
	}
	a.recorder = telemetry.NewRecorder(a.reportRepo, cfg.TelemetryBufferLimit, log)

	a.pruneReports()

	sinks := []telemetry.Sink{a.recorder}
	if cfg.MQTTBroker != "" {
		a.emitter = telemetry.NewMQTTEmitter(cfg.MQTTBroker, cfg.InstanceID+"-"+a.sessionID[:8], cfg.MQTTTopic, log)
		sinks = append(sinks, a.emitter)
	}

	est, notice := estimator.Load(cfg, log)
	if notice != nil {
		notice.SessionID = a.sessionID
		if _, err := a.noticeRepo.Insert(notice); err != nil {
			log.Error("Failed to save notice: %v", err)
		}
	}

	var conv pipeline.Converter = &pipeline.FixedPointConverter{}
	if cfg.Converter == "native" {
		a.native = pipeline.NewNativeConverter()
		conv = a.native
	}

	presenter := display.NewPresenter(a.encoder, a.hubService, a.sessionID, log, sinks...)
	mode := pipeline.NewMode(pipeline.ModeState{Depth: cfg.DepthEnabled, Colorize: cfg.Colorize})
	driver := pipeline.NewDriver(conv, est, presenter, mode, pipeline.Options{
		MinInterval: cfg.FrameInterval(),
		FPSWindow:   cfg.FPSWindow(),
		Limits:      frame.Limits{MaxWidth: cfg.MaxFrameWidth, MaxHeight: cfg.MaxFrameHeight},
	})
	presenter.SetCounters(driver.Stats)

	a.manager = services.NewManager(driver, mode, est, a.hubService, presenter, a.noticeRepo, a.sessionID, log)

	router := route.SetupRoutes(a.manager, a.hubService, cfg, log, a.reportRepo, a.noticeRepo)
	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// pruneReports drops telemetry older than the retention window.
func (a *App) pruneReports() {
	cutoff := a.config.RetentionCutoff(time.Now())
	if cutoff.IsZero() {
		return
	}
	n, err := a.reportRepo.DeleteBefore(cutoff)
	if err != nil {
		a.logger.Error("Failed to prune reports: %v", err)
		return
	}
	if n > 0 {
		a.logger.Info("Pruned %d reports older than %s", n, cutoff.Format(time.DateOnly))
	}
}

func (a *App) source() (string, frame.Source, error) {
	switch a.config.Source {
	case "webcam":
		return "webcam", source.NewWebcam(a.config.WebcamDevice, 0, a.logger), nil
	case "pattern":
		p, err := source.NewPattern(a.config.PatternWidth, a.config.PatternHeight, 32, a.config.FrameInterval())
		if err != nil {
			return "", nil, err
		}
		return "pattern", p, nil
	default:
		return "", nil, nil
	}
}

// Run serves until ctx is cancelled, then shuts everything down in order:
// HTTP, frame processing, background services, storage.
func (a *App) Run(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(context.Background())
	var background sync.WaitGroup

	background.Add(2)
	go func() {
		defer background.Done()
		a.hubService.Run(bgCtx)
	}()
	go func() {
		defer background.Done()
		a.recorder.Run(bgCtx, a.config.FlushInterval())
	}()

	if a.emitter != nil {
		if err := a.emitter.Connect(ctx); err != nil {
			a.logger.Warning("MQTT telemetry disabled: %v", err)
		}
	}

	name, src, err := a.source()
	if err != nil {
		a.logger.Error("Failed to create %s source: %v", a.config.Source, err)
	} else if src != nil {
		a.manager.Start(name, src)
	}

	a.logger.Info("depthcam server")
	a.logger.Info("URL: http://localhost:%d", a.config.Port)
	a.logger.Info("Session: %s", a.sessionID)
	a.logger.Info("Depth model: %s (ready=%v)", a.config.ModelPath, a.manager.EstimatorReady())

	serveErr := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warning("HTTP shutdown: %v", err)
	}

	a.manager.Stop()
	stopBackground()
	background.Wait()

	a.close()
	return runErr
}

func (a *App) close() {
	if a.emitter != nil {
		a.emitter.Disconnect()
	}
	a.encoder.Close()
	if a.native != nil {
		if err := a.native.Close(); err != nil {
			a.logger.Error("Failed to close converter: %v", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
	a.logger.Info("Shutdown complete")
	a.logger.Close()
}
