package estimator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/5usu/depthcam/internal/config"
	"github.com/5usu/depthcam/internal/logger"
	"github.com/5usu/depthcam/internal/model"
)

// NoticeSource tags notices raised while loading the estimator.
const NoticeSource = "estimator"

// Load resolves and opens the configured model. It never fails: on error the
// returned adapter is permanently not ready and a notice describes why.
func Load(cfg *config.Config, log *logger.Logger) (*Adapter, *model.Notice) {
	path, err := ResolveModel(cfg.ModelPath, cfg.ModelAssetDir)
	if err != nil {
		return unavailable(log, err)
	}

	var backend Backend
	switch cfg.EstimatorBackend {
	case "net":
		backend, err = NewNetBackend(path, cfg.ModelInputSize, cfg.NetTarget)
	default:
		backend, err = NewGridBackend(path, cfg.ModelID, cfg.ModelInputSize)
	}
	if err != nil {
		return unavailable(log, err)
	}

	log.Info("Depth estimator ready (%s backend, %s)", cfg.EstimatorBackend, path)
	return NewAdapter(backend), nil
}

func unavailable(log *logger.Logger, err error) (*Adapter, *model.Notice) {
	log.Warning("Depth estimator unavailable: %v", err)
	return NewAdapter(nil), &model.Notice{
		Source:    NoticeSource,
		Message:   fmt.Sprintf("Depth estimation is unavailable: %v", err),
		Timestamp: time.Now(),
	}
}

// ResolveModel makes sure the model exists at path, copying it from assetDir
// (by file name) on first use.
func ResolveModel(path, assetDir string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat model: %w", err)
	}

	src := filepath.Join(assetDir, filepath.Base(path))
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("model asset not found: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*")
	if err != nil {
		return "", fmt.Errorf("failed to create model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to copy model asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to install model: %w", err)
	}
	return path, nil
}
