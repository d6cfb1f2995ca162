package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port         int    `yaml:"port"`
	Password     string `yaml:"password"`
	LogDirectory string `yaml:"log_dir"`
	DBPath       string `yaml:"db_path"`

	FrameIntervalMS int    `yaml:"frame_interval_ms"` // minimum gap between processed frames
	FPSWindowMS     int    `yaml:"fps_window_ms"`
	DepthEnabled    bool   `yaml:"depth_enabled"`
	Colorize        bool   `yaml:"colorize"`
	Converter       string `yaml:"converter"` // go | native

	EstimatorBackend string `yaml:"estimator_backend"` // grid | net
	ModelPath        string `yaml:"model_path"`
	ModelID          string `yaml:"model_id"`
	ModelAssetDir    string `yaml:"model_asset_dir"`
	ModelInputSize   int    `yaml:"model_input_size"`
	NetTarget        string `yaml:"net_target"`

	Source        string `yaml:"source"` // none | webcam | pattern
	WebcamDevice  int    `yaml:"webcam_device"`
	PatternWidth  int    `yaml:"pattern_width"`
	PatternHeight int    `yaml:"pattern_height"`
	JPEGQuality   int    `yaml:"jpeg_quality"`

	MaxFrameWidth  int `yaml:"max_frame_width"`
	MaxFrameHeight int `yaml:"max_frame_height"`

	TelemetryBufferLimit   int `yaml:"telemetry_buffer_limit"`
	TelemetryFlushInterval int `yaml:"telemetry_flush_interval"` // seconds
	ReportRetentionDays    int `yaml:"report_retention_days"`    // 0 keeps everything

	MQTTBroker string `yaml:"mqtt_broker"`
	MQTTTopic  string `yaml:"mqtt_topic"`
	InstanceID string `yaml:"instance_id"`
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE and the environment, in that order. A .env file in the working
// directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.overlayEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Port:                   8080,
		Password:               "depthcam",
		LogDirectory:           filepath.Join(".", "logs"),
		DBPath:                 filepath.Join(".", "data", "depthcam.db"),
		FrameIntervalMS:        33,
		FPSWindowMS:            1000,
		DepthEnabled:           false,
		Colorize:               true,
		Converter:              "go",
		EstimatorBackend:       "grid",
		ModelPath:              filepath.Join(".", "data", "models", "depth.json"),
		ModelID:                "depth",
		ModelAssetDir:          filepath.Join(".", "assets"),
		ModelInputSize:         256,
		NetTarget:              "cpu",
		Source:                 "none",
		WebcamDevice:           0,
		PatternWidth:           640,
		PatternHeight:          480,
		JPEGQuality:            80,
		MaxFrameWidth:          4096,
		MaxFrameHeight:         4096,
		TelemetryBufferLimit:   10,
		TelemetryFlushInterval: 30,
		ReportRetentionDays:    7,
		MQTTTopic:              "depthcam/telemetry",
		InstanceID:             "depthcam",
	}
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) overlayEnv() {
	c.Port = getEnvAsInt("PORT", c.Port)
	c.Password = getEnv("PASSWORD", c.Password)
	c.LogDirectory = getEnv("LOG_DIR", c.LogDirectory)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.FrameIntervalMS = getEnvAsInt("FRAME_INTERVAL_MS", c.FrameIntervalMS)
	c.FPSWindowMS = getEnvAsInt("FPS_WINDOW_MS", c.FPSWindowMS)
	c.DepthEnabled = getEnvAsBool("DEPTH_ENABLED", c.DepthEnabled)
	c.Colorize = getEnvAsBool("COLORIZE", c.Colorize)
	c.Converter = getEnv("CONVERTER", c.Converter)
	c.EstimatorBackend = getEnv("ESTIMATOR_BACKEND", c.EstimatorBackend)
	c.ModelPath = getEnv("MODEL_PATH", c.ModelPath)
	c.ModelID = getEnv("MODEL_ID", c.ModelID)
	c.ModelAssetDir = getEnv("MODEL_ASSET_DIR", c.ModelAssetDir)
	c.ModelInputSize = getEnvAsInt("MODEL_INPUT_SIZE", c.ModelInputSize)
	c.NetTarget = getEnv("NET_TARGET", c.NetTarget)
	c.Source = getEnv("SOURCE", c.Source)
	c.WebcamDevice = getEnvAsInt("WEBCAM_DEVICE", c.WebcamDevice)
	c.PatternWidth = getEnvAsInt("PATTERN_WIDTH", c.PatternWidth)
	c.PatternHeight = getEnvAsInt("PATTERN_HEIGHT", c.PatternHeight)
	c.JPEGQuality = getEnvAsInt("JPEG_QUALITY", c.JPEGQuality)
	c.MaxFrameWidth = getEnvAsInt("MAX_FRAME_WIDTH", c.MaxFrameWidth)
	c.MaxFrameHeight = getEnvAsInt("MAX_FRAME_HEIGHT", c.MaxFrameHeight)
	c.TelemetryBufferLimit = getEnvAsInt("BUFFER_LIMIT", c.TelemetryBufferLimit)
	c.TelemetryFlushInterval = getEnvAsInt("FLUSH_INTERVAL", c.TelemetryFlushInterval)
	c.ReportRetentionDays = getEnvAsInt("REPORT_RETENTION_DAYS", c.ReportRetentionDays)
	c.MQTTBroker = getEnv("MQTT_BROKER", c.MQTTBroker)
	c.MQTTTopic = getEnv("MQTT_TOPIC", c.MQTTTopic)
	c.InstanceID = getEnv("INSTANCE_ID", c.InstanceID)
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.FrameIntervalMS <= 0 {
		return fmt.Errorf("frame interval must be positive, got %d", c.FrameIntervalMS)
	}
	if c.FPSWindowMS <= 0 {
		return fmt.Errorf("fps window must be positive, got %d", c.FPSWindowMS)
	}
	if c.ModelInputSize <= 0 {
		return fmt.Errorf("model input size must be positive, got %d", c.ModelInputSize)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg quality must be in 1..100, got %d", c.JPEGQuality)
	}
	if c.MaxFrameWidth <= 0 || c.MaxFrameHeight <= 0 {
		return fmt.Errorf("invalid maximum frame size %dx%d", c.MaxFrameWidth, c.MaxFrameHeight)
	}
	if c.TelemetryFlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive, got %d", c.TelemetryFlushInterval)
	}
	if c.ReportRetentionDays < 0 {
		return fmt.Errorf("report retention must not be negative, got %d", c.ReportRetentionDays)
	}
	switch c.Converter {
	case "go", "native":
	default:
		return fmt.Errorf("unknown converter %q", c.Converter)
	}
	switch c.EstimatorBackend {
	case "grid", "net":
	default:
		return fmt.Errorf("unknown estimator backend %q", c.EstimatorBackend)
	}
	switch c.Source {
	case "none", "webcam", "pattern":
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}
	if c.Source == "pattern" && (c.PatternWidth <= 0 || c.PatternHeight <= 0) {
		return fmt.Errorf("invalid pattern size %dx%d", c.PatternWidth, c.PatternHeight)
	}
	if c.Source == "pattern" && (c.PatternWidth > c.MaxFrameWidth || c.PatternHeight > c.MaxFrameHeight) {
		return fmt.Errorf("pattern size %dx%d exceeds the maximum frame size", c.PatternWidth, c.PatternHeight)
	}
	return nil
}

func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMS) * time.Millisecond
}

func (c *Config) FPSWindow() time.Duration {
	return time.Duration(c.FPSWindowMS) * time.Millisecond
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.TelemetryFlushInterval) * time.Second
}

// RetentionCutoff returns the oldest report timestamp to keep, or the zero
// time when reports are kept forever.
func (c *Config) RetentionCutoff(now time.Time) time.Time {
	if c.ReportRetentionDays == 0 {
		return time.Time{}
	}
	return now.AddDate(0, 0, -c.ReportRetentionDays)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
