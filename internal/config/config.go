package config

import (
	"fmt"
	"time"

	"github.com/MeKo-Tech/vanish/internal/models"
	"github.com/MeKo-Tech/vanish/internal/pipeline"
	"github.com/MeKo-Tech/vanish/internal/utils"
	"github.com/MeKo-Tech/vanish/internal/vision"
)

// Config holds the complete configuration for vanish.
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Detection settings
	Vision VisionConfig `mapstructure:"vision" yaml:"vision" json:"vision"`

	// Output settings
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server settings
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Batch processing settings
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// VisionConfig holds label detection settings.
type VisionConfig struct {
	Backend       string  `mapstructure:"backend" yaml:"backend" json:"backend"`
	Endpoint      string  `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	Region        string  `mapstructure:"region" yaml:"region" json:"region"`
	APIKey        string  `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	HealthPath    string  `mapstructure:"health_path" yaml:"health_path" json:"health_path"`
	TimeoutSec    int     `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	MaxLabels     int     `mapstructure:"max_labels" yaml:"max_labels" json:"max_labels"`
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence" json:"min_confidence"`
	PersonLabel   string  `mapstructure:"person_label" yaml:"person_label" json:"person_label"`
	ModelPath     string  `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	NumThreads    int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// OutputConfig holds result formatting settings.
type OutputConfig struct {
	Format          string `mapstructure:"format" yaml:"format" json:"format"`
	File            string `mapstructure:"file" yaml:"file" json:"file"`
	JPEGQuality     int    `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
	OverlayDir      string `mapstructure:"overlay_dir" yaml:"overlay_dir" json:"overlay_dir"`
	OverlayBoxColor string `mapstructure:"overlay_box_color" yaml:"overlay_box_color" json:"overlay_box_color"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string `mapstructure:"host" yaml:"host" json:"host"`
	Port              int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin        string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB       int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec        int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout   int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	OverlayEnabled    bool   `mapstructure:"overlay_enabled" yaml:"overlay_enabled" json:"overlay_enabled"`
	RateLimitEnabled  bool   `mapstructure:"rate_limit_enabled" yaml:"rate_limit_enabled" json:"rate_limit_enabled"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int    `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int    `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64  `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// BatchConfig holds batch processing settings.
type BatchConfig struct {
	Workers   int    `mapstructure:"workers" yaml:"workers" json:"workers"`
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		Verbose:   false,
		Vision: VisionConfig{
			Backend:       vision.BackendRemote,
			HealthPath:    "/health",
			TimeoutSec:    int(vision.DefaultTimeout / time.Second),
			MaxLabels:     pipeline.DefaultMaxLabels,
			MinConfidence: pipeline.DefaultMinConfidence,
			PersonLabel:   vision.DefaultPersonLabel,
		},
		Output: OutputConfig{
			Format:          "text",
			JPEGQuality:     utils.DefaultJPEGQuality,
			OverlayBoxColor: "#FF0000",
		},
		Server: ServerConfig{
			Host:              "localhost",
			Port:              8080,
			CORSOrigin:        "*",
			MaxUploadMB:       50,
			TimeoutSec:        30,
			ShutdownTimeout:   10,
			OverlayEnabled:    true,
			RateLimitEnabled:  false,
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			MaxRequestsPerDay: 5000,
			MaxDataPerDay:     100 * 1024 * 1024,
		},
		Batch: BatchConfig{
			Workers: 4,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %v)", c.LogLevel, validLogLevels)
	}

	validBackends := []string{vision.BackendRemote, vision.BackendLocal}
	if !contains(validBackends, c.Vision.Backend) {
		return fmt.Errorf("invalid vision backend: %s (must be one of: %v)", c.Vision.Backend, validBackends)
	}

	if c.Vision.MaxLabels < 1 || c.Vision.MaxLabels > 100 {
		return fmt.Errorf("invalid max labels: %d (must be between 1 and 100)", c.Vision.MaxLabels)
	}

	if c.Vision.MinConfidence < 0 || c.Vision.MinConfidence > 100 {
		return fmt.Errorf("invalid min confidence: %.1f (must be between 0 and 100)", c.Vision.MinConfidence)
	}

	if c.Vision.TimeoutSec <= 0 {
		return fmt.Errorf("invalid vision timeout: %d (must be positive)", c.Vision.TimeoutSec)
	}

	validFormats := []string{"text", "json", "csv"}
	if !contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %v)", c.Output.Format, validFormats)
	}

	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("invalid JPEG quality: %d (must be between 1 and 100)", c.Output.JPEGQuality)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}

	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}

	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid server timeout: %d (must be positive)", c.Server.TimeoutSec)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must be positive)", c.Server.ShutdownTimeout)
	}

	if c.Server.RateLimitEnabled {
		if c.Server.RequestsPerMinute <= 0 {
			return fmt.Errorf("invalid requests per minute: %d (must be positive)", c.Server.RequestsPerMinute)
		}
		if c.Server.RequestsPerHour <= 0 {
			return fmt.Errorf("invalid requests per hour: %d (must be positive)", c.Server.RequestsPerHour)
		}
		if c.Server.MaxRequestsPerDay <= 0 {
			return fmt.Errorf("invalid max requests per day: %d (must be positive)", c.Server.MaxRequestsPerDay)
		}
		if c.Server.MaxDataPerDay <= 0 {
			return fmt.Errorf("invalid max data per day: %d (must be positive)", c.Server.MaxDataPerDay)
		}
	}

	if c.Batch.Workers < 0 {
		return fmt.Errorf("invalid worker count: %d (must not be negative)", c.Batch.Workers)
	}

	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
