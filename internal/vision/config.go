package vision

import (
	"fmt"
	"time"
)

// Backend names accepted by New.
const (
	BackendRemote = "remote"
	BackendLocal  = "local"
)

// DefaultTimeout bounds a single remote detection call.
const DefaultTimeout = 30 * time.Second

// Config selects and parameterizes a detection backend.
type Config struct {
	Backend string

	// Remote backend. Endpoint wins over Region; with only Region set the
	// standard rekognition endpoint for that region is used.
	Endpoint   string
	Region     string
	APIKey     string
	HealthPath string
	Timeout    time.Duration

	// Local ONNX backend.
	ModelPath  string
	InputSize  int
	NumThreads int

	// PersonLabel is the label name treated as a person by callers.
	PersonLabel string
}

// DefaultConfig returns the default detection configuration: a remote
// backend with the original request bounds.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendRemote,
		HealthPath:  "/health",
		Timeout:     DefaultTimeout,
		InputSize:   320,
		PersonLabel: DefaultPersonLabel,
	}
}

// New builds the detector for the configured backend.
func New(cfg Config) (Detector, error) {
	switch cfg.Backend {
	case BackendRemote, "":
		return NewRemoteDetector(cfg)
	case BackendLocal:
		return NewLocalDetector(cfg)
	default:
		return nil, fmt.Errorf("unknown detection backend %q", cfg.Backend)
	}
}
