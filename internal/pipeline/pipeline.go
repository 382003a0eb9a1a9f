// Package pipeline orchestrates image analysis: decode and flatten the
// input, ask the detection backend for labels, summarize person findings,
// and optionally remove detected person regions from the image.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MeKo-Tech/vanish/internal/models"
	"github.com/MeKo-Tech/vanish/internal/utils"
	"github.com/MeKo-Tech/vanish/internal/vision"
)

// Config holds configuration for the analysis pipeline and its components.
type Config struct {
	Vision      vision.Config
	JPEGQuality int
}

// DefaultConfig returns a default pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		Vision:      vision.DefaultConfig(),
		JPEGQuality: utils.DefaultJPEGQuality,
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg      Config
	detector vision.Detector
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithVisionConfig replaces the whole detection backend configuration.
func (b *Builder) WithVisionConfig(cfg vision.Config) *Builder {
	b.cfg.Vision = cfg
	return b
}

// WithBackend selects the detection backend ("remote" or "local").
func (b *Builder) WithBackend(backend string) *Builder {
	if backend != "" {
		b.cfg.Vision.Backend = backend
	}
	return b
}

// WithEndpoint sets the remote detection endpoint URL.
func (b *Builder) WithEndpoint(endpoint string) *Builder {
	if endpoint != "" {
		b.cfg.Vision.Endpoint = endpoint
	}
	return b
}

// WithRegion sets the remote detection region.
func (b *Builder) WithRegion(region string) *Builder {
	if region != "" {
		b.cfg.Vision.Region = region
	}
	return b
}

// WithAPIKey sets the bearer token sent to the remote backend.
func (b *Builder) WithAPIKey(key string) *Builder {
	if key != "" {
		b.cfg.Vision.APIKey = key
	}
	return b
}

// WithModelsDir resolves the local detector model below the given models
// directory.
func (b *Builder) WithModelsDir(dir string) *Builder {
	b.cfg.Vision.ModelPath = models.PersonDetectorPath(dir)
	return b
}

// WithModelPath overrides the local detector model path directly.
func (b *Builder) WithModelPath(path string) *Builder {
	if path != "" {
		b.cfg.Vision.ModelPath = path
	}
	return b
}

// WithThreads sets intra-op thread count for the local backend (if >0).
func (b *Builder) WithThreads(n int) *Builder {
	if n > 0 {
		b.cfg.Vision.NumThreads = n
	}
	return b
}

// WithTimeout bounds remote detection calls.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	if d > 0 {
		b.cfg.Vision.Timeout = d
	}
	return b
}

// WithPersonLabel sets the label name treated as a person.
func (b *Builder) WithPersonLabel(label string) *Builder {
	if label != "" {
		b.cfg.Vision.PersonLabel = label
	}
	return b
}

// WithJPEGQuality sets the quality used when re-encoding images (1-100).
func (b *Builder) WithJPEGQuality(q int) *Builder {
	if q >= 1 && q <= 100 {
		b.cfg.JPEGQuality = q
	}
	return b
}

// WithDetector injects a pre-built detector, bypassing backend construction.
// Used by the server for shared detectors and by tests for fakes.
func (b *Builder) WithDetector(d vision.Detector) *Builder {
	b.detector = d
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks that the configuration can produce a working pipeline.
func (b *Builder) Validate() error {
	if b.detector != nil {
		return nil
	}
	switch b.cfg.Vision.Backend {
	case vision.BackendRemote, "":
		if b.cfg.Vision.Endpoint == "" && b.cfg.Vision.Region == "" {
			return errors.New("remote backend requires an endpoint or region")
		}
	case vision.BackendLocal:
		path := b.cfg.Vision.ModelPath
		if path == "" {
			path = models.PersonDetectorPath("")
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("detector model not found: %s", path)
		}
	default:
		return fmt.Errorf("unknown detection backend %q", b.cfg.Vision.Backend)
	}
	return nil
}

// Pipeline wires the detection backend to the region editor.
type Pipeline struct {
	cfg      Config
	detector vision.Detector
}

// Build initializes the pipeline and its detection backend.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	det := b.detector
	if det == nil {
		var err error
		det, err = vision.New(b.cfg.Vision)
		if err != nil {
			return nil, fmt.Errorf("init detector: %w", err)
		}
	}

	return &Pipeline{cfg: b.cfg, detector: det}, nil
}

// Close releases all resources.
func (p *Pipeline) Close() error {
	if p.detector != nil {
		err := p.detector.Close()
		p.detector = nil
		return err
	}
	return nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// CheckHealth probes the detection backend. Backends without a health
// endpoint (the local detector) always report healthy.
func (p *Pipeline) CheckHealth(ctx context.Context) error {
	if p == nil || p.detector == nil {
		return errors.New("pipeline not initialized")
	}
	if hc, ok := p.detector.(interface{ CheckHealth(context.Context) error }); ok {
		return hc.CheckHealth(ctx)
	}
	return nil
}

// Info returns a map with key pipeline properties.
func (p *Pipeline) Info() map[string]interface{} {
	backend := p.cfg.Vision.Backend
	if backend == "" {
		backend = vision.BackendRemote
	}
	info := map[string]interface{}{
		"backend":      backend,
		"person_label": p.cfg.Vision.PersonLabel,
		"jpeg_quality": p.cfg.JPEGQuality,
	}
	switch backend {
	case vision.BackendRemote:
		info["endpoint"] = p.cfg.Vision.Endpoint
		info["region"] = p.cfg.Vision.Region
		info["timeout"] = p.cfg.Vision.Timeout.String()
	case vision.BackendLocal:
		info["model_path"] = p.cfg.Vision.ModelPath
		info["input_size"] = p.cfg.Vision.InputSize
	}
	return info
}
