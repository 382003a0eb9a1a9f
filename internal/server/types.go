package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/vanish/internal/pipeline"
	"github.com/MeKo-Tech/vanish/internal/vision"
)

// pipelineInterface defines the methods needed by the server from a pipeline.
type pipelineInterface interface {
	AnalyzeContext(ctx context.Context, imageData []byte, opts pipeline.Options) (*pipeline.AnalysisResult, error)
	RedactContext(ctx context.Context, imageData []byte, boxes []vision.NormalizedBox, opts pipeline.Options) (*pipeline.AnalysisResult, error)
	CheckHealth(ctx context.Context) error
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline        pipelineInterface
	corsOrigin      string
	maxUploadMB     int64
	timeoutSec      int
	overlayEnabled  bool
	overlayBoxColor string
	defaultOpts     pipeline.Options
	rateLimiter     *RateLimiter
}

// Config holds server configuration. PipelineConfig must be complete; use
// pipeline.DefaultConfig() as a base.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	TimeoutSec      int
	OverlayEnabled  bool
	OverlayBoxColor string

	// Request parameter defaults applied when a client omits them.
	MaxLabels     int
	MinConfidence float64

	PipelineConfig pipeline.Config
	RateLimit      RateLimitConfig

	// Detector overrides the configured detection backend when set.
	// Used by tests.
	Detector vision.Detector
}

// Response types for API endpoints.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Detector string `json:"detector,omitempty"`
	Time     string `json:"time"`
}

// EditSummary reports per-box removal outcomes.
type EditSummary struct {
	Applied           int `json:"applied"`
	SkippedDegenerate int `json:"skippedDegenerate"`
	SkippedNoDonor    int `json:"skippedNoDonor"`
}

// ProcessingTimings carries nanosecond stage timings.
type ProcessingTimings struct {
	DetectionNs int64 `json:"detection_ns"`
	EditingNs   int64 `json:"editing_ns"`
	TotalNs     int64 `json:"total_ns"`
}

// AnalyzeResult is the /analyze response body. The field names follow the
// original public contract: personConfidence is null when no person label
// was detected, and regeneratedImageBase64 is present whenever removal ran,
// even when every box was skipped.
type AnalyzeResult struct {
	Labels                 []pipeline.LabelSummary `json:"labels"`
	PersonPresent          bool                    `json:"personPresent"`
	PersonConfidence       *float64                `json:"personConfidence"`
	PersonCount            int                     `json:"personCount"`
	RemovePeopleRequested  bool                    `json:"removePeopleRequested"`
	PeopleRemoved          bool                    `json:"peopleRemoved"`
	RegeneratedImageBase64 string                  `json:"regeneratedImageBase64,omitempty"`
	Width                  int                     `json:"width"`
	Height                 int                     `json:"height"`
	Edit                   EditSummary             `json:"edit"`
	Processing             ProcessingTimings       `json:"processing"`
}

// AnalyzeResponse is the error envelope for analysis endpoints.
type AnalyzeResponse struct {
	Success bool           `json:"success"`
	Result  *AnalyzeResult `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// RedactResult is the /redact response body for format=json.
type RedactResult struct {
	Applied           int    `json:"applied"`
	SkippedDegenerate int    `json:"skippedDegenerate"`
	SkippedNoDonor    int    `json:"skippedNoDonor"`
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	ImageBase64       string `json:"imageBase64,omitempty"`
}

// NewServer creates a new analysis server instance.
func NewServer(config Config) (*Server, error) {
	b := pipeline.NewBuilder().
		WithVisionConfig(config.PipelineConfig.Vision).
		WithJPEGQuality(config.PipelineConfig.JPEGQuality)
	if config.Detector != nil {
		b = b.WithDetector(config.Detector)
	}

	pl, err := b.Build()
	if err != nil {
		return nil, err
	}

	opts := pipeline.DefaultOptions()
	if config.MaxLabels > 0 {
		opts.MaxLabels = config.MaxLabels
	}
	if config.MinConfidence > 0 {
		opts.MinConfidence = config.MinConfidence
	}

	var limiter *RateLimiter
	if config.RateLimit.Enabled {
		limiter = NewRateLimiter(config.RateLimit)
	}

	return &Server{
		pipeline:        pl,
		corsOrigin:      config.CORSOrigin,
		maxUploadMB:     config.MaxUploadMB,
		timeoutSec:      config.TimeoutSec,
		overlayEnabled:  config.OverlayEnabled,
		overlayBoxColor: config.OverlayBoxColor,
		defaultOpts:     opts.Clamped(),
		rateLimiter:     limiter,
	}, nil
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pipeline != nil {
		return s.pipeline.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/analyze", s.corsMiddleware(s.requestIDMiddleware(s.rateLimitMiddleware(s.analyzeHandler))))
	mux.HandleFunc("/analyze/batch", s.corsMiddleware(s.requestIDMiddleware(s.rateLimitMiddleware(s.analyzeBatchHandler))))
	mux.HandleFunc("/redact", s.corsMiddleware(s.requestIDMiddleware(s.rateLimitMiddleware(s.redactHandler))))
	mux.HandleFunc("/ws", s.analyzeWebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
}

// buildAnalyzeResult converts a pipeline result into the public response
// shape.
func buildAnalyzeResult(res *pipeline.AnalysisResult) *AnalyzeResult {
	out := &AnalyzeResult{
		Labels:                res.Labels,
		PersonPresent:         res.PersonPresent,
		PersonCount:           res.PersonCount,
		RemovePeopleRequested: res.RemovePeopleRequested,
		PeopleRemoved:         res.PeopleRemoved,
		Width:                 res.Width,
		Height:                res.Height,
		Edit: EditSummary{
			Applied:           res.Edit.Applied,
			SkippedDegenerate: res.Edit.SkippedDegenerate,
			SkippedNoDonor:    res.Edit.SkippedNoDonor,
		},
		Processing: ProcessingTimings{
			DetectionNs: res.Processing.DetectionNs,
			EditingNs:   res.Processing.EditingNs,
			TotalNs:     res.Processing.TotalNs,
		},
	}
	if res.PersonPresent {
		conf := res.PersonConfidence
		out.PersonConfidence = &conf
	}
	if len(res.EditedJPEG) > 0 {
		out.RegeneratedImageBase64 = base64Encode(res.EditedJPEG)
	}
	return out
}
