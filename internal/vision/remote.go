package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Wire constants for the remote detection API. The endpoint speaks the
// DetectLabels JSON protocol, so any rekognition-compatible service works.
const (
	detectLabelsTarget = "RekognitionService.DetectLabels"
	amzJSONContentType = "application/x-amz-json-1.1"

	// maxErrorBody caps how much of an error response is kept for the
	// wrapped error message.
	maxErrorBody = 4096
)

// RemoteDetector calls a rekognition-compatible DetectLabels HTTP endpoint.
type RemoteDetector struct {
	endpoint   string
	apiKey     string
	healthPath string
	client     *http.Client
}

// NewRemoteDetector builds a remote detector from the configuration.
func NewRemoteDetector(cfg Config) (*RemoteDetector, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		if cfg.Region == "" {
			return nil, errors.New("remote detector requires an endpoint or a region")
		}
		endpoint = fmt.Sprintf("https://rekognition.%s.amazonaws.com", cfg.Region)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &RemoteDetector{
		endpoint:   endpoint,
		apiKey:     cfg.APIKey,
		healthPath: cfg.HealthPath,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

type detectLabelsRequest struct {
	Image         requestImage `json:"Image"`
	MaxLabels     int          `json:"MaxLabels,omitempty"`
	MinConfidence float64      `json:"MinConfidence,omitempty"`
}

// requestImage carries the raw image; encoding/json base64-encodes Bytes.
type requestImage struct {
	Bytes []byte `json:"Bytes"`
}

type detectLabelsResponse struct {
	Labels []Label `json:"Labels"`
}

// DetectLabels sends the encoded image to the detection endpoint and
// returns the parsed labels.
func (d *RemoteDetector) DetectLabels(ctx context.Context, imageData []byte, params DetectParams) (*Result, error) {
	if len(imageData) == 0 {
		return nil, errors.New("empty image data")
	}

	start := time.Now()

	payload, err := json.Marshal(detectLabelsRequest{
		Image:         requestImage{Bytes: imageData},
		MaxLabels:     params.MaxLabels,
		MinConfidence: params.MinConfidence,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode detection request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build detection request: %w", err)
	}
	req.Header.Set("Content-Type", amzJSONContentType)
	req.Header.Set("X-Amz-Target", detectLabelsTarget)
	if d.apiKey != "" {
		req.Header.Set("Authorization", d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detection request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close detection response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("detection service returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed detectLabelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode detection response: %w", err)
	}

	slog.Debug("remote detection complete",
		"endpoint", d.endpoint,
		"labels", len(parsed.Labels),
		"duration", time.Since(start))

	return &Result{
		Labels:         parsed.Labels,
		ProcessingTime: time.Since(start).Nanoseconds(),
	}, nil
}

// CheckHealth probes the backend's health path.
func (d *RemoteDetector) CheckHealth(ctx context.Context) error {
	if d.healthPath == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+d.healthPath, nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("detection service unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detection service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle connections held by the underlying client.
func (d *RemoteDetector) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
