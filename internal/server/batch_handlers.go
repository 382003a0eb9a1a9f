package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/MeKo-Tech/vanish/internal/pipeline"
)

// maxBatchItems limits how many images one batch request may carry.
const maxBatchItems = 10

// BatchAnalyzeRequest represents a batch analysis request.
type BatchAnalyzeRequest struct {
	Images []BatchImageRequest `json:"images,omitempty"`
}

// BatchImageRequest represents a single image in a batch request. Data is
// base64 in the JSON wire form, per encoding/json []byte handling.
type BatchImageRequest struct {
	Name    string                 `json:"name"`
	Data    []byte                 `json:"data"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// BatchAnalyzeResponse represents the response for batch processing.
type BatchAnalyzeResponse struct {
	Success bool                   `json:"success"`
	Results []BatchAnalyzeResult   `json:"results,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Summary BatchProcessingSummary `json:"summary"`
}

// BatchAnalyzeResult represents a single result in batch processing.
type BatchAnalyzeResult struct {
	Name     string         `json:"name"`
	Success  bool           `json:"success"`
	Result   *AnalyzeResult `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration float64        `json:"duration_seconds"`
}

// BatchProcessingSummary provides summary statistics for batch processing.
type BatchProcessingSummary struct {
	TotalItems    int     `json:"total_items"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	PeopleRemoved int     `json:"people_removed"`
	TotalDuration float64 `json:"total_duration_seconds"`
	AvgItemTime   float64 `json:"avg_item_time_seconds"`
}

// analyzeBatchHandler processes batch analysis requests.
func (s *Server) analyzeBatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB*1024*1024)

	var req BatchAnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Failed to parse JSON request: %v", err), http.StatusBadRequest)
		return
	}

	if len(req.Images) == 0 {
		s.writeErrorResponse(w, "No images provided in batch request", http.StatusBadRequest)
		return
	}
	if len(req.Images) > maxBatchItems {
		s.writeErrorResponse(w, fmt.Sprintf("Batch size too large (maximum %d items)", maxBatchItems),
			http.StatusBadRequest)
		return
	}

	if s.pipeline == nil {
		s.writeErrorResponse(w, "Analysis pipeline not initialized", http.StatusServiceUnavailable)
		return
	}

	start := time.Now()
	results, summary := s.processBatchRequest(r.Context(), req)
	totalDuration := time.Since(start)

	summary.TotalDuration = totalDuration.Seconds()
	if summary.TotalItems > 0 {
		summary.AvgItemTime = summary.TotalDuration / float64(summary.TotalItems)
	}

	analyzeRequestsTotal.WithLabelValues("batch", "success").Inc()

	response := BatchAnalyzeResponse{
		Success: summary.Failed == 0,
		Results: results,
		Summary: summary,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding batch response: %v\n", err)
	}
}

// processBatchRequest processes all items in a batch request.
func (s *Server) processBatchRequest(ctx context.Context, req BatchAnalyzeRequest,
) ([]BatchAnalyzeResult, BatchProcessingSummary) {
	results := make([]BatchAnalyzeResult, 0, len(req.Images))
	summary := BatchProcessingSummary{
		TotalItems: len(req.Images),
	}

	for _, imgReq := range req.Images {
		result := s.processBatchImage(ctx, imgReq)
		results = append(results, result)
		if result.Success {
			summary.Successful++
			if result.Result != nil && result.Result.PeopleRemoved {
				summary.PeopleRemoved++
			}
		} else {
			summary.Failed++
		}
	}

	return results, summary
}

// processBatchImage processes a single image in a batch request.
func (s *Server) processBatchImage(ctx context.Context, req BatchImageRequest) BatchAnalyzeResult {
	result := BatchAnalyzeResult{
		Name: req.Name,
	}

	if len(req.Data) == 0 {
		result.Error = "No image data provided"
		return result
	}

	opts := s.extractOptions(req.Options)

	start := time.Now()
	res, err := s.pipeline.AnalyzeContext(ctx, req.Data, opts)
	duration := time.Since(start)

	result.Duration = duration.Seconds()

	if err != nil {
		result.Error = fmt.Sprintf("Failed because of: %v", err)
		return result
	}

	result.Success = true
	result.Result = buildAnalyzeResult(res)

	recordAnalysisMetrics("batch_image", res)

	return result
}

// extractOptions builds request options from a batch or WebSocket options
// map. Values may be strings or JSON numbers and booleans; the key names
// match the camelCase request parameters.
func (s *Server) extractOptions(options map[string]interface{}) pipeline.Options {
	opts := s.defaultOpts

	if options == nil {
		return opts
	}

	switch v := options["maxLabels"].(type) {
	case string:
		opts.MaxLabels = parseIntParam(v, s.defaultOpts.MaxLabels)
	case float64:
		opts.MaxLabels = int(v)
	}

	switch v := options["confidence"].(type) {
	case string:
		opts.MinConfidence = parseFloatParam(v, s.defaultOpts.MinConfidence)
	case float64:
		opts.MinConfidence = v
	}

	switch v := options["removePeople"].(type) {
	case string:
		opts.RemovePeople = pipeline.ParseBoolParam(v)
	case bool:
		opts.RemovePeople = v
	}

	return opts.Clamped()
}
