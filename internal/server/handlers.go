package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/vanish/internal/editor"
	"github.com/MeKo-Tech/vanish/internal/pipeline"
	"github.com/MeKo-Tech/vanish/internal/utils"
	"github.com/MeKo-Tech/vanish/internal/version"
	"github.com/MeKo-Tech/vanish/internal/vision"
)

const (
	formatJSON    = "json"
	formatImage   = "image"
	formatOverlay = "overlay"
	formatPNG     = "png"
)

// rawBase64MinLen is the minimum body length treated as a bare base64
// payload. Shorter non-JSON bodies are rejected as missing image data.
const rawBase64MinLen = 100

// healthProbeTimeout bounds the detector probe so /health stays fast even
// when the detection backend is unreachable.
const healthProbeTimeout = 2 * time.Second

// healthHandler returns server health status, including the detection
// backend when it exposes a health probe.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if s.pipeline != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()
		if err := s.pipeline.CheckHealth(ctx); err != nil {
			response.Status = "degraded"
			response.Detector = err.Error()
		} else {
			response.Detector = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding health response: %v\n", err)
	}
}

// AnalyzeRequest is the JSON body accepted by /analyze. Parameter values may
// arrive as strings or as bare numbers and booleans; the public API has
// never distinguished the two.
type AnalyzeRequest struct {
	Image        string     `json:"image"`
	MaxLabels    flexString `json:"maxLabels"`
	Confidence   flexString `json:"confidence"`
	RemovePeople flexString `json:"removePeople"`
}

// flexString decodes a JSON value that may be a string, number, or bool into
// its literal text.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}

// analyzeHandler processes image analysis requests.
func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	imageData, opts, err := s.parseAnalyzeRequest(w, r)
	if err != nil {
		analyzeRequestsTotal.WithLabelValues("image", "error").Inc()
		return // error already written
	}

	if s.pipeline == nil {
		s.writeErrorResponse(w, "Analysis pipeline not initialized", http.StatusServiceUnavailable)
		analyzeRequestsTotal.WithLabelValues("image", "error").Inc()
		return
	}

	res, err := s.pipeline.AnalyzeContext(r.Context(), imageData, opts)
	if err != nil {
		analyzeRequestsTotal.WithLabelValues("image", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Failed because of: %v", err), http.StatusInternalServerError)
		return
	}

	recordAnalysisMetrics("image", res)
	s.writeAnalyzeResponse(w, r, imageData, res)
}

// parseAnalyzeRequest extracts image bytes and request options from any of
// the accepted request shapes: a multipart form upload, a JSON body, or a
// bare base64 body.
func (s *Server) parseAnalyzeRequest(w http.ResponseWriter, r *http.Request) ([]byte, pipeline.Options, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB*1024*1024)

	opts := s.defaultOpts

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return s.parseMultipartAnalyze(w, r, opts)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to read request body", http.StatusBadRequest)
		}
		return nil, opts, err
	}
	body = bytes.TrimSpace(body)

	if len(body) > 0 && body[0] == '{' {
		return s.parseJSONAnalyze(w, r, body, opts)
	}

	// Clients that POST the bare base64 payload with no JSON wrapper have
	// always been accepted. Anything short is a stray form body, not an
	// image.
	if len(body) > rawBase64MinLen {
		imageData, decErr := decodeBase64Image(string(body))
		if decErr != nil {
			s.writeErrorResponse(w, "Invalid base64 image data", http.StatusBadRequest)
			return nil, opts, decErr
		}
		applyParams(r.URL.Query().Get, &opts, s.defaultOpts)
		return imageData, opts.Clamped(), nil
	}

	s.writeErrorResponse(w, "No image data provided", http.StatusBadRequest)
	return nil, opts, errors.New("no image data")
}

func (s *Server) parseMultipartAnalyze(w http.ResponseWriter, r *http.Request,
	opts pipeline.Options,
) ([]byte, pipeline.Options, error) {
	if err := r.ParseMultipartForm(s.maxUploadMB * 1024 * 1024); err != nil {
		s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		return nil, opts, err
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return nil, opts, err
	}
	defer func() { _ = file.Close() }()

	if header.Size > s.maxUploadMB*1024*1024 {
		s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, opts, fmt.Errorf("file size %d exceeds limit", header.Size)
	}
	uploadSizeBytes.Observe(float64(header.Size))

	imageData, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read image data", http.StatusInternalServerError)
		return nil, opts, err
	}

	applyParams(r.FormValue, &opts, s.defaultOpts)
	return imageData, opts.Clamped(), nil
}

func (s *Server) parseJSONAnalyze(w http.ResponseWriter, r *http.Request, body []byte,
	opts pipeline.Options,
) ([]byte, pipeline.Options, error) {
	var req AnalyzeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeErrorResponse(w, "Invalid JSON request body", http.StatusBadRequest)
		return nil, opts, err
	}
	if req.Image == "" {
		s.writeErrorResponse(w, "No image data provided", http.StatusBadRequest)
		return nil, opts, errors.New("no image data")
	}

	imageData, err := decodeBase64Image(req.Image)
	if err != nil {
		s.writeErrorResponse(w, "Invalid base64 image data", http.StatusBadRequest)
		return nil, opts, err
	}

	// Query parameters apply first so body fields win.
	applyParams(r.URL.Query().Get, &opts, s.defaultOpts)
	if req.MaxLabels != "" {
		opts.MaxLabels = parseIntParam(string(req.MaxLabels), s.defaultOpts.MaxLabels)
	}
	if req.Confidence != "" {
		opts.MinConfidence = parseFloatParam(string(req.Confidence), s.defaultOpts.MinConfidence)
	}
	if req.RemovePeople != "" {
		opts.RemovePeople = pipeline.ParseBoolParam(string(req.RemovePeople))
	}
	return imageData, opts.Clamped(), nil
}

// applyParams overrides opts from request parameters. Both the snake_case and
// camelCase parameter names are accepted. Unparseable numbers fall back to
// the configured defaults rather than failing the request.
func applyParams(get func(string) string, opts *pipeline.Options, defaults pipeline.Options) {
	if v := firstNonEmpty(get("max_labels"), get("maxLabels")); v != "" {
		opts.MaxLabels = parseIntParam(v, defaults.MaxLabels)
	}
	if v := get("confidence"); v != "" {
		opts.MinConfidence = parseFloatParam(v, defaults.MinConfidence)
	}
	if v := firstNonEmpty(get("remove_people"), get("removePeople")); v != "" {
		opts.RemovePeople = pipeline.ParseBoolParam(v)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseIntParam(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func parseFloatParam(s string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return def
	}
	return f
}

// decodeBase64Image decodes a base64 payload, tolerating surrounding
// whitespace, a data-URL prefix, and missing padding.
func decodeBase64Image(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, "base64,"); i >= 0 {
			s = s[i+len("base64,"):]
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image data: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}
	return data, nil
}

func base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// writeAnalyzeResponse formats the analysis result. The default is the JSON
// contract; format=image returns the regenerated JPEG directly, and
// format=overlay draws the detected person boxes onto the original image.
func (s *Server) writeAnalyzeResponse(w http.ResponseWriter, r *http.Request,
	imageData []byte, res *pipeline.AnalysisResult,
) {
	format := r.FormValue("format")
	if format == "" {
		format = r.URL.Query().Get("format")
	}

	switch format {
	case formatImage:
		s.writeEditedImageResponse(w, res)
	case formatOverlay:
		s.handleOverlayOutput(w, r, imageData, res)
	default:
		if r.FormValue("overlay") == "1" {
			s.handleOverlayOutput(w, r, imageData, res)
		} else {
			s.writeJSONResponse(w, res)
		}
	}
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, res *pipeline.AnalysisResult) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(buildAnalyzeResult(res)); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding analyze response: %v\n", err)
	}
}

// writeEditedImageResponse sends the regenerated JPEG bytes directly.
func (s *Server) writeEditedImageResponse(w http.ResponseWriter, res *pipeline.AnalysisResult) {
	if len(res.EditedJPEG) == 0 {
		s.writeErrorResponse(w, "No edited image produced; request removal with remove_people=true",
			http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(res.EditedJPEG)
}

// handleOverlayOutput draws the detected person boxes onto the original
// image and returns it as PNG.
func (s *Server) handleOverlayOutput(w http.ResponseWriter, r *http.Request,
	imageData []byte, res *pipeline.AnalysisResult,
) {
	if !s.overlayEnabled {
		http.Error(w, "overlay output disabled", http.StatusForbidden)
		return
	}

	img, _, err := utils.DecodeImageBytes(imageData)
	if err != nil {
		http.Error(w, "overlay failed", http.StatusInternalServerError)
		return
	}

	boxCol := utils.ParseHexColor(r.FormValue("box"))
	if boxCol == nil {
		boxCol = utils.ParseHexColor(s.overlayBoxColor)
	}
	if boxCol == nil {
		boxCol = color.RGBA{255, 0, 0, 255}
	}

	rects := rectsFromBoxes(res.PersonBoxes, res.Width, res.Height)
	ov := utils.RenderBoxOverlay(img, rects, boxCol, 3)
	if ov == nil {
		http.Error(w, "overlay failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_ = png.Encode(w, ov)
}

// rectsFromBoxes converts normalized boxes into pixel rectangles using the
// same rounding as region removal, dropping boxes that collapse to nothing.
func rectsFromBoxes(boxes []vision.NormalizedBox, width, height int) []image.Rectangle {
	rects := make([]image.Rectangle, 0, len(boxes))
	for _, b := range boxes {
		rect, ok := editor.BoxRect(editor.NormalizedBox{
			Left: b.Left, Top: b.Top, Width: b.Width, Height: b.Height,
		}, width, height)
		if ok {
			rects = append(rects, rect)
		}
	}
	return rects
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := AnalyzeResponse{
		Success: false,
		Error:   message,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		// Log error, but can't send another response
		fmt.Fprintf(os.Stderr, "Error writing error response: %v\n", err)
	}
}
