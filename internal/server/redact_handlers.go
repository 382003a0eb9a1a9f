package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/MeKo-Tech/vanish/internal/pipeline"
	"github.com/MeKo-Tech/vanish/internal/vision"
)

// redactHandler removes caller-supplied regions from an image without
// running detection. Boxes use the detection wire shape: a JSON array of
// {"Left":..,"Top":..,"Width":..,"Height":..} objects in fractional image
// coordinates.
func (s *Server) redactHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	imageData, boxes, err := s.parseRedactRequest(w, r)
	if err != nil {
		analyzeRequestsTotal.WithLabelValues("redact", "error").Inc()
		return // error already written
	}

	if s.pipeline == nil {
		s.writeErrorResponse(w, "Analysis pipeline not initialized", http.StatusServiceUnavailable)
		analyzeRequestsTotal.WithLabelValues("redact", "error").Inc()
		return
	}

	res, err := s.pipeline.RedactContext(r.Context(), imageData, boxes, s.defaultOpts)
	if err != nil {
		analyzeRequestsTotal.WithLabelValues("redact", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Failed because of: %v", err), http.StatusInternalServerError)
		return
	}

	recordAnalysisMetrics("redact", res)
	s.writeRedactResponse(w, r, res)
}

// parseRedactRequest accepts either a multipart upload with a "boxes" form
// field, or raw image bytes as the body with boxes in the query string.
func (s *Server) parseRedactRequest(w http.ResponseWriter, r *http.Request) ([]byte, []vision.NormalizedBox, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB*1024*1024)

	var imageData []byte
	var boxesJSON string

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(s.maxUploadMB * 1024 * 1024); err != nil {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
			return nil, nil, err
		}

		file, header, err := r.FormFile("image")
		if err != nil {
			s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
			return nil, nil, err
		}
		defer func() { _ = file.Close() }()

		if header.Size > s.maxUploadMB*1024*1024 {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
			return nil, nil, fmt.Errorf("file size %d exceeds limit", header.Size)
		}
		uploadSizeBytes.Observe(float64(header.Size))

		imageData, err = io.ReadAll(file)
		if err != nil {
			s.writeErrorResponse(w, "Failed to read image data", http.StatusInternalServerError)
			return nil, nil, err
		}
		boxesJSON = r.FormValue("boxes")
	} else {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
			} else {
				s.writeErrorResponse(w, "Failed to read request body", http.StatusBadRequest)
			}
			return nil, nil, err
		}
		if len(body) == 0 {
			s.writeErrorResponse(w, "No image data provided", http.StatusBadRequest)
			return nil, nil, errors.New("no image data")
		}
		imageData = body
		boxesJSON = r.URL.Query().Get("boxes")
	}

	if boxesJSON == "" {
		s.writeErrorResponse(w, "No boxes provided", http.StatusBadRequest)
		return nil, nil, errors.New("no boxes")
	}

	var boxes []vision.NormalizedBox
	if err := json.Unmarshal([]byte(boxesJSON), &boxes); err != nil {
		s.writeErrorResponse(w, "Invalid boxes JSON", http.StatusBadRequest)
		return nil, nil, err
	}
	if len(boxes) == 0 {
		s.writeErrorResponse(w, "No boxes provided", http.StatusBadRequest)
		return nil, nil, errors.New("no boxes")
	}
	return imageData, boxes, nil
}

// writeRedactResponse returns the edited image. The default is JPEG bytes;
// format=png re-encodes losslessly and format=json wraps the image with the
// per-box outcome counts.
func (s *Server) writeRedactResponse(w http.ResponseWriter, r *http.Request, res *pipeline.AnalysisResult) {
	format := r.FormValue("format")
	if format == "" {
		format = r.URL.Query().Get("format")
	}

	switch format {
	case formatJSON:
		out := RedactResult{
			Applied:           res.Edit.Applied,
			SkippedDegenerate: res.Edit.SkippedDegenerate,
			SkippedNoDonor:    res.Edit.SkippedNoDonor,
			Width:             res.Width,
			Height:            res.Height,
		}
		if len(res.EditedJPEG) > 0 {
			out.ImageBase64 = base64Encode(res.EditedJPEG)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding redact response: %v\n", err)
		}
	case formatPNG:
		if res.EditedImage == nil {
			s.writeErrorResponse(w, "No edited image produced", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_ = png.Encode(w, res.EditedImage)
	default:
		if len(res.EditedJPEG) == 0 {
			s.writeErrorResponse(w, "No edited image produced", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(res.EditedJPEG)
	}
}
