package support

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/MeKo-Tech/vanish/internal/vision"
)

// LabelStore holds the canned labels a scenario programs via Given steps.
// Both the stub detection endpoint and the in-process API server read from
// it, so one set of steps drives CLI and server scenarios alike.
type LabelStore struct {
	mu     sync.Mutex
	labels []vision.Label
}

// NewLabelStore returns an empty store.
func NewLabelStore() *LabelStore {
	return &LabelStore{}
}

// Add records a label. Instances for an already-known label name are merged
// into the existing entry so that, for example, three person steps produce
// one Person label with three instances.
func (s *LabelStore) Add(label vision.Label) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.labels {
		if vision.MatchesLabel(s.labels[i].Name, label.Name) {
			s.labels[i].Instances = append(s.labels[i].Instances, label.Instances...)
			if label.Confidence > s.labels[i].Confidence {
				s.labels[i].Confidence = label.Confidence
			}
			return
		}
	}
	s.labels = append(s.labels, label)
}

// Reset drops all recorded labels.
func (s *LabelStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = nil
}

// Filtered returns the stored labels after applying the detection
// parameters the same way a real backend would: labels below the confidence
// floor are dropped, then the list is truncated to the label budget.
func (s *LabelStore) Filtered(params vision.DetectParams) []vision.Label {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]vision.Label, 0, len(s.labels))
	for _, label := range s.labels {
		if params.MinConfidence > 0 && label.Confidence < params.MinConfidence {
			continue
		}
		cp := label
		cp.Instances = append([]vision.Instance(nil), label.Instances...)
		out = append(out, cp)
	}
	if params.MaxLabels > 0 && len(out) > params.MaxLabels {
		out = out[:params.MaxLabels]
	}
	return out
}

// stubDetectRequest mirrors the remote backend's request body.
type stubDetectRequest struct {
	Image struct {
		Bytes []byte `json:"Bytes"`
	} `json:"Image"`
	MaxLabels     int     `json:"MaxLabels"`
	MinConfidence float64 `json:"MinConfidence"`
}

// DetectionStub is an HTTP test server that speaks the remote detection
// wire protocol and answers from a LabelStore.
type DetectionStub struct {
	server *httptest.Server
	store  *LabelStore

	mu       sync.Mutex
	requests int
}

// StartDetectionStub starts a stub detection endpoint backed by the store.
func StartDetectionStub(store *LabelStore) *DetectionStub {
	stub := &DetectionStub{store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", stub.handleHealth)
	mux.HandleFunc("/", stub.handleDetect)
	stub.server = httptest.NewServer(mux)

	return stub
}

// URL returns the stub's base endpoint.
func (stub *DetectionStub) URL() string {
	return stub.server.URL
}

// Requests returns the number of detection calls received so far.
func (stub *DetectionStub) Requests() int {
	stub.mu.Lock()
	defer stub.mu.Unlock()
	return stub.requests
}

// Close shuts the stub down.
func (stub *DetectionStub) Close() {
	stub.server.Close()
}

func (stub *DetectionStub) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (stub *DetectionStub) handleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get("X-Amz-Target") != "RekognitionService.DetectLabels" {
		http.Error(w, "unknown target", http.StatusBadRequest)
		return
	}

	var req stubDetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if len(req.Image.Bytes) == 0 {
		http.Error(w, "missing image bytes", http.StatusBadRequest)
		return
	}

	stub.mu.Lock()
	stub.requests++
	stub.mu.Unlock()

	labels := stub.store.Filtered(vision.DetectParams{
		MaxLabels:     req.MaxLabels,
		MinConfidence: req.MinConfidence,
	})

	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	if err := json.NewEncoder(w).Encode(struct {
		Labels []vision.Label `json:"Labels"`
	}{Labels: labels}); err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
	}
}

// storeDetector is an in-process vision.Detector over the same LabelStore,
// injected into the API server under test so server scenarios need no
// external process.
type storeDetector struct {
	store *LabelStore
}

// DetectLabels returns the canned labels after parameter filtering.
func (d *storeDetector) DetectLabels(_ context.Context, imageData []byte, params vision.DetectParams) (*vision.Result, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	return &vision.Result{Labels: d.store.Filtered(params)}, nil
}

// Close implements vision.Detector.
func (d *storeDetector) Close() error {
	return nil
}
