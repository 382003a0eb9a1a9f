package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/vanish/internal/pipeline"
)

func postBatchRequest(t *testing.T, server *Server, req BatchAnalyzeRequest) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/analyze/batch", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.analyzeBatchHandler(w, httpReq)
	return w
}

func TestServer_AnalyzeBatchHandler(t *testing.T) {
	mock := &mockPipeline{analyzeResult: analysisResultFixture(true)}
	server := newMockServer(mock)

	req := BatchAnalyzeRequest{
		Images: []BatchImageRequest{
			{
				Name: "first.jpg",
				Data: testJPEG(t, 32, 32),
				Options: map[string]interface{}{
					"removePeople": true,
					"maxLabels":    float64(8),
				},
			},
			{
				Name: "empty.jpg",
				// No data, so this item fails without reaching the pipeline.
			},
		},
	}

	w := postBatchRequest(t, server, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response BatchAnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	assert.False(t, response.Success)
	require.Len(t, response.Results, 2)

	first := response.Results[0]
	assert.Equal(t, "first.jpg", first.Name)
	assert.True(t, first.Success)
	require.NotNil(t, first.Result)
	assert.True(t, first.Result.PeopleRemoved)
	assert.GreaterOrEqual(t, first.Duration, 0.0)

	second := response.Results[1]
	assert.Equal(t, "empty.jpg", second.Name)
	assert.False(t, second.Success)
	assert.Equal(t, "No image data provided", second.Error)
	assert.Nil(t, second.Result)

	assert.Equal(t, 2, response.Summary.TotalItems)
	assert.Equal(t, 1, response.Summary.Successful)
	assert.Equal(t, 1, response.Summary.Failed)
	assert.Equal(t, 1, response.Summary.PeopleRemoved)
	assert.GreaterOrEqual(t, response.Summary.TotalDuration, 0.0)

	// Per-item options reached the pipeline.
	assert.Equal(t, 8, mock.lastOpts.MaxLabels)
	assert.True(t, mock.lastOpts.RemovePeople)
}

func TestServer_AnalyzeBatchHandler_AllSuccessful(t *testing.T) {
	mock := &mockPipeline{analyzeResult: analysisResultFixture(false)}
	server := newMockServer(mock)

	req := BatchAnalyzeRequest{
		Images: []BatchImageRequest{
			{Name: "a.jpg", Data: testJPEG(t, 16, 16)},
			{Name: "b.jpg", Data: testJPEG(t, 16, 16)},
		},
	}

	w := postBatchRequest(t, server, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response BatchAnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	assert.True(t, response.Success)
	assert.Equal(t, 2, response.Summary.Successful)
	assert.Equal(t, 0, response.Summary.Failed)
	assert.Equal(t, 0, response.Summary.PeopleRemoved)
	assert.Equal(t, 2, mock.calls)
}

func TestServer_AnalyzeBatchHandler_ItemFailure(t *testing.T) {
	mock := &mockPipeline{analyzeError: errors.New("detector offline")}
	server := newMockServer(mock)

	req := BatchAnalyzeRequest{
		Images: []BatchImageRequest{{Name: "a.jpg", Data: testJPEG(t, 16, 16)}},
	}

	w := postBatchRequest(t, server, req)

	// Per-item failures do not fail the request.
	require.Equal(t, http.StatusOK, w.Code)

	var response BatchAnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	assert.False(t, response.Success)
	require.Len(t, response.Results, 1)
	assert.Contains(t, response.Results[0].Error, "Failed because of: detector offline")
	assert.Equal(t, 1, response.Summary.Failed)
}

func TestServer_AnalyzeBatchHandler_Errors(t *testing.T) {
	t.Run("method not allowed", func(t *testing.T) {
		server := newMockServer(&mockPipeline{})
		req := httptest.NewRequest(http.MethodGet, "/analyze/batch", nil)
		w := httptest.NewRecorder()

		server.analyzeBatchHandler(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		server := newMockServer(&mockPipeline{})
		req := httptest.NewRequest(http.MethodPost, "/analyze/batch", strings.NewReader("{broken"))
		w := httptest.NewRecorder()

		server.analyzeBatchHandler(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assertErrorResponse(t, w, "Failed to parse JSON request")
	})

	t.Run("no images", func(t *testing.T) {
		server := newMockServer(&mockPipeline{})
		w := postBatchRequest(t, server, BatchAnalyzeRequest{})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assertErrorResponse(t, w, "No images provided in batch request")
	})

	t.Run("batch too large", func(t *testing.T) {
		server := newMockServer(&mockPipeline{})

		req := BatchAnalyzeRequest{}
		for i := 0; i < maxBatchItems+1; i++ {
			req.Images = append(req.Images, BatchImageRequest{Name: "x.jpg", Data: []byte{1}})
		}
		w := postBatchRequest(t, server, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assertErrorResponse(t, w, "Batch size too large (maximum 10 items)")
	})

	t.Run("pipeline not initialized", func(t *testing.T) {
		server := newMockServer(nil)
		w := postBatchRequest(t, server, BatchAnalyzeRequest{
			Images: []BatchImageRequest{{Name: "a.jpg", Data: []byte{1}}},
		})

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestServer_ExtractOptions(t *testing.T) {
	server := newMockServer(&mockPipeline{})

	tests := []struct {
		name    string
		options map[string]interface{}
		want    pipeline.Options
	}{
		{
			name:    "nil map keeps defaults",
			options: nil,
			want:    pipeline.DefaultOptions(),
		},
		{
			name: "string values",
			options: map[string]interface{}{
				"maxLabels":    "12",
				"confidence":   "75.5",
				"removePeople": "yes",
			},
			want: pipeline.Options{MaxLabels: 12, MinConfidence: 75.5, RemovePeople: true},
		},
		{
			name: "JSON literal values",
			options: map[string]interface{}{
				"maxLabels":    float64(3),
				"confidence":   float64(60),
				"removePeople": true,
			},
			want: pipeline.Options{MaxLabels: 3, MinConfidence: 60, RemovePeople: true},
		},
		{
			name: "unparseable strings keep defaults",
			options: map[string]interface{}{
				"maxLabels":  "lots",
				"confidence": "high",
			},
			want: pipeline.DefaultOptions(),
		},
		{
			name: "out of range values are clamped",
			options: map[string]interface{}{
				"maxLabels":  float64(1000),
				"confidence": float64(-10),
			},
			want: pipeline.Options{MaxLabels: 100, MinConfidence: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := server.extractOptions(tt.options)
			assert.Equal(t, tt.want.MaxLabels, got.MaxLabels)
			assert.InDelta(t, tt.want.MinConfidence, got.MinConfidence, 0.001)
			assert.Equal(t, tt.want.RemovePeople, got.RemovePeople)
		})
	}
}
