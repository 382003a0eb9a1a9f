package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/vanish/internal/pipeline"
)

func TestServer_HealthHandler(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		expectedStatus int
		checkResponse  bool
	}{
		{
			name:           "GET request success",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
			checkResponse:  true,
		},
		{
			name:           "POST request not allowed",
			method:         http.MethodPost,
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "PUT request not allowed",
			method:         http.MethodPut,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newMockServer(&mockPipeline{})

			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			server.healthHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.checkResponse {
				var response HealthResponse
				err := json.Unmarshal(w.Body.Bytes(), &response)
				require.NoError(t, err)

				assert.Equal(t, "healthy", response.Status)
				assert.Equal(t, "ok", response.Detector)
				assert.NotEmpty(t, response.Time)
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			}
		})
	}
}

func TestServer_HealthHandler_DegradedDetector(t *testing.T) {
	server := newMockServer(&mockPipeline{healthError: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	server.healthHandler(w, req)

	// The server itself is up, so /health stays 200 and reports the
	// detector failure in the body.
	assert.Equal(t, http.StatusOK, w.Code)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "degraded", response.Status)
	assert.Contains(t, response.Detector, "connection refused")
}

func TestServer_AnalyzeHandler_MultipartRemoval(t *testing.T) {
	det := &fakeDetector{labels: personLabels()}
	server := newTestServer(t, det)

	imageData := testJPEG(t, 64, 64)
	req := createMultipartFormRequest(t, "/analyze", imageData, map[string]string{
		"remove_people": "true",
		"max_labels":    "10",
		"confidence":    "80",
	})
	w := httptest.NewRecorder()

	server.analyzeHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var result AnalyzeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	assert.True(t, result.PersonPresent)
	require.NotNil(t, result.PersonConfidence)
	assert.InDelta(t, 98.5, *result.PersonConfidence, 0.001)
	assert.Equal(t, 1, result.PersonCount)
	assert.True(t, result.RemovePeopleRequested)
	assert.True(t, result.PeopleRemoved)
	assert.Equal(t, 64, result.Width)
	assert.Equal(t, 64, result.Height)
	assert.Len(t, result.Labels, 2)
	assert.Equal(t, 1, result.Edit.Applied)

	// The regenerated image decodes as a JPEG of the original size.
	require.NotEmpty(t, result.RegeneratedImageBase64)
	decoded, err := base64.StdEncoding.DecodeString(result.RegeneratedImageBase64)
	require.NoError(t, err)
	img, format, err := image.Decode(bytes.NewReader(decoded))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 64, img.Bounds().Dx())

	// Detection received the parsed request parameters.
	assert.Equal(t, 10, det.params.MaxLabels)
	assert.InDelta(t, 80.0, det.params.MinConfidence, 0.001)
}

func TestServer_AnalyzeHandler_JSONBody(t *testing.T) {
	mock := &mockPipeline{analyzeResult: analysisResultFixture(true)}
	server := newMockServer(mock)

	// Mixed string and literal parameter values are all accepted.
	payload := map[string]interface{}{
		"image":        base64.StdEncoding.EncodeToString(testJPEG(t, 32, 32)),
		"maxLabels":    "7",
		"confidence":   85,
		"removePeople": true,
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.analyzeHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, 7, mock.lastOpts.MaxLabels)
	assert.InDelta(t, 85.0, mock.lastOpts.MinConfidence, 0.001)
	assert.True(t, mock.lastOpts.RemovePeople)

	var result AnalyzeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.NotNil(t, result.PersonConfidence)
	assert.NotEmpty(t, result.RegeneratedImageBase64)
}

func TestServer_AnalyzeHandler_RawBase64Body(t *testing.T) {
	mock := &mockPipeline{analyzeResult: analysisResultFixture(false)}
	server := newMockServer(mock)

	imageData := testJPEG(t, 32, 32)
	body := base64.StdEncoding.EncodeToString(imageData)
	require.Greater(t, len(body), rawBase64MinLen)

	req := httptest.NewRequest(http.MethodPost, "/analyze?remove_people=yes&max_labels=3",
		strings.NewReader(body))
	w := httptest.NewRecorder()

	server.analyzeHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, imageData, mock.lastData)
	assert.Equal(t, 3, mock.lastOpts.MaxLabels)
	assert.True(t, mock.lastOpts.RemovePeople)
}

func TestServer_AnalyzeHandler_PersonConfidenceNull(t *testing.T) {
	res := analysisResultFixture(false)
	res.PersonPresent = false
	res.PersonConfidence = 0
	res.PersonCount = 0
	res.PersonBoxes = nil
	res.Labels = []pipeline.LabelSummary{{Name: "Mountain", Confidence: 95.0}}
	server := newMockServer(&mockPipeline{analyzeResult: res})

	req := createMultipartFormRequest(t, "/analyze", testJPEG(t, 16, 16), nil)
	w := httptest.NewRecorder()

	server.analyzeHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	// personConfidence must serialize as an explicit null, never be omitted.
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	val, ok := raw["personConfidence"]
	require.True(t, ok)
	assert.Equal(t, "null", string(val))
}

func TestServer_AnalyzeHandler_ParamFallbacks(t *testing.T) {
	tests := []struct {
		name          string
		fields        map[string]string
		wantMaxLabels int
		wantConf      float64
		wantRemove    bool
	}{
		{
			name:          "defaults when omitted",
			fields:        nil,
			wantMaxLabels: pipeline.DefaultMaxLabels,
			wantConf:      pipeline.DefaultMinConfidence,
		},
		{
			name:          "unparseable values fall back to defaults",
			fields:        map[string]string{"max_labels": "abc", "confidence": "not-a-number"},
			wantMaxLabels: pipeline.DefaultMaxLabels,
			wantConf:      pipeline.DefaultMinConfidence,
		},
		{
			name:          "out of range values are clamped",
			fields:        map[string]string{"max_labels": "500", "confidence": "150"},
			wantMaxLabels: 100,
			wantConf:      100,
		},
		{
			name:          "low values are clamped up",
			fields:        map[string]string{"max_labels": "0", "confidence": "-5"},
			wantMaxLabels: 1,
			wantConf:      0,
		},
		{
			name:          "camelCase parameter names",
			fields:        map[string]string{"maxLabels": "8", "removePeople": "on"},
			wantMaxLabels: 8,
			wantConf:      pipeline.DefaultMinConfidence,
			wantRemove:    true,
		},
		{
			name:          "truthy remove_people variant",
			fields:        map[string]string{"remove_people": "YES"},
			wantMaxLabels: pipeline.DefaultMaxLabels,
			wantConf:      pipeline.DefaultMinConfidence,
			wantRemove:    true,
		},
		{
			name:          "falsy remove_people",
			fields:        map[string]string{"remove_people": "false"},
			wantMaxLabels: pipeline.DefaultMaxLabels,
			wantConf:      pipeline.DefaultMinConfidence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockPipeline{analyzeResult: analysisResultFixture(false)}
			server := newMockServer(mock)

			req := createMultipartFormRequest(t, "/analyze", testJPEG(t, 16, 16), tt.fields)
			w := httptest.NewRecorder()

			server.analyzeHandler(w, req)

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.wantMaxLabels, mock.lastOpts.MaxLabels)
			assert.InDelta(t, tt.wantConf, mock.lastOpts.MinConfidence, 0.001)
			assert.Equal(t, tt.wantRemove, mock.lastOpts.RemovePeople)
		})
	}
}

func TestServer_AnalyzeHandler_Errors(t *testing.T) {
	t.Run("method not allowed", func(t *testing.T) {
		server := newMockServer(&mockPipeline{})
		req := httptest.NewRequest(http.MethodGet, "/analyze", nil)
		w := httptest.NewRecorder()

		server.analyzeHandler(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		server := newMockServer(&mockPipeline{})
		req := httptest.NewRequest(http.MethodPost, "/analyze", nil)
		w := httptest.NewRecorder()

		server.analyzeHandler(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assertErrorResponse(t, w, "No image data provided")
	})

	t.Run("short non-JSON body", func(t *testing.T) {
		server := newMockServer(&mockPipeline{})
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("hello"))
		w := httptest.NewRecorder()

		server.analyzeHandler(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assertErrorResponse(t, w, "No image data provided")
	})

	t.Run("invalid JSON body", func(t *testing.T) {
		server := newMockServer(&mockPipeline{})
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("{not json"))
		w := httptest.NewRecorder()

		server.analyzeHandler(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("JSON body without image", func(t *testing.T) {
		server := newMockServer(&mockPipeline{})
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"removePeople":"true"}`))
		w := httptest.NewRecorder()

		server.analyzeHandler(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assertErrorResponse(t, w, "No image data provided")
	})

	t.Run("invalid base64 in JSON body", func(t *testing.T) {
		server := newMockServer(&mockPipeline{})
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"image":"!!!not-base64!!!"}`))
		w := httptest.NewRecorder()

		server.analyzeHandler(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assertErrorResponse(t, w, "Invalid base64 image data")
	})

	t.Run("multipart without image file", func(t *testing.T) {
		server := newMockServer(&mockPipeline{})

		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		require.NoError(t, writer.WriteField("remove_people", "true"))
		require.NoError(t, writer.Close())
		req := httptest.NewRequest(http.MethodPost, "/analyze", &buf)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		w := httptest.NewRecorder()

		server.analyzeHandler(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assertErrorResponse(t, w, "No image file provided")
	})

	t.Run("body over upload limit", func(t *testing.T) {
		server := newMockServer(&mockPipeline{})
		server.maxUploadMB = 1

		big := strings.Repeat("A", 2*1024*1024)
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(big))
		w := httptest.NewRecorder()

		server.analyzeHandler(w, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assertErrorResponse(t, w, "File too large")
	})

	t.Run("pipeline not initialized", func(t *testing.T) {
		server := newMockServer(nil)
		req := createMultipartFormRequest(t, "/analyze", testJPEG(t, 16, 16), nil)
		w := httptest.NewRecorder()

		server.analyzeHandler(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("pipeline failure", func(t *testing.T) {
		server := newMockServer(&mockPipeline{
			analyzeError: errors.New("detection failed: backend unreachable"),
		})
		req := createMultipartFormRequest(t, "/analyze", testJPEG(t, 16, 16), nil)
		w := httptest.NewRecorder()

		server.analyzeHandler(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var response AnalyzeResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.False(t, response.Success)
		assert.Contains(t, response.Error, "Failed because of: ")
		assert.Contains(t, response.Error, "backend unreachable")
	})
}

func TestServer_AnalyzeHandler_FormatImage(t *testing.T) {
	res := analysisResultFixture(true)
	server := newMockServer(&mockPipeline{analyzeResult: res})

	req := createMultipartFormRequest(t, "/analyze", testJPEG(t, 16, 16), map[string]string{
		"remove_people": "true",
		"format":        "image",
	})
	w := httptest.NewRecorder()

	server.analyzeHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, res.EditedJPEG, w.Body.Bytes())
}

func TestServer_AnalyzeHandler_FormatImageWithoutRemoval(t *testing.T) {
	server := newMockServer(&mockPipeline{analyzeResult: analysisResultFixture(false)})

	req := createMultipartFormRequest(t, "/analyze", testJPEG(t, 16, 16),
		map[string]string{"format": "image"})
	w := httptest.NewRecorder()

	server.analyzeHandler(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_AnalyzeHandler_Overlay(t *testing.T) {
	server := newTestServer(t, &fakeDetector{labels: personLabels()})

	imageData := testJPEG(t, 64, 64)
	req := createMultipartFormRequest(t, "/analyze", imageData, map[string]string{
		"format": "overlay",
		"box":    "#00FF00",
	})
	w := httptest.NewRecorder()

	server.analyzeHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 64, img.Bounds().Dy())
}

func TestServer_AnalyzeHandler_OverlayDisabled(t *testing.T) {
	server := newTestServer(t, &fakeDetector{labels: personLabels()})
	server.overlayEnabled = false

	req := createMultipartFormRequest(t, "/analyze", testJPEG(t, 32, 32),
		map[string]string{"overlay": "1"})
	w := httptest.NewRecorder()

	server.analyzeHandler(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServer_WriteErrorResponse(t *testing.T) {
	server := &Server{}

	tests := []struct {
		name       string
		message    string
		statusCode int
	}{
		{
			name:       "bad request error",
			message:    "Invalid input",
			statusCode: http.StatusBadRequest,
		},
		{
			name:       "internal server error",
			message:    "Something went wrong",
			statusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			server.writeErrorResponse(w, tt.message, tt.statusCode)

			assert.Equal(t, tt.statusCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var response AnalyzeResponse
			err := json.Unmarshal(w.Body.Bytes(), &response)
			require.NoError(t, err)

			assert.False(t, response.Success)
			assert.Equal(t, tt.message, response.Error)
		})
	}
}

func TestFlexString_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "quoted string", input: `{"v":"5"}`, want: "5"},
		{name: "bare number", input: `{"v":5}`, want: "5"},
		{name: "bare float", input: `{"v":85.5}`, want: "85.5"},
		{name: "bare bool", input: `{"v":true}`, want: "true"},
		{name: "null", input: `{"v":null}`, want: ""},
		{name: "absent", input: `{}`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				V flexString `json:"v"`
			}
			require.NoError(t, json.Unmarshal([]byte(tt.input), &out))
			assert.Equal(t, tt.want, string(out.V))
		})
	}
}

func TestDecodeBase64Image(t *testing.T) {
	payload := []byte("binary image payload")
	encoded := base64.StdEncoding.EncodeToString(payload)

	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{name: "plain base64", input: encoded, want: payload},
		{name: "data URL prefix", input: "data:image/jpeg;base64," + encoded, want: payload},
		{name: "surrounding whitespace", input: "  " + encoded + "\n", want: payload},
		{name: "unpadded", input: strings.TrimRight(encoded, "="), want: payload},
		{name: "invalid", input: "!!!", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBase64Image(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIntParam(t *testing.T) {
	assert.Equal(t, 7, parseIntParam("7", 5))
	assert.Equal(t, 7, parseIntParam(" 7 ", 5))
	assert.Equal(t, -2, parseIntParam("-2", 5))
	assert.Equal(t, 5, parseIntParam("abc", 5))
	assert.Equal(t, 5, parseIntParam("", 5))
	assert.Equal(t, 5, parseIntParam("7.5", 5))
}

func TestParseFloatParam(t *testing.T) {
	assert.InDelta(t, 82.5, parseFloatParam("82.5", 90), 0.001)
	assert.InDelta(t, 80.0, parseFloatParam("80", 90), 0.001)
	assert.InDelta(t, 90.0, parseFloatParam("abc", 90), 0.001)
	assert.InDelta(t, 90.0, parseFloatParam("", 90), 0.001)
}

// Benchmark tests.
func BenchmarkServer_HealthHandler(b *testing.B) {
	server := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		server.healthHandler(w, req)
	}
}

func BenchmarkDecodeBase64Image(b *testing.B) {
	encoded := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("image"), 4096))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = decodeBase64Image(encoded)
	}
}
