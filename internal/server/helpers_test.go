package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/vanish/internal/editor"
	"github.com/MeKo-Tech/vanish/internal/pipeline"
	"github.com/MeKo-Tech/vanish/internal/vision"
)

// mockPipeline is a mock implementation of pipelineInterface recording the
// arguments it was called with.
type mockPipeline struct {
	analyzeResult *pipeline.AnalysisResult
	analyzeError  error
	redactResult  *pipeline.AnalysisResult
	redactError   error
	healthError   error

	lastData  []byte
	lastOpts  pipeline.Options
	lastBoxes []vision.NormalizedBox
	calls     int
}

func (m *mockPipeline) AnalyzeContext(_ context.Context, imageData []byte,
	opts pipeline.Options,
) (*pipeline.AnalysisResult, error) {
	m.calls++
	m.lastData = imageData
	m.lastOpts = opts
	return m.analyzeResult, m.analyzeError
}

func (m *mockPipeline) RedactContext(_ context.Context, imageData []byte,
	boxes []vision.NormalizedBox, opts pipeline.Options,
) (*pipeline.AnalysisResult, error) {
	m.calls++
	m.lastData = imageData
	m.lastBoxes = boxes
	m.lastOpts = opts
	return m.redactResult, m.redactError
}

func (m *mockPipeline) CheckHealth(_ context.Context) error { return m.healthError }

func (m *mockPipeline) Close() error { return nil }

// fakeDetector returns canned labels without any backend.
type fakeDetector struct {
	labels []vision.Label
	err    error

	params vision.DetectParams
	calls  int
}

func (d *fakeDetector) DetectLabels(_ context.Context, _ []byte,
	params vision.DetectParams,
) (*vision.Result, error) {
	d.calls++
	d.params = params
	if d.err != nil {
		return nil, d.err
	}
	return &vision.Result{Labels: d.labels, ProcessingTime: 1_000_000}, nil
}

func (d *fakeDetector) Close() error { return nil }

// personLabels is a canned detection result with one person instance in the
// upper half of the image plus an abstract scene label.
func personLabels() []vision.Label {
	return []vision.Label{
		{
			Name:       "Person",
			Confidence: 98.5,
			Instances: []vision.Instance{
				{
					BoundingBox: vision.NormalizedBox{Left: 0.25, Top: 0.25, Width: 0.5, Height: 0.25},
					Confidence:  97.2,
				},
			},
		},
		{Name: "Outdoors", Confidence: 91.3},
	}
}

// newTestServer builds a server around a fake detection backend, running
// the real pipeline end to end.
func newTestServer(t *testing.T, det vision.Detector) *Server {
	t.Helper()

	srv, err := NewServer(Config{
		CORSOrigin:     "*",
		MaxUploadMB:    10,
		TimeoutSec:     30,
		OverlayEnabled: true,
		PipelineConfig: pipeline.DefaultConfig(),
		Detector:       det,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

// newMockServer builds a server directly around a mock pipeline.
func newMockServer(mock pipelineInterface) *Server {
	return &Server{
		pipeline:       mock,
		corsOrigin:     "*",
		maxUploadMB:    10,
		overlayEnabled: true,
		defaultOpts:    pipeline.DefaultOptions(),
	}
}

// createTestImage creates a simple gradient test image.
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := byte(x % 256)
			g := byte(y % 256)
			img.Set(x, y, color.RGBA{r, g, 0, 255})
		}
	}
	return img
}

// encodeImageToJPEG encodes an image to JPEG bytes.
func encodeImageToJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// testJPEG returns encoded bytes of a small gradient test image.
func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	return encodeImageToJPEG(t, createTestImage(width, height))
}

// createMultipartFormRequest creates a multipart form request with an image
// file part and extra form fields.
func createMultipartFormRequest(t *testing.T, target string, imageData []byte,
	extraFields map[string]string,
) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("image", "test.jpg")
	require.NoError(t, err)
	_, err = part.Write(imageData)
	require.NoError(t, err)

	for key, value := range extraFields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// analysisResultFixture builds a pipeline result like one produced for an
// image with a single detected person.
func analysisResultFixture(removed bool) *pipeline.AnalysisResult {
	res := &pipeline.AnalysisResult{
		Width:  120,
		Height: 80,
		Labels: []pipeline.LabelSummary{
			{Name: "Person", Confidence: 98.5},
			{Name: "Outdoors", Confidence: 91.3},
		},
		PersonPresent:    true,
		PersonConfidence: 98.5,
		PersonCount:      1,
		PersonBoxes: []vision.NormalizedBox{
			{Left: 0.25, Top: 0.25, Width: 0.5, Height: 0.25},
		},
	}
	res.Processing.DetectionNs = 1_000_000
	res.Processing.TotalNs = 2_500_000

	if removed {
		res.RemovePeopleRequested = true
		res.PeopleRemoved = true
		res.Edit = editor.Stats{Applied: 1}
		res.EditedImage = image.NewNRGBA(image.Rect(0, 0, 120, 80))
		res.EditedJPEG = []byte("jpeg-bytes")
		res.Processing.EditingNs = 400_000
	}
	return res
}

// assertErrorResponse checks the JSON error envelope.
func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, message string) {
	t.Helper()

	var response AnalyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.False(t, response.Success)
	assert.Contains(t, response.Error, message)
}
