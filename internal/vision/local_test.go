package vision

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocalDetector_MissingModel(t *testing.T) {
	_, err := NewLocalDetector(Config{
		Backend:   BackendLocal,
		ModelPath: filepath.Join(t.TempDir(), "missing.onnx"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file not found")
}

func TestCollectPersonInstances(t *testing.T) {
	// Two persons and one car; boxes are [ymin, xmin, ymax, xmax].
	boxes := []float32{
		0.1, 0.2, 0.5, 0.4, // person, high confidence
		0.0, 0.0, 0.3, 0.3, // car
		0.6, 0.1, 0.9, 0.3, // person, low confidence
	}
	scores := []float32{0.95, 0.90, 0.40}
	classes := []float32{1, 3, 1}

	tests := []struct {
		name          string
		minConfidence float64
		wantCount     int
	}{
		{"no threshold keeps all persons", 0, 2},
		{"threshold drops low confidence", 50, 1},
		{"threshold drops everything", 99, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instances := collectPersonInstances(boxes, scores, classes, 3, tt.minConfidence)
			assert.Len(t, instances, tt.wantCount)
		})
	}
}

func TestCollectPersonInstances_BoxConversion(t *testing.T) {
	boxes := []float32{0.1, 0.2, 0.5, 0.4}
	scores := []float32{0.8}
	classes := []float32{1}

	instances := collectPersonInstances(boxes, scores, classes, 1, 0)
	require.Len(t, instances, 1)

	box := instances[0].BoundingBox
	assert.InDelta(t, 0.2, box.Left, 1e-6)
	assert.InDelta(t, 0.1, box.Top, 1e-6)
	assert.InDelta(t, 0.2, box.Width, 1e-6)  // xmax - xmin
	assert.InDelta(t, 0.4, box.Height, 1e-6) // ymax - ymin
	assert.InDelta(t, 80.0, instances[0].Confidence, 1e-6)
}

func TestCollectPersonInstances_CountClamping(t *testing.T) {
	boxes := []float32{0.1, 0.2, 0.5, 0.4}
	scores := []float32{0.8}
	classes := []float32{1}

	// Model claims more detections than the tensors hold.
	instances := collectPersonInstances(boxes, scores, classes, 100, 0)
	assert.Len(t, instances, 1)
}

func TestNewDetector_UnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "gpu-cluster"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown detection backend")
}

func TestNewDetector_DefaultsToRemote(t *testing.T) {
	d, err := New(Config{Endpoint: "http://localhost:9000"})
	require.NoError(t, err)
	_, ok := d.(*RemoteDetector)
	assert.True(t, ok)
	assert.NoError(t, d.Close())
}
