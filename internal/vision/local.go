package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/vanish/internal/mempool"
	"github.com/MeKo-Tech/vanish/internal/models"
	"github.com/MeKo-Tech/vanish/internal/onnx"
	"github.com/disintegration/imaging"
	"github.com/yalue/onnxruntime_go"
)

// Tensor names of the SSD detection model. The model follows the TensorFlow
// object detection export layout: uint8 NHWC input, four float32 outputs.
const (
	ssdInputName     = "input_tensor"
	ssdBoxesOutput   = "detection_boxes"
	ssdScoresOutput  = "detection_scores"
	ssdClassesOutput = "detection_classes"
	ssdCountOutput   = "num_detections"

	// personClassID is the COCO class id for "person".
	personClassID = 1
)

// LocalDetector runs an SSD person detection model with ONNX Runtime. It
// only ever emits a single person label, which is all the removal pipeline
// consumes; a remote backend is needed for general labeling.
type LocalDetector struct {
	session     *onnxruntime_go.DynamicAdvancedSession
	inputSize   int
	personLabel string
	modelPath   string
	mu          sync.RWMutex
}

// NewLocalDetector loads the detection model and creates an inference
// session.
func NewLocalDetector(cfg Config) (*LocalDetector, error) {
	modelPath := cfg.ModelPath
	if modelPath == "" {
		modelPath = models.PersonDetectorPath("")
	}
	if err := models.ValidateModelPath(modelPath); err != nil {
		return nil, err
	}

	inputSize := cfg.InputSize
	if inputSize <= 0 {
		inputSize = DefaultConfig().InputSize
	}

	personLabel := cfg.PersonLabel
	if personLabel == "" {
		personLabel = DefaultPersonLabel
	}

	slog.Debug("initializing local detector",
		"model_path", modelPath,
		"input_size", inputSize,
		"num_threads", cfg.NumThreads)

	if err := onnx.EnsureEnvironment(); err != nil {
		return nil, err
	}

	sessionOptions, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := sessionOptions.Destroy(); err != nil {
			slog.Warn("failed to destroy session options", "error", err)
		}
	}()

	if cfg.NumThreads > 0 {
		if err := sessionOptions.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxruntime_go.NewDynamicAdvancedSession(modelPath,
		[]string{ssdInputName},
		[]string{ssdBoxesOutput, ssdScoresOutput, ssdClassesOutput, ssdCountOutput},
		sessionOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &LocalDetector{
		session:     session,
		inputSize:   inputSize,
		personLabel: personLabel,
		modelPath:   modelPath,
	}, nil
}

// DetectLabels decodes the image, runs the detection model, and converts
// person detections into the shared label shape. Confidences are scaled to
// [0, 100] to match the remote backend.
func (d *LocalDetector) DetectLabels(ctx context.Context, imageData []byte, params DetectParams) (*Result, error) {
	if len(imageData) == 0 {
		return nil, errors.New("empty image data")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()

	img, err := imaging.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image for detection: %w", err)
	}

	// Stretch to the square model input. Boxes come back normalized to the
	// stretched frame, which maps directly onto fractions of the original.
	resized := imaging.Resize(img, d.inputSize, d.inputSize, imaging.Linear)

	data := mempool.GetUint8(d.inputSize * d.inputSize * 3)
	defer mempool.PutUint8(data)
	if err := onnx.ImageToNHWCInto(resized, data); err != nil {
		return nil, fmt.Errorf("failed to build input tensor: %w", err)
	}
	tensor, err := onnx.NewImageTensorNHWC(data, d.inputSize, d.inputSize, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to build input tensor: %w", err)
	}

	boxes, scores, classes, count, err := d.runInference(tensor)
	if err != nil {
		return nil, err
	}

	instances := collectPersonInstances(boxes, scores, classes, count, params.MinConfidence)
	mempool.PutFloat32Multiple([][]float32{boxes, scores, classes})

	var labels []Label
	if len(instances) > 0 && params.MaxLabels != 0 {
		confidence := 0.0
		for _, inst := range instances {
			if inst.Confidence > confidence {
				confidence = inst.Confidence
			}
		}
		labels = append(labels, Label{
			Name:       d.personLabel,
			Confidence: confidence,
			Instances:  instances,
		})
	}

	slog.Debug("local detection complete",
		"detections", len(instances),
		"duration", time.Since(start))

	return &Result{
		Labels:         labels,
		ProcessingTime: time.Since(start).Nanoseconds(),
	}, nil
}

// runInference executes the session and extracts the four output tensors.
func (d *LocalDetector) runInference(tensor onnx.ImageTensor) (boxes, scores, classes []float32, count int, err error) {
	d.mu.RLock()
	session := d.session
	d.mu.RUnlock()

	if session == nil {
		return nil, nil, nil, 0, errors.New("detector session is closed")
	}

	input, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(tensor.Shape...), tensor.Data)
	if err != nil {
		return nil, nil, nil, 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := input.Destroy(); err != nil {
			slog.Warn("failed to destroy input tensor", "error", err)
		}
	}()

	outputs := []onnxruntime_go.Value{nil, nil, nil, nil}
	if err := session.Run([]onnxruntime_go.Value{input}, outputs); err != nil {
		return nil, nil, nil, 0, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out == nil {
				continue
			}
			if err := out.Destroy(); err != nil {
				slog.Warn("failed to destroy output tensor", "error", err)
			}
		}
	}()

	rawBoxes, err := floatData(outputs[0], ssdBoxesOutput)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	rawScores, err := floatData(outputs[1], ssdScoresOutput)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	rawClasses, err := floatData(outputs[2], ssdClassesOutput)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	counts, err := floatData(outputs[3], ssdCountOutput)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	if len(counts) == 0 {
		return nil, nil, nil, 0, fmt.Errorf("output %s is empty", ssdCountOutput)
	}

	// Pooled copies outlive the destroyed output tensors. The caller hands
	// them back via mempool.PutFloat32Multiple once decoded.
	pooled := mempool.GetFloat32Multiple([]int{len(rawBoxes), len(rawScores), len(rawClasses)})
	copy(pooled[0], rawBoxes)
	copy(pooled[1], rawScores)
	copy(pooled[2], rawClasses)
	return pooled[0], pooled[1], pooled[2], int(counts[0]), nil
}

// floatData type-asserts an output value into its float32 backing slice.
func floatData(value onnxruntime_go.Value, name string) ([]float32, error) {
	tensor, ok := value.(*onnxruntime_go.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("output %s: expected float32 tensor, got %T", name, value)
	}
	return tensor.GetData(), nil
}

// collectPersonInstances filters raw detections down to person instances at
// or above the confidence threshold. Box layout is [ymin, xmin, ymax, xmax]
// normalized to [0, 1].
func collectPersonInstances(boxes, scores, classes []float32, count int, minConfidence float64) []Instance {
	if count > len(scores) {
		count = len(scores)
	}
	if count*4 > len(boxes) {
		count = len(boxes) / 4
	}

	var instances []Instance
	for i := 0; i < count; i++ {
		if i < len(classes) && int(classes[i]) != personClassID {
			continue
		}
		confidence := float64(scores[i]) * 100
		if confidence < minConfidence {
			continue
		}

		ymin := float64(boxes[i*4])
		xmin := float64(boxes[i*4+1])
		ymax := float64(boxes[i*4+2])
		xmax := float64(boxes[i*4+3])

		instances = append(instances, Instance{
			BoundingBox: NormalizedBox{
				Left:   xmin,
				Top:    ymin,
				Width:  xmax - xmin,
				Height: ymax - ymin,
			},
			Confidence: confidence,
		})
	}
	return instances
}

// Close destroys the inference session.
func (d *LocalDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil
	}
	err := d.session.Destroy()
	d.session = nil
	if err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}
