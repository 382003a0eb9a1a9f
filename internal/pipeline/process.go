package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/vanish/internal/common"
	"github.com/MeKo-Tech/vanish/internal/editor"
	"github.com/MeKo-Tech/vanish/internal/utils"
	"github.com/MeKo-Tech/vanish/internal/vision"
)

// LabelSummary is a detected label reduced to the fields the public API
// exposes. The JSON keys match the original response contract.
type LabelSummary struct {
	Name       string  `json:"Label"`
	Confidence float64 `json:"Confidence"`
}

// AnalysisResult is the aggregated outcome of analyzing one image.
type AnalysisResult struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	Labels []LabelSummary `json:"labels"`

	// Person summary. PersonConfidence, PersonCount and PersonBoxes are only
	// meaningful when PersonPresent is true.
	PersonPresent    bool                   `json:"person_present"`
	PersonConfidence float64                `json:"person_confidence"`
	PersonCount      int                    `json:"person_count"`
	PersonBoxes      []vision.NormalizedBox `json:"person_boxes,omitempty"`

	// Removal outcome. PeopleRemoved reports that removal ran at all; Edit
	// carries the per-box outcome counts.
	RemovePeopleRequested bool         `json:"remove_people_requested"`
	PeopleRemoved         bool         `json:"people_removed"`
	Edit                  editor.Stats `json:"edit"`

	// EditedImage and EditedJPEG are nil unless removal ran.
	EditedImage *image.NRGBA `json:"-"`
	EditedJPEG  []byte       `json:"-"`

	Processing struct {
		DetectionNs int64 `json:"detection_ns"`
		EditingNs   int64 `json:"editing_ns"`
		TotalNs     int64 `json:"total_ns"`
	} `json:"processing"`
}

// BoxesApplied returns the number of regions that were actually replaced.
func (r *AnalysisResult) BoxesApplied() int { return r.Edit.Applied }

// Analyze runs detection and optional person removal on encoded image bytes.
func (p *Pipeline) Analyze(imageData []byte, opts Options) (*AnalysisResult, error) {
	return p.AnalyzeContext(context.Background(), imageData, opts)
}

// AnalyzeContext is like Analyze but allows cancellation via context.
func (p *Pipeline) AnalyzeContext(ctx context.Context, imageData []byte, opts Options) (*AnalysisResult, error) {
	if p == nil || p.detector == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if len(imageData) == 0 {
		return nil, errors.New("image data is empty")
	}
	opts = opts.Clamped()

	totalTimer := common.NewTimer()

	flat, jpegData, err := p.decodeAndFlatten(imageData, opts)
	if err != nil {
		return nil, err
	}
	bounds := flat.Bounds()
	slog.Debug("Starting image analysis",
		"width", bounds.Dx(), "height", bounds.Dy(),
		"max_labels", opts.MaxLabels, "min_confidence", opts.MinConfidence,
		"remove_people", opts.RemovePeople)

	// Detection
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts.stage(StageDetect)
	detTimer := common.NewNamedTimer("detect")
	detRes, err := p.detector.DetectLabels(ctx, jpegData, vision.DetectParams{
		MaxLabels:     opts.MaxLabels,
		MinConfidence: opts.MinConfidence,
	})
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	detNs := detTimer.StopNanos()
	slog.Debug("Label detection completed",
		"labels_found", len(detRes.Labels), "duration_ms", detNs/1000000)

	out := &AnalysisResult{
		Width:                 bounds.Dx(),
		Height:                bounds.Dy(),
		RemovePeopleRequested: opts.RemovePeople,
	}
	out.Processing.DetectionNs = detNs
	out.Labels = summarizeLabels(detRes.Labels)

	person := vision.FindLabel(detRes.Labels, p.cfg.Vision.PersonLabel)
	if person != nil {
		out.PersonPresent = true
		out.PersonConfidence = person.Confidence
		out.PersonCount = len(person.Instances)
		for _, inst := range person.Instances {
			out.PersonBoxes = append(out.PersonBoxes, inst.BoundingBox)
		}
	}

	// Removal runs whenever requested and a person label is present, even
	// with zero instances; the caller still receives a regenerated image.
	if opts.RemovePeople && out.PersonPresent {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.editAndEncode(flat, instanceBoxes(person.Instances), opts, out); err != nil {
			return nil, err
		}
		out.PeopleRemoved = true
	}

	out.Processing.TotalNs = totalTimer.StopNanos()
	slog.Debug("Image analysis completed",
		"total_duration_ms", out.Processing.TotalNs/1000000,
		"person_present", out.PersonPresent,
		"person_count", out.PersonCount,
		"boxes_applied", out.Edit.Applied)

	return out, nil
}

// Redact removes the given regions from encoded image bytes without running
// detection. Used when the caller already knows the boxes.
func (p *Pipeline) Redact(imageData []byte, boxes []vision.NormalizedBox, opts Options) (*AnalysisResult, error) {
	return p.RedactContext(context.Background(), imageData, boxes, opts)
}

// RedactContext is like Redact but allows cancellation via context.
func (p *Pipeline) RedactContext(ctx context.Context, imageData []byte,
	boxes []vision.NormalizedBox, opts Options,
) (*AnalysisResult, error) {
	if p == nil {
		return nil, errors.New("pipeline not initialized")
	}
	if len(imageData) == 0 {
		return nil, errors.New("image data is empty")
	}

	totalTimer := common.NewTimer()

	flat, _, err := p.decodeAndFlatten(imageData, opts)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := flat.Bounds()
	out := &AnalysisResult{
		Width:                 bounds.Dx(),
		Height:                bounds.Dy(),
		RemovePeopleRequested: true,
	}
	if err := p.editAndEncode(flat, convertBoxes(boxes), opts, out); err != nil {
		return nil, err
	}
	out.PeopleRemoved = true
	out.Processing.TotalNs = totalTimer.StopNanos()

	slog.Debug("Image redaction completed",
		"boxes_requested", len(boxes),
		"boxes_applied", out.Edit.Applied,
		"total_duration_ms", out.Processing.TotalNs/1000000)

	return out, nil
}

// decodeAndFlatten decodes the image bytes, composites transparency over
// white, and re-encodes the flattened image as JPEG for detection.
func (p *Pipeline) decodeAndFlatten(imageData []byte, opts Options) (*image.NRGBA, []byte, error) {
	opts.stage(StageDecode)
	img, format, err := utils.DecodeImageBytes(imageData)
	if err != nil {
		return nil, nil, fmt.Errorf("decode image: %w", err)
	}
	slog.Debug("Image decoded", "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	flat, err := utils.FlattenToRGB(img)
	if err != nil {
		return nil, nil, fmt.Errorf("flatten image: %w", err)
	}
	jpegData, err := utils.EncodeJPEG(flat, p.cfg.JPEGQuality)
	if err != nil {
		return nil, nil, fmt.Errorf("encode image for detection: %w", err)
	}
	return flat, jpegData, nil
}

// editAndEncode removes the given regions from the flattened image and
// encodes the result, filling the removal fields of out.
func (p *Pipeline) editAndEncode(flat *image.NRGBA, boxes []editor.NormalizedBox,
	opts Options, out *AnalysisResult,
) error {
	opts.stage(StageEdit)
	editTimer := common.NewNamedTimer("edit")
	edited, stats, err := editor.RemoveRegions(flat, boxes)
	if err != nil {
		return fmt.Errorf("region removal failed: %w", err)
	}
	out.Processing.EditingNs = editTimer.StopNanos()
	out.Edit = stats
	out.EditedImage = edited

	opts.stage(StageEncode)
	jpegData, err := utils.EncodeJPEG(edited, p.cfg.JPEGQuality)
	if err != nil {
		return fmt.Errorf("encode edited image: %w", err)
	}
	out.EditedJPEG = jpegData
	return nil
}

// summarizeLabels reduces detected labels to name and confidence.
func summarizeLabels(labels []vision.Label) []LabelSummary {
	out := make([]LabelSummary, len(labels))
	for i, l := range labels {
		out[i] = LabelSummary{Name: l.Name, Confidence: l.Confidence}
	}
	return out
}

// instanceBoxes extracts the bounding boxes of label instances in oracle
// order.
func instanceBoxes(instances []vision.Instance) []editor.NormalizedBox {
	boxes := make([]editor.NormalizedBox, len(instances))
	for i, inst := range instances {
		boxes[i] = editor.NormalizedBox{
			Left:   inst.BoundingBox.Left,
			Top:    inst.BoundingBox.Top,
			Width:  inst.BoundingBox.Width,
			Height: inst.BoundingBox.Height,
		}
	}
	return boxes
}

// convertBoxes maps caller-supplied detection boxes to editor boxes.
func convertBoxes(boxes []vision.NormalizedBox) []editor.NormalizedBox {
	out := make([]editor.NormalizedBox, len(boxes))
	for i, b := range boxes {
		out[i] = editor.NormalizedBox{Left: b.Left, Top: b.Top, Width: b.Width, Height: b.Height}
	}
	return out
}
