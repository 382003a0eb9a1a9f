// Package vision provides label detection backends. The service treats
// detection as an oracle: backends return labels with confidences and, for
// labels that describe countable objects, per-instance bounding boxes in
// normalized image coordinates. Both the remote HTTP backend and the local
// ONNX backend produce the same result shape.
package vision

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultPersonLabel is the label name backends use for detected people.
const DefaultPersonLabel = "Person"

// NormalizedBox is an axis-aligned bounding box in fractional image
// coordinates, each field in [0, 1]. Field names match the wire format of
// the remote detection API.
type NormalizedBox struct {
	Left   float64 `json:"Left"`
	Top    float64 `json:"Top"`
	Width  float64 `json:"Width"`
	Height float64 `json:"Height"`
}

// Instance is one detected occurrence of a label.
type Instance struct {
	BoundingBox NormalizedBox `json:"BoundingBox"`
	Confidence  float64       `json:"Confidence"`
}

// Label is a detected label with its instances (may be empty for abstract
// labels such as scene descriptions).
type Label struct {
	Name       string     `json:"Name"`
	Confidence float64    `json:"Confidence"`
	Instances  []Instance `json:"Instances,omitempty"`
}

// DetectParams bound a single detection call. Values are expected to be
// validated and clamped by the caller.
type DetectParams struct {
	MaxLabels     int
	MinConfidence float64
}

// Result holds the outcome of one detection call.
type Result struct {
	Labels         []Label
	ProcessingTime int64 // nanoseconds
}

// Detector is the oracle interface shared by all backends.
type Detector interface {
	DetectLabels(ctx context.Context, imageData []byte, params DetectParams) (*Result, error)
	Close() error
}

// normalizeLabelName canonicalizes a label name for comparison. Remote
// backends may return localized names in decomposed Unicode form.
func normalizeLabelName(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}

// MatchesLabel reports whether a detected label name means the same thing
// as the wanted name, ignoring case, surrounding space, and Unicode
// normalization form.
func MatchesLabel(name, want string) bool {
	return normalizeLabelName(name) == normalizeLabelName(want)
}

// FindLabel returns the first label matching the wanted name, or nil.
func FindLabel(labels []Label, want string) *Label {
	for i := range labels {
		if MatchesLabel(labels[i].Name, want) {
			return &labels[i]
		}
	}
	return nil
}
