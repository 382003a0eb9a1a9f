package pipeline

import "strings"

// Defaults applied when a request omits a parameter.
const (
	DefaultMaxLabels     = 5
	DefaultMinConfidence = 90.0
)

// Accepted parameter ranges. Out-of-range values are clamped, never rejected.
const (
	minLabelsLimit     = 1
	maxLabelsLimit     = 100
	minConfidenceLimit = 0.0
	maxConfidenceLimit = 100.0
)

// StageCallback receives pipeline stage notifications. Stages are reported
// in order as work begins: decode, detect, edit, encode. The edit and encode
// stages are only reported when region removal runs.
type StageCallback func(stage string)

// Stage names passed to StageCallback.
const (
	StageDecode = "decode"
	StageDetect = "detect"
	StageEdit   = "edit"
	StageEncode = "encode"
)

// Options control a single analysis request.
type Options struct {
	MaxLabels     int
	MinConfidence float64
	RemovePeople  bool

	// OnStage, when set, is called as each pipeline stage begins.
	OnStage StageCallback
}

// DefaultOptions returns the request defaults.
func DefaultOptions() Options {
	return Options{
		MaxLabels:     DefaultMaxLabels,
		MinConfidence: DefaultMinConfidence,
	}
}

// Clamped returns a copy of the options with all values forced into their
// accepted ranges.
func (o Options) Clamped() Options {
	if o.MaxLabels < minLabelsLimit {
		o.MaxLabels = minLabelsLimit
	}
	if o.MaxLabels > maxLabelsLimit {
		o.MaxLabels = maxLabelsLimit
	}
	if o.MinConfidence < minConfidenceLimit {
		o.MinConfidence = minConfidenceLimit
	}
	if o.MinConfidence > maxConfidenceLimit {
		o.MinConfidence = maxConfidenceLimit
	}
	return o
}

// ParseBoolParam interprets a request boolean the way the public API always
// has: true, 1, yes, y, and on (case-insensitive, trimmed) are true,
// everything else is false.
func ParseBoolParam(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func (o Options) stage(name string) {
	if o.OnStage != nil {
		o.OnStage(name)
	}
}
