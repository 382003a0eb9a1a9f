// Package editor removes rectangular regions from images by patching them
// with nearby background texture. It performs no content-aware inpainting:
// each region is overwritten with a stretched strip of pixels sampled from
// the closest available side of the region.
package editor

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
)

// NormalizedBox describes a detected region in fractional image coordinates.
// All fields are fractions of the image dimensions in [0, 1]; absent fields
// are zero.
type NormalizedBox struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// BoxOutcome reports what happened to a single box during removal.
type BoxOutcome int

const (
	// BoxApplied means the region was overwritten with a background patch.
	BoxApplied BoxOutcome = iota
	// BoxSkippedDegenerate means the box collapsed to an empty rectangle.
	BoxSkippedDegenerate
	// BoxSkippedNoDonor means no donor strip fit around the rectangle.
	BoxSkippedNoDonor
)

// String returns a human-readable outcome name.
func (o BoxOutcome) String() string {
	switch o {
	case BoxApplied:
		return "applied"
	case BoxSkippedDegenerate:
		return "skipped_degenerate"
	case BoxSkippedNoDonor:
		return "skipped_no_donor"
	default:
		return "unknown"
	}
}

// Stats aggregates per-box outcomes for one RemoveRegions call.
type Stats struct {
	Applied           int
	SkippedDegenerate int
	SkippedNoDonor    int
}

func (s *Stats) record(o BoxOutcome) {
	switch o {
	case BoxApplied:
		s.Applied++
	case BoxSkippedDegenerate:
		s.SkippedDegenerate++
	case BoxSkippedNoDonor:
		s.SkippedNoDonor++
	}
}

// Total returns the number of boxes processed.
func (s Stats) Total() int {
	return s.Applied + s.SkippedDegenerate + s.SkippedNoDonor
}

// ErrInvalidDimensions indicates a source image with non-positive width or
// height. It is the only failure mode of RemoveRegions.
var ErrInvalidDimensions = errors.New("invalid image dimensions")

// RemoveRegions returns a copy of src with every resolvable box overwritten
// by a background patch. The source image is never mutated. Boxes are
// processed strictly in input order, so a later box may sample pixels
// already rewritten by an earlier one. Degenerate boxes and boxes with no
// usable donor strip are skipped silently.
func RemoveRegions(src image.Image, boxes []NormalizedBox) (*image.NRGBA, Stats, error) {
	if src == nil {
		return nil, Stats{}, errors.New("input image is nil")
	}
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, Stats{}, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}

	working := imaging.Clone(src)
	var stats Stats
	for _, box := range boxes {
		stats.record(removeBox(working, box))
	}
	return working, stats, nil
}

// removeBox patches a single box into the working image and reports the
// outcome. The working image uses zero-origin bounds (imaging.Clone output).
func removeBox(working *image.NRGBA, box NormalizedBox) BoxOutcome {
	bounds := working.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	target, ok := normalizeBox(box, width, height)
	if !ok {
		return BoxSkippedDegenerate
	}

	donor, ok := donorRect(target, width, height)
	if !ok {
		return BoxSkippedNoDonor
	}

	compositePatch(working, donor, target)
	return BoxApplied
}

// compositePatch stretches the donor strip to the exact target size with
// bilinear resampling and overwrites the target rectangle in place. The
// seam is left hard: no blending or feathering.
func compositePatch(working *image.NRGBA, donor, target image.Rectangle) {
	strip := imaging.Crop(working, donor)
	patch := imaging.Resize(strip, target.Dx(), target.Dy(), imaging.Linear)
	draw.Draw(working, target, patch, image.Point{}, draw.Src)
}
