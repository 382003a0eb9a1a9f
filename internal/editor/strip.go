package editor

import "image"

// Strip thickness policy. A donor strip is a quarter of the target extent,
// clamped to [minStripPx, maxStripPx]. Fixed policy constants, not
// configuration.
const (
	minStripPx   = 2
	maxStripPx   = 24
	stripDivisor = 4
)

// stripThickness returns the donor strip thickness for a target extent.
func stripThickness(extent int) int {
	t := extent / stripDivisor
	if t < minStripPx {
		return minStripPx
	}
	if t > maxStripPx {
		return maxStripPx
	}
	return t
}

// donorRect selects the donor strip for a target rectangle. Candidate sides
// are tried in fixed priority order: above, below, left, right. The first
// side with room for a full-thickness strip inside the image wins; if the
// rectangle crowds all four edges, no donor is available and it reports
// false.
func donorRect(target image.Rectangle, width, height int) (image.Rectangle, bool) {
	stripH := stripThickness(target.Dy())
	stripW := stripThickness(target.Dx())

	switch {
	case target.Min.Y-stripH >= 0:
		return image.Rect(target.Min.X, target.Min.Y-stripH, target.Max.X, target.Min.Y), true
	case target.Max.Y+stripH <= height:
		return image.Rect(target.Min.X, target.Max.Y, target.Max.X, target.Max.Y+stripH), true
	case target.Min.X-stripW >= 0:
		return image.Rect(target.Min.X-stripW, target.Min.Y, target.Min.X, target.Max.Y), true
	case target.Max.X+stripW <= width:
		return image.Rect(target.Max.X, target.Min.Y, target.Max.X+stripW, target.Max.Y), true
	default:
		return image.Rectangle{}, false
	}
}
