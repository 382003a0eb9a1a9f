package editor

import (
	"image"
	"math"
)

// normalizeBox converts a fractional box into a clamped pixel rectangle.
// It reports false for degenerate boxes: non-positive scaled extents, or
// rectangles that collapse after clamping to the image bounds. The right
// and bottom edges are clamped against the unclamped left/top so that a
// box hanging off the top-left corner collapses instead of sliding inward.
func normalizeBox(box NormalizedBox, width, height int) (image.Rectangle, bool) {
	left := int(math.Floor(box.Left * float64(width)))
	top := int(math.Floor(box.Top * float64(height)))
	boxWidth := int(math.Floor(box.Width * float64(width)))
	boxHeight := int(math.Floor(box.Height * float64(height)))

	if boxWidth <= 0 || boxHeight <= 0 {
		return image.Rectangle{}, false
	}

	right := left + boxWidth
	bottom := top + boxHeight
	if right > width {
		right = width
	}
	if bottom > height {
		bottom = height
	}
	if left < 0 {
		left = 0
	}
	if top < 0 {
		top = 0
	}

	if right <= left || bottom <= top {
		return image.Rectangle{}, false
	}
	return image.Rect(left, top, right, bottom), true
}

// BoxRect converts a fractional box to the pixel rectangle it covers in an
// image of the given dimensions, using the same rounding and clamping as
// region removal. It reports false for boxes that collapse to nothing.
func BoxRect(box NormalizedBox, width, height int) (image.Rectangle, bool) {
	return normalizeBox(box, width, height)
}
