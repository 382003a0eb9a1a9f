package utils

import (
	"fmt"
	"image"
	"image/color"
)

// DrawRect draws a rectangle outline with the given thickness, clipped to
// the destination bounds.
func DrawRect(dst *image.NRGBA, rect image.Rectangle, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	// Top and bottom edges
	for t := 0; t < thickness; t++ {
		yTop := rect.Min.Y + t
		yBot := rect.Max.Y - 1 - t
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dst.Set(x, yTop, col)
			dst.Set(x, yBot, col)
		}
	}
	// Left and right edges
	for t := 0; t < thickness; t++ {
		xLeft := rect.Min.X + t
		xRight := rect.Max.X - 1 - t
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			dst.Set(xLeft, y, col)
			dst.Set(xRight, y, col)
		}
	}
}

// RenderBoxOverlay copies the image and draws the rectangles over it.
func RenderBoxOverlay(img image.Image, rects []image.Rectangle, col color.Color, thickness int) *image.NRGBA {
	if img == nil {
		return nil
	}

	flat, err := FlattenToRGB(img)
	if err != nil {
		return nil
	}
	for _, rect := range rects {
		DrawRect(flat, rect, col, thickness)
	}
	return flat
}

// ParseHexColor parses "#rrggbb" (or "rrggbb") into an opaque color. It
// returns nil for anything it cannot parse, letting callers fall back to a
// default.
func ParseHexColor(s string) color.Color {
	if s == "" {
		return nil
	}
	if s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return nil
	}
	var rv, gv, bv int
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &rv, &gv, &bv); err != nil {
		return nil
	}
	//nolint:gosec // G115: Sscanf %02x bounds each value to one byte
	return color.RGBA{uint8(rv), uint8(gv), uint8(bv), 255}
}
