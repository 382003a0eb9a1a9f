package editor

import (
	"image"
	"testing"

	"github.com/MeKo-Tech/vanish/internal/testutil"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNormalizeBox_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("accepted rectangles lie inside the image", prop.ForAll(
		func(left, top, width, height float64, imgW, imgH int) bool {
			box := NormalizedBox{Left: left, Top: top, Width: width, Height: height}
			rect, ok := normalizeBox(box, imgW, imgH)
			if !ok {
				return true
			}
			return rect.Min.X >= 0 && rect.Min.Y >= 0 &&
				rect.Max.X <= imgW && rect.Max.Y <= imgH &&
				rect.Dx() > 0 && rect.Dy() > 0
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.IntRange(1, 512),
		gen.IntRange(1, 512),
	))

	properties.Property("normalization is deterministic", prop.ForAll(
		func(left, top, width, height float64, imgW, imgH int) bool {
			box := NormalizedBox{Left: left, Top: top, Width: width, Height: height}
			rect1, ok1 := normalizeBox(box, imgW, imgH)
			rect2, ok2 := normalizeBox(box, imgW, imgH)
			return ok1 == ok2 && rect1 == rect2
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.IntRange(1, 512),
		gen.IntRange(1, 512),
	))

	properties.TestingRun(t)
}

func TestDonorRect_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("donor strip never overlaps the target", prop.ForAll(
		func(left, top, width, height float64, imgW, imgH int) bool {
			box := NormalizedBox{Left: left, Top: top, Width: width, Height: height}
			target, ok := normalizeBox(box, imgW, imgH)
			if !ok {
				return true
			}
			donor, ok := donorRect(target, imgW, imgH)
			if !ok {
				return true
			}
			inBounds := donor.Min.X >= 0 && donor.Min.Y >= 0 &&
				donor.Max.X <= imgW && donor.Max.Y <= imgH
			return inBounds && donor.Intersect(target).Empty()
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.IntRange(1, 512),
		gen.IntRange(1, 512),
	))

	properties.Property("strip thickness stays within policy bounds", prop.ForAll(
		func(extent int) bool {
			got := stripThickness(extent)
			return got >= minStripPx && got <= maxStripPx
		},
		gen.IntRange(1, 10000),
	))

	properties.TestingRun(t)
}

func TestRemoveRegions_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("output dimensions always match input", prop.ForAll(
		func(imgW, imgH int, left, top, width, height float64) bool {
			src := testutil.CreateGradientImage(imgW, imgH)
			edited, _, err := RemoveRegions(src, []NormalizedBox{
				{Left: left, Top: top, Width: width, Height: height},
			})
			if err != nil {
				return false
			}
			return edited.Bounds().Dx() == imgW && edited.Bounds().Dy() == imgH
		},
		gen.IntRange(1, 128),
		gen.IntRange(1, 128),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.Property("pixels outside the target are untouched", prop.ForAll(
		func(imgW, imgH int, left, top, width, height float64) bool {
			src := testutil.CreateGradientImage(imgW, imgH)
			box := NormalizedBox{Left: left, Top: top, Width: width, Height: height}
			edited, _, err := RemoveRegions(src, []NormalizedBox{box})
			if err != nil {
				return false
			}

			target, ok := normalizeBox(box, imgW, imgH)
			if !ok {
				return testutil.EqualImages(src, edited)
			}
			for y := 0; y < imgH; y++ {
				for x := 0; x < imgW; x++ {
					if image.Pt(x, y).In(target) {
						continue
					}
					if src.NRGBAAt(x, y) != edited.NRGBAAt(x, y) {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 128),
		gen.IntRange(1, 128),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
