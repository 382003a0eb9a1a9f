package testutil

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

// Figure places a person-like shape on a synthetic scene. Coordinates are
// fractions of the image dimensions, matching the normalized boxes that
// detection backends return.
type Figure struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// clothingPalette cycles through torso colors so adjacent figures stay
// distinguishable.
var clothingPalette = []color.NRGBA{
	{R: 178, G: 44, B: 44, A: 255},
	{R: 44, G: 62, B: 160, A: 255},
	{R: 44, G: 120, B: 62, A: 255},
	{R: 124, G: 82, B: 42, A: 255},
}

// GeneratePersonScene renders a photo-like synthetic scene: a sky-to-ground
// gradient with one person-like figure (head plus torso) per entry. The
// shapes stand in for real photos in fixtures and benchmarks; they are not
// expected to trigger a real detection model.
func GeneratePersonScene(width, height int, figures []Figure) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	horizon := height * 3 / 5
	for y := 0; y < height; y++ {
		var c color.NRGBA
		if y < horizon {
			f := float64(y) / float64(max(horizon, 1))
			c = color.NRGBA{
				R: uint8(110 + 40*f),
				G: uint8(160 + 30*f),
				B: uint8(215 + 25*f),
				A: 255,
			}
		} else {
			f := float64(y-horizon) / float64(max(height-horizon, 1))
			c = color.NRGBA{
				R: uint8(90 + 30*f),
				G: uint8(130 - 40*f),
				B: uint8(70 - 20*f),
				A: 255,
			}
		}
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}

	for i, fig := range figures {
		drawFigure(img, fig, clothingPalette[i%len(clothingPalette)])
	}
	return img
}

// drawFigure paints a head circle over a torso rectangle inside the figure's
// normalized box. Degenerate boxes are skipped.
func drawFigure(img *image.NRGBA, fig Figure, clothing color.NRGBA) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	left := int(fig.Left * float64(w))
	top := int(fig.Top * float64(h))
	fw := int(fig.Width * float64(w))
	fh := int(fig.Height * float64(h))
	if fw < 2 || fh < 4 {
		return
	}

	// Head takes the top quarter of the box, torso the rest.
	headHeight := fh / 4
	skin := color.NRGBA{R: 224, G: 172, B: 105, A: 255}
	fillCircle(img, left+fw/2, top+headHeight/2, min(fw/3, headHeight/2), skin)

	torso := image.Rect(left+fw/6, top+headHeight, left+fw-fw/6, top+fh).Intersect(bounds)
	FillRegion(img, torso, clothing)
}

func fillCircle(img *image.NRGBA, cx, cy, r int, c color.NRGBA) {
	bounds := img.Bounds()
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if !(image.Point{X: x, Y: y}).In(bounds) {
				continue
			}
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.SetNRGBA(x, y, c)
			}
		}
	}
}

// WriteSceneFile encodes an image to path, creating parent directories. The
// extension selects the format: .jpg/.jpeg for JPEG, anything else PNG.
// Unlike SaveImage it needs no testing.T, so tools can use it too.
func WriteSceneFile(path string, img image.Image) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	file, err := os.Create(path) //nolint:gosec // G304: fixture paths are controlled by callers
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	default:
		err = png.Encode(file, img)
	}

	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	return err
}
