package utils

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/vanish/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSupportedImage(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"photo.jpg", true},
		{"photo.JPEG", true},
		{"scan.png", true},
		{"scan.bmp", true},
		{"scan.tiff", true},
		{"anim.gif", true},
		{"modern.webp", true},
		{"document.pdf", false},
		{"archive.zip", false},
		{"noextension", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSupportedImage(tt.path))
		})
	}
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.png")
	testutil.SaveImage(t, testutil.CreateGradientImage(40, 30), path)

	img, meta, err := LoadImage(path)
	require.NoError(t, err)
	require.NotNil(t, img)

	assert.Equal(t, path, meta.Path)
	assert.Equal(t, "png", meta.Format)
	assert.Equal(t, 40, meta.Width)
	assert.Equal(t, 30, meta.Height)
	assert.InDelta(t, 40.0/30.0, meta.AspectRatio, 1e-9)
	assert.Positive(t, meta.SizeBytes)
}

func TestLoadImage_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"unsupported extension", "notes.txt"},
		{"missing file", filepath.Join(t.TempDir(), "missing.png")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := LoadImage(tt.path)
			require.Error(t, err)

			var procErr *ImageProcessingError
			assert.ErrorAs(t, err, &procErr)
		})
	}
}

func TestDecodeImageBytes(t *testing.T) {
	data := testutil.EncodePNGBytes(t, testutil.CreateGradientImage(16, 16))

	img, format, err := DecodeImageBytes(data)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 16, img.Bounds().Dx())
}

func TestDecodeImageBytes_Errors(t *testing.T) {
	_, _, err := DecodeImageBytes(nil)
	require.Error(t, err)

	_, _, err = DecodeImageBytes([]byte("definitely not an image"))
	require.Error(t, err)
}

func TestSaveImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.png")

	require.NoError(t, SaveImage(testutil.CreateGradientImage(8, 8), path))

	img, meta, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 8, meta.Width)
	assert.NotNil(t, img)
}

func TestSaveImage_NilImage(t *testing.T) {
	require.Error(t, SaveImage(nil, filepath.Join(t.TempDir(), "out.png")))
}

func TestValidateImageConstraints(t *testing.T) {
	constraints := ImageConstraints{MinWidth: 10, MinHeight: 10, MaxWidth: 100, MaxHeight: 100}

	tests := []struct {
		name    string
		img     image.Image
		wantErr bool
	}{
		{"within range", testutil.CreateTestImage(50, 50, color.White), false},
		{"at minimum", testutil.CreateTestImage(10, 10, color.White), false},
		{"at maximum", testutil.CreateTestImage(100, 100, color.White), false},
		{"too small", testutil.CreateTestImage(5, 50, color.White), true},
		{"too wide", testutil.CreateTestImage(150, 50, color.White), true},
		{"too tall", testutil.CreateTestImage(50, 150, color.White), true},
		{"nil image", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImageConstraints(tt.img, constraints)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
