package utils

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/vanish/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenToRGB_OpaqueImageUnchanged(t *testing.T) {
	src := testutil.CreateGradientImage(20, 20)

	flat, err := FlattenToRGB(src)
	require.NoError(t, err)

	assert.Equal(t, src.Bounds(), flat.Bounds())
	assert.True(t, testutil.EqualImages(src, flat))
}

func TestFlattenToRGB_TransparentPixelsTurnWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	// Leave everything fully transparent.

	flat, err := FlattenToRGB(src)
	require.NoError(t, err)

	white := color.NRGBA{255, 255, 255, 255}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, white, flat.NRGBAAt(x, y))
		}
	}
}

func TestFlattenToRGB_SemiTransparentBlendsWithWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 128})

	flat, err := FlattenToRGB(src)
	require.NoError(t, err)

	got := flat.NRGBAAt(0, 0)
	assert.Equal(t, uint8(255), got.A, "output must be opaque")
	assert.Equal(t, uint8(255), got.R)
	assert.Greater(t, got.G, uint8(0), "green channel should pick up white background")
	assert.Less(t, got.G, uint8(255), "green channel should not be fully white")
}

func TestFlattenToRGB_NilImage(t *testing.T) {
	_, err := FlattenToRGB(nil)
	require.Error(t, err)
}

func TestEncodeJPEG(t *testing.T) {
	img := testutil.CreateGradientImage(32, 32)

	data, err := EncodeJPEG(img, 85)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	// JPEG SOI marker.
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])

	decoded, format, err := DecodeImageBytes(data)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 32, decoded.Bounds().Dx())
}

func TestEncodeJPEG_QualityFallback(t *testing.T) {
	img := testutil.CreateGradientImage(8, 8)

	for _, quality := range []int{-1, 0, 101} {
		data, err := EncodeJPEG(img, quality)
		require.NoError(t, err, "quality %d", quality)
		assert.NotEmpty(t, data)
	}
}

func TestEncodePNG(t *testing.T) {
	img := testutil.CreateGradientImage(16, 16)

	data, err := EncodePNG(img)
	require.NoError(t, err)

	decoded, format, err := DecodeImageBytes(data)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.True(t, testutil.EqualImages(img, decoded))
}

func TestEncodeJPEGBase64(t *testing.T) {
	img := testutil.CreateGradientImage(16, 16)

	encoded, err := EncodeJPEGBase64(img, 90)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte{0xFF, 0xD8}), "decoded payload should be a JPEG")
}

func TestEncode_NilImage(t *testing.T) {
	_, err := EncodeJPEG(nil, 90)
	assert.Error(t, err)

	_, err = EncodePNG(nil)
	assert.Error(t, err)

	_, err = EncodeJPEGBase64(nil, 90)
	assert.Error(t, err)
}
