package onnx

import (
	"errors"
	"fmt"
	"image"
)

// ImageTensor is a uint8 image tensor prepared for ONNX input. Data layout
// is row-major NHWC, the input format of the SSD detection models.
type ImageTensor struct {
	Data  []uint8
	Shape []int64 // [N, H, W, C]
}

// NewImageTensorNHWC builds a single-image tensor with shape [1, H, W, C].
// data must be length H*W*C in NHWC order.
func NewImageTensorNHWC(data []uint8, h, w, c int) (ImageTensor, error) {
	if data == nil {
		return ImageTensor{}, errors.New("nil data")
	}
	expected := h * w * c
	if len(data) != expected {
		return ImageTensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), expected)
	}
	shape := []int64{1, int64(h), int64(w), int64(c)}
	return ImageTensor{Data: data, Shape: shape}, nil
}

// ImageToNHWC converts an NRGBA image into RGB bytes in NHWC order,
// dropping the alpha channel.
func ImageToNHWC(img *image.NRGBA) []uint8 {
	bounds := img.Bounds()
	data := make([]uint8, bounds.Dy()*bounds.Dx()*3)
	// Length always matches, so the error is unreachable.
	_ = ImageToNHWCInto(img, data)
	return data
}

// ImageToNHWCInto writes RGB bytes in NHWC order into dst, dropping the
// alpha channel. dst must have length height*width*3, which lets callers
// reuse pooled buffers across detection calls.
func ImageToNHWCInto(img *image.NRGBA, dst []uint8) error {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if len(dst) != height*width*3 {
		return fmt.Errorf("unexpected buffer length: got %d, want %d", len(dst), height*width*3)
	}

	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			dst[idx] = c.R
			dst[idx+1] = c.G
			dst[idx+2] = c.B
			idx += 3
		}
	}
	return nil
}

// ValidateNHWC ensures a shape is [N, H, W, C] with positive dimensions.
func ValidateNHWC(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(shape))
	}
	for i, v := range shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}
