// Package vision handles image decoding and the preprocessing steps shared
// by every classifier: RGB conversion, resizing and per-channel
// normalization into a CHW float32 tensor.
package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/nfnt/resize"
)

// ErrInputImage marks a missing, unreadable or corrupt input image.
// Callers can distinguish it from inference failures via errors.Is.
var ErrInputImage = errors.New("unreadable input image")

// Decode reads a JPEG or PNG image from r.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputImage, err)
	}
	return img, nil
}

// DecodeBytes decodes an in-memory JPEG or PNG image.
func DecodeBytes(data []byte) (image.Image, error) {
	return Decode(bytes.NewReader(data))
}

// DecodeFile decodes an image from disk.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputImage, err)
	}
	defer f.Close()
	return Decode(f)
}

// FitWithin downsizes img so its longer dimension does not exceed max,
// preserving aspect ratio. Images already within bounds are returned as is.
func FitWithin(img image.Image, max int) image.Image {
	b := img.Bounds()
	if max <= 0 || (b.Dx() <= max && b.Dy() <= max) {
		return img
	}
	return resize.Thumbnail(uint(max), uint(max), img, resize.Lanczos3)
}

// ToTensor resizes img to a size×size square and lays it out as a CHW
// float32 tensor, normalizing each channel with (v-mean)/std over v in
// [0,1]. The square resize intentionally ignores aspect ratio to match the
// transform the models were trained with.
func ToTensor(img image.Image, size int, mean, std [3]float32) []float32 {
	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)

	plane := size * size
	data := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			i := y*size + x
			data[i] = (float32(r)/65535.0 - mean[0]) / std[0]
			data[plane+i] = (float32(g)/65535.0 - mean[1]) / std[1]
			data[2*plane+i] = (float32(b)/65535.0 - mean[2]) / std[2]
		}
	}
	return data
}

// ToRGBA converts any image to RGBA, dropping alpha-premultiplication
// surprises before pixel arithmetic.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

// Clamp8 clips v into the valid 8-bit pixel range.
func Clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
