// Package explain builds class activation overlays: which regions of the
// artwork pushed a classifier towards its predicted class.
package explain

import (
	"errors"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/DavidIKB13/LicentaArtAdvisor/internal/classify"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/vision"
)

const normalizeEpsilon = 1e-8

// FloatMap is a single-channel activation map.
type FloatMap struct {
	W, H int
	Data []float64
}

// At returns the value at (x, y).
func (m *FloatMap) At(x, y int) float64 { return m.Data[y*m.W+x] }

// Overlay is the full explanation artifact: the raw map from the model,
// the normalized map resized to the artwork resolution, the colorized heat
// image and the final blend. Blended always has the base image dimensions.
type Overlay struct {
	Raw        *FloatMap
	Normalized *FloatMap
	Heat       *image.RGBA
	Blended    *image.RGBA
}

// Build combines the feature-map channels with the predicted class's
// channel weights, normalizes the result to [0,1], resizes it to the base
// image resolution with cubic interpolation, colorizes it and blends it
// 0.4/0.6 onto the original.
func Build(base image.Image, fm *classify.FeatureMap, weights []float32) (*Overlay, error) {
	if fm == nil || len(weights) != fm.Channels {
		return nil, errors.New("feature map and class weights disagree")
	}

	raw := combineChannels(fm, weights)
	normalized := normalize(raw)

	b := base.Bounds()
	resized := resizeCubic(normalized, b.Dx(), b.Dy())
	heat := colorizeJet(resized)
	blended := blend(heat, vision.ToRGBA(base))

	return &Overlay{
		Raw:        raw,
		Normalized: resized,
		Heat:       heat,
		Blended:    blended,
	}, nil
}

// combineChannels produces the weighted channel sum with negative
// contributions clipped, matching the usual class-activation formulation.
func combineChannels(fm *classify.FeatureMap, weights []float32) *FloatMap {
	out := &FloatMap{W: fm.Width, H: fm.Height, Data: make([]float64, fm.Width*fm.Height)}
	for y := 0; y < fm.Height; y++ {
		for x := 0; x < fm.Width; x++ {
			var sum float64
			for c := 0; c < fm.Channels; c++ {
				sum += float64(weights[c]) * float64(fm.At(c, x, y))
			}
			if sum < 0 {
				sum = 0
			}
			out.Data[y*fm.Width+x] = sum
		}
	}
	return out
}

// normalize rescales the map to [0,1]. The epsilon keeps uniform maps at
// zero instead of dividing by zero.
func normalize(m *FloatMap) *FloatMap {
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range m.Data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	out := &FloatMap{W: m.W, H: m.H, Data: make([]float64, len(m.Data))}
	denom := max - min + normalizeEpsilon
	for i, v := range m.Data {
		out.Data[i] = (v - min) / denom
	}
	return out
}

// resizeCubic scales the numeric map itself, before any colorization, so
// the interpolation never happens in color space. The map rides in a
// Gray16 carrier through the Catmull-Rom scaler; quantization error is at
// most 1/65535.
func resizeCubic(m *FloatMap, w, h int) *FloatMap {
	if m.W == w && m.H == h {
		return m
	}
	src := image.NewGray16(image.Rect(0, 0, m.W, m.H))
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			v := m.At(x, y)
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			g := uint16(math.Round(v * 65535))
			i := y*src.Stride + x*2
			src.Pix[i] = uint8(g >> 8)
			src.Pix[i+1] = uint8(g)
		}
	}
	dst := image.NewGray16(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	out := &FloatMap{W: w, H: h, Data: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*dst.Stride + x*2
			g := uint16(dst.Pix[i])<<8 | uint16(dst.Pix[i+1])
			out.Data[y*w+x] = float64(g) / 65535
		}
	}
	return out
}

// colorizeJet maps relevance to the classic cool-to-warm jet ramp.
func colorizeJet(m *FloatMap) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, m.W, m.H))
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			r, g, b := jetColor(m.At(x, y))
			i := out.PixOffset(x, y)
			out.Pix[i] = r
			out.Pix[i+1] = g
			out.Pix[i+2] = b
			out.Pix[i+3] = 255
		}
	}
	return out
}

func jetColor(v float64) (uint8, uint8, uint8) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	r := clamp01(math.Min(4*v-1.5, -4*v+4.5))
	g := clamp01(math.Min(4*v-0.5, -4*v+3.5))
	b := clamp01(math.Min(4*v+0.5, -4*v+2.5))
	return uint8(r * 255), uint8(g * 255), uint8(b * 255)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// blend mixes 0.4 of the heat image with 0.6 of the original, clipped to
// the valid pixel range.
func blend(heat, orig *image.RGBA) *image.RGBA {
	b := orig.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hi := heat.PixOffset(x-b.Min.X, y-b.Min.Y)
			oi := orig.PixOffset(x, y)
			di := out.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := 0.4*float64(heat.Pix[hi+c]) + 0.6*float64(orig.Pix[oi+c])
				out.Pix[di+c] = vision.Clamp8(v)
			}
			out.Pix[di+3] = 255
		}
	}
	return out
}
