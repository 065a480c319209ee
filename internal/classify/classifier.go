// Package classify defines the classifier abstraction shared by the three
// artwork models and the registry that owns their process-wide instances.
package classify

import (
	"errors"
	"image"
	"math"
)

// Canonical classifier names used across the registry, the aggregator and
// the command surfaces.
const (
	StyleModel   = "style"
	AuthorModel  = "author"
	EmotionModel = "emotion"
)

// ErrModelUnavailable marks a classifier whose weight artifact could not be
// loaded. It is distinct from per-image inference failures.
var ErrModelUnavailable = errors.New("model unavailable")

// Activation selects how raw model outputs become scores.
type Activation string

const (
	// ActivationSoftmax yields a distribution summing to 1 (style, author).
	ActivationSoftmax Activation = "softmax"
	// ActivationSigmoid yields independent per-label scores (emotion is
	// multi-label: several emotions can score high at once).
	ActivationSigmoid Activation = "sigmoid"
)

// Classifier maps an image to one score per label. Implementations are
// immutable after load and safe for concurrent use.
type Classifier interface {
	Name() string
	Labels() []string
	Activation() Activation
	Infer(img image.Image) ([]float32, error)
}

// FeatureMap is the last convolutional activation volume of one forward
// pass, laid out channel-major.
type FeatureMap struct {
	Channels int
	Height   int
	Width    int
	Data     []float32
}

// At returns the activation of channel c at (x, y).
func (f *FeatureMap) At(c, x, y int) float32 {
	return f.Data[c*f.Height*f.Width+y*f.Width+x]
}

// Explainer is implemented by classifiers that expose their final
// convolutional feature map alongside the scores, plus the classifier-head
// weights that tie each channel to a class.
type Explainer interface {
	InferWithFeatures(img image.Image) ([]float32, *FeatureMap, error)
	ClassWeights(classIdx int) ([]float32, error)
}

// Softmax converts raw logits into a probability distribution. The maximum
// is subtracted first for numerical stability.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - max))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// Sigmoid squashes each logit independently into [0,1].
func Sigmoid(logits []float32) []float32 {
	out := make([]float32, len(logits))
	for i, v := range logits {
		out[i] = float32(1.0 / (1.0 + math.Exp(-float64(v))))
	}
	return out
}

// ArgMax returns the index of the highest score, ties resolved to the
// earliest label.
func ArgMax(scores []float32) int {
	if len(scores) == 0 {
		return -1
	}
	best := 0
	for i, v := range scores {
		if v > scores[best] {
			best = i
		}
	}
	return best
}
