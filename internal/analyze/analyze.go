// Package analyze orchestrates the three classifiers over one artwork and
// merges their outputs into a single prediction record.
package analyze

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/DavidIKB13/LicentaArtAdvisor/internal/classify"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/explain"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/vision"
)

// EmotionThreshold is the strict lower bound for an emotion to count as
// detected.
const EmotionThreshold = 0.65

// DefaultMaxDim caps the longer image dimension before analysis.
const DefaultMaxDim = 1024

// Scored is one (label, score) pair.
type Scored struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Ranking is a descending (label, score) sequence. Ties keep the
// classifier's original label order.
type Ranking []Scored

// NewRanking pairs labels with scores and sorts descending, stable.
func NewRanking(labels []string, scores []float32) Ranking {
	n := len(labels)
	if len(scores) < n {
		n = len(scores)
	}
	r := make(Ranking, n)
	for i := 0; i < n; i++ {
		r[i] = Scored{Label: labels[i], Score: float64(scores[i])}
	}
	sort.SliceStable(r, func(i, j int) bool { return r[i].Score > r[j].Score })
	return r
}

// Above returns the prefix-order subset of entries scoring strictly above
// the threshold.
func (r Ranking) Above(threshold float64) Ranking {
	out := make(Ranking, 0, len(r))
	for _, s := range r {
		if s.Score > threshold {
			out = append(out, s)
		}
	}
	return out
}

// Section holds one classifier's contribution to a record. A failed
// classifier leaves the ranking empty and Err set; the other sections are
// unaffected.
type Section struct {
	Ranking Ranking          `json:"ranking"`
	Overlay *explain.Overlay `json:"-"`
	Err     error            `json:"-"`
}

// Dominant returns the top-ranked entry, if any.
func (s Section) Dominant() (Scored, bool) {
	if len(s.Ranking) == 0 {
		return Scored{}, false
	}
	return s.Ranking[0], true
}

// Record is the unified result of one analysis. Section order is fixed
// here, independent of classifier completion order.
type Record struct {
	Style           Section
	Author          Section
	Emotion         Section
	EmotionFiltered Ranking
	// Image is the image actually analyzed, after any downsize.
	Image image.Image
}

// EmotionMap returns the full, unthresholded emotion scores.
func (r *Record) EmotionMap() map[string]float64 {
	out := make(map[string]float64, len(r.Emotion.Ranking))
	for _, s := range r.Emotion.Ranking {
		out[s.Label] = s.Score
	}
	return out
}

// Analyzer runs the full pipeline against a classifier registry.
type Analyzer struct {
	registry *classify.Registry
	maxDim   int
}

// New constructs an analyzer over the given registry. maxDim caps the
// longer image dimension before analysis; zero or negative selects
// DefaultMaxDim.
func New(registry *classify.Registry, maxDim int) *Analyzer {
	if maxDim <= 0 {
		maxDim = DefaultMaxDim
	}
	return &Analyzer{registry: registry, maxDim: maxDim}
}

// Analyze classifies one image with all three models. A classifier failure
// degrades its own section only; Analyze itself never fails.
func (a *Analyzer) Analyze(img image.Image) *Record {
	analyzed := vision.FitWithin(img, a.maxDim)

	rec := &Record{Image: analyzed}
	rec.Style = a.runSection(classify.StyleModel, analyzed, true)
	rec.Author = a.runSection(classify.AuthorModel, analyzed, true)
	rec.Emotion = a.runSection(classify.EmotionModel, analyzed, false)
	rec.EmotionFiltered = rec.Emotion.Ranking.Above(EmotionThreshold)
	return rec
}

// AnalyzeFile resolves the input path and analyzes the image it holds.
func (a *Analyzer) AnalyzeFile(path string) (*Record, error) {
	img, err := vision.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return a.Analyze(img), nil
}

// runSection produces one classifier's section. When the classifier can
// explain itself and the caller wants an overlay, inference and feature
// capture share a single forward pass.
func (a *Analyzer) runSection(name string, img image.Image, wantOverlay bool) Section {
	c, err := a.registry.Get(name)
	if err != nil {
		return Section{Err: err}
	}

	if wantOverlay {
		if ex, ok := c.(classify.Explainer); ok {
			return a.runExplained(c, ex, img)
		}
	}

	scores, err := c.Infer(img)
	if err != nil {
		return Section{Err: fmt.Errorf("%s inference: %w", name, err)}
	}
	return Section{Ranking: NewRanking(c.Labels(), scores)}
}

func (a *Analyzer) runExplained(c classify.Classifier, ex classify.Explainer, img image.Image) Section {
	scores, fm, err := ex.InferWithFeatures(img)
	if err != nil {
		return Section{Err: fmt.Errorf("%s inference: %w", c.Name(), err)}
	}
	section := Section{Ranking: NewRanking(c.Labels(), scores)}

	classIdx := classify.ArgMax(scores)
	weights, err := ex.ClassWeights(classIdx)
	if err == nil {
		overlay, buildErr := explain.Build(img, fm, weights)
		if buildErr != nil {
			err = buildErr
		} else {
			section.Overlay = overlay
		}
	}
	if err != nil {
		// A missing overlay degrades the explanation only, not the ranking.
		slog.Warn("overlay unavailable", "classifier", c.Name(), "err", err)
	}
	return section
}

// EmotionsFromBytes decodes an in-memory image, runs the emotion
// classifier only and returns the detected (above-threshold) scores. The
// image passes through a uniquely named temp artifact that is removed
// afterwards.
func (a *Analyzer) EmotionsFromBytes(data []byte) (map[string]float64, error) {
	tmpDir := filepath.Join(os.TempDir(), "artadvisor")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	tmpPath := filepath.Join(tmpDir, "lab_"+uuid.NewString()+".img")
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("write temp image: %w", err)
	}
	defer os.Remove(tmpPath)

	img, err := vision.DecodeFile(tmpPath)
	if err != nil {
		return nil, err
	}

	section := a.runSection(classify.EmotionModel, vision.FitWithin(img, a.maxDim), false)
	if section.Err != nil {
		return nil, section.Err
	}

	out := make(map[string]float64)
	for _, s := range section.Ranking.Above(EmotionThreshold) {
		out[s.Label] = s.Score
	}
	return out, nil
}
