package analyze

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/DavidIKB13/LicentaArtAdvisor/internal/classify"
)

type fakeClassifier struct {
	name   string
	labels []string
	scores []float32
	err    error
}

func (f *fakeClassifier) Name() string                    { return f.name }
func (f *fakeClassifier) Labels() []string                { return f.labels }
func (f *fakeClassifier) Activation() classify.Activation { return classify.ActivationSigmoid }
func (f *fakeClassifier) Infer(image.Image) ([]float32, error) {
	return f.scores, f.err
}

type fakeExplainable struct {
	fakeClassifier
	channels int
}

func (f *fakeExplainable) InferWithFeatures(img image.Image) ([]float32, *classify.FeatureMap, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	fm := &classify.FeatureMap{Channels: f.channels, Height: 4, Width: 4,
		Data: make([]float32, f.channels*16)}
	for i := range fm.Data {
		fm.Data[i] = float32(i%16) / 16
	}
	return f.scores, fm, nil
}

func (f *fakeExplainable) ClassWeights(classIdx int) ([]float32, error) {
	w := make([]float32, f.channels)
	for i := range w {
		w[i] = 1
	}
	return w, nil
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 50, A: 255})
		}
	}
	return img
}

func newTestRegistry(style, author, emo classify.Classifier, authorErr error) *classify.Registry {
	r := classify.NewRegistry()
	r.Register(classify.StyleModel, func() (classify.Classifier, error) { return style, nil })
	r.Register(classify.AuthorModel, func() (classify.Classifier, error) {
		if authorErr != nil {
			return nil, authorErr
		}
		return author, nil
	})
	r.Register(classify.EmotionModel, func() (classify.Classifier, error) { return emo, nil })
	return r
}

func TestNewRanking(t *testing.T) {
	t.Run("descending order", func(t *testing.T) {
		r := NewRanking([]string{"a", "b", "c"}, []float32{0.2, 0.7, 0.1})
		want := []string{"b", "a", "c"}
		for i, s := range r {
			if s.Label != want[i] {
				t.Errorf("position %d = %s, want %s", i, s.Label, want[i])
			}
		}
		for i := 1; i < len(r); i++ {
			if r[i].Score > r[i-1].Score {
				t.Error("ranking is not non-increasing")
			}
		}
	})

	t.Run("ties keep label order", func(t *testing.T) {
		r := NewRanking([]string{"x", "y", "z"}, []float32{0.5, 0.5, 0.5})
		if r[0].Label != "x" || r[1].Label != "y" || r[2].Label != "z" {
			t.Errorf("tie order broken: %v", r)
		}
	})

	t.Run("no duplicate labels", func(t *testing.T) {
		r := NewRanking([]string{"a", "b"}, []float32{0.6, 0.4})
		seen := make(map[string]bool)
		for _, s := range r {
			if seen[s.Label] {
				t.Errorf("label %s appears twice", s.Label)
			}
			seen[s.Label] = true
		}
	})
}

func TestEmotionFiltering(t *testing.T) {
	emo := &fakeClassifier{
		name:   "emotion",
		labels: []string{"Bucurie", "Tristețe", "Frică"},
		scores: []float32{0.9, 0.5, 0.7},
	}
	style := &fakeClassifier{name: "style", labels: []string{"Baroc"}, scores: []float32{1}}
	author := &fakeClassifier{name: "author", labels: []string{"Rembrandt"}, scores: []float32{1}}

	a := New(newTestRegistry(style, author, emo, nil), 0)
	rec := a.Analyze(testImage(32, 32))

	if len(rec.EmotionFiltered) != 2 {
		t.Fatalf("filtered ranking has %d entries, want 2: %v", len(rec.EmotionFiltered), rec.EmotionFiltered)
	}
	if rec.EmotionFiltered[0].Label != "Bucurie" || rec.EmotionFiltered[1].Label != "Frică" {
		t.Errorf("filtered ranking = %v, want [Bucurie Frică]", rec.EmotionFiltered)
	}
	// Exactly at the threshold is excluded: the bound is strict.
	atBound := Ranking{{Label: "Furie", Score: 0.65}}.Above(EmotionThreshold)
	if len(atBound) != 0 {
		t.Errorf("score equal to threshold must be excluded, got %v", atBound)
	}
	if len(rec.Emotion.Ranking) != 3 {
		t.Errorf("full emotion ranking lost entries: %v", rec.Emotion.Ranking)
	}
}

func TestPartialFailure(t *testing.T) {
	style := &fakeClassifier{name: "style", labels: []string{"Baroc", "Realism"}, scores: []float32{0.8, 0.2}}
	emo := &fakeClassifier{name: "emotion", labels: []string{"Bucurie"}, scores: []float32{0.9}}

	a := New(newTestRegistry(style, nil, emo, errors.New("weights corrupt")), 0)
	rec := a.Analyze(testImage(16, 16))

	if rec.Author.Err == nil {
		t.Fatal("author section should carry an error")
	}
	if !errors.Is(rec.Author.Err, classify.ErrModelUnavailable) {
		t.Errorf("author error should be ErrModelUnavailable, got %v", rec.Author.Err)
	}
	if len(rec.Author.Ranking) != 0 {
		t.Errorf("failed section must have an empty ranking, got %v", rec.Author.Ranking)
	}
	if len(rec.Style.Ranking) != 2 || len(rec.Emotion.Ranking) != 1 {
		t.Error("healthy sections must still populate when a sibling fails")
	}
}

func TestExplainableSectionGetsOverlay(t *testing.T) {
	style := &fakeExplainable{
		fakeClassifier: fakeClassifier{name: "style", labels: []string{"Baroc", "Realism"}, scores: []float32{0.7, 0.3}},
		channels:       2,
	}
	author := &fakeClassifier{name: "author", labels: []string{"Rembrandt"}, scores: []float32{1}}
	emo := &fakeClassifier{name: "emotion", labels: []string{"Bucurie"}, scores: []float32{0.2}}

	a := New(newTestRegistry(style, author, emo, nil), 0)
	img := testImage(60, 40)
	rec := a.Analyze(img)

	if rec.Style.Overlay == nil {
		t.Fatal("explainable style classifier should produce an overlay")
	}
	b := rec.Style.Overlay.Blended.Bounds()
	if b.Dx() != 60 || b.Dy() != 40 {
		t.Errorf("overlay blended %dx%d, want 60x40", b.Dx(), b.Dy())
	}
	if rec.Author.Overlay != nil {
		t.Error("non-explainable classifier must not carry an overlay")
	}
	if rec.Emotion.Overlay != nil {
		t.Error("emotion section never carries an overlay")
	}
}

func TestOversizedImageDownsized(t *testing.T) {
	style := &fakeClassifier{name: "style", labels: []string{"Baroc"}, scores: []float32{1}}
	author := &fakeClassifier{name: "author", labels: []string{"Rembrandt"}, scores: []float32{1}}
	emo := &fakeClassifier{name: "emotion", labels: []string{"Bucurie"}, scores: []float32{0.9}}

	a := New(newTestRegistry(style, author, emo, nil), 0)
	rec := a.Analyze(testImage(2048, 1000))

	b := rec.Image.Bounds()
	if b.Dx() > DefaultMaxDim || b.Dy() > DefaultMaxDim {
		t.Errorf("analyzed image %dx%d exceeds the %d cap", b.Dx(), b.Dy(), DefaultMaxDim)
	}
	ratio := float64(b.Dx()) / float64(b.Dy())
	if ratio < 2.0 || ratio > 2.1 {
		t.Errorf("aspect ratio %.3f drifted from 2.048", ratio)
	}
}

func TestEmotionMap(t *testing.T) {
	rec := &Record{
		Emotion: Section{Ranking: Ranking{
			{Label: "Bucurie", Score: 0.9},
			{Label: "Tristețe", Score: 0.4},
		}},
	}
	m := rec.EmotionMap()
	if len(m) != 2 || m["Bucurie"] != 0.9 || m["Tristețe"] != 0.4 {
		t.Errorf("EmotionMap() = %v", m)
	}
}
