package server

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/DavidIKB13/LicentaArtAdvisor/internal/analyze"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/classify"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/emotion"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/gallery"
)

type fixedClassifier struct {
	name   string
	labels []string
	scores []float32
}

func (f *fixedClassifier) Name() string                    { return f.name }
func (f *fixedClassifier) Labels() []string                { return f.labels }
func (f *fixedClassifier) Activation() classify.Activation { return classify.ActivationSigmoid }
func (f *fixedClassifier) Infer(image.Image) ([]float32, error) {
	return f.scores, nil
}

func newTestHandler(t *testing.T) (*Handler, *gallery.Store) {
	t.Helper()
	registry := classify.NewRegistry()
	registry.Register(classify.StyleModel, func() (classify.Classifier, error) {
		return &fixedClassifier{name: "style", labels: []string{"Baroc", "Realism"}, scores: []float32{0.8, 0.2}}, nil
	})
	registry.Register(classify.AuthorModel, func() (classify.Classifier, error) {
		return &fixedClassifier{name: "author", labels: []string{"Rembrandt"}, scores: []float32{0.9}}, nil
	})
	registry.Register(classify.EmotionModel, func() (classify.Classifier, error) {
		return &fixedClassifier{name: "emotion", labels: []string{"Bucurie", "Tristețe"}, scores: []float32{0.9, 0.3}}, nil
	})

	store := gallery.NewStore(t.TempDir(), time.Minute)
	h := NewHandler(
		analyze.New(registry, 0),
		store,
		emotion.NewEngine(store),
		filepath.Join(t.TempDir(), "feedback_logs.csv"),
	)
	return h, store
}

func multipartImage(t *testing.T, extraFields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 120, G: 80, B: 40, A: 255})
		}
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatal(err)
	}

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("image", "test.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(pngBuf.Bytes())
	for k, v := range extraFields {
		w.WriteField(k, v)
	}
	w.Close()
	return body, w.FormDataContentType()
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t)
	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "healthy") {
		t.Errorf("body %s", rr.Body.String())
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	t.Run("get rejected", func(t *testing.T) {
		h, _ := newTestHandler(t)
		rr := httptest.NewRecorder()
		h.Analyze(rr, httptest.NewRequest(http.MethodGet, "/analyze", nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("status %d", rr.Code)
		}
	})

	t.Run("full analysis", func(t *testing.T) {
		h, _ := newTestHandler(t)
		body, contentType := multipartImage(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/analyze", body)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		h.Analyze(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Style struct {
				Ranking analyze.Ranking `json:"ranking"`
			} `json:"stil"`
			EmotionFiltered analyze.Ranking `json:"emotii_detectate"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if len(resp.Style.Ranking) != 2 || resp.Style.Ranking[0].Label != "Baroc" {
			t.Errorf("style ranking %v", resp.Style.Ranking)
		}
		if len(resp.EmotionFiltered) != 1 || resp.EmotionFiltered[0].Label != "Bucurie" {
			t.Errorf("filtered emotions %v", resp.EmotionFiltered)
		}
	})

	t.Run("analysis with save", func(t *testing.T) {
		h, store := newTestHandler(t)
		body, contentType := multipartImage(t, map[string]string{"save": "1", "narrative": "test"})
		req := httptest.NewRequest(http.MethodPost, "/analyze", body)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		h.Analyze(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status %d", rr.Code)
		}
		artworks, err := store.ListAll()
		if err != nil || len(artworks) != 1 {
			t.Errorf("expected one stored artwork, got %d (%v)", len(artworks), err)
		}
	})

	t.Run("invalid image", func(t *testing.T) {
		h, _ := newTestHandler(t)
		body := &bytes.Buffer{}
		w := multipart.NewWriter(body)
		part, _ := w.CreateFormFile("image", "bad.png")
		part.Write([]byte("not an image"))
		w.Close()
		req := httptest.NewRequest(http.MethodPost, "/analyze", body)
		req.Header.Set("Content-Type", w.FormDataContentType())
		rr := httptest.NewRecorder()
		h.Analyze(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status %d, want 400", rr.Code)
		}
	})
}

func TestSearchEndpoint(t *testing.T) {
	h, store := newTestHandler(t)

	// Seed the gallery through the pipeline so stored emotions are real.
	body, contentType := multipartImage(t, map[string]string{"save": "1"})
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	h.Analyze(httptest.NewRecorder(), req)

	if _, err := store.ListAll(); err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	h.Search(rr, httptest.NewRequest(http.MethodGet, "/search?emotions=Bucurie", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var matches []searchMatch
	if err := json.Unmarshal(rr.Body.Bytes(), &matches); err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Similarity <= 0 {
		t.Errorf("similarity %f, want > 0", matches[0].Similarity)
	}

	t.Run("missing parameter", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.Search(rr, httptest.NewRequest(http.MethodGet, "/search", nil))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status %d, want 400", rr.Code)
		}
	})
}

func TestFeedbackEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	payload := `{"Filename":"a.png","StilPrezis":"Baroc","Feedback":"corect"}`
	req := httptest.NewRequest(http.MethodPost, "/feedback", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	h.Feedback(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status %d: %s", rr.Code, rr.Body.String())
	}
}
