// Package server exposes the analysis pipeline and the gallery over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/DavidIKB13/LicentaArtAdvisor/internal/analyze"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/emotion"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/gallery"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/vision"
)

const maxUploadBytes = 10 << 20

// Handler wires the HTTP surface to the pipeline components.
type Handler struct {
	analyzer    *analyze.Analyzer
	store       *gallery.Store
	search      *emotion.Engine
	feedbackLog string
}

// NewHandler builds the handler set.
func NewHandler(analyzer *analyze.Analyzer, store *gallery.Store, search *emotion.Engine, feedbackLog string) *Handler {
	return &Handler{
		analyzer:    analyzer,
		store:       store,
		search:      search,
		feedbackLog: feedbackLog,
	}
}

// Register installs all routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/analyze", h.Analyze)
	mux.HandleFunc("/search", h.Search)
	mux.HandleFunc("/gallery", h.Gallery)
	mux.HandleFunc("/feedback", h.Feedback)
}

type sectionPayload struct {
	Ranking analyze.Ranking `json:"ranking"`
	Error   string          `json:"error,omitempty"`
}

type analyzeResponse struct {
	Style           sectionPayload  `json:"stil"`
	Author          sectionPayload  `json:"autor"`
	Emotion         sectionPayload  `json:"emotie"`
	EmotionFiltered analyze.Ranking `json:"emotii_detectate"`
	Saved           *savedPayload   `json:"saved,omitempty"`
}

type savedPayload struct {
	OK        bool   `json:"ok"`
	ImagePath string `json:"imagePath,omitempty"`
	MetaPath  string `json:"metaPath,omitempty"`
	Error     string `json:"error,omitempty"`
}

func toSectionPayload(s analyze.Section) sectionPayload {
	out := sectionPayload{Ranking: s.Ranking}
	if out.Ranking == nil {
		out.Ranking = analyze.Ranking{}
	}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return out
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Analyze accepts a multipart upload under the "image" field, runs the
// full pipeline and returns the per-classifier rankings. With save=1 the
// record is also persisted, reported as success-with-warning on failure.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "no image file provided, use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	img, err := vision.Decode(file)
	if err != nil {
		http.Error(w, "invalid image, supported formats: JPEG, PNG", http.StatusBadRequest)
		return
	}

	rec := h.analyzer.Analyze(img)
	resp := analyzeResponse{
		Style:           toSectionPayload(rec.Style),
		Author:          toSectionPayload(rec.Author),
		Emotion:         toSectionPayload(rec.Emotion),
		EmotionFiltered: rec.EmotionFiltered,
	}
	if resp.EmotionFiltered == nil {
		resp.EmotionFiltered = analyze.Ranking{}
	}

	if r.FormValue("save") == "1" {
		result := h.store.Save(rec, r.FormValue("narrative"), time.Now())
		saved := &savedPayload{OK: result.OK, ImagePath: result.ImagePath, MetaPath: result.MetaPath}
		if result.Err != nil {
			saved.Error = result.Err.Error()
			slog.Warn("gallery save failed", "err", result.Err)
		}
		resp.Saved = saved
	}

	writeJSON(w, http.StatusOK, resp)
}

type searchMatch struct {
	ImagePath  string           `json:"imagePath"`
	Metadata   gallery.Metadata `json:"metadata"`
	Similarity float64          `json:"similarity"`
}

// Search ranks gallery entries by emotional similarity to the
// comma-separated "emotions" query parameter.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("emotions"))
	if raw == "" {
		http.Error(w, "missing emotions query parameter", http.StatusBadRequest)
		return
	}
	var selected []string
	for _, e := range strings.Split(raw, ",") {
		if e = strings.TrimSpace(e); e != "" {
			selected = append(selected, e)
		}
	}

	matches, err := h.search.Search(selected)
	if err != nil {
		slog.Error("similarity search failed", "err", err)
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}

	out := make([]searchMatch, len(matches))
	for i, m := range matches {
		out[i] = searchMatch{
			ImagePath:  m.Artwork.ImagePath,
			Metadata:   m.Artwork.Meta,
			Similarity: m.Score,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Gallery lists all stored artworks, newest first.
func (h *Handler) Gallery(w http.ResponseWriter, r *http.Request) {
	artworks, err := h.store.ListAll()
	if err != nil {
		slog.Error("gallery listing failed", "err", err)
		http.Error(w, "gallery listing failed", http.StatusInternalServerError)
		return
	}
	type entry struct {
		ImagePath string           `json:"imagePath"`
		MetaPath  string           `json:"metaPath"`
		Metadata  gallery.Metadata `json:"metadata"`
	}
	out := make([]entry, len(artworks))
	for i, a := range artworks {
		out[i] = entry{ImagePath: a.ImagePath, MetaPath: a.MetaPath, Metadata: a.Meta}
	}
	writeJSON(w, http.StatusOK, out)
}

// Feedback appends one user feedback row to the log.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var f gallery.Feedback
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := gallery.AppendFeedback(h.feedbackLog, f); err != nil {
		slog.Error("feedback append failed", "err", err)
		http.Error(w, "failed to record feedback", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encoding failed", "err", err)
	}
}
