// Package emotion defines the canonical emotion vocabulary, the
// fixed-dimension vectors derived from it and the similarity search over
// stored artworks.
package emotion

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gonum.org/v1/gonum/floats"

	"github.com/DavidIKB13/LicentaArtAdvisor/internal/gallery"
)

// Vocabulary is the canonical ordered emotion list. Vector positions are
// defined by this order; it must stay in sync with the emotion model's
// label set.
var Vocabulary = []string{
	"Fericire", "Tristețe", "Furie", "Frică", "Surpriză", "Dezgust",
	"Nostalgie", "Melancolie", "Bucurie", "Pesimism", "Optimism",
	"Recunoștință", "Pasiune", "Serenitate",
}

// MaxResults caps how many matches a search returns.
const MaxResults = 10

var vocabIndex = buildVocabIndex()

func buildVocabIndex() map[string]int {
	m := make(map[string]int, len(Vocabulary))
	for i, label := range Vocabulary {
		m[canonical(label)] = i
	}
	return m
}

// canonical normalizes a label for lookup so diacritic-equivalent and
// case-variant spellings select the same vocabulary position.
func canonical(label string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(label)))
}

// Index returns the vocabulary position of label, or -1 when the label is
// outside the vocabulary.
func Index(label string) int {
	if i, ok := vocabIndex[canonical(label)]; ok {
		return i
	}
	return -1
}

// QueryVector encodes user-selected emotions as a vector with 1.0 at each
// selected vocabulary position.
func QueryVector(selected []string) []float64 {
	vec := make([]float64, len(Vocabulary))
	for _, label := range selected {
		if i := Index(label); i >= 0 {
			vec[i] = 1.0
		}
	}
	return vec
}

// ScoreVector places an artwork's raw emotion scores at their vocabulary
// positions; unknown labels are dropped.
func ScoreVector(scores map[string]float64) []float64 {
	vec := make([]float64, len(Vocabulary))
	for label, score := range scores {
		if i := Index(label); i >= 0 {
			vec[i] = score
		}
	}
	return vec
}

// Cosine returns the cosine similarity of two equal-length vectors. The
// boolean reports whether the similarity is defined; it is false when
// either vector has zero norm.
func Cosine(a, b []float64) (float64, bool) {
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0, false
	}
	return floats.Dot(a, b) / (na * nb), true
}

// Match pairs a stored artwork with its similarity to the query.
type Match struct {
	Artwork gallery.Artwork
	Score   float64
}

// Lister enumerates stored artworks; implemented by gallery.Store.
type Lister interface {
	ListAll() ([]gallery.Artwork, error)
}

// Engine ranks stored artworks by emotional similarity to a query.
type Engine struct {
	store Lister
}

// NewEngine constructs a search engine over the given store.
func NewEngine(store Lister) *Engine {
	return &Engine{store: store}
}

// Search ranks stored artworks by cosine similarity against the selected
// emotions, descending, capped at MaxResults. Artworks with no scored
// vocabulary emotions are skipped; ties keep store enumeration order.
func (e *Engine) Search(selected []string) ([]Match, error) {
	if len(selected) == 0 {
		return nil, nil
	}
	query := QueryVector(selected)
	if _, ok := Cosine(query, query); !ok {
		// None of the selected emotions exist in the vocabulary.
		return nil, nil
	}

	artworks, err := e.store.ListAll()
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(artworks))
	for _, art := range artworks {
		vec := ScoreVector(art.Meta.EmotiiDetectate)
		score, ok := Cosine(query, vec)
		if !ok {
			continue
		}
		matches = append(matches, Match{Artwork: art, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > MaxResults {
		matches = matches[:MaxResults]
	}
	return matches, nil
}
