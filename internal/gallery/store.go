// Package gallery persists analyzed artworks as paired image/metadata
// artifacts and enumerates them with freshness-aware caching.
package gallery

import (
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gocache "github.com/patrickmn/go-cache"

	"github.com/DavidIKB13/LicentaArtAdvisor/internal/analyze"
)

// Metadata is the persisted artwork record. Field names match the artifact
// format the rest of the deployment consumes.
type Metadata struct {
	Timestamp          string             `json:"timestamp"`
	StilDominant       string             `json:"stil_dominant"`
	StilScor           float64            `json:"stil_scor"`
	AutorProbabil      string             `json:"autor_probabil"`
	AutorScor          float64            `json:"autor_scor"`
	EmotiiDetectate    map[string]float64 `json:"emotii_detectate"`
	DescriereNarrativa string             `json:"descriere_narrativa"`
	DataAnaliza        string             `json:"data_analiza"`
}

// Artwork is one gallery entry whose image and metadata artifacts both
// exist on storage.
type Artwork struct {
	Meta      Metadata
	ImagePath string
	MetaPath  string
	ModTime   time.Time
}

// SaveResult reports a persistence attempt. A failed save carries the
// error here instead of aborting the analysis that produced the record.
type SaveResult struct {
	OK        bool
	ImagePath string
	MetaPath  string
	Err       error
}

// Store owns one gallery directory. Metadata reads are cached keyed by
// (path, mtime), so an entry refreshes automatically when the file
// changes.
type Store struct {
	dir   string
	cache *gocache.Cache
}

// NewStore creates a store over dir. Metadata reads are cached for ttl.
func NewStore(dir string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{
		dir:   dir,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Dir returns the gallery directory.
func (s *Store) Dir() string { return s.dir }

// EntryID derives the shared artifact identifier from the analysis time.
// Second granularity means two analyses within the same second collide and
// the later save overwrites the earlier one; known limitation.
func EntryID(now time.Time) string {
	return "art_" + now.Format("20060102_150405")
}

// Save writes the analyzed image first, then the metadata, both under the
// same timestamp-derived identifier.
func (s *Store) Save(rec *analyze.Record, narrative string, now time.Time) SaveResult {
	if rec == nil || rec.Image == nil {
		return SaveResult{Err: fmt.Errorf("nothing to save: record has no image")}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return SaveResult{Err: fmt.Errorf("create gallery dir: %w", err)}
	}

	id := EntryID(now)
	imagePath := filepath.Join(s.dir, id+".png")
	metaPath := filepath.Join(s.dir, id+".json")

	if err := writePNG(imagePath, rec); err != nil {
		return SaveResult{Err: err}
	}

	meta := buildMetadata(rec, narrative, now)
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return SaveResult{Err: fmt.Errorf("encode metadata: %w", err)}
	}
	tmp := metaPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return SaveResult{Err: fmt.Errorf("write metadata: %w", err)}
	}
	if err := os.Rename(tmp, metaPath); err != nil {
		return SaveResult{Err: fmt.Errorf("rename metadata: %w", err)}
	}

	slog.Info("artwork saved", "id", id, "dir", s.dir)
	return SaveResult{OK: true, ImagePath: imagePath, MetaPath: metaPath}
}

func writePNG(path string, rec *analyze.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image artifact: %w", err)
	}
	if err := png.Encode(f, rec.Image); err != nil {
		f.Close()
		return fmt.Errorf("encode image artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close image artifact: %w", err)
	}
	return nil
}

func buildMetadata(rec *analyze.Record, narrative string, now time.Time) Metadata {
	meta := Metadata{
		Timestamp:          now.Format("20060102_150405"),
		StilDominant:       "N/A",
		AutorProbabil:      "N/A",
		EmotiiDetectate:    rec.EmotionMap(),
		DescriereNarrativa: narrative,
		DataAnaliza:        now.Format("02.01.2006 15:04"),
	}
	if meta.DescriereNarrativa == "" {
		meta.DescriereNarrativa = "N/A"
	}
	if top, ok := rec.Style.Dominant(); ok {
		meta.StilDominant = top.Label
		meta.StilScor = top.Score
	}
	if top, ok := rec.Author.Dominant(); ok {
		meta.AutorProbabil = strings.ReplaceAll(top.Label, "_", " ")
		meta.AutorScor = top.Score
	}
	return meta
}

// ListAll enumerates gallery entries whose image and metadata artifacts
// both exist, newest first by metadata modification time. Malformed
// metadata files are skipped with a warning.
func (s *Store) ListAll() ([]Artwork, error) {
	metaFiles, err := filepath.Glob(filepath.Join(s.dir, "art_*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan gallery: %w", err)
	}

	artworks := make([]Artwork, 0, len(metaFiles))
	for _, metaPath := range metaFiles {
		info, err := os.Stat(metaPath)
		if err != nil {
			continue
		}
		imagePath := strings.TrimSuffix(metaPath, ".json") + ".png"
		if _, err := os.Stat(imagePath); err != nil {
			continue
		}
		meta, err := s.loadMetadata(metaPath, info.ModTime())
		if err != nil {
			slog.Warn("skipping malformed gallery entry", "path", metaPath, "err", err)
			continue
		}
		artworks = append(artworks, Artwork{
			Meta:      meta,
			ImagePath: imagePath,
			MetaPath:  metaPath,
			ModTime:   info.ModTime(),
		})
	}

	sort.SliceStable(artworks, func(i, j int) bool {
		return artworks[i].ModTime.After(artworks[j].ModTime)
	})
	return artworks, nil
}

// loadMetadata deserializes one metadata file through the TTL cache. The
// cache key includes the modification time, so a rewritten file misses the
// stale entry and is read fresh.
func (s *Store) loadMetadata(path string, mtime time.Time) (Metadata, error) {
	key := path + "|" + strconv.FormatInt(mtime.UnixNano(), 10)
	if v, ok := s.cache.Get(key); ok {
		return v.(Metadata), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	s.cache.Set(key, meta, gocache.DefaultExpiration)
	return meta, nil
}
