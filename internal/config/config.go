package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/subosito/gotenv"
)

const defaultConfigFile = "config.json"

// ModelConfig points at one classifier's weight artifact and metadata file.
type ModelConfig struct {
	ModelPath    string `json:"modelPath"`
	MetadataPath string `json:"metadataPath"`
}

// Config aggregates runtime settings persisted to config.json.
type Config struct {
	OrtLibrary      string      `json:"ortLibrary"`
	StyleModel      ModelConfig `json:"styleModel"`
	AuthorModel     ModelConfig `json:"authorModel"`
	EmotionModel    ModelConfig `json:"emotionModel"`
	GalleryDir      string      `json:"galleryDir"`
	FeedbackLog     string      `json:"feedbackLog"`
	MaxImageDim     int         `json:"maxImageDim"`
	MetadataTTLSecs int         `json:"metadataTtlSecs"`
	ListenAddr      string      `json:"listenAddr"`
}

// ApplyDefaults populates zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.StyleModel.ModelPath == "" {
		c.StyleModel = ModelConfig{
			ModelPath:    filepath.Join("models", "model_stil.onnx"),
			MetadataPath: filepath.Join("models", "model_stil.json"),
		}
	}
	if c.AuthorModel.ModelPath == "" {
		c.AuthorModel = ModelConfig{
			ModelPath:    filepath.Join("models", "model_autor.onnx"),
			MetadataPath: filepath.Join("models", "model_autor.json"),
		}
	}
	if c.EmotionModel.ModelPath == "" {
		c.EmotionModel = ModelConfig{
			ModelPath:    filepath.Join("models", "model_emotie.onnx"),
			MetadataPath: filepath.Join("models", "model_emotie.json"),
		}
	}
	if c.GalleryDir == "" {
		c.GalleryDir = "gallery_uploads"
	}
	if c.FeedbackLog == "" {
		c.FeedbackLog = "feedback_logs.csv"
	}
	if c.MaxImageDim <= 0 {
		c.MaxImageDim = 1024
	}
	if c.MetadataTTLSecs <= 0 {
		c.MetadataTTLSecs = 300
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
}

// LoadEnv loads a .env file if present so deployments can override paths
// without editing config.json.
func LoadEnv() {
	if err := gotenv.Load(); err != nil {
		slog.Debug("no .env file found, using OS environment")
	}
}

// Load reads configuration from the given path or the default config.json.
// A missing file yields the defaults. Environment variables override the
// file contents afterwards.
func Load(path string) (Config, error) {
	if path == "" {
		path = defaultConfigFile
	}
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyDefaults()
			cfg.applyEnv()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

// Save persists configuration to disk atomically.
func Save(path string, cfg Config) error {
	if path == "" {
		path = defaultConfigFile
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	cfg.ApplyDefaults()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ARTADVISOR_ORT_LIBRARY"); v != "" {
		c.OrtLibrary = v
	}
	if v := os.Getenv("ARTADVISOR_GALLERY_DIR"); v != "" {
		c.GalleryDir = v
	}
	if v := os.Getenv("ARTADVISOR_FEEDBACK_LOG"); v != "" {
		c.FeedbackLog = v
	}
	if v := os.Getenv("ARTADVISOR_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("ARTADVISOR_MAX_IMAGE_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxImageDim = n
		}
	}
}
