package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/DavidIKB13/LicentaArtAdvisor/internal/analyze"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/classify"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/config"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/emotion"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/gallery"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/logging"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/server"
)

func main() {
	logging.Init()
	config.LoadEnv()

	configPath := flag.String("config", "", "Path to config.json (default: ./config.json)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	registry := classify.NewRegistry()
	register := func(name string, mc config.ModelConfig) {
		registry.Register(name, func() (classify.Classifier, error) {
			slog.Info("loading classifier", "name", name, "path", mc.ModelPath)
			return classify.LoadOnnx(cfg.OrtLibrary, mc.ModelPath, mc.MetadataPath)
		})
	}
	register(classify.StyleModel, cfg.StyleModel)
	register(classify.AuthorModel, cfg.AuthorModel)
	register(classify.EmotionModel, cfg.EmotionModel)

	analyzer := analyze.New(registry, cfg.MaxImageDim)
	store := gallery.NewStore(cfg.GalleryDir, time.Duration(cfg.MetadataTTLSecs)*time.Second)
	search := emotion.NewEngine(store)

	handler := server.NewHandler(analyzer, store, search, cfg.FeedbackLog)
	mux := http.NewServeMux()
	handler.Register(mux)

	slog.Info("server starting",
		"addr", cfg.ListenAddr,
		"gallery", cfg.GalleryDir,
		"models", registry.Names())

	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}
