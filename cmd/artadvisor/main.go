package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DavidIKB13/LicentaArtAdvisor/internal/analyze"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/classify"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/config"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/emotion"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/gallery"
	"github.com/DavidIKB13/LicentaArtAdvisor/internal/logging"
)

type cliOptions struct {
	configPath string
	imagePath  string
	save       bool
	narrative  string
	search     string
	list       bool
}

func main() {
	logging.Init()
	config.LoadEnv()

	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "artadvisor: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "artadvisor: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (cliOptions, error) {
	var opts cliOptions
	flag.StringVar(&opts.configPath, "config", "", "Path to config.json (default: ./config.json)")
	flag.StringVar(&opts.imagePath, "analyze", "", "Image file (JPEG/PNG) to analyze")
	flag.BoolVar(&opts.save, "save", false, "Persist the analysis to the gallery")
	flag.StringVar(&opts.narrative, "narrative", "", "Narrative text to store with a saved analysis")
	flag.StringVar(&opts.search, "search", "", "Comma-separated emotions to search the gallery for")
	flag.BoolVar(&opts.list, "list", false, "List stored gallery artworks")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"Usage: %s [--analyze IMAGE [--save] | --search emo1,emo2 | --list] [options]\n\n",
			filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	opts.imagePath = strings.TrimSpace(opts.imagePath)
	opts.search = strings.TrimSpace(opts.search)
	if opts.imagePath == "" && opts.search == "" && !opts.list {
		flag.Usage()
		return opts, errors.New("nothing to do: pass --analyze, --search or --list")
	}
	return opts, nil
}

func run(opts cliOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store := gallery.NewStore(cfg.GalleryDir, time.Duration(cfg.MetadataTTLSecs)*time.Second)

	if opts.imagePath != "" {
		registry := buildRegistry(cfg)
		analyzer := analyze.New(registry, cfg.MaxImageDim)
		if err := runAnalyze(analyzer, store, opts); err != nil {
			return err
		}
	}
	if opts.search != "" {
		if err := runSearch(store, opts.search); err != nil {
			return err
		}
	}
	if opts.list {
		if err := runList(store); err != nil {
			return err
		}
	}
	return nil
}

func buildRegistry(cfg config.Config) *classify.Registry {
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
	return registry
}

func runAnalyze(analyzer *analyze.Analyzer, store *gallery.Store, opts cliOptions) error {
	rec, err := analyzer.AnalyzeFile(opts.imagePath)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", opts.imagePath, err)
	}

	printSection("Stil", rec.Style, 3)
	printSection("Autor", rec.Author, 3)
	printSection("Emoții (toate)", rec.Emotion, 5)

	fmt.Println("Emoții detectate (> 0.65):")
	if len(rec.EmotionFiltered) == 0 {
		fmt.Println("  - niciuna")
	}
	for _, s := range rec.EmotionFiltered {
		fmt.Printf("  - %s (%.3f)\n", s.Label, s.Score)
	}

	if opts.save {
		result := store.Save(rec, opts.narrative, time.Now())
		if result.Err != nil {
			// The analysis above already printed; a failed save is a warning.
			slog.Warn("gallery save failed", "err", result.Err)
			return nil
		}
		fmt.Printf("Salvat în galerie: %s\n", result.MetaPath)
	}
	return nil
}

func printSection(title string, s analyze.Section, limit int) {
	fmt.Printf("%s:\n", title)
	if s.Err != nil {
		fmt.Println("  - predicție indisponibilă")
		return
	}
	if len(s.Ranking) < limit {
		limit = len(s.Ranking)
	}
	for _, entry := range s.Ranking[:limit] {
		fmt.Printf("  - %s (%.3f)\n", entry.Label, entry.Score)
	}
}

func runSearch(store *gallery.Store, raw string) error {
	var selected []string
	for _, e := range strings.Split(raw, ",") {
		if e = strings.TrimSpace(e); e != "" {
			selected = append(selected, e)
		}
	}
	engine := emotion.NewEngine(store)
	matches, err := engine.Search(selected)
	if err != nil {
		return fmt.Errorf("search gallery: %w", err)
	}
	if len(matches) == 0 {
		fmt.Println("Nicio operă similară găsită.")
		return nil
	}
	for i, m := range matches {
		fmt.Printf("%d. %s — %s (similaritate %.3f)\n",
			i+1, m.Artwork.Meta.StilDominant, m.Artwork.ImagePath, m.Score)
	}
	return nil
}

func runList(store *gallery.Store) error {
	artworks, err := store.ListAll()
	if err != nil {
		return fmt.Errorf("list gallery: %w", err)
	}
	if len(artworks) == 0 {
		fmt.Println("Galeria este goală.")
		return nil
	}
	for i, a := range artworks {
		fmt.Printf("%d. %s — stil %s (%.2f), autor %s (%.2f), analizat %s\n",
			i+1, filepath.Base(a.ImagePath),
			a.Meta.StilDominant, a.Meta.StilScor,
			a.Meta.AutorProbabil, a.Meta.AutorScor,
			a.Meta.DataAnaliza)
	}
	return nil
}
