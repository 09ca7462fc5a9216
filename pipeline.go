package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	topic "toppers-pipeline/01_topic"
	research "toppers-pipeline/02_research"
	images "toppers-pipeline/03_images"
	audio "toppers-pipeline/04_audio"
	render "toppers-pipeline/05_render"
	metadata "toppers-pipeline/06_metadata"
	upload "toppers-pipeline/07_upload"
	"toppers-pipeline/config"
	"toppers-pipeline/controller"
	"toppers-pipeline/llm"
	"toppers-pipeline/runlog"
	"toppers-pipeline/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	noUpload := flag.Bool("no-upload", false, "render the video but skip publishing")
	recent := flag.Int("recent", 0, "print the last N runs from the run ledger and exit")
	flag.Parse()

	// Load .env (local dev only, CI injects secrets)
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	setupLogging(cfg.Logging)
	if *noUpload {
		cfg.Upload.Enabled = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, err := runlog.Open(cfg.Paths.RunLogDB)
	if err != nil {
		logrus.Fatalf("Failed to open run ledger: %v", err)
	}
	defer ledger.Close()

	if *recent > 0 {
		if err := printRecent(ctx, ledger, *recent); err != nil {
			logrus.Fatal(err)
		}
		return
	}

	ctrl, err := build(ctx, cfg, ledger)
	if err != nil {
		logrus.Fatalf("Failed to initialise pipeline: %v", err)
	}

	report, err := ctrl.Run(ctx)
	if err != nil {
		logrus.Errorf("❌ Run %s ended in %s: %v", report.RunID, report.State, err)
		ledger.Close()
		os.Exit(1)
	}
	if report.VideoURL != "" {
		logrus.Infof("✅ Published: %s", report.VideoURL)
	} else {
		logrus.Infof("✅ Video ready: %s", report.Video.Path)
	}
}

// build wires every stage from config
func build(ctx context.Context, cfg *config.Config, ledger *runlog.Ledger) (*controller.Controller, error) {
	var store storage.Store
	switch cfg.History.Backend {
	case "local":
		local, err := storage.NewLocal(cfg.Paths.History)
		if err != nil {
			return nil, err
		}
		store = local
	default:
		gcs, err := storage.NewGCS(ctx, cfg.History.Bucket)
		if err != nil {
			return nil, err
		}
		store = gcs
	}

	provider, err := llm.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	var inspiration topic.Inspiration
	if cfg.Topic.InspirationSubreddit != "" {
		reddit, err := topic.NewRedditInspiration(cfg.Topic.InspirationSubreddit, cfg.Topic.InspirationLimit)
		if err != nil {
			logrus.WithError(err).Warn("Reddit inspiration disabled")
		} else {
			inspiration = reddit
		}
	}

	imageProviders, err := images.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	synth, err := audio.FromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	prober := audio.FFProbe{}

	music, err := render.NewMusicPicker(cfg.Render)
	if err != nil {
		return nil, err
	}

	deps := controller.Deps{
		History:   topic.NewHistoryStore(store, cfg.History.Object, cfg.History.Window),
		Topics:    topic.NewSelector(cfg, provider, inspiration),
		Research:  research.New(cfg, provider),
		Images:    images.NewCoordinator(cfg, imageProviders...),
		Narrator:  audio.NewNarrator(synth, prober, cfg.Audio.Attempts),
		Music:     music,
		Assembler: render.New(cfg, render.ExecRunner{}, prober),
		Metadata:  metadata.New(cfg.Upload),
		Artifacts: storage.NewArtifacts(store),
		Ledger:    ledger,
	}
	if cfg.Upload.Enabled {
		yt, err := upload.NewYouTube(ctx, cfg.Upload)
		if err != nil {
			return nil, err
		}
		deps.Publisher = yt
	}
	return controller.New(cfg, deps), nil
}

func setupLogging(cfg config.LoggingConfig) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", cfg.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func printRecent(ctx context.Context, ledger *runlog.Ledger, n int) error {
	entries, err := ledger.Recent(ctx, n)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s  %s  %-13s last_good=%-14s %s", e.Timestamp, e.RunID, e.State, e.LastGoodState, e.Topic)
		if e.VideoID != "" {
			fmt.Printf("  video=%s", e.VideoID)
		}
		if e.Error != "" {
			fmt.Printf("  error=%q", e.Error)
		}
		fmt.Println()
	}
	return nil
}
