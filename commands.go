package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"rapidsprite/config"
	"rapidsprite/httpServer"
	"rapidsprite/internal/auth"
	"rapidsprite/internal/jobs"
	"rapidsprite/internal/metrics"
	"rapidsprite/internal/pipeline"
	"rapidsprite/internal/storage"
)

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Generate sprite sheets, a cue file and metadata for each input",
		ArgsUsage: "<video> [video...]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Usage: "Number of evenly spaced samples"},
			&cli.StringFlag{Name: "interval", Aliases: []string{"i"}, Usage: "Seconds between samples, e.g. 2, 1.5 or 1001/500"},
			&cli.StringFlag{Name: "min-trailing", Usage: "Fraction of an interval the tail must exceed to get a final sample"},
			&cli.IntFlag{Name: "tile-width", Usage: "Tile width in pixels"},
			&cli.IntFlag{Name: "tile-height", Usage: "Tile height in pixels"},
			&cli.IntFlag{Name: "tiles-per-row", Usage: "Tiles per sheet row"},
			&cli.IntFlag{Name: "tiles-per-sheet", Usage: "Tiles per sheet"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output directory"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Sheet format: jpg or png"},
			&cli.IntFlag{Name: "quality", Aliases: []string{"q"}, Usage: "JPEG quality (1-100)"},
			&cli.StringFlag{Name: "scaler", Usage: "Resampling filter, e.g. nearest, bilinear, lanczos"},
			&cli.StringFlag{Name: "fill", Usage: "Letterbox colour as #RRGGBB or #RRGGBBAA"},
			&cli.StringFlag{Name: "decoder", Usage: "Decoder backend: auto, ffmpeg or mpeg1"},
			&cli.DurationFlag{Name: "timeout", Usage: "Per-sample decode timeout"},
			&cli.IntFlag{Name: "concurrency", Aliases: []string{"j"}, Usage: "Inputs processed in parallel"},
			&cli.BoolFlag{Name: "quiet", Usage: "Hide the progress bar"},
		},
		Action: runGenerate,
	}
}

func runGenerate(ctx context.Context, cmd *cli.Command) error {
	inputs := cmd.Args().Slice()
	if len(inputs) == 0 {
		return cli.Exit("at least one input video is required", 2)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer store.Close()

	opts, err := pipeline.OptionsFromConfig(cfg, store)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	if !cmd.Bool("quiet") {
		bar := newProgress()
		defer bar.finish()
		opts.Observer = bar
	}

	p, err := pipeline.New(opts)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	results, runErr := p.RunAll(ctx, inputs, cfg.Concurrency)
	for _, res := range results {
		if res == nil {
			continue
		}
		logrus.WithFields(logrus.Fields{
			"input":   res.Input,
			"samples": res.Plan.Len(),
			"failed":  len(res.Failures),
			"sheets":  len(res.Sheets),
			"cues":    res.CuePath,
		}).Info("Preview written")
	}
	if runErr != nil {
		return cli.Exit(runErr.Error(), 1)
	}
	return nil
}

// loadConfig reads the configuration and applies explicitly set flags
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if err := setupLogging(cfg.LogLevel, cfg.LogFormat, cmd.Bool("debug")); err != nil {
		return nil, err
	}

	if cmd.IsSet("count") && cmd.IsSet("interval") {
		return nil, errors.New("--count and --interval are mutually exclusive")
	}
	if cmd.IsSet("count") {
		count := int(cmd.Int("count"))
		if count < 1 {
			return nil, fmt.Errorf("--count must be > 0, got %d", count)
		}
		cfg.SampleCount = &count
		cfg.SampleInterval = ""
	}
	if cmd.IsSet("interval") {
		cfg.SampleInterval = cmd.String("interval")
		cfg.SampleCount = nil
	}

	setString := func(name string, dst *string) {
		if cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}
	setInt := func(name string, dst *int) {
		if cmd.IsSet(name) {
			*dst = int(cmd.Int(name))
		}
	}
	setString("min-trailing", &cfg.MinTrailingFraction)
	setInt("tile-width", &cfg.TileWidth)
	setInt("tile-height", &cfg.TileHeight)
	setInt("tiles-per-row", &cfg.TilesPerRow)
	setInt("tiles-per-sheet", &cfg.TilesPerSheet)
	setString("format", &cfg.SheetFormat)
	setInt("quality", &cfg.JPEGQuality)
	setString("scaler", &cfg.Scaler)
	setString("fill", &cfg.FillColor)
	setString("decoder", &cfg.Decoder)
	setInt("concurrency", &cfg.Concurrency)
	if cmd.IsSet("output") {
		cfg.StorageType = "local"
		cfg.OutputDirectory = cmd.String("output")
	}
	if cmd.IsSet("timeout") {
		cfg.DecodeTimeout = cmd.Duration("timeout")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStorage selects the artifact backend
func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.StorageType == "gcs" {
		gcsStorage, err := storage.NewGCSStorage(ctx, cfg.GCSProjectID, cfg.GCSBucketName, cfg.GCSBaseDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GCS storage: %w", err)
		}
		logrus.WithFields(logrus.Fields{
			"bucket":  cfg.GCSBucketName,
			"project": cfg.GCSProjectID,
			"baseDir": cfg.GCSBaseDir,
		}).Info("Storage initialized: GCS")
		return gcsStorage, nil
	}

	localStorage, err := storage.NewLocalStorage(cfg.OutputDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local storage: %w", err)
	}
	logrus.WithField("dir", cfg.OutputDirectory).Info("Storage initialized: local")
	return localStorage, nil
}

// progress renders sampling progress across all inputs on one bar
type progress struct {
	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	total int
}

func newProgress() *progress {
	return &progress{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("sampling"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
		),
	}
}

func (p *progress) StateChanged(input string, state pipeline.State) {
	logrus.WithFields(logrus.Fields{"input": input, "state": state.String()}).Debug("State changed")
}

func (p *progress) Planned(input string, samples int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total += samples
	p.bar.ChangeMax(p.total)
}

func (p *progress) Sampled(input string, index int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Add(1)
}

func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Finish()
	fmt.Fprintln(os.Stderr)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API that queues preview jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "media-root", Usage: "Directory that submitted inputs are resolved under"},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	if cmd.IsSet("addr") {
		cfg.HTTPAddr = cmd.String("addr")
	}
	if cmd.IsSet("media-root") {
		cfg.MediaRoot = cmd.String("media-root")
	}

	log := logrus.NewEntry(logrus.StandardLogger())
	log.Info("Starting RapidSprite server...")

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer store.Close()

	m := metrics.New()
	log.Info("Prometheus metrics initialized")

	manager := jobs.New(cfg.Concurrency, log.WithField("component", "jobs"))

	opts, err := pipeline.OptionsFromConfig(cfg, store)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	opts.Metrics = m
	opts.Observer = manager
	opts.Logger = log.WithField("component", "pipeline")
	p, err := pipeline.New(opts)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	manager.Start(ctx, p)

	authManager := auth.New(cfg.APIKey)
	if authManager.Enabled() {
		log.Info("Submit tokens required")
	}

	srv := httpServer.New(manager, authManager, store, m, cfg.MediaRoot, log.WithField("component", "http"))

	log.WithField("addr", cfg.HTTPAddr).Info("API Endpoints: " + strings.Join([]string{
		"GET /api/ping",
		"POST /api/v1/tokens",
		"POST /api/v1/previews",
		"GET /api/v1/previews",
		"GET /api/v1/previews/:id",
		"GET /previews/:stem/:file",
		"GET /metrics",
	}, ", "))

	err = srv.Run(ctx, cfg.HTTPAddr)
	manager.Wait()
	if err != nil {
		return cli.Exit(fmt.Sprintf("HTTP server failed: %v", err), 1)
	}
	log.Info("Server stopped")
	return nil
}
