package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"

	"github.com/alecthomas/kong"
	"github.com/schollz/progressbar/v3"

	"github.com/bdougie/keyframes/internal/analyzer"
	"github.com/bdougie/keyframes/internal/config"
	"github.com/bdougie/keyframes/internal/embeddings"
	"github.com/bdougie/keyframes/internal/extractor"
	"github.com/bdougie/keyframes/internal/metrics"
	"github.com/bdougie/keyframes/internal/models"
	"github.com/bdougie/keyframes/internal/publish"
	"github.com/bdougie/keyframes/internal/storage"
)

type Globals struct {
	Output      string `short:"o" help:"Directory frames and results are written to" default:"output_frames" type:"path"`
	Debug       bool   `help:"Enable debug logging"`
	MetricsAddr string `help:"Serve Prometheus metrics on this address, e.g. :9090"`
}

type CLI struct {
	Globals

	Sample  SampleCmd  `cmd:"" help:"Sample key frames from videos"`
	Analyze AnalyzeCmd `cmd:"" help:"Sample key frames, describe them with a vision model and summarize"`
	Similar SimilarCmd `cmd:"" help:"Find stored frames similar to an image"`
	InitDB  InitDBCmd  `cmd:"" name:"init-db" help:"Create the database schema"`
}

// SamplingFlags are shared by the commands that extract frames
type SamplingFlags struct {
	Videos    []string `arg:"" name:"video" help:"Video files to process" type:"existingfile"`
	Interval  float64  `help:"Seconds between sampled frames, 0 spreads max-frames evenly" default:"0"`
	MaxFrames int      `help:"Maximum number of frames per video" default:"5"`
	Margin    float64  `help:"Fraction of frames skipped at each end of the video" default:"0.03"`
}

func (f SamplingFlags) policy() models.SamplingPolicy {
	p := models.NewPolicy(f.Interval, f.MaxFrames)
	p.MarginFraction = f.Margin
	return p
}

// App carries what every command needs
type App struct {
	*Globals
	cfg       *config.Config
	logger    *slog.Logger
	publisher *publish.Publisher
}

type SampleCmd struct {
	SamplingFlags
}

func (c *SampleCmd) Run(ctx context.Context, app *App) error {
	return app.eachVideo(ctx, c.Videos, func(p *analyzer.Processor, video string) (*analyzer.Report, error) {
		return p.SampleVideo(ctx, video, app.Output, c.policy())
	}, nil)
}

type AnalyzeCmd struct {
	SamplingFlags
}

func (c *AnalyzeCmd) Run(ctx context.Context, app *App) error {
	visionAgent, err := analyzer.NewAgent(ctx, app.logger, analyzer.AgentConfig{
		BaseURL: app.cfg.OllamaBaseURL,
		Port:    app.cfg.OllamaPort,
		Model:   app.cfg.VisionModel,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vision agent: %w", err)
	}

	fmt.Printf("Starting video analysis...\n")
	return app.eachVideo(ctx, c.Videos, func(p *analyzer.Processor, video string) (*analyzer.Report, error) {
		return p.ProcessVideo(ctx, video, app.Output, c.policy())
	}, visionAgent)
}

type SimilarCmd struct {
	Image string `arg:"" help:"Image to compare against stored frames" type:"existingfile"`
	Limit int    `help:"Number of frames to return" default:"5"`
}

func (c *SimilarCmd) Run(ctx context.Context, app *App) error {
	if app.cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}

	results, err := storage.SearchSimilarFrames(ctx, app.cfg.DatabaseURL, c.Image, c.Limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No frames stored yet")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%.3f  %s  frame %d  %s\n", r.Similarity, r.VideoName, r.FrameNumber, r.FramePath)
		if r.Description != "" {
			fmt.Printf("       %s\n", r.Description)
		}
	}
	return nil
}

type InitDBCmd struct{}

func (c *InitDBCmd) Run(ctx context.Context, app *App) error {
	if app.cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	if err := storage.InitSchema(ctx, app.cfg.DatabaseURL); err != nil {
		return err
	}
	fmt.Println("Database schema is ready")
	return nil
}

type runFunc func(p *analyzer.Processor, videoPath string) (*analyzer.Report, error)

// eachVideo runs fn for every video with its own storage and progress bar.
// A failed video does not stop the others; all failures are returned together.
func (app *App) eachVideo(ctx context.Context, videos []string, fn runFunc, model analyzer.VisionModel) error {
	var signatures *embeddings.Service
	if app.cfg.DatabaseURL != "" {
		signatures = embeddings.NewService(app.cfg.MaxWorkers)
		defer signatures.Close()
	}

	var errs []error
	for _, video := range videos {
		if err := app.runVideo(ctx, video, fn, model, signatures); err != nil {
			app.logger.Error("error processing video", "video", video, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", video, err))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Join(errs...)
}

func (app *App) runVideo(ctx context.Context, video string, fn runFunc, model analyzer.VisionModel, signatures *embeddings.Service) error {
	videoName := extractor.VideoName(video)

	fileStore := storage.NewStorage(app.Output, videoName, app.cfg.BatchSize)
	store := storage.Multi{fileStore}
	if signatures != nil {
		pg, err := storage.NewPostgresStorage(ctx, app.cfg.DatabaseURL, videoName, signatures)
		if err != nil {
			return err
		}
		defer pg.Close()
		store = append(store, pg)
	}

	var bar *progressbar.ProgressBar
	ex := extractor.New(
		extractor.WithLogger(app.logger),
		extractor.WithWriteOptions(extractor.WriteOptions{
			JPEGQuality: app.cfg.JPEGQuality,
			MaxWidth:    app.cfg.MaxFrameWidth,
		}),
		extractor.WithProgress(func(index, total int) {
			if bar == nil {
				bar = newProgressBar(total, "decoding "+videoName)
			}
			_ = bar.Set(index + 1)
		}),
	)

	processor := analyzer.NewProcessor(model, ex, store,
		analyzer.WithWorkers(app.cfg.MaxWorkers),
		analyzer.WithLogger(app.logger),
	)

	report, err := fn(processor, video)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d frames written to %s\n", videoName, len(report.Result.FramePaths), report.FramesDir)
	if report.Summary != "" {
		fmt.Printf("\nSummary of %s:\n%s\n", videoName, report.Summary)
	}

	if app.publisher != nil {
		prefix := path.Join(videoName, report.RunID.String())
		keys, err := app.publisher.PublishDir(ctx, fileStore.Dir(), prefix)
		if err != nil {
			return fmt.Errorf("failed to publish run: %w", err)
		}
		app.logger.Info("run published", "objects", len(keys), "prefix", prefix)
	}

	return nil
}

func newProgressBar(max int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("visionanalyzer"),
		kong.Description("Sample representative frames from videos and describe them with a vision model."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if cli.Debug {
		level = slog.LevelDebug
	}
	logger := config.NewLogger(os.Stderr, level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cli.MetricsAddr == "" {
		cli.MetricsAddr = cfg.MetricsAddr
	}
	if cli.MetricsAddr != "" {
		srv := metrics.StartServer(cli.MetricsAddr, logger)
		defer srv.Shutdown(context.Background())
	}

	app := &App{Globals: &cli.Globals, cfg: cfg, logger: logger}

	if cfg.MinIOEndpoint != "" {
		app.publisher, err = publish.New(publish.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
			Bucket:    cfg.MinIOBucket,
		})
		if err == nil {
			err = app.publisher.EnsureBucket(ctx)
		}
		if err != nil {
			logger.Error("failed to set up publishing", "err", err)
			os.Exit(1)
		}
	}

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(app); err != nil {
		logger.Error("command failed", "err", err)
		stop()
		os.Exit(1)
	}
}
