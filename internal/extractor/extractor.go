package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/bdougie/keyframes/internal/metrics"
	"github.com/bdougie/keyframes/internal/models"
)

// ProgressFunc receives the index of each decoded frame and the number of
// frames the video reports
type ProgressFunc func(index, total int)

// Extractor samples frames from videos and writes them to disk
type Extractor struct {
	open     Opener
	logger   *slog.Logger
	write    WriteOptions
	progress ProgressFunc
}

type Option func(*Extractor)

// WithOpener replaces the ffmpeg backed decoder
func WithOpener(open Opener) Option {
	return func(e *Extractor) {
		e.open = open
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

func WithWriteOptions(opts WriteOptions) Option {
	return func(e *Extractor) {
		e.write = opts
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(e *Extractor) {
		e.progress = fn
	}
}

// New creates an extractor decoding with OpenVidio unless configured otherwise
func New(opts ...Option) *Extractor {
	e := &Extractor{
		open:   OpenVidio,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// VideoName returns the file name of videoPath without its extension
func VideoName(videoPath string) string {
	return strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
}

// ExtractFrames samples videoPath according to policy and writes the frames to
// framesDir, which is emptied first. The decoder is closed on every return path.
func (e *Extractor) ExtractFrames(ctx context.Context, videoPath, framesDir string, policy models.SamplingPolicy) (*models.ExtractionResult, error) {
	result, err := e.extract(ctx, videoPath, framesDir, policy)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.RunsTotal.WithLabelValues("completed").Inc()
	return result, nil
}

func (e *Extractor) extract(ctx context.Context, videoPath, framesDir string, policy models.SamplingPolicy) (*models.ExtractionResult, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	src, meta, err := Probe(videoPath, e.open)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			e.logger.Warn("failed to close video", "path", videoPath, "err", err)
		}
	}()

	e.logger.Debug("video data",
		"path", videoPath,
		"fps", meta.FrameRate,
		"total_frames", meta.TotalFrames,
		"length", fmt.Sprintf("%.1fs", meta.Duration()),
		"size", fmt.Sprintf("%dx%d", meta.Width, meta.Height),
	)

	plan, err := Plan(meta, policy)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("sampling plan",
		"mode", policy.Mode.String(),
		"max_frames", policy.MaxFrames,
		"margin_frames", plan.MarginFrames,
		"trimmed_start", plan.TrimmedStart,
		"trimmed_frames", plan.TrimmedFrames,
		"stride", plan.Stride,
	)

	cur := NewCursor(src)
	cur.Observe(func(index int) {
		metrics.FramesDecodedTotal.Inc()
		if e.progress != nil {
			e.progress(index, meta.TotalFrames)
		}
	})

	start := time.Now()
	frames, err := Sample(ctx, cur, plan, policy)
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("sample").Observe(time.Since(start).Seconds())

	start = time.Now()
	paths, err := WriteFrames(framesDir, frames, e.write)
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("write").Observe(time.Since(start).Seconds())
	metrics.FramesSampledTotal.Add(float64(len(paths)))

	indices := make([]int, len(frames))
	for i, frame := range frames {
		indices[i] = frame.SourceIndex
	}

	e.logger.Debug("frames written", "dir", framesDir, "paths", paths)

	return &models.ExtractionResult{
		Metadata:   meta,
		Plan:       plan,
		Indices:    indices,
		FramePaths: paths,
	}, nil
}
