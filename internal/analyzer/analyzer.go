package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bdougie/keyframes/internal/extractor"
	"github.com/bdougie/keyframes/internal/metrics"
	"github.com/bdougie/keyframes/internal/models"
	"github.com/bdougie/keyframes/internal/storage"
)

const defaultWorkers = 4

// Report is the outcome of processing one video
type Report struct {
	RunID     uuid.UUID
	FramesDir string
	Result    *models.ExtractionResult
	Analyses  []models.AnalysisResult
	Summary   string
}

type Processor struct {
	model     VisionModel
	extractor *extractor.Extractor
	storage   storage.Storage
	logger    *slog.Logger
	workers   int
}

type Option func(*Processor)

func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a processor. model may be nil when only SampleVideo is used.
func NewProcessor(model VisionModel, ex *extractor.Extractor, store storage.Storage, opts ...Option) *Processor {
	p := &Processor{
		model:     model,
		extractor: ex,
		storage:   store,
		logger:    slog.Default(),
		workers:   defaultWorkers,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FramesDir returns the directory frames of videoPath are written to
func FramesDir(outputDir, videoPath string) string {
	return filepath.Join(outputDir, extractor.VideoName(videoPath), "frames")
}

// SampleVideo extracts frames from videoPath and records the run
func (p *Processor) SampleVideo(ctx context.Context, videoPath, outputDir string, policy models.SamplingPolicy) (*Report, error) {
	framesDir := FramesDir(outputDir, videoPath)
	p.logger.Info("getting frames from the video", "video", videoPath, "dir", framesDir)

	result, err := p.extractor.ExtractFrames(ctx, videoPath, framesDir, policy)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     uuid.New(),
		FramesDir: framesDir,
		Result:    result,
	}

	run := storage.Run{
		ID:        report.RunID,
		VideoName: extractor.VideoName(videoPath),
		Policy:    policy,
		Result:    result,
	}
	if err := p.storage.RecordRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	p.logger.Info("frames extracted", "count", len(result.FramePaths), "run_id", report.RunID)
	return report, nil
}

// ProcessVideo samples frames, analyzes each with the vision model and asks
// the model for a summary of all analyses
func (p *Processor) ProcessVideo(ctx context.Context, videoPath, outputDir string, policy models.SamplingPolicy) (*Report, error) {
	if p.model == nil {
		return nil, errors.New("no vision model configured")
	}

	report, err := p.SampleVideo(ctx, videoPath, outputDir, policy)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	analyses, err := p.processFrames(ctx, report.Result)
	metrics.StageDuration.WithLabelValues("analyze").Observe(time.Since(start).Seconds())
	report.Analyses = analyses
	if err != nil {
		return report, err
	}

	start = time.Now()
	summary, err := p.model.Complete(ctx, SummaryPrompt(CombineAnalyses(analyses)))
	metrics.StageDuration.WithLabelValues("summarize").Observe(time.Since(start).Seconds())
	if err != nil {
		return report, fmt.Errorf("failed to summarize analyses: %w", err)
	}
	report.Summary = summary

	if err := p.storage.SaveSummary(ctx, summary); err != nil {
		return report, fmt.Errorf("failed to save summary: %w", err)
	}

	return report, nil
}

// processFrames analyzes frames with a pool of workers. Results come back in
// frame order; failed frames are left out and reported together.
func (p *Processor) processFrames(ctx context.Context, result *models.ExtractionResult) ([]models.AnalysisResult, error) {
	total := len(result.FramePaths)

	workChan := make(chan models.WorkItem, total)
	resultsChan := make(chan models.AnalysisResult, total)
	errorsChan := make(chan error, total)

	var wg sync.WaitGroup

	remainingFrames := atomic.Int64{}
	remainingFrames.Store(int64(total))

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workChan {
				if err := ctx.Err(); err != nil {
					errorsChan <- fmt.Errorf("frame %d/%d skipped: %w", work.FrameNum, work.Total, err)
					continue
				}

				analysis, err := p.model.Describe(ctx, FramePrompt, work.FramePath)
				if err != nil {
					metrics.FramesAnalyzedTotal.WithLabelValues("failed").Inc()
					errorsChan <- fmt.Errorf("frame %d/%d failed: %w", work.FrameNum, work.Total, err)
					continue
				}
				metrics.FramesAnalyzedTotal.WithLabelValues("ok").Inc()

				resultsChan <- models.AnalysisResult{
					Frame:       filepath.Base(work.FramePath),
					SourceIndex: work.SourceIndex,
					Content:     analysis,
				}

				remaining := remainingFrames.Add(-1)
				p.logger.Info("frame analyzed", "frame", work.FrameNum, "remaining", remaining, "total", work.Total)
			}
		}()
	}

	for i, path := range result.FramePaths {
		workChan <- models.WorkItem{
			FramePath:   path,
			SourceIndex: result.Indices[i],
			FrameNum:    i + 1,
			Total:       total,
		}
	}
	close(workChan)

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	byIndex := make(map[int]models.AnalysisResult, total)
	for r := range resultsChan {
		byIndex[r.SourceIndex] = r
	}

	var storeErrs []error
	analyses := make([]models.AnalysisResult, 0, len(byIndex))
	for _, index := range result.Indices {
		r, ok := byIndex[index]
		if !ok {
			continue
		}
		analyses = append(analyses, r)
		if err := p.storage.AddResult(ctx, r); err != nil {
			storeErrs = append(storeErrs, err)
		}
	}

	if err := p.storage.Flush(); err != nil {
		storeErrs = append(storeErrs, err)
	}
	if len(storeErrs) > 0 {
		return analyses, fmt.Errorf("failed to store results: %w", errors.Join(storeErrs...))
	}

	var errorMessages []string
	for err := range errorsChan {
		errorMessages = append(errorMessages, err.Error())
	}
	if len(errorMessages) > 0 {
		return analyses, fmt.Errorf("encountered errors during processing: %v", strings.Join(errorMessages, "; "))
	}

	return analyses, nil
}
