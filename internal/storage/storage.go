package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdougie/keyframes/internal/models"
)

const (
	ResultsFile  = "analysis_results.json"
	ManifestFile = "run.json"
	SummaryFile  = "summary.txt"
)

// Run describes one finished sampling run
type Run struct {
	ID        uuid.UUID
	VideoName string
	Policy    models.SamplingPolicy
	Result    *models.ExtractionResult
}

// Storage defines the interface for storing runs and analysis results
type Storage interface {
	// RecordRun stores the sampled frames of a run
	RecordRun(ctx context.Context, run Run) error

	// AddResult adds a single analysis result
	AddResult(ctx context.Context, result models.AnalysisResult) error

	// SaveSummary stores the summary built from all results of the run
	SaveSummary(ctx context.Context, summary string) error

	// Flush ensures all pending results are saved
	Flush() error
}

// manifest is the on-disk form of a Run
type manifest struct {
	RunID          string    `json:"run_id"`
	Video          string    `json:"video"`
	CreatedAt      time.Time `json:"created_at"`
	FrameRate      float64   `json:"frame_rate"`
	TotalFrames    int       `json:"total_frames"`
	Duration       float64   `json:"duration_seconds"`
	Mode           string    `json:"mode"`
	MaxFrames      int       `json:"max_frames"`
	MarginFraction float64   `json:"margin_fraction"`
	MarginFrames   int       `json:"margin_frames"`
	TrimmedStart   int       `json:"trimmed_start"`
	TrimmedFrames  int       `json:"trimmed_frames"`
	Stride         int       `json:"stride"`
	Indices        []int     `json:"indices"`
	Frames         []string  `json:"frames"`
}

// FileStorage writes results as JSON next to the frames of a video
type FileStorage struct {
	results   []models.AnalysisResult
	mu        sync.Mutex
	outputDir string
	videoName string
	batchSize int
}

// NewStorage creates a file storage under outputDir/videoName
func NewStorage(outputDir, videoName string, batchSize int) *FileStorage {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &FileStorage{
		results:   []models.AnalysisResult{},
		outputDir: outputDir,
		videoName: videoName,
		batchSize: batchSize,
	}
}

// Dir returns the directory results are written to
func (s *FileStorage) Dir() string {
	return filepath.Join(s.outputDir, s.videoName)
}

// RecordRun writes the run manifest and starts a fresh results file
func (s *FileStorage) RecordRun(ctx context.Context, run Run) error {
	if run.Result == nil {
		return fmt.Errorf("run %s has no extraction result", run.ID)
	}

	m := manifest{
		RunID:          run.ID.String(),
		Video:          run.Result.Metadata.Path,
		CreatedAt:      time.Now().UTC(),
		FrameRate:      run.Result.Metadata.FrameRate,
		TotalFrames:    run.Result.Metadata.TotalFrames,
		Duration:       run.Result.Metadata.Duration(),
		MaxFrames:      run.Policy.MaxFrames,
		MarginFraction: run.Policy.MarginFraction,
		MarginFrames:   run.Result.Plan.MarginFrames,
		TrimmedStart:   run.Result.Plan.TrimmedStart,
		TrimmedFrames:  run.Result.Plan.TrimmedFrames,
		Stride:         run.Result.Plan.Stride,
		Indices:        run.Result.Indices,
		Frames:         run.Result.FramePaths,
	}
	if run.Policy.Mode != nil {
		m.Mode = run.Policy.Mode.String()
	}

	if err := s.writeJSON(ManifestFile, m); err != nil {
		return err
	}

	// results of an earlier run belong to frames that no longer exist
	err := os.Remove(filepath.Join(s.Dir(), ResultsFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove previous results: %v", err)
	}
	return nil
}

// AddResult adds a result to the batch and flushes if the batch is full
func (s *FileStorage) AddResult(ctx context.Context, result models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)

	if len(s.results) >= s.batchSize {
		return s.flush()
	}
	return nil
}

// SaveSummary writes the summary as plain text
func (s *FileStorage) SaveSummary(ctx context.Context, summary string) error {
	if err := os.MkdirAll(s.Dir(), 0755); err != nil {
		return fmt.Errorf("failed to create directory for summary: %v", err)
	}
	return os.WriteFile(filepath.Join(s.Dir(), SummaryFile), []byte(summary+"\n"), 0644)
}

// Flush writes all pending results to disk
func (s *FileStorage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *FileStorage) flush() error {
	if len(s.results) == 0 {
		return nil
	}

	existing, err := s.LoadResults()
	if err != nil {
		return err
	}

	if err := s.writeJSON(ResultsFile, append(existing, s.results...)); err != nil {
		return err
	}

	s.results = nil
	return nil
}

// LoadResults reads the results flushed so far
func (s *FileStorage) LoadResults() ([]models.AnalysisResult, error) {
	var results []models.AnalysisResult

	data, err := os.ReadFile(filepath.Join(s.Dir(), ResultsFile))
	if errors.Is(err, os.ErrNotExist) {
		return results, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %v", err)
	}
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal existing results: %v", err)
	}
	return results, nil
}

func (s *FileStorage) writeJSON(name string, v any) error {
	if err := os.MkdirAll(s.Dir(), 0755); err != nil {
		return fmt.Errorf("failed to create directory for results: %v", err)
	}

	file, err := os.Create(filepath.Join(s.Dir(), name))
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %v", name, err)
	}
	return nil
}

// Multi fans every call out to all stores and joins their errors
type Multi []Storage

func (m Multi) RecordRun(ctx context.Context, run Run) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordRun(ctx, run))
	}
	return errors.Join(errs...)
}

func (m Multi) AddResult(ctx context.Context, result models.AnalysisResult) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.AddResult(ctx, result))
	}
	return errors.Join(errs...)
}

func (m Multi) SaveSummary(ctx context.Context, summary string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.SaveSummary(ctx, summary))
	}
	return errors.Join(errs...)
}

func (m Multi) Flush() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Flush())
	}
	return errors.Join(errs...)
}
