package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/keyframes/internal/models"
)

func testRun() Run {
	return Run{
		ID:        uuid.New(),
		VideoName: "clip",
		Policy:    models.NewPolicy(0, 5),
		Result: &models.ExtractionResult{
			Metadata:   models.VideoMetadata{Path: "clip.mp4", FrameRate: 30, TotalFrames: 300},
			Plan:       models.SamplingPlan{MarginFrames: 9, TrimmedStart: 9, TrimmedFrames: 282, Stride: 70},
			Indices:    []int{9, 79},
			FramePaths: []string{"frames/temp_frame_9.jpg", "frames/temp_frame_79.jpg"},
		},
	}
}

func TestFileStorage_RecordRun(t *testing.T) {
	s := NewStorage(t.TempDir(), "clip", 10)
	run := testRun()

	require.NoError(t, s.RecordRun(context.Background(), run))

	data, err := os.ReadFile(filepath.Join(s.Dir(), ManifestFile))
	require.NoError(t, err)

	var m manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, run.ID.String(), m.RunID)
	assert.Equal(t, "even-spacing", m.Mode)
	assert.Equal(t, 70, m.Stride)
	assert.Equal(t, []int{9, 79}, m.Indices)
	assert.InDelta(t, 10.0, m.Duration, 1e-9)
}

func TestFileStorage_RecordRunClearsOldResults(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(t.TempDir(), "clip", 10)

	require.NoError(t, s.AddResult(ctx, models.AnalysisResult{Frame: "temp_frame_3.jpg", SourceIndex: 3, Content: "old"}))
	require.NoError(t, s.Flush())

	require.NoError(t, s.RecordRun(ctx, testRun()))

	results, err := s.LoadResults()
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFileStorage_Batches(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(t.TempDir(), "clip", 2)

	require.NoError(t, s.AddResult(ctx, models.AnalysisResult{Frame: "temp_frame_9.jpg", SourceIndex: 9, Content: "a"}))

	results, err := s.LoadResults()
	require.NoError(t, err)
	assert.Empty(t, results, "first result stays in the batch")

	require.NoError(t, s.AddResult(ctx, models.AnalysisResult{Frame: "temp_frame_79.jpg", SourceIndex: 79, Content: "b"}))
	require.NoError(t, s.AddResult(ctx, models.AnalysisResult{Frame: "temp_frame_149.jpg", SourceIndex: 149, Content: "c"}))

	results, err = s.LoadResults()
	require.NoError(t, err)
	assert.Len(t, results, 2)

	require.NoError(t, s.Flush())
	results, err = s.LoadResults()
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []int{9, 79, 149}, []int{results[0].SourceIndex, results[1].SourceIndex, results[2].SourceIndex})
}

func TestFileStorage_SaveSummary(t *testing.T) {
	s := NewStorage(t.TempDir(), "clip", 10)

	require.NoError(t, s.SaveSummary(context.Background(), "A person walks a dog."))

	data, err := os.ReadFile(filepath.Join(s.Dir(), SummaryFile))
	require.NoError(t, err)
	assert.Equal(t, "A person walks a dog.\n", string(data))
}

type failingStorage struct{ err error }

func (f failingStorage) RecordRun(context.Context, Run) error                   { return f.err }
func (f failingStorage) AddResult(context.Context, models.AnalysisResult) error { return f.err }
func (f failingStorage) SaveSummary(context.Context, string) error              { return f.err }
func (f failingStorage) Flush() error                                           { return f.err }

func TestMulti(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	file := NewStorage(t.TempDir(), "clip", 1)
	m := Multi{file, failingStorage{err: boom}}

	err := m.AddResult(ctx, models.AnalysisResult{Frame: "temp_frame_9.jpg", SourceIndex: 9, Content: "a"})
	assert.ErrorIs(t, err, boom)

	results, err := file.LoadResults()
	require.NoError(t, err)
	assert.Len(t, results, 1, "healthy stores still receive the result")

	assert.NoError(t, Multi{file}.Flush())
}
