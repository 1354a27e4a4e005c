package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/keyframes/internal/models"
)

func sampleScripted(t *testing.T, src *scriptedSource, policy models.SamplingPolicy) ([]models.SampledFrame, error) {
	t.Helper()
	plan, err := Plan(models.VideoMetadata{FrameRate: src.fps, TotalFrames: src.frameCount}, policy)
	require.NoError(t, err)
	return Sample(context.Background(), NewCursor(src), plan, policy)
}

func sourceIndices(frames []models.SampledFrame) []int {
	indices := make([]int, len(frames))
	for i, f := range frames {
		indices[i] = f.SourceIndex
	}
	return indices
}

func TestSample(t *testing.T) {
	tests := []struct {
		name      string
		fps       float64
		total     int
		decodable int
		policy    models.SamplingPolicy
		want      []int
	}{
		{
			name:      "even spacing",
			fps:       30,
			total:     300,
			decodable: 300,
			policy:    models.NewPolicy(0, 5),
			want:      []int{9, 79, 149, 219, 289},
		},
		{
			name:      "fixed interval keeps the last decoded frame",
			fps:       30,
			total:     300,
			decodable: 300,
			policy:    models.NewPolicy(3, 10),
			want:      []int{9, 99, 189, 279, 290},
		},
		{
			name:      "fixed interval at the frame limit replaces the last strided frame",
			fps:       30,
			total:     300,
			decodable: 300,
			policy:    models.NewPolicy(3, 3),
			want:      []int{9, 99, 290},
		},
		{
			name:      "zero margin samples the full range",
			fps:       30,
			total:     10,
			decodable: 10,
			policy:    models.NewPolicy(0, 5),
			want:      []int{0, 2, 4, 6, 8},
		},
		{
			name:      "two frames keep first and last",
			fps:       30,
			total:     10,
			decodable: 10,
			policy:    models.NewPolicy(0, 2),
			want:      []int{0, 9},
		},
		{
			name:      "one frame ends on the last decoded frame",
			fps:       30,
			total:     300,
			decodable: 300,
			policy:    models.NewPolicy(0, 1),
			want:      []int{290},
		},
		{
			name:      "stream shorter than reported",
			fps:       30,
			total:     300,
			decodable: 280,
			policy:    models.NewPolicy(0, 5),
			want:      []int{9, 79, 149, 219},
		},
		{
			name:      "stream shorter than reported with fixed interval",
			fps:       30,
			total:     300,
			decodable: 280,
			policy:    models.NewPolicy(3, 3),
			want:      []int{9, 99, 279},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newScriptedSource(tt.fps, tt.total, tt.decodable)

			frames, err := sampleScripted(t, src, tt.policy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sourceIndices(frames))

			for _, f := range frames {
				assert.Equal(t, f.SourceIndex, pixelIndex(f.Image), "frame %d carries another frame's pixels", f.SourceIndex)
			}
		})
	}
}

// The trailing frame rule (fixed interval, or fewer than three frames) is kept
// as inherited behaviour pending confirmation from the consumers of the frames.
func TestSample_TrailingFrameRule(t *testing.T) {
	tests := []struct {
		name   string
		policy models.SamplingPolicy
		keeps  bool
	}{
		{name: "fixed interval", policy: models.NewPolicy(2, 10), keeps: true},
		{name: "one frame", policy: models.NewPolicy(0, 1), keeps: true},
		{name: "two frames", policy: models.NewPolicy(0, 2), keeps: true},
		{name: "three frames", policy: models.NewPolicy(0, 3), keeps: false},
		{name: "many frames", policy: models.NewPolicy(0, 9), keeps: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.keeps, tt.policy.KeepsTrailingFrame())

			// 302 frames: no even stride lands on 292, the end of the trimmed window
			src := newScriptedSource(30, 302, 302)
			frames, err := sampleScripted(t, src, tt.policy)
			require.NoError(t, err)

			last := frames[len(frames)-1].SourceIndex
			if tt.keeps {
				assert.Equal(t, 292, last)
			} else {
				assert.NotEqual(t, 292, last)
			}
		})
	}
}

func TestSample_TrailingFrameIsNotDuplicated(t *testing.T) {
	// stride 3 over 0..9 lands on 9, the last decoded frame
	src := newScriptedSource(1, 10, 10)

	frames, err := sampleScripted(t, src, models.NewPolicy(3, 10))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3, 6, 9}, sourceIndices(frames))
}

func TestSample_NoFramesDecoded(t *testing.T) {
	tests := []struct {
		name      string
		decodable int
	}{
		{name: "empty stream", decodable: 0},
		{name: "stream ends inside the margin", decodable: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newScriptedSource(30, 300, tt.decodable)
			_, err := sampleScripted(t, src, models.NewPolicy(3, 5))
			assert.ErrorIs(t, err, ErrNoFramesDecoded)
		})
	}
}

func TestSample_StopsDecodingOnceFull(t *testing.T) {
	src := newScriptedSource(30, 300, 300)

	frames, err := sampleScripted(t, src, models.NewPolicy(0, 5))
	require.NoError(t, err)
	assert.Len(t, frames, 5)
	assert.Equal(t, 290, src.reads)
}

func TestSample_ClonesReusedBuffers(t *testing.T) {
	src := newScriptedSource(30, 300, 300)
	src.reuse = true

	frames, err := sampleScripted(t, src, models.NewPolicy(3, 10))
	require.NoError(t, err)

	for _, f := range frames {
		assert.Equal(t, f.SourceIndex, pixelIndex(f.Image))
	}
}

func TestSample_TrailingFrameSurvivesTornRead(t *testing.T) {
	src := newScriptedSource(30, 300, 280)
	src.reuse = true
	src.torn = true

	frames, err := sampleScripted(t, src, models.NewPolicy(3, 3))
	require.NoError(t, err)

	last := frames[len(frames)-1]
	assert.Equal(t, 279, last.SourceIndex)
	assert.Equal(t, 279, pixelIndex(last.Image))
	for _, f := range frames {
		assert.Equal(t, f.SourceIndex, pixelIndex(f.Image))
	}
}

func TestSample_Cancelled(t *testing.T) {
	src := newScriptedSource(30, 300, 300)
	policy := models.NewPolicy(0, 5)
	plan, err := Plan(models.VideoMetadata{FrameRate: 30, TotalFrames: 300}, policy)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Sample(ctx, NewCursor(src), plan, policy)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, src.reads)
}

func TestSample_OutputInvariants(t *testing.T) {
	for _, total := range []int{1, 2, 3, 10, 33, 100, 301, 1000} {
		for _, missing := range []int{0, 1, 20} {
			for maxFrames := 1; maxFrames <= 8; maxFrames++ {
				for _, interval := range []float64{0, 0.5, 1, 7} {
					decodable := total - missing
					if decodable < 0 {
						decodable = 0
					}
					src := newScriptedSource(24, total, decodable)
					policy := models.NewPolicy(interval, maxFrames)

					plan, err := Plan(models.VideoMetadata{FrameRate: 24, TotalFrames: total}, policy)
					require.NoError(t, err)

					frames, err := Sample(context.Background(), NewCursor(src), plan, policy)
					if err != nil {
						require.ErrorIs(t, err, ErrNoFramesDecoded)
						continue
					}

					require.NotEmpty(t, frames)
					assert.LessOrEqual(t, len(frames), maxFrames)
					assert.GreaterOrEqual(t, frames[0].SourceIndex, plan.TrimmedStart)
					for i := 1; i < len(frames); i++ {
						assert.Greater(t, frames[i].SourceIndex, frames[i-1].SourceIndex)
					}
				}
			}
		}
	}
}
