package extractor

import (
	"fmt"
	"math"

	"github.com/bdougie/keyframes/internal/models"
)

// Plan computes the trimmed frame window and the stride between sampled frames.
// It has no side effects; equal inputs always give equal plans.
func Plan(meta models.VideoMetadata, policy models.SamplingPolicy) (models.SamplingPlan, error) {
	if err := policy.Validate(); err != nil {
		return models.SamplingPlan{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	margin := int(math.Floor(policy.MarginFraction * float64(meta.TotalFrames)))
	trimmed := meta.TotalFrames - 2*margin
	if trimmed <= 0 {
		return models.SamplingPlan{}, fmt.Errorf(
			"%w: %d frames leave nothing after a %g margin on each end, reduce the margin",
			ErrInsufficientFrames, meta.TotalFrames, policy.MarginFraction)
	}

	var stride int
	switch mode := policy.Mode.(type) {
	case models.EvenSpacing:
		if policy.MaxFrames > 1 {
			stride = trimmed / (policy.MaxFrames - 1)
		} else {
			stride = trimmed
		}
	case models.FixedInterval:
		stride = int(math.Floor(mode.Seconds * meta.FrameRate))
	}

	// intervals shorter than one frame
	if stride < 1 {
		stride = 1
	}

	return models.SamplingPlan{
		MarginFrames:  margin,
		TrimmedStart:  margin,
		TrimmedFrames: trimmed,
		Stride:        stride,
	}, nil
}
