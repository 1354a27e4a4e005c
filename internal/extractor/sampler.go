package extractor

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"

	"github.com/bdougie/keyframes/internal/models"
)

// Sample walks the cursor through the trimmed window of plan and returns the
// frames landing on the stride, at most policy.MaxFrames of them.
//
// When the policy keeps a trailing frame, the last decoded frame of the window
// is added after the loop unless it was already selected. If the output is
// full it replaces the last strided frame. An early end of stream is not an
// error as long as one frame inside the window was decoded.
func Sample(ctx context.Context, cur *Cursor, plan models.SamplingPlan, policy models.SamplingPolicy) ([]models.SampledFrame, error) {
	if plan.Stride < 1 {
		return nil, fmt.Errorf("%w: stride %d", ErrInvalidPolicy, plan.Stride)
	}
	if policy.MaxFrames < 1 {
		return nil, fmt.Errorf("%w: max frames %d", ErrInvalidPolicy, policy.MaxFrames)
	}

	if _, err := cur.Skip(ctx, plan.TrimmedStart-cur.Index()); err != nil {
		return nil, err
	}

	trailing := policy.KeepsTrailingFrame()

	var (
		frames    []models.SampledFrame
		last      *image.RGBA
		lastIndex = -1
	)

	for cur.Index() < plan.End() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, index, ok := cur.Read()
		if !ok {
			break
		}
		lastIndex = index
		if trailing {
			// a failed read may still write into the decoder's buffer
			last = copyFrame(last, frame)
		}

		if (index-plan.TrimmedStart)%plan.Stride != 0 || len(frames) >= policy.MaxFrames {
			continue
		}

		frames = append(frames, models.SampledFrame{
			Image:       imaging.Clone(frame),
			SourceIndex: index,
		})

		if len(frames) == policy.MaxFrames && !trailing {
			break
		}
	}

	if lastIndex < 0 {
		return nil, fmt.Errorf("%w: stream ended before frame %d", ErrNoFramesDecoded, plan.TrimmedStart)
	}

	if trailing {
		frames = withTrailingFrame(frames, last, lastIndex, policy.MaxFrames)
	}

	return frames, nil
}

// copyFrame copies src into dst, allocating dst when its bounds differ
func copyFrame(dst *image.RGBA, src image.Image) *image.RGBA {
	b := src.Bounds()
	if dst == nil || dst.Bounds() != b {
		dst = image.NewRGBA(b)
	}
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}

// withTrailingFrame takes ownership of last
func withTrailingFrame(frames []models.SampledFrame, last image.Image, index, maxFrames int) []models.SampledFrame {
	n := len(frames)
	if n > 0 && frames[n-1].SourceIndex == index {
		return frames
	}

	trailing := models.SampledFrame{
		Image:       last,
		SourceIndex: index,
	}
	if n < maxFrames {
		return append(frames, trailing)
	}
	frames[n-1] = trailing
	return frames
}
