package extractor

import (
	"fmt"
	"math"

	"github.com/bdougie/keyframes/internal/models"
)

// Probe opens path and reads its metadata. On success the caller owns the
// returned source and must close it; on failure nothing is left open.
func Probe(path string, open Opener) (FrameSource, models.VideoMetadata, error) {
	src, err := open(path)
	if err != nil {
		return nil, models.VideoMetadata{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	width, height := src.Size()
	meta := models.VideoMetadata{
		Path:        path,
		FrameRate:   src.FrameRate(),
		TotalFrames: src.FrameCount(),
		Width:       width,
		Height:      height,
	}

	if !(meta.FrameRate > 0) || math.IsInf(meta.FrameRate, 0) {
		_ = src.Close()
		return nil, models.VideoMetadata{}, fmt.Errorf("%w: '%s' reports frame rate %g", ErrSourceUnavailable, path, meta.FrameRate)
	}
	if meta.TotalFrames <= 0 {
		_ = src.Close()
		return nil, models.VideoMetadata{}, fmt.Errorf("%w: '%s' reports %d frames", ErrSourceUnavailable, path, meta.TotalFrames)
	}

	return src, meta, nil
}
