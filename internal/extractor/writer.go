package extractor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/bdougie/keyframes/internal/models"
)

const defaultJPEGQuality = 95

// WriteOptions controls how sampled frames are encoded
type WriteOptions struct {
	// JPEGQuality in 1..100, zero selects the default
	JPEGQuality int

	// MaxWidth downsizes wider frames keeping the aspect ratio, zero keeps the original size
	MaxWidth int
}

// FrameFileName returns the file name used for the frame at index
func FrameFileName(index int) string {
	return fmt.Sprintf("temp_frame_%d.jpg", index)
}

// ResetDir removes everything under dir, creating it when it does not exist
func ResetDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// WriteFrames resets dir and writes every frame into it as a JPEG named after
// its source index. The returned paths follow the order of frames. Files
// written before a failure are left in place.
func WriteFrames(dir string, frames []models.SampledFrame, opts WriteOptions) ([]string, error) {
	if err := ResetDir(dir); err != nil {
		return nil, fmt.Errorf("%w: failed to reset frame directory '%s': %v", ErrWriteFailure, dir, err)
	}

	quality := opts.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}

	paths := make([]string, 0, len(frames))
	for _, frame := range frames {
		img := frame.Image
		if opts.MaxWidth > 0 && img.Bounds().Dx() > opts.MaxWidth {
			img = imaging.Resize(img, opts.MaxWidth, 0, imaging.Lanczos)
		}

		path := filepath.Join(dir, FrameFileName(frame.SourceIndex))
		if err := imaging.Save(img, path, imaging.JPEGQuality(quality)); err != nil {
			return paths, fmt.Errorf("%w: failed to save frame %d to '%s': %v", ErrWriteFailure, frame.SourceIndex, path, err)
		}
		paths = append(paths, path)
	}

	return paths, nil
}
