package extractor

import (
	"fmt"
	"image"
	"os"

	vidio "github.com/AlexEidt/Vidio"
)

// FrameSource is a forward-only decoder yielding frames in index order
type FrameSource interface {
	FrameRate() float64
	FrameCount() int
	Size() (width, height int)

	// Read decodes the next frame. The returned image may be reused by the
	// next call, including a failed one. ok is false once the stream is
	// exhausted or broken.
	Read() (frame image.Image, ok bool)

	Close() error
}

// Opener opens a video file for sequential decoding
type Opener func(path string) (FrameSource, error)

// vidioSource decodes through an ffmpeg process. Frames are written into a
// single RGBA buffer that is overwritten on every read.
type vidioSource struct {
	video *vidio.Video
	frame *image.RGBA
}

// OpenVidio opens path with ffmpeg/ffprobe. Both binaries must be on PATH.
func OpenVidio(path string) (FrameSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("video file does not exist at path: '%s': %w", path, err)
	}

	video, err := vidio.NewVideo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video '%s': %w", path, err)
	}

	frame := image.NewRGBA(image.Rect(0, 0, video.Width(), video.Height()))
	if err := video.SetFrameBuffer(frame.Pix); err != nil {
		video.Close()
		return nil, fmt.Errorf("failed to set frame buffer: %w", err)
	}

	return &vidioSource{video: video, frame: frame}, nil
}

func (s *vidioSource) FrameRate() float64 {
	return s.video.FPS()
}

func (s *vidioSource) FrameCount() int {
	return s.video.Frames()
}

func (s *vidioSource) Size() (int, int) {
	return s.video.Width(), s.video.Height()
}

func (s *vidioSource) Read() (image.Image, bool) {
	if !s.video.Read() {
		return nil, false
	}
	return s.frame, true
}

func (s *vidioSource) Close() error {
	s.video.Close()
	return nil
}
