package extractor

import (
	"image"
	"image/color"
)

// scriptedSource reports frameCount frames at fps but only decodes the first
// decodable of them. Every frame carries its index in the top-left pixel.
type scriptedSource struct {
	fps        float64
	frameCount int
	decodable  int
	reuse      bool
	// torn makes the failing read overwrite the shared buffer, like a
	// decoder hitting a truncated last frame
	torn bool

	reads  int
	closed int
	buf    *image.RGBA
}

func newScriptedSource(fps float64, frameCount, decodable int) *scriptedSource {
	return &scriptedSource{fps: fps, frameCount: frameCount, decodable: decodable}
}

func (s *scriptedSource) FrameRate() float64 { return s.fps }
func (s *scriptedSource) FrameCount() int    { return s.frameCount }
func (s *scriptedSource) Size() (int, int)   { return 4, 2 }

func (s *scriptedSource) Read() (image.Image, bool) {
	if s.reads >= s.decodable {
		if s.torn && s.buf != nil {
			s.buf.Set(0, 0, indexColor(s.frameCount+1))
		}
		return nil, false
	}
	img := s.buf
	if img == nil || !s.reuse {
		img = image.NewRGBA(image.Rect(0, 0, 4, 2))
		s.buf = img
	}
	img.Set(0, 0, indexColor(s.reads))
	s.reads++
	return img, true
}

func (s *scriptedSource) Close() error {
	s.closed++
	return nil
}

func (s *scriptedSource) opener() Opener {
	return func(string) (FrameSource, error) {
		return s, nil
	}
}

func indexColor(index int) color.RGBA {
	return color.RGBA{R: uint8(index % 256), G: uint8(index / 256), B: 0, A: 255}
}

func pixelIndex(img image.Image) int {
	r, g, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	return int(r>>8) + int(g>>8)*256
}
