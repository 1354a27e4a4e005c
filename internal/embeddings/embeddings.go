package embeddings

import (
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
)

// SignatureSide is the edge of the grayscale thumbnail a signature is built from
const SignatureSide = 4

// Dimensions is the length of a frame signature
const Dimensions = SignatureSide * SignatureSide

// Result represents the result of signature generation
type Result struct {
	Path      string
	Signature []float32
	Error     error
}

// Work represents a unit of signature work
type Work struct {
	Path   string
	Result chan<- Result
}

// Service computes frame signatures with a pool of workers and caches them by path
type Service struct {
	numWorkers int
	workQueue  chan Work
	cache      sync.Map
	wg         sync.WaitGroup
}

// NewService creates a new signature service with the specified number of workers
func NewService(numWorkers int) *Service {
	if numWorkers <= 0 {
		numWorkers = 4
	}

	service := &Service{
		numWorkers: numWorkers,
		workQueue:  make(chan Work, 100),
	}

	service.startWorkers()

	return service
}

func (s *Service) startWorkers() {
	for i := 0; i < s.numWorkers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for work := range s.workQueue {
				if cached, ok := s.cache.Load(work.Path); ok {
					work.Result <- Result{
						Path:      work.Path,
						Signature: cached.([]float32),
					}
					continue
				}

				signature, err := FileSignature(work.Path)
				if err == nil {
					s.cache.Store(work.Path, signature)
				}

				work.Result <- Result{
					Path:      work.Path,
					Signature: signature,
					Error:     err,
				}
			}
		}()
	}
}

// GetSignature requests the signature of the image at path asynchronously
func (s *Service) GetSignature(path string) <-chan Result {
	resultChan := make(chan Result, 1)

	select {
	case s.workQueue <- Work{
		Path:   path,
		Result: resultChan,
	}:
	default:
		resultChan <- Result{
			Path:  path,
			Error: fmt.Errorf("signature queue is full, try again later"),
		}
		close(resultChan)
	}

	return resultChan
}

// Close shuts down the service and waits for all workers to finish
func (s *Service) Close() {
	if s.workQueue != nil {
		close(s.workQueue)
	}
	s.wg.Wait()
}

// FileSignature decodes the image at path and returns its signature
func FileSignature(path string) ([]float32, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame '%s': %w", path, err)
	}
	return Signature(img), nil
}

// Signature returns the mean luminance of each cell of a 4x4 grid over img,
// scaled to [0,1]
func Signature(img image.Image) []float32 {
	thumb := imaging.Grayscale(imaging.Resize(img, SignatureSide, SignatureSide, imaging.Box))

	signature := make([]float32, 0, Dimensions)
	for y := 0; y < SignatureSide; y++ {
		for x := 0; x < SignatureSide; x++ {
			// grayscale keeps R, G and B equal
			signature = append(signature, float32(thumb.Pix[y*thumb.Stride+x*4])/255)
		}
	}
	return signature
}
