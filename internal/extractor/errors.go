package extractor

import "errors"

var (
	// ErrSourceUnavailable is returned when a video cannot be opened or reports
	// no frames or no frame rate
	ErrSourceUnavailable = errors.New("video source unavailable")

	// ErrInvalidPolicy is returned for sampling policies that cannot be planned
	ErrInvalidPolicy = errors.New("invalid sampling policy")

	// ErrInsufficientFrames is returned when margin trimming leaves no frames
	ErrInsufficientFrames = errors.New("insufficient frames")

	// ErrNoFramesDecoded is returned when the sampling window yields no decodable frame
	ErrNoFramesDecoded = errors.New("no frames decoded")

	// ErrWriteFailure is returned when the frame directory or a frame image cannot be written
	ErrWriteFailure = errors.New("frame write failure")
)
