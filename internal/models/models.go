package models

import (
	"fmt"
	"image"
	"math"
)

// DefaultMarginFraction is the share of frames trimmed from each end of a video
const DefaultMarginFraction = 0.03

// VideoMetadata describes an opened video source
type VideoMetadata struct {
	Path        string
	FrameRate   float64
	TotalFrames int
	Width       int
	Height      int
}

// Duration returns the video length in seconds derived from the frame count
func (m VideoMetadata) Duration() float64 {
	if m.FrameRate <= 0 {
		return 0
	}
	return float64(m.TotalFrames) / m.FrameRate
}

// SamplingMode selects how the stride between sampled frames is derived.
// It is implemented by FixedInterval and EvenSpacing only.
type SamplingMode interface {
	fmt.Stringer
	samplingMode()
}

// FixedInterval samples one frame every Seconds of video
type FixedInterval struct {
	Seconds float64
}

func (FixedInterval) samplingMode() {}

func (m FixedInterval) String() string {
	return fmt.Sprintf("fixed-interval(%gs)", m.Seconds)
}

// EvenSpacing spreads MaxFrames frames evenly across the trimmed window
type EvenSpacing struct{}

func (EvenSpacing) samplingMode() {}

func (EvenSpacing) String() string {
	return "even-spacing"
}

// SamplingPolicy is the caller's request for one sampling run
type SamplingPolicy struct {
	Mode           SamplingMode
	MaxFrames      int
	MarginFraction float64
}

// NewPolicy builds a policy with the default margin. A positive interval selects
// FixedInterval, anything else selects EvenSpacing.
func NewPolicy(intervalSeconds float64, maxFrames int) SamplingPolicy {
	var mode SamplingMode = EvenSpacing{}
	if intervalSeconds > 0 {
		mode = FixedInterval{Seconds: intervalSeconds}
	}
	return SamplingPolicy{
		Mode:           mode,
		MaxFrames:      maxFrames,
		MarginFraction: DefaultMarginFraction,
	}
}

// Validate reports whether the policy can be planned
func (p SamplingPolicy) Validate() error {
	if p.MaxFrames < 1 {
		return fmt.Errorf("max frames must be positive, got %d", p.MaxFrames)
	}
	if p.MarginFraction < 0 || p.MarginFraction >= 1 || math.IsNaN(p.MarginFraction) {
		return fmt.Errorf("margin fraction must be in [0,1), got %g", p.MarginFraction)
	}
	switch m := p.Mode.(type) {
	case FixedInterval:
		if !(m.Seconds > 0) || math.IsInf(m.Seconds, 0) {
			return fmt.Errorf("interval must be a positive number of seconds, got %g", m.Seconds)
		}
	case EvenSpacing:
	case nil:
		return fmt.Errorf("sampling mode is not set")
	default:
		return fmt.Errorf("unknown sampling mode %T", m)
	}
	return nil
}

// KeepsTrailingFrame reports whether the last decoded frame is always part of the output.
// This holds for fixed intervals and for fewer than three requested frames.
func (p SamplingPolicy) KeepsTrailingFrame() bool {
	if _, ok := p.Mode.(FixedInterval); ok {
		return true
	}
	return p.MaxFrames < 3
}

// SamplingPlan is the frame range and stride computed for one run
type SamplingPlan struct {
	MarginFrames  int
	TrimmedStart  int
	TrimmedFrames int
	Stride        int
}

// End returns the exclusive upper bound of the trimmed window
func (p SamplingPlan) End() int {
	return p.TrimmedStart + p.TrimmedFrames
}

// SampledFrame is a decoded frame together with its absolute index in the video
type SampledFrame struct {
	Image       image.Image
	SourceIndex int
}

// ExtractionResult describes the frames written by one sampling run
type ExtractionResult struct {
	Metadata   VideoMetadata
	Plan       SamplingPlan
	Indices    []int
	FramePaths []string
}

// WorkItem represents a frame to be processed
type WorkItem struct {
	FramePath   string
	SourceIndex int
	FrameNum    int
	Total       int
}

// AnalysisResult represents the result of analyzing a frame
type AnalysisResult struct {
	Frame       string `json:"frame"`
	SourceIndex int    `json:"source_index"`
	Content     string `json:"content"`
}

// FrameSearchResult is a stored frame ranked by signature similarity
type FrameSearchResult struct {
	VideoName   string
	FrameNumber int
	FramePath   string
	Description string
	Similarity  float64
}
