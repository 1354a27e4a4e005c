package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframes_runs_total",
		Help: "Total number of sampling runs, by status",
	}, []string{"status"})

	FramesDecodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyframes_frames_decoded_total",
		Help: "Total number of frames decoded, skipped frames included",
	})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyframes_frames_sampled_total",
		Help: "Total number of frames written to disk",
	})

	FramesAnalyzedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframes_frames_analyzed_total",
		Help: "Total number of frames sent to the vision model, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keyframes_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})
)
