package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/keyframes/internal/models"
)

func videoFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(p, []byte("not really a video"), 0644))
	return p
}

func TestCLI_SampleDefaults(t *testing.T) {
	video := videoFile(t)

	var cli CLI
	parser := kong.Must(&cli)
	kctx, err := parser.Parse([]string{"sample", video})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(kctx.Command(), "sample"))
	assert.Equal(t, []string{video}, cli.Sample.Videos)
	assert.False(t, cli.Debug)

	policy := cli.Sample.policy()
	assert.Equal(t, models.EvenSpacing{}, policy.Mode)
	assert.Equal(t, 5, policy.MaxFrames)
	assert.InDelta(t, models.DefaultMarginFraction, policy.MarginFraction, 1e-9)
}

func TestCLI_AnalyzeFlags(t *testing.T) {
	video := videoFile(t)

	var cli CLI
	parser := kong.Must(&cli)
	_, err := parser.Parse([]string{
		"--debug", "--output", "out", "--metrics-addr", ":9090",
		"analyze", "--interval", "2.5", "--max-frames", "8", "--margin", "0.1", video,
	})
	require.NoError(t, err)

	assert.True(t, cli.Debug)
	assert.Equal(t, ":9090", cli.MetricsAddr)
	assert.True(t, filepath.IsAbs(cli.Output))

	policy := cli.Analyze.policy()
	assert.Equal(t, models.FixedInterval{Seconds: 2.5}, policy.Mode)
	assert.Equal(t, 8, policy.MaxFrames)
	assert.InDelta(t, 0.1, policy.MarginFraction, 1e-9)
	assert.NoError(t, policy.Validate())
}

func TestCLI_RejectsMissingVideo(t *testing.T) {
	var cli CLI
	parser := kong.Must(&cli)
	_, err := parser.Parse([]string{"sample", filepath.Join(t.TempDir(), "missing.mp4")})
	assert.Error(t, err)
}

func TestCLI_Similar(t *testing.T) {
	image := videoFile(t)

	var cli CLI
	parser := kong.Must(&cli)
	kctx, err := parser.Parse([]string{"similar", "--limit", "3", image})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(kctx.Command(), "similar"))
	assert.Equal(t, 3, cli.Similar.Limit)
}
