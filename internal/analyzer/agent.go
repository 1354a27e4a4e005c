package analyzer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/agent-api/core"
	"github.com/agent-api/core/agent"
	"github.com/agent-api/core/agent/bootstrap"
	"github.com/agent-api/ollama"
	"github.com/go-logr/logr"
)

const systemPrompt = "You are a visual analysis assistant specialized in detailed image descriptions. If there is a person in the image describe what they are doing in step by step format."

// providerEndpoint is where the ollama provider sends generate requests. The
// provider does not build its client from ProviderOpts yet.
const providerEndpoint = "http://localhost:11434"

// VisionModel describes images and answers text prompts
type VisionModel interface {
	Describe(ctx context.Context, prompt, imagePath string) (string, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

// AgentConfig selects the Ollama server and model. BaseURL and Port are used
// for the reachability check; generation always goes to providerEndpoint.
type AgentConfig struct {
	BaseURL string
	Port    int
	Model   string
}

// OllamaModel is a VisionModel backed by a local Ollama server
type OllamaModel struct {
	provider *ollama.Provider
	logger   *logr.Logger
}

// NewAgent checks that Ollama is reachable and initializes a vision agent
func NewAgent(ctx context.Context, logger *slog.Logger, cfg AgentConfig) (*OllamaModel, error) {
	endpoint := fmt.Sprintf("%s:%d", cfg.BaseURL, cfg.Port)
	if err := ping(ctx, endpoint+"/api/tags"); err != nil {
		return nil, fmt.Errorf("ollama is not reachable at %s: %w", endpoint, err)
	}
	if endpoint != providerEndpoint {
		logger.Warn("ollama provider ignores the configured endpoint", "configured", endpoint, "used", providerEndpoint)
	}

	l := logr.FromSlogHandler(logger.Handler())
	provider := ollama.NewProvider(&ollama.ProviderOpts{
		Logger:  &l,
		BaseURL: cfg.BaseURL,
		Port:    cfg.Port,
	})
	if err := provider.UseModel(ctx, &core.Model{ID: cfg.Model}); err != nil {
		return nil, fmt.Errorf("failed to select model %s: %w", cfg.Model, err)
	}

	m := &OllamaModel{provider: provider, logger: &l}
	// fail early on a bad configuration instead of on the first frame
	if _, err := m.newAgent(); err != nil {
		return nil, err
	}
	return m, nil
}

// newAgent returns an agent with empty memory. Agents remember every message
// they ran, so each request gets its own.
func (m *OllamaModel) newAgent() (*agent.Agent, error) {
	a, err := agent.NewAgent(
		bootstrap.WithProvider(m.provider),
		bootstrap.WithSystemPrompt(systemPrompt),
		bootstrap.WithLogger(m.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return a, nil
}

func ping(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

// Describe sends the image at imagePath with prompt to the model
func (m *OllamaModel) Describe(ctx context.Context, prompt, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to read frame: %w", err)
	}

	return m.run(ctx,
		agent.WithInput(prompt),
		agent.WithImageBase64(base64.StdEncoding.EncodeToString(data), "image/jpeg"),
	)
}

// Complete sends a text-only prompt to the model
func (m *OllamaModel) Complete(ctx context.Context, prompt string) (string, error) {
	return m.run(ctx, agent.WithInput(prompt))
}

func (m *OllamaModel) run(ctx context.Context, opts ...agent.RunOptionFunc) (string, error) {
	a, err := m.newAgent()
	if err != nil {
		return "", err
	}

	// one generate call per request, the agent has no tools to call
	opts = append(opts, agent.WithStopCondition(func(*agent.AgentRunAggregator) bool {
		return true
	}))
	run, err := a.Run(ctx, opts...)
	if err != nil {
		return "", err
	}
	return reply(run)
}

// reply returns the content of the model's answer, the last message of a run
func reply(run *agent.AgentRunAggregator) (string, error) {
	if run == nil {
		return "", errors.New("no response received from model")
	}
	last := run.Pop()
	if last == nil || last.Role != core.AssistantMessageRole {
		return "", errors.New("no response messages received from model")
	}
	return last.Content, nil
}
