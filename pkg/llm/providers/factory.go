// Package providers builds the inference client named by the configuration.
package providers

import (
	"errors"
	"fmt"

	"codecoach/pkg/config"
	"codecoach/pkg/llm"
	"codecoach/pkg/llm/middleware/metrics"
	"codecoach/pkg/llm/middleware/timeout"
	"codecoach/pkg/llm/providers/anthropic"
	"codecoach/pkg/llm/providers/google"
	"codecoach/pkg/llm/providers/ollama"
	"codecoach/pkg/llm/providers/openaiofficial"
	"codecoach/pkg/logx"
	recorders "codecoach/pkg/metrics"
)

// NewClient returns the configured provider client wrapped in the middleware chain
// Metrics -> Timeout -> raw client.
//
// A missing credential is not an error: the returned client is nil and the gateway
// reports a missing-credential failure on every call instead.
func NewClient(cfg config.InferenceConfig, recorder recorders.Recorder) (llm.LLMClient, error) {
	provider, err := cfg.ResolveProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", cfg.Model, err)
	}

	apiKey, err := config.GetAPIKey(provider)
	if errors.Is(err, config.ErrMissingCredential) {
		logx.Warnf("no credential for %s; inference disabled until one is configured", provider)
		return nil, nil //nolint:nilnil // nil client is the documented missing-credential signal
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
	}

	var raw llm.LLMClient
	switch provider {
	case config.ProviderAnthropic:
		raw = anthropic.NewClaudeClientWithModel(apiKey, cfg.Model)
	case config.ProviderOpenAI:
		raw = openaiofficial.NewOfficialClientWithModel(apiKey, cfg.Model, cfg.BaseURL)
	case config.ProviderGoogle:
		raw = google.NewGeminiClientWithModel(apiKey, cfg.Model)
	case config.ProviderOllama:
		hostURL := apiKey
		if cfg.OllamaHost != "" {
			hostURL = cfg.OllamaHost
		}
		raw = ollama.NewOllamaClientWithModel(hostURL, config.OllamaModelName(cfg.Model))
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	return llm.Chain(raw,
		metrics.Middleware(recorder, nil, logx.NewLogger("llm")),
		timeout.Middleware(cfg.Timeout()),
	), nil
}
