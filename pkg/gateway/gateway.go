// Package gateway is the only path from the orchestrator to the inference service.
//
// Every call goes out exactly once. Nothing is retried here; a caller that wants a retry
// issues a new call. Every provider error, empty completion, missing credential or provider
// panic becomes a Failure result and deadline expiry becomes a Timeout result, so a
// background poller or a message handler can never be taken down by the service.
//
// Classify relies on the model echoing an agreed all-clear phrase. Models are asked, not
// guaranteed, to do so: a chatty reply that paraphrases the phrase reads as "problematic".
// Treat the classification as a hint that opens a dialog, never as a verdict.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codecoach/pkg/config"
	"codecoach/pkg/llm"
	"codecoach/pkg/llm/llmerrors"
	"codecoach/pkg/logx"
	"codecoach/pkg/metrics"
	"codecoach/pkg/prompts"
	"codecoach/pkg/redact"
	"codecoach/pkg/utils"
)

// Options configures a Gateway.
type Options struct {
	// Client is nil when no credential is available; every call then fails with
	// ReasonMissingCredential without touching the network.
	Client    llm.LLMClient
	Inference config.InferenceConfig
	Scanner   redact.SecretScanner // nil disables redaction
	Counter   *utils.TokenCounter  // nil falls back to a character estimate
	Recorder  metrics.Recorder
}

// Gateway issues prompts and converts every outcome into a Result.
type Gateway struct {
	client   llm.LLMClient
	cfg      config.InferenceConfig
	scanner  redact.SecretScanner
	counter  *utils.TokenCounter
	recorder metrics.Recorder
	prompts  *prompts.Renderer
	logger   *logx.Logger
}

// New builds a gateway around opts.
func New(opts Options) (*Gateway, error) {
	renderer, err := prompts.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("load prompt catalog: %w", err)
	}
	if opts.Inference.AllClearPhrase == "" {
		opts.Inference.AllClearPhrase = config.DefaultConfig().Inference.AllClearPhrase
	}
	return &Gateway{
		client:   opts.Client,
		cfg:      opts.Inference,
		scanner:  opts.Scanner,
		counter:  opts.Counter,
		recorder: metrics.OrNop(opts.Recorder),
		prompts:  renderer,
		logger:   logx.NewLogger("gateway"),
	}, nil
}

// Available reports whether a client is configured.
func (g *Gateway) Available() bool {
	return g.client != nil
}

// Ask forwards a free-form chat message.
func (g *Gateway) Ask(ctx context.Context, text string) Result {
	return g.call(ctx, prompts.Chat, &prompts.Data{Text: text}, g.cfg.Chat)
}

// Classify asks whether code looks problematic. A non-success result is never problematic;
// the result is returned so the caller can still log it.
func (g *Gateway) Classify(ctx context.Context, code string) (bool, Result) {
	res := g.call(ctx, prompts.Classify, &prompts.Data{Code: code, AllClear: g.cfg.AllClearPhrase}, g.cfg.Classify)
	if !res.OK() {
		return false, res
	}
	allClear := strings.Contains(strings.ToUpper(res.Text), strings.ToUpper(g.cfg.AllClearPhrase))
	return !allClear, res
}

// Analyze requests a full review of code.
func (g *Gateway) Analyze(ctx context.Context, code string) Result {
	return g.call(ctx, prompts.Analyze, &prompts.Data{Code: code}, g.cfg.Analyze)
}

// GenerateTests requests unit tests for symbols declared in code.
func (g *Gateway) GenerateTests(ctx context.Context, code string, symbols []string) Result {
	return g.call(ctx, prompts.Tests, &prompts.Data{Code: code, Symbols: symbols}, g.cfg.Tests)
}

func (g *Gateway) call(ctx context.Context, name prompts.Name, data *prompts.Data, op config.OperationConfig) Result {
	res := g.do(ctx, name, data, op)
	g.recorder.ObserveInference(string(name), res.Outcome.String())
	if !res.OK() {
		g.logger.Warn("%s call ended with %s: %s", name, res.Outcome, res.Reason)
	}
	return res
}

func (g *Gateway) do(ctx context.Context, name prompts.Name, data *prompts.Data, op config.OperationConfig) Result {
	if g.client == nil {
		return Failed(ReasonMissingCredential)
	}
	if strings.TrimSpace(data.Code) == "" && strings.TrimSpace(data.Text) == "" {
		return Failed("empty input")
	}

	var err error
	if data.Code, err = g.prepare(ctx, data.Code); err != nil {
		return Failed(err.Error())
	}
	if data.Text, err = g.prepare(ctx, data.Text); err != nil {
		return Failed(err.Error())
	}

	system, user, err := g.prompts.Render(name, data)
	if err != nil {
		return Failed(err.Error())
	}
	req := llm.NewCompletionRequest(string(name), system, user, op.MaxTokens, op.Temperature)

	start := time.Now()
	resp, err := g.complete(ctx, req)
	logx.Debug(ctx, "gateway", "%s via %s took %s", name, g.client.GetModelName(), time.Since(start).Round(time.Millisecond))

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || llmerrors.Is(err, llmerrors.ErrorTypeTimeout) {
			return TimedOut(err.Error())
		}
		classified := llmerrors.Classify(err)
		return Failed(fmt.Sprintf("%s: %v", classified.Type, err))
	}
	if strings.TrimSpace(resp.Content) == "" {
		return Failed(llmerrors.ErrorTypeEmptyResponse.String())
	}
	return Succeeded(resp.Content)
}

// prepare redacts secrets and trims text to the prompt budget.
func (g *Gateway) prepare(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", nil
	}
	if g.scanner != nil {
		redacted, hadRedactions, err := redact.Redact(ctx, g.scanner, text)
		if err != nil {
			return "", err
		}
		if hadRedactions {
			g.logger.Info("redacted secrets from outgoing prompt")
		}
		text = redacted
	}
	return g.counter.TruncateToTokenLimit(text, g.cfg.MaxPromptTokens), nil
}

// complete invokes the client and converts a provider panic into an error.
func (g *Gateway) complete(ctx context.Context, req llm.CompletionRequest) (resp llm.CompletionResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("provider panic during %s: %v", req.Operation, r)
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return g.client.Complete(ctx, req)
}
