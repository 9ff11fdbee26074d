// Package metrics provides metrics middleware for LLM clients.
package metrics

import (
	"context"
	"strings"
	"time"

	"codecoach/pkg/llm"
	"codecoach/pkg/llm/llmerrors"
	"codecoach/pkg/logx"
	"codecoach/pkg/metrics"
	"codecoach/pkg/utils"
)

// UsageExtractor extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor counts tokens with tiktoken; providers differ in how (and whether)
// they report usage, so counting locally keeps the numbers comparable.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	var prompt strings.Builder
	for i := range req.Messages {
		prompt.WriteString(req.Messages[i].Content)
		prompt.WriteByte('\n')
	}
	return utils.CountTokensSimple(prompt.String()), utils.CountTokensSimple(resp.Content)
}

// Middleware returns a middleware that records latency, token usage and error types.
func Middleware(recorder metrics.Recorder, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	recorder = metrics.OrNop(recorder)
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(next,
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				errorType := ""
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
				} else {
					errorType = llmerrors.TypeOf(err).String()
				}

				operation := req.Operation
				if operation == "" {
					operation = "unknown"
				}
				recorder.ObserveRequest(next.GetModelName(), operation, promptTokens, completionTokens, err == nil, errorType, duration)

				if logger != nil {
					status := "success"
					if err != nil {
						status = "error:" + errorType
					}
					logger.Debug("LLM request: model=%s op=%s tokens=%d+%d status=%s duration=%dms",
						next.GetModelName(), operation, promptTokens, completionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // middleware passes errors through unchanged
			},
		)
	}
}
