// Package openaiofficial provides the OpenAI client implementation using the official OpenAI Go package.
package openaiofficial

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"codecoach/pkg/config"
	"codecoach/pkg/llm"
	"codecoach/pkg/llm/llmerrors"
)

// OfficialClient wraps the official OpenAI Go client to implement llm.LLMClient interface.
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClientWithModel creates a new OpenAI client with a specific model (raw client, middleware applied at higher level).
// baseURL may be empty to use the public endpoint.
func NewOfficialClientWithModel(apiKey, model, baseURL string) llm.LLMClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OfficialClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Complete implements the llm.LLMClient interface using the Responses API.
//
//nolint:gocritic // CompletionRequest passed by value to match the interface
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if err := in.Validate(); err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, err.Error())
	}

	system, rest := llm.SplitSystem(in.Messages)
	var input strings.Builder
	for i := range rest {
		msg := &rest[i]
		if msg.Role == llm.RoleAssistant {
			fmt.Fprintf(&input, "Assistant: %s\n\n", msg.Content)
			continue
		}
		input.WriteString(msg.Content)
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(config.CapOutputTokens(o.model, in.MaxTokens))),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input.String())},
		Temperature:     openai.Float(float64(in.Temperature)),
	}
	if system != "" {
		params.Instructions = openai.String(system)
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	content := resp.OutputText()
	if strings.TrimSpace(content) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "OpenAI returned no text output")
	}
	return llm.CompletionResponse{
		Content:    content,
		StopReason: string(resp.Status),
	}, nil
}

// GetModelName returns the model name for this client.
func (o *OfficialClient) GetModelName() string {
	return o.model
}

// classifyError maps OpenAI SDK errors to our structured error types.
func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if classified, ok := llmerrors.FromStatus(apiErr.StatusCode, err); ok {
			return classified
		}
	}
	return llmerrors.Classify(err)
}
