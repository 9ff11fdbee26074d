package mocks

import (
	"context"
	"sync"

	"codecoach/pkg/llm"
)

// MockLLMClient implements llm.LLMClient for testing.
//
//nolint:govet // fieldalignment: mock struct layout optimized for readability
type MockLLMClient struct {
	// CompleteFunc is called when Complete is invoked. Set it before the client is shared
	// between goroutines, or use OnComplete.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)

	calls     []llm.CompletionRequest
	modelName string
	mu        sync.Mutex
}

// NewMockLLMClient creates a mock that answers every request with "Mock response".
func NewMockLLMClient(modelName string) *MockLLMClient {
	if modelName == "" {
		modelName = "mock-model"
	}
	m := &MockLLMClient{modelName: modelName}
	m.RespondWith("Mock response")
	return m
}

// Complete implements llm.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn := m.CompleteFunc
	m.mu.Unlock()
	return fn(ctx, req)
}

// GetModelName implements llm.LLMClient.
func (m *MockLLMClient) GetModelName() string {
	return m.modelName
}

// Calls returns a copy of every request received so far.
func (m *MockLLMClient) Calls() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Complete calls.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// CallsFor returns the requests whose Operation equals op.
func (m *MockLLMClient) CallsFor(op string) []llm.CompletionRequest {
	var out []llm.CompletionRequest
	for _, c := range m.Calls() {
		if c.Operation == op {
			out = append(out, c)
		}
	}
	return out
}

// OnComplete sets a custom handler for Complete calls.
func (m *MockLLMClient) OnComplete(fn func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = fn
}

// FailCompleteWith configures Complete to return the specified error.
func (m *MockLLMClient) FailCompleteWith(err error) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{}, err
	})
}

// RespondWith configures Complete to return the specified content.
func (m *MockLLMClient) RespondWith(content string) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: content, StopReason: "end_turn"}, nil
	})
}

// RespondByOperation answers each request with the content registered for its Operation,
// falling back to "Mock response".
func (m *MockLLMClient) RespondByOperation(byOp map[string]string) {
	m.OnComplete(func(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
		if content, ok := byOp[req.Operation]; ok {
			return llm.CompletionResponse{Content: content, StopReason: "end_turn"}, nil
		}
		return llm.CompletionResponse{Content: "Mock response", StopReason: "end_turn"}, nil
	})
}

// RespondWithSequence returns the responses in order, repeating the last one.
func (m *MockLLMClient) RespondWithSequence(responses []llm.CompletionResponse) {
	var idx int
	var seqMu sync.Mutex
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		seqMu.Lock()
		defer seqMu.Unlock()
		if idx < len(responses) {
			resp := responses[idx]
			idx++
			return resp, nil
		}
		return responses[len(responses)-1], nil
	})
}

// BlockUntil makes Complete wait for release (or ctx) before answering with content.
// started receives one value per call as soon as the call begins.
func (m *MockLLMClient) BlockUntil(release <-chan struct{}, started chan<- struct{}, content string) {
	m.OnComplete(func(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-release:
			return llm.CompletionResponse{Content: content, StopReason: "end_turn"}, nil
		case <-ctx.Done():
			return llm.CompletionResponse{}, ctx.Err()
		}
	})
}
