package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codecoach/internal/mocks"
	"codecoach/pkg/config"
	"codecoach/pkg/llm"
	"codecoach/pkg/llm/llmerrors"
	"codecoach/pkg/redact"
)

const sample = "def foo(x):\n    return x +\n"

func newGateway(t *testing.T, client llm.LLMClient, mutate ...func(*Options)) *Gateway {
	t.Helper()
	opts := Options{
		Client:    client,
		Inference: config.DefaultConfig().Inference,
		Scanner:   redact.NewPatternScanner(time.Second),
	}
	for _, m := range mutate {
		m(&opts)
	}
	g, err := New(opts)
	require.NoError(t, err)
	return g
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		reply       string
		problematic bool
	}{
		{name: "exact sentinel", reply: "ALL_CLEAR", problematic: false},
		{name: "sentinel in sentence", reply: "Looks fine: all_clear.", problematic: false},
		{name: "issues", reply: "ISSUES", problematic: true},
		{name: "paraphrase reads as problematic", reply: "No errors found.", problematic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := mocks.NewMockLLMClient("test-model")
			client.RespondWith(tt.reply)
			g := newGateway(t, client)

			problematic, res := g.Classify(context.Background(), sample)
			assert.True(t, res.OK())
			assert.Equal(t, tt.problematic, problematic)

			calls := client.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, "classify", calls[0].Operation)
			assert.Equal(t, 5, calls[0].MaxTokens)
			assert.Contains(t, calls[0].Messages[0].Content, "ALL_CLEAR")
		})
	}
}

func TestClassify_FailureIsNotProblematic(t *testing.T) {
	client := mocks.NewMockLLMClient("test-model")
	client.FailCompleteWith(errors.New("connection reset by peer"))
	g := newGateway(t, client)

	problematic, res := g.Classify(context.Background(), sample)
	assert.False(t, problematic)
	assert.Equal(t, Failure, res.Outcome)
	assert.Contains(t, res.Reason, "transient")
	assert.Equal(t, MsgUnavailable, res.Render())
}

func TestMissingCredentialMakesNoCall(t *testing.T) {
	g := newGateway(t, nil)

	res := g.Ask(context.Background(), "hello")
	assert.Equal(t, Failure, res.Outcome)
	assert.Equal(t, ReasonMissingCredential, res.Reason)
	assert.Equal(t, MsgMissingCredential, res.Render())
	assert.False(t, g.Available())
}

func TestTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "context deadline", err: context.DeadlineExceeded},
		{name: "wrapped deadline", err: llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTimeout, context.DeadlineExceeded, "request timed out")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := mocks.NewMockLLMClient("test-model")
			client.FailCompleteWith(tt.err)
			g := newGateway(t, client)

			res := g.Analyze(context.Background(), sample)
			assert.Equal(t, Timeout, res.Outcome)
			assert.Equal(t, MsgTimedOut, res.Render())
		})
	}
}

func TestProviderPanicBecomesFailure(t *testing.T) {
	client := mocks.NewMockLLMClient("test-model")
	client.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		panic("nil map write")
	})
	g := newGateway(t, client)

	var res Result
	assert.NotPanics(t, func() { res = g.Ask(context.Background(), "hi") })
	assert.Equal(t, Failure, res.Outcome)
	assert.Contains(t, res.Reason, "provider panic")
}

func TestEmptyCompletionIsFailure(t *testing.T) {
	client := mocks.NewMockLLMClient("test-model")
	client.RespondWith("   ")
	g := newGateway(t, client)

	res := g.Ask(context.Background(), "hi")
	assert.Equal(t, Failure, res.Outcome)
	assert.Equal(t, "empty_response", res.Reason)
}

func TestEmptyInputMakesNoCall(t *testing.T) {
	client := mocks.NewMockLLMClient("test-model")
	g := newGateway(t, client)

	res := g.Analyze(context.Background(), "  \n")
	assert.Equal(t, Failure, res.Outcome)
	assert.Zero(t, client.CallCount())
}

func TestSecretsAreRedactedBeforeSending(t *testing.T) {
	client := mocks.NewMockLLMClient("test-model")
	g := newGateway(t, client)
	key := "AKIA" + strings.Repeat("Z", 16)

	res := g.Analyze(context.Background(), "aws_key = '"+key+"'\ndef foo():\n    pass\n")
	require.True(t, res.OK())

	calls := client.Calls()
	require.Len(t, calls, 1)
	for _, m := range calls[0].Messages {
		assert.NotContains(t, m.Content, key)
	}
	assert.Contains(t, calls[0].Messages[1].Content, redact.Placeholder)
}

func TestLongCodeIsTruncated(t *testing.T) {
	client := mocks.NewMockLLMClient("test-model")
	g := newGateway(t, client, func(o *Options) { o.Inference.MaxPromptTokens = 50 })

	code := strings.Repeat("def foo():\n    return 1\n", 200)
	require.True(t, g.Analyze(context.Background(), code).OK())

	user := client.Calls()[0].Messages[1].Content
	assert.Less(t, len(user), len(code))
	assert.Contains(t, user, "[truncated]")
}

func TestGenerateTestsPrompt(t *testing.T) {
	client := mocks.NewMockLLMClient("test-model")
	client.RespondWith("import unittest\n")
	g := newGateway(t, client)

	res := g.GenerateTests(context.Background(), "def foo(x):\n    return x\n", []string{"foo"})
	require.True(t, res.OK())
	assert.Equal(t, "import unittest\n", res.Render())

	req := client.CallsFor("tests")
	require.Len(t, req, 1)
	assert.Equal(t, 500, req[0].MaxTokens)
	assert.Contains(t, req[0].Messages[0].Content, "unittest")
	assert.Contains(t, req[0].Messages[1].Content, "foo")
}
