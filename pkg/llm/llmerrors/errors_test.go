package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: ErrorTypeTimeout},
		{name: "canceled", err: context.Canceled, want: ErrorTypeTransient},
		{name: "connection reset", err: errors.New("read tcp: connection reset by peer"), want: ErrorTypeTransient},
		{name: "quota", err: errors.New("You exceeded your current quota"), want: ErrorTypeRateLimit},
		{name: "unauthorized", err: errors.New("401 Unauthorized"), want: ErrorTypeAuth},
		{name: "malformed", err: errors.New("malformed JSON body"), want: ErrorTypeBadPrompt},
		{name: "other", err: errors.New("something odd"), want: ErrorTypeUnknown},
		{name: "already classified", err: NewError(ErrorTypeEmptyResponse, "empty"), want: ErrorTypeEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Type)
		})
	}
	assert.Nil(t, Classify(nil))
}

func TestFromStatus(t *testing.T) {
	e, ok := FromStatus(429, nil)
	require.True(t, ok)
	assert.Equal(t, ErrorTypeRateLimit, e.Type)
	assert.Equal(t, 429, e.StatusCode)

	e, ok = FromStatus(401, errors.New("nope"))
	require.True(t, ok)
	assert.Equal(t, ErrorTypeAuth, e.Type)
	assert.True(t, Is(e, ErrorTypeAuth))

	_, ok = FromStatus(418, nil)
	assert.False(t, ok)
}

func TestTypeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewError(ErrorTypeBadPrompt, "x"))
	assert.Equal(t, ErrorTypeBadPrompt, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeTimeout, TypeOf(context.DeadlineExceeded))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "LLM error (auth): bad key", NewError(ErrorTypeAuth, "bad key").Error())
	assert.Equal(t, "LLM error (transient): status 502", (&Error{Type: ErrorTypeTransient, StatusCode: 502}).Error())
	cause := errors.New("eof")
	assert.ErrorIs(t, NewErrorWithCause(ErrorTypeTransient, cause, ""), cause)
}

func TestSanitizePrompt(t *testing.T) {
	short := "def foo(): pass"
	assert.Equal(t, short, SanitizePrompt(short, 100))

	long := strings.Repeat("a", 300) + strings.Repeat("b", 300)
	got := SanitizePrompt(long, 200)
	assert.True(t, strings.HasPrefix(got, strings.Repeat("a", 100)))
	assert.True(t, strings.HasSuffix(got, strings.Repeat("b", 100)))
	assert.Contains(t, got, "[600 chars, hash:")
}
