// Package utils provides tiktoken-based token counting used to keep prompts inside the
// model's context budget.
package utils

import (
	"fmt"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// TruncationMarker is appended to text cut by TruncateToTokenLimit.
const TruncationMarker = "\n...[truncated]"

// TokenCounter provides token counting for a model family.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter for the model. Every provider is approximated
// with the GPT-4 encoding; exact counts only matter for budgeting, not billing.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		// 4 chars ≈ 1 token
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountTokensSimple counts tokens with the default encoding.
func CountTokensSimple(text string) int {
	counter, err := NewTokenCounter("gpt-4")
	if err != nil {
		return len(text) / 4
	}
	return counter.CountTokens(text)
}

// ValidateTokenLimit reports whether text fits within limit tokens.
func (tc *TokenCounter) ValidateTokenLimit(text string, limit int) bool {
	return tc.CountTokens(text) <= limit
}

// TruncateToTokenLimit keeps the head of text so that it fits within limit tokens,
// appending TruncationMarker when anything was cut. Cuts fall on rune boundaries.
// A non-positive limit disables truncation.
func (tc *TokenCounter) TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	current := tc.CountTokens(text)
	if current <= limit {
		return text
	}

	cut := text
	for attempt := 0; attempt < 8 && current > limit; attempt++ {
		ratio := float64(limit) / float64(current)
		charLimit := int(float64(len(cut)) * ratio * 0.9)
		if charLimit <= 0 {
			cut = ""
			break
		}
		for charLimit > 0 && !utf8.RuneStart(cut[charLimit]) {
			charLimit--
		}
		cut = cut[:charLimit]
		current = tc.CountTokens(cut)
	}
	return cut + TruncationMarker
}
