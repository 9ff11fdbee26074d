// Package redact removes credentials from text before it leaves the process.
package redact

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Placeholder replaces every detected secret.
const Placeholder = "[redacted]"

// SecretScanner interface defines the contract for secret detection.
type SecretScanner interface {
	// Scan checks text for secrets and returns redacted text with a boolean indicating if redactions occurred.
	Scan(ctx context.Context, text string) (redactedText string, hadRedactions bool, err error)
}

// PatternScanner is a simple pattern-based secret scanner.
type PatternScanner struct {
	patterns []*regexp.Regexp
	timeout  time.Duration
}

// NewPatternScanner creates a new pattern-based scanner with default patterns.
func NewPatternScanner(timeout time.Duration) *PatternScanner {
	return &PatternScanner{
		patterns: defaultPatterns,
		timeout:  timeout,
	}
}

//nolint:gochecknoglobals // compiled once
var defaultPatterns = compilePatterns([]string{
	// OpenAI API keys
	`sk-proj-[A-Za-z0-9_-]{40,}`,
	`sk-[A-Za-z0-9]{48}`,

	// Anthropic API keys
	`sk-ant-[A-Za-z0-9_-]{80,}`,

	// Google API keys
	`AIza[0-9A-Za-z_-]{35}`,

	// AWS Access Keys
	`AKIA[0-9A-Z]{16}`,

	// Generic assignments like api_key = "..." or SECRET: ...
	`(?i)api[_-]?key[_-]?\s*[:=]\s*['"]?[A-Za-z0-9_-]{20,}['"]?`,
	`(?i)secret[_-]?\s*[:=]\s*['"]?[A-Za-z0-9_-]{20,}['"]?`,

	// Bearer tokens
	`Bearer\s+[A-Za-z0-9_.-]{20,}`,

	// GitHub tokens
	`gh[pousr]_[A-Za-z0-9]{36}`,

	// Private keys (PEM header through footer when present)
	`(?s)-----BEGIN\s+(?:RSA\s+|DSA\s+|EC\s+|OPENSSH\s+|PGP\s+)?PRIVATE\s+KEY-----.*?(?:-----END\s+(?:RSA\s+|DSA\s+|EC\s+|OPENSSH\s+|PGP\s+)?PRIVATE\s+KEY-----|$)`,
})

func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		compiled = append(compiled, regexp.MustCompile(pattern))
	}
	return compiled
}

// Scan checks the text for secrets and redacts them.
func (s *PatternScanner) Scan(ctx context.Context, text string) (string, bool, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	hadRedactions := false
	redactedText := text

	for _, pattern := range s.patterns {
		select {
		case <-ctx.Done():
			return "", false, fmt.Errorf("context cancelled during pattern matching: %w", ctx.Err())
		default:
		}

		matches := pattern.FindAllStringIndex(redactedText, -1)
		if len(matches) == 0 {
			continue
		}
		hadRedactions = true
		// back to front so earlier indices stay valid
		for i := len(matches) - 1; i >= 0; i-- {
			start, end := matches[i][0], matches[i][1]
			redactedText = redactedText[:start] + Placeholder + redactedText[end:]
		}
	}

	return redactedText, hadRedactions, nil
}

// Redact applies the scanner and fails closed: on a scanner error the text is withheld
// entirely rather than sent unscanned.
func Redact(ctx context.Context, scanner SecretScanner, text string) (string, bool, error) {
	redacted, hadRedactions, err := scanner.Scan(ctx, text)
	if err != nil {
		return "", false, fmt.Errorf("secret scanner error: %w", err)
	}
	return redacted, hadRedactions, nil
}
