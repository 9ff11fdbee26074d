package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCatalog(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	system, user, err := r.Render(Classify, &Data{Code: "def foo(:\n", AllClear: "ALL_CLEAR"})
	require.NoError(t, err)
	assert.Contains(t, system, "Reply with exactly ALL_CLEAR")
	assert.Contains(t, system, "Python")
	assert.Equal(t, "def foo(:", user)

	system, user, err = r.Render(Tests, &Data{Code: "function add(a, b) { return a + b }", Symbols: []string{"add", "sub"}})
	require.NoError(t, err)
	assert.Contains(t, system, "Jest")
	assert.Contains(t, system, "edge cases")
	assert.Contains(t, user, "functions: add, sub.")

	_, user, err = r.Render(Chat, &Data{Text: "how do I reverse a list?"})
	require.NoError(t, err)
	assert.Equal(t, "how do I reverse a list?", user)

	_, _, err = r.Render(Name("nope"), &Data{})
	assert.Error(t, err)
}

func TestParseCatalogErrors(t *testing.T) {
	_, err := parseCatalog([]byte("classify: ["))
	assert.Error(t, err)

	_, err = parseCatalog([]byte("classify:\n  user: x\n"))
	assert.ErrorContains(t, err, "missing")

	_, err = parseCatalog([]byte("classify:\n  user: '{{.Code'\nanalyze:\n  user: x\ntests:\n  user: x\nchat:\n  user: x\n"))
	assert.ErrorContains(t, err, "classify user template")
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{code: "package main\n\nfunc main() {}\n", want: "Go"},
		{code: "def foo(x):\n    return x\n", want: "Python"},
		{code: "function foo(a) { return a }", want: "JavaScript"},
		{code: "export function foo(a: number): number { return a }", want: "TypeScript"},
		{code: "SELECT 1;", want: "source"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.code))
		})
	}
	assert.Equal(t, "Python's unittest module", TestFramework("Python"))
}
