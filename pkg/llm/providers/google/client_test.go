package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"codecoach/pkg/llm"
)

func TestToContentsMapsRoles(t *testing.T) {
	contents := toContents([]llm.CompletionMessage{
		{Role: llm.RoleUser, Content: "is this code broken?"},
		{Role: llm.RoleAssistant, Content: "ISSUES"},
		{Role: llm.RoleUser, Content: "why?"},
	})

	require.Len(t, contents, 3)
	wantRoles := []string{string(genai.RoleUser), string(genai.RoleModel), string(genai.RoleUser)}
	for i, c := range contents {
		assert.Equal(t, wantRoles[i], c.Role, "content %d", i)
		require.Len(t, c.Parts, 1)
	}
	assert.Equal(t, "ISSUES", contents[1].Parts[0].Text)
}

func TestToContentsEmpty(t *testing.T) {
	assert.Empty(t, toContents(nil))
}

func TestGetModelName(t *testing.T) {
	assert.Equal(t, "gemini-2.5-flash", NewGeminiClientWithModel("key", "gemini-2.5-flash").GetModelName())
}
