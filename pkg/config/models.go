package config

import (
	"fmt"
	"strings"
)

// ModelInfo contains static information about a known LLM model.
// This data is hardcoded in the application, not user-configurable.
type ModelInfo struct {
	Provider         string // API provider
	MaxContextTokens int    // Maximum context window size in tokens
	MaxOutputTokens  int    // Maximum output tokens per request
}

// KnownModels registry contains provider and limit information for common models.
// Unknown models are inferred via ProviderPatterns.
//
//nolint:gochecknoglobals // static model registry
var KnownModels = map[string]ModelInfo{
	ModelGPT4oMini:          {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 16384},
	ModelGPT4o:              {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 4096},
	"gpt-4.1":               {Provider: ProviderOpenAI, MaxContextTokens: 1047576, MaxOutputTokens: 32768},
	"gpt-5":                 {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 4096},
	"o4-mini":               {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 16384},
	ModelClaudeSonnet4:      {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 8192},
	ModelClaudeHaiku45:      {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 8192},
	"claude-opus-4-5":       {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 16384},
	"gemini-2.0-flash":      {Provider: ProviderGoogle, MaxContextTokens: 1048576, MaxOutputTokens: 8192},
	ModelGemini25Flash:      {Provider: ProviderGoogle, MaxContextTokens: 1048576, MaxOutputTokens: 65536},
	ModelOllamaCodeLlama:    {Provider: ProviderOllama, MaxContextTokens: 16384, MaxOutputTokens: 4096},
	"qwen2.5-coder":         {Provider: ProviderOllama, MaxContextTokens: 32768, MaxOutputTokens: 8192},
	"deepseek-coder-v2:16b": {Provider: ProviderOllama, MaxContextTokens: 131072, MaxOutputTokens: 8192},
}

// ProviderPattern represents a pattern for inferring provider from model name.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model names.
//
//nolint:gochecknoglobals // inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"codellama", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"ollama:", ProviderOllama}, // explicit prefix like "ollama:phi4"
}

// GetModelProvider returns the API provider for a given model.
// First checks KnownModels, then tries pattern matching.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}
	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match", modelName)
}

// GetModelInfo returns the ModelInfo for a given model name, with conservative
// defaults and false when the model is not registered.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}
	provider, _ := GetModelProvider(modelName)
	return ModelInfo{
		Provider:         provider,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

// CapOutputTokens clamps a requested output budget to the model's limit.
func CapOutputTokens(modelName string, requested int) int {
	info, _ := GetModelInfo(modelName)
	if info.MaxOutputTokens > 0 && requested > info.MaxOutputTokens {
		return info.MaxOutputTokens
	}
	return requested
}

// OllamaModelName strips the optional "ollama:" routing prefix.
func OllamaModelName(modelName string) string {
	return strings.TrimPrefix(modelName, "ollama:")
}
