// Package config provides configuration loading, validation and the static model registry.
//
// Configuration is a single YAML file (default ~/.codecoach/config.yaml) read with viper.
// Every key can be overridden with a CODECOACH_ prefixed environment variable, e.g.
// CODECOACH_INFERENCE_MODEL=gpt-4o or CODECOACH_POLLER_INTERVAL_SECONDS=30.
//
// Provider credentials are never stored in the config file. They come from the environment
// or from the encrypted secrets file in the data directory (see secrets.go).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CurrentConfigVersion is the only config_version this build accepts.
const CurrentConfigVersion = 1

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Environment variables holding provider credentials.
const (
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvGoogleAPIKey    = "GEMINI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// Model names used as defaults.
const (
	ModelGPT4oMini       = "gpt-4o-mini"
	ModelGPT4o           = "gpt-4o"
	ModelClaudeSonnet4   = "claude-sonnet-4-5"
	ModelClaudeHaiku45   = "claude-haiku-4-5"
	ModelGemini25Flash   = "gemini-2.5-flash"
	ModelOllamaCodeLlama = "codellama"
	DefaultModel         = ModelGPT4oMini
)

// Config is the root configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	DataDir       string          `mapstructure:"data_dir" yaml:"data_dir"`
	Inference     InferenceConfig `mapstructure:"inference" yaml:"inference"`
	Poller        PollerConfig    `mapstructure:"poller" yaml:"poller"`
	Wizard        WizardConfig    `mapstructure:"wizard" yaml:"wizard"`
	Server        ServerConfig    `mapstructure:"server" yaml:"server"`
	Store         StoreConfig     `mapstructure:"store" yaml:"store"`
	Logging       LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// OperationConfig holds the token limit and temperature of one kind of inference call.
type OperationConfig struct {
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
}

// InferenceConfig selects and tunes the inference service.
type InferenceConfig struct {
	Provider        string          `mapstructure:"provider" yaml:"provider"` // empty = inferred from model
	Model           string          `mapstructure:"model" yaml:"model"`
	BaseURL         string          `mapstructure:"base_url" yaml:"base_url"`
	OllamaHost      string          `mapstructure:"ollama_host" yaml:"ollama_host"`
	TimeoutSeconds  int             `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxPromptTokens int             `mapstructure:"max_prompt_tokens" yaml:"max_prompt_tokens"`
	AllClearPhrase  string          `mapstructure:"all_clear_phrase" yaml:"all_clear_phrase"`
	Classify        OperationConfig `mapstructure:"classify" yaml:"classify"`
	Analyze         OperationConfig `mapstructure:"analyze" yaml:"analyze"`
	Tests           OperationConfig `mapstructure:"tests" yaml:"tests"`
	Chat            OperationConfig `mapstructure:"chat" yaml:"chat"`
}

// PollerConfig controls background change detection.
type PollerConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds" yaml:"interval_seconds"`
}

// WizardConfig controls pacing and pagination of the wizard panels.
type WizardConfig struct {
	ProgressMinMillis int `mapstructure:"progress_min_ms" yaml:"progress_min_ms"`
	ProgressMaxMillis int `mapstructure:"progress_max_ms" yaml:"progress_max_ms"`
	PageSize          int `mapstructure:"page_size" yaml:"page_size"`
}

// ServerConfig configures the editor bridge listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// StoreConfig configures the transcript database. An empty path disables persistence.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig mirrors the DEBUG / DEBUG_DOMAINS switches of pkg/logx.
type LoggingConfig struct {
	Debug   bool     `mapstructure:"debug" yaml:"debug"`
	Domains []string `mapstructure:"domains" yaml:"domains"`
}

// Timeout returns the per-call inference deadline.
func (c InferenceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Interval returns the poll interval.
func (c PollerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// ProgressRange returns the bounds of the randomized progress wait.
func (c WizardConfig) ProgressRange() (minWait, maxWait time.Duration) {
	return time.Duration(c.ProgressMinMillis) * time.Millisecond, time.Duration(c.ProgressMaxMillis) * time.Millisecond
}

// DefaultDataDir returns ~/.codecoach, or ./.codecoach when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".codecoach"
	}
	return filepath.Join(home, ".codecoach")
}

// DefaultConfigPath returns the config file location inside the default data dir.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	dataDir := DefaultDataDir()
	return Config{
		ConfigVersion: CurrentConfigVersion,
		DataDir:       dataDir,
		Inference: InferenceConfig{
			Model:           DefaultModel,
			TimeoutSeconds:  60,
			MaxPromptTokens: 6000,
			AllClearPhrase:  "ALL_CLEAR",
			Classify:        OperationConfig{MaxTokens: 5, Temperature: 0.5},
			Analyze:         OperationConfig{MaxTokens: 400, Temperature: 0.7},
			Tests:           OperationConfig{MaxTokens: 500, Temperature: 0.7},
			Chat:            OperationConfig{MaxTokens: 400, Temperature: 0.7},
		},
		Poller: PollerConfig{IntervalSeconds: 15},
		Wizard: WizardConfig{
			ProgressMinMillis: 3000,
			ProgressMaxMillis: 8000,
			PageSize:          600,
		},
		Server:  ServerConfig{Addr: "127.0.0.1:7457"},
		Store:   StoreConfig{Path: filepath.Join(dataDir, "transcript.db")},
		Logging: LoggingConfig{},
	}
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.ConfigVersion != CurrentConfigVersion {
		return fmt.Errorf("unsupported config_version %d; expected %d", c.ConfigVersion, CurrentConfigVersion)
	}
	if strings.TrimSpace(c.Inference.Model) == "" {
		return fmt.Errorf("inference.model is required")
	}
	if _, err := c.Inference.ResolveProvider(); err != nil {
		return err
	}
	if c.Inference.TimeoutSeconds <= 0 {
		return fmt.Errorf("inference.timeout_seconds must be positive")
	}
	if strings.TrimSpace(c.Inference.AllClearPhrase) == "" {
		return fmt.Errorf("inference.all_clear_phrase must not be empty")
	}
	for name, op := range map[string]OperationConfig{
		"classify": c.Inference.Classify,
		"analyze":  c.Inference.Analyze,
		"tests":    c.Inference.Tests,
		"chat":     c.Inference.Chat,
	} {
		if op.MaxTokens <= 0 {
			return fmt.Errorf("inference.%s.max_tokens must be positive", name)
		}
		if op.Temperature < 0 || op.Temperature > 2 {
			return fmt.Errorf("inference.%s.temperature must be between 0.0 and 2.0", name)
		}
	}
	if c.Poller.IntervalSeconds <= 0 {
		return fmt.Errorf("poller.interval_seconds must be positive")
	}
	if c.Wizard.ProgressMinMillis <= 0 || c.Wizard.ProgressMaxMillis < c.Wizard.ProgressMinMillis {
		return fmt.Errorf("wizard.progress_min_ms must be positive and not exceed wizard.progress_max_ms")
	}
	if c.Wizard.PageSize <= 0 {
		return fmt.Errorf("wizard.page_size must be positive")
	}
	return nil
}

// ResolveProvider returns the configured provider, or the one inferred from the model name.
func (c InferenceConfig) ResolveProvider() (string, error) {
	if c.Provider != "" {
		switch c.Provider {
		case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderOllama:
			return c.Provider, nil
		default:
			return "", fmt.Errorf("unknown inference.provider %q", c.Provider)
		}
	}
	return GetModelProvider(c.Model)
}
