package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CODECOACH"

// Load reads configuration from path. An empty path uses DefaultConfigPath; a missing
// file yields the defaults (plus environment overrides).
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, &cfg)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		configLoaded = true
	}

	if configLoaded && !v.InConfig("config_version") {
		return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.DataDir = expandEnv(cfg.DataDir)
	cfg.Store.Path = expandEnv(cfg.Store.Path)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	getLogger().Debug("config loaded from %s (file present: %v)", path, configLoaded)
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("inference.provider", cfg.Inference.Provider)
	v.SetDefault("inference.model", cfg.Inference.Model)
	v.SetDefault("inference.base_url", cfg.Inference.BaseURL)
	v.SetDefault("inference.ollama_host", cfg.Inference.OllamaHost)
	v.SetDefault("inference.timeout_seconds", cfg.Inference.TimeoutSeconds)
	v.SetDefault("inference.max_prompt_tokens", cfg.Inference.MaxPromptTokens)
	v.SetDefault("inference.all_clear_phrase", cfg.Inference.AllClearPhrase)
	for name, op := range map[string]OperationConfig{
		"classify": cfg.Inference.Classify,
		"analyze":  cfg.Inference.Analyze,
		"tests":    cfg.Inference.Tests,
		"chat":     cfg.Inference.Chat,
	} {
		v.SetDefault("inference."+name+".max_tokens", op.MaxTokens)
		v.SetDefault("inference."+name+".temperature", op.Temperature)
	}
	v.SetDefault("poller.interval_seconds", cfg.Poller.IntervalSeconds)
	v.SetDefault("wizard.progress_min_ms", cfg.Wizard.ProgressMinMillis)
	v.SetDefault("wizard.progress_max_ms", cfg.Wizard.ProgressMaxMillis)
	v.SetDefault("wizard.page_size", cfg.Wizard.PageSize)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("logging.debug", cfg.Logging.Debug)
	v.SetDefault("logging.domains", cfg.Logging.Domains)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	if strings.HasPrefix(value, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			value = filepath.Join(home, value[2:])
		}
	}
	return os.ExpandEnv(value)
}

// WriteDefault writes the default config to path. It refuses to overwrite unless asked.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
