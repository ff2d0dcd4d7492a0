package kj

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	defaults "github.com/kj-assistant/kj/default"
)

// Config represents the user's kj configuration.
type Config struct {
	Version   int             `toml:"version"`
	Storage   StorageConfig   `toml:"storage"`
	Model     ModelConfig     `toml:"model"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Privacy   PrivacyConfig   `toml:"privacy"`
}

// StorageConfig holds where session files are kept.
type StorageConfig struct {
	Path string `toml:"path"`
}

// ModelConfig holds settings for the text-completion endpoint.
type ModelConfig struct {
	Provider       string `toml:"provider"`
	URL            string `toml:"url"`
	Name           string `toml:"name"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// EmbeddingConfig holds settings for the embedding endpoint used by recall.
type EmbeddingConfig struct {
	URL        string `toml:"url"`
	Model      string `toml:"model"`
	TTLMinutes int    `toml:"ttl_minutes"`
}

// PrivacyConfig controls what is kept from captured commands.
type PrivacyConfig struct {
	RedactCommands *bool `toml:"redact_commands"`
}

// Provider names accepted in [model] provider.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// ConfigDir returns the config directory path.
// Resolution order: $KJ_CONFIG_DIR > $XDG_CONFIG_HOME/kj > ~/.config/kj
func ConfigDir() string {
	if dir := os.Getenv("KJ_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, Name)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), Name+"-config")
	}
	return filepath.Join(home, ".config", Name)
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// PromptPath returns the path of the optional custom system prompt template.
func PromptPath() string {
	return filepath.Join(ConfigDir(), "prompt.md")
}

// DefaultStoragePath returns ~/kj-assistant/.sessions.
func DefaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), Name+"-assistant", ".sessions")
	}
	return filepath.Join(home, Name+"-assistant", ".sessions")
}

// DefaultConfig returns the default configuration from the embedded default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if _, err := toml.Decode(string(defaults.DefaultConfigTOML), &cfg); err != nil {
		panic("kj: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		slog.Warn("unknown config key", "path", path, "key", key.String())
	}

	// Apply defaults for missing fields
	defaults := DefaultConfig()
	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = defaults.Model.Provider
	}
	if cfg.Model.URL == "" {
		cfg.Model.URL = defaults.Model.URL
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = defaults.Model.Name
	}
	if cfg.Embedding.URL == "" {
		cfg.Embedding.URL = defaults.Embedding.URL
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = defaults.Embedding.Model
	}
	if cfg.Embedding.TTLMinutes == 0 {
		cfg.Embedding.TTLMinutes = defaults.Embedding.TTLMinutes
	}
	if cfg.Privacy.RedactCommands == nil {
		cfg.Privacy.RedactCommands = defaults.Privacy.RedactCommands
	}

	return &cfg, nil
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	switch ResolveProvider(cfg) {
	case ProviderOllama:
	case ProviderOpenAI:
		if strings.HasSuffix(ResolveModelURL(cfg), "/api/generate") {
			warnings = append(warnings, "provider is openai but model url points at an ollama /api/generate endpoint; use the OpenAI-compatible base url (e.g. http://localhost:11434/v1)")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("unknown model provider %q; falling back to %s", cfg.Model.Provider, ProviderOllama))
	}
	if cfg.Model.TimeoutSeconds < 0 {
		warnings = append(warnings, "model timeout_seconds is negative; no timeout is applied")
	}
	return warnings
}

// ResolveStoragePath returns the session storage directory.
// Priority: $KJ_STORAGE_PATH env > config value > DefaultStoragePath.
// A leading "~/" is expanded to the home directory.
func ResolveStoragePath(cfg *Config) string {
	path := os.Getenv("KJ_STORAGE_PATH")
	if path == "" && cfg != nil {
		path = cfg.Storage.Path
	}
	if path == "" {
		return DefaultStoragePath()
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}

// ResolveProvider returns the model provider name.
// Priority: $KJ_PROVIDER env > config value. ValidateConfig reports unknown names.
func ResolveProvider(cfg *Config) string {
	provider := os.Getenv("KJ_PROVIDER")
	if provider == "" && cfg != nil {
		provider = cfg.Model.Provider
	}
	if provider == "" {
		return ProviderOllama
	}
	return strings.ToLower(provider)
}

// ResolveModelURL returns the model endpoint URL.
// Priority: $KJ_MODEL_URL env > config value.
func ResolveModelURL(cfg *Config) string {
	if url := os.Getenv("KJ_MODEL_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Model.URL
	}
	return ""
}

// ResolveModelName returns the model name.
// Priority: $KJ_MODEL env > config value.
func ResolveModelName(cfg *Config) string {
	if model := os.Getenv("KJ_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Model.Name
	}
	return ""
}

// ResolveAPIKey returns the API key for OpenAI-compatible providers.
// Priority: $KJ_API_KEY env > config value.
func ResolveAPIKey(cfg *Config) string {
	if key := os.Getenv("KJ_API_KEY"); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.Model.APIKey
	}
	return ""
}

// ResolveModelTimeout returns the overall request timeout, 0 meaning none.
func ResolveModelTimeout(cfg *Config) time.Duration {
	if cfg == nil || cfg.Model.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(cfg.Model.TimeoutSeconds) * time.Second
}

// ResolveEmbeddingURL returns the embedding endpoint URL.
// Priority: $KJ_EMBEDDING_URL env > config value.
func ResolveEmbeddingURL(cfg *Config) string {
	if url := os.Getenv("KJ_EMBEDDING_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Embedding.URL
	}
	return ""
}

// ResolveEmbeddingModel returns the embedding model name.
// Priority: $KJ_EMBEDDING_MODEL env > config value.
func ResolveEmbeddingModel(cfg *Config) string {
	if model := os.Getenv("KJ_EMBEDDING_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Embedding.Model
	}
	return ""
}

// ResolveEmbeddingTTL returns how long embedding vectors stay cached in memory.
func ResolveEmbeddingTTL(cfg *Config) time.Duration {
	if cfg == nil || cfg.Embedding.TTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(cfg.Embedding.TTLMinutes) * time.Minute
}

// RedactCommands reports whether assigned values in captured commands are
// hidden before they are stored. Off unless the config file enables it.
func RedactCommands(cfg *Config) bool {
	if cfg == nil || cfg.Privacy.RedactCommands == nil {
		return false
	}
	return *cfg.Privacy.RedactCommands
}
