package kj

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("KJ_CONFIG_DIR", dir)
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Model.Provider != ProviderOllama {
		t.Errorf("expected provider ollama, got %q", cfg.Model.Provider)
	}
	if cfg.Model.URL != "http://localhost:11434/api/generate" {
		t.Errorf("unexpected default url %q", cfg.Model.URL)
	}
	if cfg.Model.Name == "" {
		t.Error("expected a default model name")
	}
	if RedactCommands(cfg) {
		t.Error("expected command redaction disabled by default")
	}
}

func TestLoadConfigMissingReturnsDefaults(t *testing.T) {
	t.Setenv("KJ_CONFIG_DIR", t.TempDir())
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.Name != DefaultConfig().Model.Name {
		t.Errorf("expected default model, got %q", cfg.Model.Name)
	}
}

func TestLoadConfigFillsMissingFields(t *testing.T) {
	writeConfig(t, `
[model]
name = "qwen3:1.7b"

[privacy]
redact_commands = true
`)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.Name != "qwen3:1.7b" {
		t.Errorf("expected model from file, got %q", cfg.Model.Name)
	}
	if cfg.Model.URL != DefaultConfig().Model.URL {
		t.Errorf("expected default url, got %q", cfg.Model.URL)
	}
	if cfg.Embedding.TTLMinutes != 60 {
		t.Errorf("expected default ttl 60, got %d", cfg.Embedding.TTLMinutes)
	}
	if !RedactCommands(cfg) {
		t.Error("expected redaction enabled by file")
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	writeConfig(t, "[model\nname = ")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("KJ_MODEL_URL", "http://example.test/api/generate")
	t.Setenv("KJ_MODEL", "tiny")
	t.Setenv("KJ_PROVIDER", "OpenAI")
	t.Setenv("KJ_API_KEY", "secret")
	t.Setenv("KJ_STORAGE_PATH", "/srv/kj")
	t.Setenv("KJ_EMBEDDING_URL", "http://example.test/api/embed")
	t.Setenv("KJ_EMBEDDING_MODEL", "embedder")

	if got := ResolveModelURL(cfg); got != "http://example.test/api/generate" {
		t.Errorf("ResolveModelURL = %q", got)
	}
	if got := ResolveModelName(cfg); got != "tiny" {
		t.Errorf("ResolveModelName = %q", got)
	}
	if got := ResolveProvider(cfg); got != ProviderOpenAI {
		t.Errorf("ResolveProvider = %q", got)
	}
	if got := ResolveAPIKey(cfg); got != "secret" {
		t.Errorf("ResolveAPIKey = %q", got)
	}
	if got := ResolveStoragePath(cfg); got != "/srv/kj" {
		t.Errorf("ResolveStoragePath = %q", got)
	}
	if got := ResolveEmbeddingURL(cfg); got != "http://example.test/api/embed" {
		t.Errorf("ResolveEmbeddingURL = %q", got)
	}
	if got := ResolveEmbeddingModel(cfg); got != "embedder" {
		t.Errorf("ResolveEmbeddingModel = %q", got)
	}
}

func TestResolveStoragePathDefaultsAndTilde(t *testing.T) {
	t.Setenv("KJ_STORAGE_PATH", "")
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := DefaultConfig()
	if got := ResolveStoragePath(cfg); got != filepath.Join(home, "kj-assistant", ".sessions") {
		t.Errorf("expected default storage path under home, got %q", got)
	}

	cfg.Storage.Path = "~/notes/kj"
	if got := ResolveStoragePath(cfg); got != filepath.Join(home, "notes", "kj") {
		t.Errorf("expected tilde expansion, got %q", got)
	}
}

func TestConfigDirResolution(t *testing.T) {
	t.Setenv("KJ_CONFIG_DIR", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := ConfigDir(); got != filepath.Join("/xdg", "kj") {
		t.Errorf("expected XDG config dir, got %q", got)
	}
	t.Setenv("KJ_CONFIG_DIR", "/explicit")
	if got := ConfigPath(); got != filepath.Join("/explicit", "config.toml") {
		t.Errorf("expected explicit config path, got %q", got)
	}
	if got := PromptPath(); got != filepath.Join("/explicit", "prompt.md") {
		t.Errorf("expected explicit prompt path, got %q", got)
	}
}

func TestValidateConfig(t *testing.T) {
	t.Setenv("KJ_PROVIDER", "")
	t.Setenv("KJ_MODEL_URL", "")

	if warnings := ValidateConfig(DefaultConfig()); len(warnings) != 0 {
		t.Errorf("expected no warnings for defaults, got %v", warnings)
	}

	cfg := DefaultConfig()
	cfg.Model.Provider = "openai"
	warnings := ValidateConfig(cfg)
	if len(warnings) != 1 || !strings.Contains(warnings[0], "/api/generate") {
		t.Errorf("expected url warning for openai provider, got %v", warnings)
	}

	cfg.Model.Provider = "llamafile"
	warnings = ValidateConfig(cfg)
	if len(warnings) != 1 || !strings.Contains(warnings[0], "llamafile") {
		t.Errorf("expected unknown provider warning, got %v", warnings)
	}

	if ValidateConfig(nil) != nil {
		t.Error("expected nil warnings for nil config")
	}
}

func TestResolveTimeouts(t *testing.T) {
	cfg := DefaultConfig()
	if ResolveModelTimeout(cfg) != 0 {
		t.Error("expected no model timeout by default")
	}
	cfg.Model.TimeoutSeconds = 90
	if ResolveModelTimeout(cfg).Seconds() != 90 {
		t.Errorf("expected 90s, got %v", ResolveModelTimeout(cfg))
	}
	if ResolveEmbeddingTTL(cfg).Minutes() != 60 {
		t.Errorf("expected 60m ttl, got %v", ResolveEmbeddingTTL(cfg))
	}
}
