package inference

import (
	"log/slog"

	"github.com/kj-assistant/kj"
	"github.com/kj-assistant/kj/model"
)

// New returns the completion provider selected by the configuration.
// Unknown provider names fall back to Ollama.
func New(cfg *kj.Config) model.Provider {
	url := kj.ResolveModelURL(cfg)
	name := kj.ResolveModelName(cfg)
	timeout := kj.ResolveModelTimeout(cfg)

	switch provider := kj.ResolveProvider(cfg); provider {
	case kj.ProviderOpenAI:
		slog.Debug("using openai-compatible provider", "url", url, "model", name)
		return NewOpenAI(url, kj.ResolveAPIKey(cfg), name, timeout)
	case kj.ProviderOllama:
	default:
		slog.Warn("unknown model provider, using ollama", "provider", provider)
	}
	slog.Debug("using ollama provider", "url", url, "model", name)
	return NewOllama(url, name, timeout)
}
