package llm

import (
	"context"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/TFMV/cypherplan/pkg/errors"
)

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

const defaultOllamaURL = "http://localhost:11434"

// ProviderConfig selects and configures a chat model.
type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewModel creates the chat model named by cfg.Provider. An empty API key
// falls back to the provider's usual environment variable.
func NewModel(ctx context.Context, cfg ProviderConfig) (llms.Model, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		key := firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, errors.New(errors.CodeFailedPrecondition, "openai: missing API key")
		}
		opts := []openai.Option{openai.WithToken(key)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		m, err := openai.New(opts...)
		if err != nil {
			return nil, providerErr(cfg.Provider, err)
		}
		return m, nil

	case ProviderAnthropic:
		key := firstNonEmpty(cfg.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
		if key == "" {
			return nil, errors.New(errors.CodeFailedPrecondition, "anthropic: missing API key")
		}
		opts := []anthropic.Option{anthropic.WithToken(key)}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		m, err := anthropic.New(opts...)
		if err != nil {
			return nil, providerErr(cfg.Provider, err)
		}
		return m, nil

	case ProviderGoogle:
		key := firstNonEmpty(cfg.APIKey, os.Getenv("GOOGLE_API_KEY"), os.Getenv("GEMINI_API_KEY"))
		if key == "" {
			return nil, errors.New(errors.CodeFailedPrecondition, "google: missing API key")
		}
		opts := []googleai.Option{googleai.WithAPIKey(key)}
		if cfg.Model != "" {
			opts = append(opts, googleai.WithDefaultModel(cfg.Model))
		}
		m, err := googleai.New(ctx, opts...)
		if err != nil {
			return nil, providerErr(cfg.Provider, err)
		}
		return m, nil

	case ProviderOllama:
		opts := []ollama.Option{ollama.WithServerURL(firstNonEmpty(cfg.BaseURL, os.Getenv("OLLAMA_HOST"), defaultOllamaURL))}
		if cfg.Model != "" {
			opts = append(opts, ollama.WithModel(cfg.Model))
		}
		m, err := ollama.New(opts...)
		if err != nil {
			return nil, providerErr(cfg.Provider, err)
		}
		return m, nil
	}
	return nil, errors.Newf(errors.CodeInvalidRequest, "unknown LLM provider %q", cfg.Provider)
}

func providerErr(provider string, err error) error {
	return errors.Wrapf(err, errors.CodeUnavailable, "%s: failed to create model client", provider)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
