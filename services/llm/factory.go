package llm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/agentsphere/agentsphere-api/model"
	"go.uber.org/zap"
)

const (
	// PlaceholderAPIKey is sent when no key is configured; local servers ignore it
	PlaceholderAPIKey = "placeholder"
	DefaultMaxTokens  = 4096
	DefaultOllamaURL  = "http://localhost:11434"
)

var ErrUnsupportedAPIType = errors.New("unsupported api type")

type constructor func(cfg ClientConfig) (Client, error)

// providers maps each api type to the constructor that knows its protocol
var providers = map[model.APIType]constructor{
	model.APITypeOpenAI:           newOpenAIClient,
	model.APITypeOpenAICompatible: newOpenAIClient,
	model.APITypeAnthropic:        newAnthropicClient,
	model.APITypeOllama:           newOllamaClient,
}

// CreateClient builds a client for cfg. It never panics and returns nil on
// any construction failure; callers treat nil as "model unavailable".
func CreateClient(cfg ClientConfig) (client Client) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("llm client construction panicked", zap.Any("panic", r), zap.String("model", cfg.Model))
			client = nil
		}
	}()

	c, err := buildClient(cfg)
	if err != nil {
		zap.L().Warn("llm client construction failed",
			zap.String("api_type", string(cfg.APIType)),
			zap.String("base_url", cfg.BaseURL),
			zap.String("model", cfg.Model),
			zap.Error(err))
		return nil
	}
	return c
}

func buildClient(cfg ClientConfig) (Client, error) {
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = PlaceholderAPIKey
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.APIType == "" {
		cfg.APIType = InferAPIType(cfg.BaseURL)
	}

	if cfg.BaseURL != "" {
		if err := validateBaseURL(cfg.BaseURL); err != nil {
			return nil, err
		}
	} else if cfg.APIType == model.APITypeOpenAICompatible {
		return nil, errors.New("base url is required for openai compatible providers")
	}

	ctor, ok := providers[cfg.APIType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAPIType, cfg.APIType)
	}
	return ctor(cfg)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid base url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("invalid base url: missing host")
	}
	return nil
}

// InferAPIType guesses the provider for records created without an explicit api type
func InferAPIType(baseURL string) model.APIType {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return model.APITypeOpenAICompatible
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case u.Port() == "11434" || strings.Contains(host, "ollama"):
		return model.APITypeOllama
	case strings.Contains(host, "anthropic"):
		return model.APITypeAnthropic
	case host == "api.openai.com":
		return model.APITypeOpenAI
	}
	return model.APITypeOpenAICompatible
}

func maxTokens(req ChatRequest, fallback int) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return fallback
}

// ConfigFromDetails maps stored LLM details onto a client config
func ConfigFromDetails(d model.LLMDetails) ClientConfig {
	return ClientConfig{
		APIType:   d.APIType,
		BaseURL:   d.BaseURL,
		Model:     d.Model,
		APIKey:    d.APIKey,
		MaxTokens: d.MaxTokens,
	}
}
