// Package deepseek implements the DeepSeek adapter. DeepSeek follows the
// OpenAI wire format at a different base URL, so the openaicompat base
// carries the whole implementation.
package deepseek

import (
	"time"

	"github.com/BaSui01/llmgateway/llm/providers/openaicompat"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.deepseek.com"

// Config for the DeepSeek adapter.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Provider is the DeepSeek adapter.
type Provider struct {
	*openaicompat.Provider
}

// New creates the DeepSeek adapter.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	return &Provider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName: "deepseek",
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
		}, logger),
	}
}
