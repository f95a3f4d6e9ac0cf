// Package openai implements the OpenAI chat-completions adapter.
package openai

import (
	"net/http"
	"time"

	"github.com/BaSui01/llmgateway/llm/providers/openaicompat"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.openai.com"

// Config for the OpenAI adapter.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Organization string
	Timeout      time.Duration
}

// Provider is the OpenAI-style adapter.
type Provider struct {
	*openaicompat.Provider
}

// New creates the OpenAI adapter.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	p := &Provider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName: "openai",
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
		}, logger),
	}
	if cfg.Organization != "" {
		org := cfg.Organization
		p.Cfg.BuildHeaders = func(req *http.Request, apiKey string) {
			req.Header.Set("Authorization", "Bearer "+apiKey)
			req.Header.Set("OpenAI-Organization", org)
			req.Header.Set("Content-Type", "application/json")
		}
	}
	return p
}
