// Package api defines the gateway's public wire types.
package api

import (
	"github.com/BaSui01/llmgateway/llm"
)

// ChatCompletionRequest is the body of POST /v1/chat/completions.
// Task, Budget and LatencySensitive are routing hints; Model overrides
// the selected provider's default.
type ChatCompletionRequest struct {
	Task             string        `json:"task,omitempty"`
	Budget           string        `json:"budget,omitempty"`
	LatencySensitive bool          `json:"latency_sensitive,omitempty"`
	Model            string        `json:"model,omitempty"`
	Messages         []llm.Message `json:"messages"`
	Temperature      float32       `json:"temperature,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
}

// ChatCompletionResponse mirrors the OpenAI chat completion shape with
// gateway extensions: the provider that served the request and the
// computed cost.
type ChatCompletionResponse struct {
	ID       string           `json:"id"`
	Object   string           `json:"object"`
	Created  int64            `json:"created"`
	Model    string           `json:"model"`
	Provider string           `json:"provider"`
	Choices  []llm.ChatChoice `json:"choices"`
	Usage    llm.ChatUsage    `json:"usage"`
	CostUSD  string           `json:"cost_usd"`
	Routing  *RoutingInfo     `json:"routing,omitempty"`
}

// RoutingInfo explains a routing decision.
type RoutingInfo struct {
	Provider     string   `json:"provider"`
	Reason       string   `json:"reason"`
	Fallbacks    []string `json:"fallbacks"`
	FallbackUsed bool     `json:"fallback_used"`
}

// ErrorResponse is the error body for every non-2xx response.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ProviderInfo describes one configured upstream in GET /v1/providers.
type ProviderInfo struct {
	Name         string `json:"name"`
	DefaultModel string `json:"default_model"`
	Strength     string `json:"strength"`
}
