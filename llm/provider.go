package llm

import (
	"context"
	"errors"
	"time"
)

// ErrorCode aligns HTTP status, retryability and fallback policy across providers.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "LLM_INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "LLM_UNAUTHORIZED"
	ErrRateLimited        ErrorCode = "LLM_RATE_LIMITED"
	ErrUpstreamTimeout    ErrorCode = "LLM_UPSTREAM_TIMEOUT"
	ErrUpstreamError      ErrorCode = "LLM_UPSTREAM_ERROR"
	ErrProvidersExhausted ErrorCode = "LLM_PROVIDERS_EXHAUSTED"
	ErrPersistence        ErrorCode = "LLM_PERSISTENCE"
)

// Error is the unified provider error. Retryable errors advance the
// fallback chain; everything else terminates the request.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// AsError extracts an *Error from err, or wraps err as a retryable
// upstream error attributed to provider. Adapters never surface raw
// errors to the executor.
func AsError(err error, provider string) *Error {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr
	}
	return &Error{
		Code:      ErrUpstreamError,
		Message:   err.Error(),
		Retryable: true,
		Provider:  provider,
	}
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ValidRole reports whether r is one of the three accepted chat roles.
func ValidRole(r Role) bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the internal request contract every adapter translates
// from. Model is an optional override; adapters fall back to their default.
type ChatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []Message     `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Timeout     time.Duration `json:"-"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

// ChatResponse is the normalized upstream response. TokensEstimated is set
// when the provider omitted usage and counts were derived heuristically.
type ChatResponse struct {
	ID              string        `json:"id,omitempty"`
	Provider        string        `json:"provider,omitempty"`
	Model           string        `json:"model"`
	Choices         []ChatChoice  `json:"choices"`
	Usage           ChatUsage     `json:"usage"`
	TokensEstimated bool          `json:"tokens_estimated,omitempty"`
	RawLatency      time.Duration `json:"-"`
}

// Content returns the first choice's assistant text, or "".
func (r *ChatResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Provider is the uniform invocation contract over one upstream LLM API.
// Implementations translate the request, perform a single HTTP call under
// the ctx deadline, and normalize the response. They never retry; the
// fallback executor owns retry and chain policy.
type Provider interface {
	// Completion performs one synchronous chat completion attempt.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the provider's routing identifier (e.g. "openai").
	Name() string

	// DefaultModel returns the model used when the request has no override.
	DefaultModel() string
}
