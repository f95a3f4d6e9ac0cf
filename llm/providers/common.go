package providers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/llmgateway/llm"
)

// MapHTTPError maps an upstream HTTP status to an llm.Error with the
// retryability the fallback executor expects: 429 and 5xx advance the
// chain, everything else terminates.
func MapHTTPError(status int, msg string, provider string) *llm.Error {
	switch {
	case status == http.StatusTooManyRequests:
		return &llm.Error{
			Code:       llm.ErrRateLimited,
			Message:    msg,
			HTTPStatus: status,
			Retryable:  true,
			Provider:   provider,
		}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &llm.Error{
			Code:       llm.ErrUnauthorized,
			Message:    msg,
			HTTPStatus: status,
			Retryable:  true, // a sibling provider may still serve the request
			Provider:   provider,
		}
	case status >= 500:
		return &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    msg,
			HTTPStatus: status,
			Retryable:  true,
			Provider:   provider,
		}
	default:
		return &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    msg,
			HTTPStatus: status,
			Retryable:  true,
			Provider:   provider,
		}
	}
}

// TimeoutError builds the classified error for a deadline expiry.
func TimeoutError(provider string, msg string) *llm.Error {
	return &llm.Error{
		Code:       llm.ErrUpstreamTimeout,
		Message:    msg,
		HTTPStatus: http.StatusGatewayTimeout,
		Retryable:  true,
		Provider:   provider,
	}
}

// ReadErrorMessage extracts a short error message from an upstream error
// body. Falls back to the raw body, truncated; provider secrets never
// appear in upstream error bodies we forward.
func ReadErrorMessage(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(body) == 0 {
		return "upstream error"
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Detail != "" {
			return envelope.Detail
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return msg
}

// EstimateTokens approximates a token count for providers that omit usage.
// chars/4, rounded down. A documented heuristic, not a contract.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// ChooseModel resolves the effective model: request override first, then
// the provider default.
func ChooseModel(req *llm.ChatRequest, defaultModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	return defaultModel
}
