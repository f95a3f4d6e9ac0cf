package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/llmgateway/api"
	"github.com/BaSui01/llmgateway/internal/auth"
	"github.com/BaSui01/llmgateway/internal/cost"
	"github.com/BaSui01/llmgateway/internal/metrics"
	"github.com/BaSui01/llmgateway/internal/ratelimit"
	"github.com/BaSui01/llmgateway/internal/store"
	"github.com/BaSui01/llmgateway/llm"
	"github.com/BaSui01/llmgateway/llm/fallback"
	"github.com/BaSui01/llmgateway/llm/router"
)

// ChatHandler drives one chat completion through the full pipeline:
// authenticate, admit, route, execute the fallback chain, account.
type ChatHandler struct {
	auth     *auth.Authenticator
	limiter  *ratelimit.Limiter
	router   *router.Router
	executor *fallback.Executor
	recorder *cost.Recorder
	store    *store.Store
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewChatHandler wires the pipeline stages together.
func NewChatHandler(
	authenticator *auth.Authenticator,
	limiter *ratelimit.Limiter,
	rt *router.Router,
	executor *fallback.Executor,
	recorder *cost.Recorder,
	st *store.Store,
	collector *metrics.Collector,
	logger *zap.Logger,
) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		auth:     authenticator,
		limiter:  limiter,
		router:   rt,
		executor: executor,
		recorder: recorder,
		store:    st,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "chat_handler")),
	}
}

// NewRequestID returns "req-" plus 16 hex chars.
func NewRequestID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "req-" + hex.EncodeToString(b[:])
}

// BearerToken extracts the credential from "Authorization: Bearer <key>",
// falling back to the X-API-Key header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.Header.Get("X-API-Key")
}

// HandleChatCompletion handles POST /v1/chat/completions.
func (h *ChatHandler) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := NewRequestID()
	ctx := r.Context()

	key, err := h.auth.Authenticate(ctx, BearerToken(r))
	if err != nil {
		WriteError(w, llm.AsError(err, ""), requestID, h.logger)
		return
	}

	if !h.limiter.Allow(key.ID, key.RateLimitPerMinute) {
		retryAfter := h.limiter.RetryAfter(key.ID, key.RateLimitPerMinute)
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		WriteError(w, &llm.Error{
			Code:       llm.ErrRateLimited,
			Message:    "rate limit exceeded",
			HTTPStatus: http.StatusTooManyRequests,
		}, requestID, h.logger)
		return
	}

	var req api.ChatCompletionRequest
	if err := DecodeJSONBody(r, &req); err != nil {
		WriteError(w, &llm.Error{
			Code:       llm.ErrInvalidRequest,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadRequest,
		}, requestID, h.logger)
		return
	}
	if verr := validateChatRequest(&req); verr != nil {
		WriteError(w, verr, requestID, h.logger)
		return
	}

	hints := router.Hints{
		Task:             req.Task,
		Budget:           req.Budget,
		LatencySensitive: req.LatencySensitive,
	}
	decision := router.Route(hints)
	chain := h.router.Resolve(decision)

	execStart := time.Now()
	result, err := h.executor.Execute(ctx, chain, &llm.ChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, requestID, h.attemptFailureHook(key.ID))
	if err != nil {
		ferr := llm.AsError(err, "")
		h.metrics.RecordRequest(key.ID, decision.Primary, "failure")
		h.writeRequestLog(r, requestID, key.ID, hints, ferr.Provider, "error")
		WriteError(w, ferr, requestID, h.logger)
		return
	}

	// The histogram covers the whole chain drive; the cost row carries the
	// winning adapter's own call time.
	latency := time.Since(execStart)
	resp := result.Response

	// Best-effort: the completion already happened, so a failed cost write
	// (logged by the recorder) must not fail the response.
	costUSD, _ := h.recorder.Record(ctx, key.ID, requestID, resp, resp.RawLatency)

	h.metrics.RecordRequest(key.ID, result.Provider, "success")
	h.metrics.RecordLatency(key.ID, result.Provider, latency.Seconds())
	if result.FallbackUsed {
		h.metrics.RecordFallback(key.ID, decision.Primary, result.Provider)
	}
	h.writeRequestLog(r, requestID, key.ID, hints, result.Provider, "success")

	h.logger.Info("chat completion served",
		zap.String("request_id", requestID),
		zap.String("api_key_id", key.ID),
		zap.String("provider", result.Provider),
		zap.String("model", resp.Model),
		zap.Bool("fallback_used", result.FallbackUsed),
		zap.Int("tokens_in", resp.Usage.PromptTokens),
		zap.Int("tokens_out", resp.Usage.CompletionTokens),
		zap.String("cost_usd", costUSD.String()),
		zap.Duration("latency", latency),
	)

	WriteJSON(w, http.StatusOK, api.ChatCompletionResponse{
		ID:       requestID,
		Object:   "chat.completion",
		Created:  started.Unix(),
		Model:    resp.Model,
		Provider: result.Provider,
		Choices:  resp.Choices,
		Usage:    resp.Usage,
		CostUSD:  costUSD.StringFixed(6),
		Routing: &api.RoutingInfo{
			Provider:     result.Provider,
			Reason:       decision.Reason,
			Fallbacks:    decision.Chain[1:],
			FallbackUsed: result.FallbackUsed,
		},
	})
}

// attemptFailureHook records the error counter for every failed attempt.
// The fallback counter is not touched here: it counts served-by-fallback
// requests, so it moves exactly once, on success past the primary.
func (h *ChatHandler) attemptFailureHook(apiKeyID string) func(string, *llm.Error) {
	return func(provider string, ferr *llm.Error) {
		h.metrics.RecordError(apiKeyID, provider, string(ferr.Code))
	}
}

func (h *ChatHandler) writeRequestLog(r *http.Request, requestID, apiKeyID string, hints router.Hints, provider, status string) {
	log := &store.RequestLog{
		RequestID:        requestID,
		APIKeyID:         apiKeyID,
		Task:             hints.Task,
		Budget:           hints.Budget,
		LatencySensitive: hints.LatencySensitive,
		ProviderUsed:     provider,
		Status:           status,
	}
	if err := h.store.CreateRequestLog(r.Context(), log); err != nil {
		h.logger.Error("failed to write request log",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

func validateChatRequest(req *api.ChatCompletionRequest) *llm.Error {
	invalid := func(format string, args ...interface{}) *llm.Error {
		return &llm.Error{
			Code:       llm.ErrInvalidRequest,
			Message:    fmt.Sprintf(format, args...),
			HTTPStatus: http.StatusBadRequest,
		}
	}

	if len(req.Messages) == 0 {
		return invalid("messages must not be empty")
	}
	for i, m := range req.Messages {
		if !llm.ValidRole(m.Role) {
			return invalid("messages[%d].role must be system, user or assistant", i)
		}
		if m.Content == "" {
			return invalid("messages[%d].content must not be empty", i)
		}
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		return invalid("temperature must be between 0 and 2")
	}
	if req.MaxTokens < 0 {
		return invalid("max_tokens must not be negative")
	}
	if !router.ValidHints(router.Hints{Task: req.Task, Budget: req.Budget}) {
		return invalid("unknown task or budget hint")
	}
	return nil
}
