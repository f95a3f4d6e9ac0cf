// Package fallback drives an ordered provider chain: invoke, classify the
// failure, advance or give up. The walk is strictly sequential; parallel
// speculation would double-charge and break cost attribution.
package fallback

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/llmgateway/llm"
	"github.com/BaSui01/llmgateway/llm/retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// interAttemptDelay is the pause before advancing to the next provider.
const interAttemptDelay = 500 * time.Millisecond

// Result is a successful chain outcome.
type Result struct {
	Response *llm.ChatResponse
	Provider string
	// Index is the chain position that succeeded; FallbackUsed when > 0.
	Index        int
	FallbackUsed bool
}

// Executor walks a provider chain for one request.
type Executor struct {
	logger  *zap.Logger
	tracer  trace.Tracer
	retryer *retry.Retryer
	delay   time.Duration
}

// Option configures the executor.
type Option func(*Executor)

// WithTracer attaches an OpenTelemetry tracer; one span is opened per attempt.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// WithRetryer composes per-attempt exponential backoff around each
// provider. Off by default: the chain itself provides the tries.
func WithRetryer(r *retry.Retryer) Option {
	return func(e *Executor) { e.retryer = r }
}

// New creates the executor.
func New(logger *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		logger: logger,
		tracer: noop.NewTracerProvider().Tracer(""),
		delay:  interAttemptDelay,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute tries each provider in order until one succeeds. onFailure runs
// for every failed attempt (metrics live there, not here). On exhaustion
// the returned error carries the last classified failure's message.
func (e *Executor) Execute(
	ctx context.Context,
	chain []llm.Provider,
	req *llm.ChatRequest,
	requestID string,
	onFailure func(provider string, ferr *llm.Error),
) (*Result, error) {
	if len(chain) == 0 {
		return nil, &llm.Error{
			Code:       llm.ErrProvidersExhausted,
			Message:    "no providers available",
			HTTPStatus: http.StatusBadGateway,
		}
	}

	var lastErr *llm.Error
	for i, provider := range chain {
		resp, err := e.attempt(ctx, provider, req, requestID, i)
		if err == nil {
			result := &Result{
				Response:     resp,
				Provider:     provider.Name(),
				Index:        i,
				FallbackUsed: i > 0,
			}
			if result.FallbackUsed {
				e.logger.Info("fallback succeeded",
					zap.String("request_id", requestID),
					zap.String("provider", provider.Name()),
					zap.String("primary", chain[0].Name()),
					zap.Int("attempt", i+1),
				)
			}
			return result, nil
		}

		lastErr = llm.AsError(err, provider.Name())
		e.logger.Warn("provider attempt failed",
			zap.String("request_id", requestID),
			zap.String("provider", provider.Name()),
			zap.String("error_type", string(lastErr.Code)),
			zap.Int("attempt", i+1),
			zap.Error(lastErr),
		)
		if onFailure != nil {
			onFailure(provider.Name(), lastErr)
		}

		if i+1 < len(chain) {
			select {
			case <-ctx.Done():
				return nil, llm.AsError(ctx.Err(), provider.Name())
			case <-time.After(e.delay):
			}
		}
	}

	return nil, &llm.Error{
		Code:       llm.ErrProvidersExhausted,
		Message:    fmt.Sprintf("LLM provider error: %s", lastErr.Message),
		HTTPStatus: http.StatusBadGateway,
		Provider:   lastErr.Provider,
	}
}

func (e *Executor) attempt(
	ctx context.Context,
	provider llm.Provider,
	req *llm.ChatRequest,
	requestID string,
	index int,
) (*llm.ChatResponse, error) {
	ctx, span := e.tracer.Start(ctx, "llm.attempt",
		trace.WithAttributes(
			attribute.String("llm.provider", provider.Name()),
			attribute.String("request.id", requestID),
			attribute.Int("llm.attempt", index),
		))
	defer span.End()

	if e.retryer != nil {
		var resp *llm.ChatResponse
		err := e.retryer.Do(ctx, func(ctx context.Context) error {
			var attemptErr error
			resp, attemptErr = provider.Completion(ctx, req)
			return attemptErr
		})
		return resp, err
	}
	return provider.Completion(ctx, req)
}
