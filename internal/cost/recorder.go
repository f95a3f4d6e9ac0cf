// Package cost persists per-request cost rows and keeps the cost counters
// current. Persistence is best-effort: the upstream response has already
// been produced by the time the row is written, so a failed write logs at
// error level instead of failing the request.
package cost

import (
	"context"
	"time"

	"github.com/BaSui01/llmgateway/internal/metrics"
	"github.com/BaSui01/llmgateway/internal/pricing"
	"github.com/BaSui01/llmgateway/internal/store"
	"github.com/BaSui01/llmgateway/llm"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Recorder writes cost rows and updates the process-wide cost counter.
type Recorder struct {
	store   *store.Store
	pricing *pricing.Table
	metrics *metrics.Collector
	logger  *zap.Logger
}

// New creates a recorder.
func New(st *store.Store, table *pricing.Table, collector *metrics.Collector, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:   st,
		pricing: table,
		metrics: collector,
		logger:  logger.With(zap.String("component", "cost")),
	}
}

// Record prices the successful attempt, persists one CostRecord row in a
// transaction, and bumps the cost counter. Returns the priced cost even
// when persistence fails; the caller still reports it to the client.
func (r *Recorder) Record(
	ctx context.Context,
	apiKeyID, requestID string,
	resp *llm.ChatResponse,
	latency time.Duration,
) (decimal.Decimal, error) {
	costUSD := r.pricing.Cost(resp.Provider, resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	record := &store.CostRecord{
		APIKeyID:  apiKeyID,
		RequestID: requestID,
		Provider:  resp.Provider,
		Model:     resp.Model,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
		CostUSD:   costUSD.Round(6),
		LatencyMs: int(latency.Milliseconds()),
		CreatedAt: time.Now().UTC(),
	}

	if err := r.store.CreateCostRecord(ctx, record); err != nil {
		r.logger.Error("failed to record cost",
			zap.String("request_id", requestID),
			zap.String("api_key_id", apiKeyID),
			zap.String("provider", resp.Provider),
			zap.Error(err),
		)
		return costUSD, &llm.Error{Code: llm.ErrPersistence, Message: "cost write failed"}
	}

	cost, _ := costUSD.Float64()
	r.metrics.RecordCost(apiKeyID, resp.Provider, resp.Model, cost)

	return costUSD, nil
}
