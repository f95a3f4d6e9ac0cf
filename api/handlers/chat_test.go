package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/llmgateway/api"
	"github.com/BaSui01/llmgateway/internal/auth"
	"github.com/BaSui01/llmgateway/internal/cost"
	"github.com/BaSui01/llmgateway/internal/metrics"
	"github.com/BaSui01/llmgateway/internal/pricing"
	"github.com/BaSui01/llmgateway/internal/ratelimit"
	"github.com/BaSui01/llmgateway/internal/store"
	"github.com/BaSui01/llmgateway/llm"
	"github.com/BaSui01/llmgateway/llm/fallback"
	"github.com/BaSui01/llmgateway/llm/router"
)

const testKeyPlaintext = "llmgw-test-key"

// fakeProvider serves canned completions for gateway-level tests.
type fakeProvider struct {
	name  string
	err   *llm.Error
	calls int
}

func (f *fakeProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	model := req.Model
	if model == "" {
		model = f.DefaultModel()
	}
	return &llm.ChatResponse{
		ID:       "up-1",
		Provider: f.name,
		Model:    model,
		Choices: []llm.ChatChoice{{
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: "response from " + f.name},
		}},
		Usage:      llm.ChatUsage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500},
		RawLatency: 250 * time.Millisecond,
	}, nil
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) DefaultModel() string {
	switch f.name {
	case router.ProviderOpenAI:
		return "gpt-3.5-turbo"
	case router.ProviderDeepSeek:
		return "deepseek-chat"
	default:
		return "meta-llama/Meta-Llama-3-8B-Instruct"
	}
}

type gateway struct {
	mux       *http.ServeMux
	store     *store.Store
	collector *metrics.Collector
	key       *store.APIKey
	providers map[string]*fakeProvider
}

// newGateway assembles the full handler stack over an in-memory store and
// three fake providers.
func newGateway(t *testing.T, rpm int) *gateway {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	st := store.New(db, nil)
	require.NoError(t, st.AutoMigrate())

	hash, err := auth.HashKey(testKeyPlaintext)
	require.NoError(t, err)
	key := &store.APIKey{KeyHash: hash, Name: "test", RateLimitPerMinute: rpm, IsActive: true}
	require.NoError(t, st.CreateAPIKey(context.Background(), key))

	fakes := map[string]*fakeProvider{
		router.ProviderOpenAI:      {name: router.ProviderOpenAI},
		router.ProviderDeepSeek:    {name: router.ProviderDeepSeek},
		router.ProviderHuggingFace: {name: router.ProviderHuggingFace},
	}

	collector := metrics.NewCollector()
	table := pricing.NewTable()
	authenticator := auth.New(st, nil)
	limiter := ratelimit.New()
	recorder := cost.New(st, table, collector, nil)
	executor := fallback.New(nil)
	rt := router.New(fakes[router.ProviderOpenAI], fakes[router.ProviderDeepSeek], fakes[router.ProviderHuggingFace])

	chat := NewChatHandler(authenticator, limiter, rt, executor, recorder, st, collector, nil)
	costs := NewCostsHandler(authenticator, st, table, nil)
	routing := NewRoutingHandler(rt, nil)
	health := NewHealthHandler()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", chat.HandleChatCompletion)
	mux.HandleFunc("GET /v1/costs", costs.HandleCosts)
	mux.HandleFunc("GET /v1/costs/records", costs.HandleCostRecords)
	mux.HandleFunc("GET /v1/overview", costs.HandleOverview)
	mux.HandleFunc("GET /v1/analytics", costs.HandleAnalytics)
	mux.HandleFunc("GET /v1/transactions/recent", costs.HandleRecentTransactions)
	mux.HandleFunc("GET /v1/routing/preview", routing.HandleRoutingPreview)
	mux.HandleFunc("GET /v1/providers", routing.HandleProviders)
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.Handle("GET /metrics", collector.Handler())
	mux.HandleFunc("GET /", health.HandleRoot)

	return &gateway{mux: mux, store: st, collector: collector, key: key, providers: fakes}
}

func (g *gateway) do(t *testing.T, method, path string, body interface{}, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if authorized {
		req.Header.Set("Authorization", "Bearer "+testKeyPlaintext)
	}
	rec := httptest.NewRecorder()
	g.mux.ServeHTTP(rec, req)
	return rec
}

func chatBody(task, budget string) api.ChatCompletionRequest {
	return api.ChatCompletionRequest{
		Task:   task,
		Budget: budget,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "summarize this text please"},
		},
	}
}

func counterValue(t *testing.T, g *gateway, name string, match func(labels map[string]string) bool) float64 {
	t.Helper()
	families, err := g.collector.Gather().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.Metric {
			labels := map[string]string{}
			for _, l := range m.Label {
				labels[l.GetName()] = l.GetValue()
			}
			if match(labels) {
				return m.Counter.GetValue()
			}
		}
	}
	return 0
}

func TestChatCompletionHappyPath(t *testing.T) {
	g := newGateway(t, 60)

	rec := g.do(t, "POST", "/v1/chat/completions", chatBody("summarization", ""), true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp api.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Regexp(t, `^req-[0-9a-f]{16}$`, resp.ID)
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "deepseek", resp.Provider, "summarization routes to deepseek")
	assert.Equal(t, "response from deepseek", resp.Choices[0].Message.Content)
	// 1000/1000*0.00014 + 500/1000*0.00028 = 0.00028
	assert.Equal(t, "0.000280", resp.CostUSD)
	require.NotNil(t, resp.Routing)
	assert.False(t, resp.Routing.FallbackUsed)
	assert.Equal(t, []string{"openai", "huggingface"}, resp.Routing.Fallbacks)

	// One cost row was persisted for the key.
	records, err := g.store.CostRecords(context.Background(), store.RecordFilter{APIKeyID: g.key.ID}, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, resp.ID, records[0].RequestID)
	// latency_ms is the adapter call time, not the whole pipeline.
	assert.Equal(t, 250, records[0].LatencyMs)

	success := counterValue(t, g, "llm_gateway_requests_total", func(l map[string]string) bool {
		return l["provider"] == "deepseek" && l["status"] == "success"
	})
	assert.Equal(t, 1.0, success)
}

func TestChatCompletionMissingKey(t *testing.T) {
	g := newGateway(t, 60)

	rec := g.do(t, "POST", "/v1/chat/completions", chatBody("", ""), false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var errResp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "invalid or missing API key", errResp.Detail)

	// Nothing was persisted or invoked.
	for _, p := range g.providers {
		assert.Equal(t, 0, p.calls)
	}
}

func TestChatCompletionWrongKey(t *testing.T) {
	g := newGateway(t, 60)

	req := httptest.NewRequest("POST", "/v1/chat/completions", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer llmgw-wrong")
	rec := httptest.NewRecorder()
	g.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatCompletionRateLimited(t *testing.T) {
	g := newGateway(t, 2)

	require.Equal(t, http.StatusOK, g.do(t, "POST", "/v1/chat/completions", chatBody("", ""), true).Code)
	require.Equal(t, http.StatusOK, g.do(t, "POST", "/v1/chat/completions", chatBody("", ""), true).Code)

	rec := g.do(t, "POST", "/v1/chat/completions", chatBody("", ""), true)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var errResp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "rate limit exceeded", errResp.Detail)
}

func TestChatCompletionValidation(t *testing.T) {
	g := newGateway(t, 60)

	tests := []struct {
		name string
		body api.ChatCompletionRequest
	}{
		{"empty messages", api.ChatCompletionRequest{}},
		{"bad role", api.ChatCompletionRequest{
			Messages: []llm.Message{{Role: "robot", Content: "hi"}},
		}},
		{"empty content", api.ChatCompletionRequest{
			Messages: []llm.Message{{Role: llm.RoleUser, Content: ""}},
		}},
		{"temperature out of range", api.ChatCompletionRequest{
			Temperature: 3,
			Messages:    []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		}},
		{"unknown task", api.ChatCompletionRequest{
			Task:     "translation",
			Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		}},
		{"unknown budget", api.ChatCompletionRequest{
			Budget:   "unlimited",
			Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := g.do(t, "POST", "/v1/chat/completions", tt.body, true)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestChatCompletionFallback(t *testing.T) {
	g := newGateway(t, 60)
	// Default routing goes openai -> deepseek -> huggingface; break openai.
	g.providers[router.ProviderOpenAI].err = &llm.Error{
		Code:       llm.ErrUpstreamTimeout,
		Message:    "openai timed out",
		HTTPStatus: http.StatusGatewayTimeout,
		Retryable:  true,
		Provider:   router.ProviderOpenAI,
	}

	rec := g.do(t, "POST", "/v1/chat/completions", chatBody("", ""), true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp api.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "deepseek", resp.Provider)
	assert.True(t, resp.Routing.FallbackUsed)

	errors := counterValue(t, g, "llm_gateway_errors_total", func(l map[string]string) bool {
		return l["provider"] == "openai" && l["error_type"] == "LLM_UPSTREAM_TIMEOUT"
	})
	assert.Equal(t, 1.0, errors)

	fallbacks := counterValue(t, g, "llm_gateway_fallbacks_total", func(l map[string]string) bool {
		return l["from_provider"] == "openai" && l["to_provider"] == "deepseek"
	})
	assert.Equal(t, 1.0, fallbacks)
}

func TestChatCompletionFallbackSkipsBrokenProviders(t *testing.T) {
	g := newGateway(t, 60)
	// Break the first two chain positions; huggingface serves the request.
	for _, name := range []string{router.ProviderOpenAI, router.ProviderDeepSeek} {
		g.providers[name].err = &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    name + " unavailable",
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   name,
		}
	}

	rec := g.do(t, "POST", "/v1/chat/completions", chatBody("", ""), true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp api.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "huggingface", resp.Provider)
	assert.True(t, resp.Routing.FallbackUsed)

	// Exactly one fallback sample: primary to the provider that served.
	got := counterValue(t, g, "llm_gateway_fallbacks_total", func(l map[string]string) bool {
		return l["from_provider"] == "openai" && l["to_provider"] == "huggingface"
	})
	assert.Equal(t, 1.0, got)
	for _, pair := range [][2]string{{"openai", "deepseek"}, {"deepseek", "huggingface"}} {
		pair := pair
		extra := counterValue(t, g, "llm_gateway_fallbacks_total", func(l map[string]string) bool {
			return l["from_provider"] == pair[0] && l["to_provider"] == pair[1]
		})
		assert.Zero(t, extra, "unexpected fallback sample %s->%s", pair[0], pair[1])
	}
}

func TestChatCompletionAllProvidersFail(t *testing.T) {
	g := newGateway(t, 60)
	for name, p := range g.providers {
		p.err = &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    name + " exploded",
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   name,
		}
	}

	rec := g.do(t, "POST", "/v1/chat/completions", chatBody("", ""), true)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var errResp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Contains(t, errResp.Detail, "LLM provider error")
	assert.Equal(t, string(llm.ErrProvidersExhausted), errResp.Code)

	// No cost row for a failed request.
	records, err := g.store.CostRecords(context.Background(), store.RecordFilter{APIKeyID: g.key.ID}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, records)

	failure := counterValue(t, g, "llm_gateway_requests_total", func(l map[string]string) bool {
		return l["status"] == "failure"
	})
	assert.Equal(t, 1.0, failure)

	// An exhausted chain served nothing by fallback.
	fallbacks := counterValue(t, g, "llm_gateway_fallbacks_total", func(l map[string]string) bool {
		return true
	})
	assert.Zero(t, fallbacks)
}

func TestChatCompletionDeactivatedKey(t *testing.T) {
	g := newGateway(t, 60)
	require.NoError(t, g.store.DeactivateAPIKey(context.Background(), g.key.ID))

	rec := g.do(t, "POST", "/v1/chat/completions", chatBody("", ""), true)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
