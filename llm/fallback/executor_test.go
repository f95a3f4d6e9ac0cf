package fallback

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/llmgateway/llm"
)

type fakeProvider struct {
	name     string
	err      *llm.Error
	calls    int
	response *llm.ChatResponse
}

func (f *fakeProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.response != nil {
		return f.response, nil
	}
	return &llm.ChatResponse{
		Provider: f.name,
		Model:    "fake-model",
		Choices: []llm.ChatChoice{{
			Message: llm.Message{Role: llm.RoleAssistant, Content: "ok"},
		}},
		Usage: llm.ChatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (f *fakeProvider) Name() string         { return f.name }
func (f *fakeProvider) DefaultModel() string { return "fake-model" }

func failing(name string, code llm.ErrorCode) *fakeProvider {
	return &fakeProvider{name: name, err: &llm.Error{
		Code:       code,
		Message:    name + " failed",
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Provider:   name,
	}}
}

func newTestExecutor() *Executor {
	e := New(nil)
	e.delay = time.Millisecond
	return e
}

func TestExecutePrimarySucceeds(t *testing.T) {
	e := newTestExecutor()
	primary := &fakeProvider{name: "openai"}
	backup := &fakeProvider{name: "deepseek"}

	result, err := e.Execute(context.Background(), []llm.Provider{primary, backup}, &llm.ChatRequest{}, "req-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", result.Provider)
	assert.Equal(t, 0, result.Index)
	assert.False(t, result.FallbackUsed)
	assert.Equal(t, 0, backup.calls, "backup must not be invoked")
}

func TestExecuteFallsBackAfterFailure(t *testing.T) {
	e := newTestExecutor()
	primary := failing("openai", llm.ErrUpstreamTimeout)
	backup := &fakeProvider{name: "deepseek"}

	var failures []string
	result, err := e.Execute(context.Background(), []llm.Provider{primary, backup}, &llm.ChatRequest{}, "req-1",
		func(provider string, ferr *llm.Error) {
			failures = append(failures, provider+":"+string(ferr.Code))
		})

	require.NoError(t, err)
	assert.Equal(t, "deepseek", result.Provider)
	assert.Equal(t, 1, result.Index)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, []string{"openai:LLM_UPSTREAM_TIMEOUT"}, failures)
}

func TestExecuteExhaustsChain(t *testing.T) {
	e := newTestExecutor()
	chain := []llm.Provider{
		failing("openai", llm.ErrUpstreamTimeout),
		failing("deepseek", llm.ErrRateLimited),
		failing("huggingface", llm.ErrUpstreamError),
	}

	failureCount := 0
	_, err := e.Execute(context.Background(), chain, &llm.ChatRequest{}, "req-1",
		func(string, *llm.Error) { failureCount++ })

	require.Error(t, err)
	var lerr *llm.Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, llm.ErrProvidersExhausted, lerr.Code)
	assert.Equal(t, http.StatusBadGateway, lerr.HTTPStatus)
	// The terminal message carries the last provider's failure.
	assert.Contains(t, lerr.Message, "huggingface failed")
	assert.Equal(t, 3, failureCount)
}

func TestExecuteEmptyChain(t *testing.T) {
	e := newTestExecutor()
	_, err := e.Execute(context.Background(), nil, &llm.ChatRequest{}, "req-1", nil)

	var lerr *llm.Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, llm.ErrProvidersExhausted, lerr.Code)
}

func TestExecuteStopsOnContextCancel(t *testing.T) {
	e := New(nil)
	e.delay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	primary := failing("openai", llm.ErrUpstreamError)
	backup := &fakeProvider{name: "deepseek"}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := e.Execute(ctx, []llm.Provider{primary, backup}, &llm.ChatRequest{}, "req-1", nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "cancel must interrupt the inter-attempt delay")
	assert.Equal(t, 0, backup.calls)
}

func TestExecutePausesBetweenAttempts(t *testing.T) {
	e := New(nil)
	e.delay = 50 * time.Millisecond

	chain := []llm.Provider{failing("openai", llm.ErrUpstreamError), &fakeProvider{name: "deepseek"}}

	start := time.Now()
	_, err := e.Execute(context.Background(), chain, &llm.ChatRequest{}, "req-1", nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}
