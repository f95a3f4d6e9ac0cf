// Package huggingface implements the HuggingFace Inference API adapter.
// The wire format differs from the OpenAI style: messages are flattened
// into a single prompt, and token usage is estimated because the API does
// not report it.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/llmgateway/llm"
	"github.com/BaSui01/llmgateway/llm/providers"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api-inference.huggingface.co"

// modelAliases maps short model names to full HuggingFace repo paths.
var modelAliases = map[string]string{
	"llama-3": "meta-llama/Meta-Llama-3-8B-Instruct",
	"mixtral": "mistralai/Mixtral-8x7B-Instruct-v0.1",
	"qwen":    "Qwen/Qwen2-7B-Instruct",
}

// Config for the HuggingFace adapter.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Provider is the HuggingFace Inference adapter.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates the HuggingFace adapter.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (p *Provider) Name() string { return "huggingface" }

func (p *Provider) DefaultModel() string { return p.cfg.Model }

type wireRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters wireParameters `json:"parameters"`
}

type wireParameters struct {
	Temperature  float32 `json:"temperature,omitempty"`
	MaxNewTokens int     `json:"max_new_tokens,omitempty"`
}

type wireGeneration struct {
	GeneratedText string `json:"generated_text"`
}

// Completion posts the flattened prompt to <base>/models/<model> and
// normalizes the generation. Token counts are always estimated.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.cfg.APIKey == "" {
		return nil, &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    "huggingface API key not configured",
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   p.Name(),
		}
	}

	timeout := p.cfg.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	model := providers.ChooseModel(req, p.cfg.Model)
	prompt := FlattenMessages(req.Messages)

	payload, err := json.Marshal(wireRequest{
		Inputs: prompt,
		Parameters: wireParameters{
			Temperature:  req.Temperature,
			MaxNewTokens: req.MaxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal inference request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.modelEndpoint(model), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, providers.TimeoutError(p.Name(),
				fmt.Sprintf("huggingface request timed out after %s", timeout))
		}
		return nil, &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   p.Name(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		if resp.StatusCode == http.StatusServiceUnavailable {
			// 503 means the model is still loading on the inference fleet.
			msg = "huggingface model is loading: " + msg
		}
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	content, err := decodeGeneration(resp.Body)
	if err != nil {
		return nil, &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   p.Name(),
		}
	}

	// Some models echo the prompt ahead of the generation.
	content = strings.TrimSpace(strings.TrimPrefix(content, prompt))

	return &llm.ChatResponse{
		ID:       "hf-" + model,
		Provider: p.Name(),
		Model:    model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     providers.EstimateTokens(prompt),
			CompletionTokens: providers.EstimateTokens(content),
			TotalTokens:      providers.EstimateTokens(prompt) + providers.EstimateTokens(content),
		},
		TokensEstimated: true,
		RawLatency:      latency,
	}, nil
}

func (p *Provider) modelEndpoint(model string) string {
	path := model
	if full, ok := modelAliases[strings.ToLower(model)]; ok {
		path = full
	}
	return strings.TrimRight(p.cfg.BaseURL, "/") + "/models/" + path
}

// decodeGeneration handles both response shapes: an array whose first
// element carries generated_text, or a bare object.
func decodeGeneration(r io.Reader) (string, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return "", fmt.Errorf("decode huggingface response: %w", err)
	}

	var list []wireGeneration
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0].GeneratedText, nil
	}
	var single wireGeneration
	if err := json.Unmarshal(raw, &single); err == nil && single.GeneratedText != "" {
		return single.GeneratedText, nil
	}
	return "", fmt.Errorf("unexpected huggingface response shape")
}

// FlattenMessages renders chat messages as a single prompt, ending with an
// open assistant turn.
func FlattenMessages(messages []llm.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			b.WriteString("System: ")
		case llm.RoleUser:
			b.WriteString("User: ")
		case llm.RoleAssistant:
			b.WriteString("Assistant: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}
