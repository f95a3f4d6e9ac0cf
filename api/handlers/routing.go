package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/llmgateway/api"
	"github.com/BaSui01/llmgateway/llm"
	"github.com/BaSui01/llmgateway/llm/router"
)

// RoutingHandler serves the routing preview and provider catalog. Neither
// endpoint requires authentication: they expose only static policy, never
// tenant data.
type RoutingHandler struct {
	router *router.Router
	logger *zap.Logger
}

// NewRoutingHandler creates the handler.
func NewRoutingHandler(rt *router.Router, logger *zap.Logger) *RoutingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoutingHandler{router: rt, logger: logger}
}

// RoutingPreviewResponse explains the decision without invoking anything.
// fallback_chain is always the full fixed provider order, independent of
// which provider the hints select.
type RoutingPreviewResponse struct {
	SelectedProvider string   `json:"selected_provider"`
	ProviderName     string   `json:"provider_name"`
	Reason           string   `json:"reason"`
	FallbackChain    []string `json:"fallback_chain"`
}

// providerDisplayNames maps wire names to human-readable names.
var providerDisplayNames = map[string]string{
	router.ProviderOpenAI:      "OpenAI",
	router.ProviderDeepSeek:    "DeepSeek",
	router.ProviderHuggingFace: "HuggingFace",
}

// HandleRoutingPreview handles GET /v1/routing/preview. Hints come in as
// query parameters: task, budget, latency_sensitive.
func (h *RoutingHandler) HandleRoutingPreview(w http.ResponseWriter, r *http.Request) {
	requestID := NewRequestID()
	q := r.URL.Query()

	latencySensitive := false
	if raw := q.Get("latency_sensitive"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			WriteError(w, &llm.Error{
				Code:       llm.ErrInvalidRequest,
				Message:    "latency_sensitive must be a boolean",
				HTTPStatus: http.StatusBadRequest,
			}, requestID, h.logger)
			return
		}
		latencySensitive = parsed
	}

	hints := router.Hints{
		Task:             q.Get("task"),
		Budget:           q.Get("budget"),
		LatencySensitive: latencySensitive,
	}
	if !router.ValidHints(hints) {
		WriteError(w, &llm.Error{
			Code:       llm.ErrInvalidRequest,
			Message:    "unknown task or budget hint",
			HTTPStatus: http.StatusBadRequest,
		}, requestID, h.logger)
		return
	}

	decision := router.Route(hints)
	WriteJSON(w, http.StatusOK, RoutingPreviewResponse{
		SelectedProvider: decision.Primary,
		ProviderName:     providerDisplayNames[decision.Primary],
		Reason:           decision.Reason,
		FallbackChain:    router.FallbackOrder(),
	})
}

// providerCatalog describes each known upstream for GET /v1/providers.
var providerCatalog = map[string]api.ProviderInfo{
	router.ProviderOpenAI: {
		Name:         router.ProviderOpenAI,
		DefaultModel: "gpt-3.5-turbo",
		Strength:     "general purpose, lowest latency",
	},
	router.ProviderDeepSeek: {
		Name:         router.ProviderDeepSeek,
		DefaultModel: "deepseek-chat",
		Strength:     "summarization, low cost",
	},
	router.ProviderHuggingFace: {
		Name:         router.ProviderHuggingFace,
		DefaultModel: "meta-llama/Meta-Llama-3-8B-Instruct",
		Strength:     "reasoning, open models",
	},
}

// HandleProviders handles GET /v1/providers, listing only the providers
// actually registered with the router.
func (h *RoutingHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	names := h.router.Providers()
	providers := make([]api.ProviderInfo, 0, len(names))
	for _, name := range names {
		if info, ok := providerCatalog[name]; ok {
			providers = append(providers, info)
		}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"providers": providers})
}
