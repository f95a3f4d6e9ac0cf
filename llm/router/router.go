// Package router selects a primary provider and fallback chain from
// request hints. Selection is a pure function of the hints, so identical
// inputs always produce identical chains.
package router

import (
	"strings"

	"github.com/BaSui01/llmgateway/llm"
)

// Task hint values.
const (
	TaskSummarization = "summarization"
	TaskReasoning     = "reasoning"
	TaskGeneral       = "general"
)

// Budget hint values.
const (
	BudgetLow    = "low"
	BudgetMedium = "medium"
	BudgetHigh   = "high"
)

// Provider names in the fixed fallback order.
const (
	ProviderOpenAI      = "openai"
	ProviderDeepSeek    = "deepseek"
	ProviderHuggingFace = "huggingface"
)

// fallbackOrder is the fixed order fallbacks are drawn from.
var fallbackOrder = []string{ProviderOpenAI, ProviderDeepSeek, ProviderHuggingFace}

// Hints are the routing inputs extracted from a chat request.
type Hints struct {
	Task             string
	Budget           string
	LatencySensitive bool
}

// Decision is the routing outcome: the primary, the full chain (primary
// first), and a human-readable reason for the routing-preview endpoint.
type Decision struct {
	Primary string
	Chain   []string
	Reason  string
}

// Router resolves provider names to registered adapters.
type Router struct {
	providers map[string]llm.Provider
}

// New creates a router over the registered adapters.
func New(providers ...llm.Provider) *Router {
	m := make(map[string]llm.Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Router{providers: m}
}

// Route applies the selection rules, first match wins:
//
//	1. task == summarization        -> deepseek
//	2. task == reasoning            -> huggingface
//	3. latency_sensitive            -> openai
//	4. budget == low                -> deepseek
//	5. budget == high               -> openai
//	6. default                      -> openai
//
// The chain is the primary followed by the remaining providers in the
// fixed order [openai, deepseek, huggingface].
func Route(h Hints) Decision {
	primary := ProviderOpenAI
	var reasons []string

	switch {
	case h.Task == TaskSummarization:
		primary = ProviderDeepSeek
		reasons = append(reasons, "Task = Summarization")
	case h.Task == TaskReasoning:
		primary = ProviderHuggingFace
		reasons = append(reasons, "Task = Reasoning")
	case h.LatencySensitive:
		primary = ProviderOpenAI
		reasons = append(reasons, "Latency Sensitive = True")
	case h.Budget == BudgetLow:
		primary = ProviderDeepSeek
		reasons = append(reasons, "Budget = Low")
	case h.Budget == BudgetHigh:
		primary = ProviderOpenAI
		reasons = append(reasons, "Budget = High")
	}

	chain := make([]string, 0, len(fallbackOrder))
	chain = append(chain, primary)
	for _, name := range fallbackOrder {
		if name != primary {
			chain = append(chain, name)
		}
	}

	reason := "Default routing (OpenAI)"
	if len(reasons) > 0 {
		reason = "Selected because: " + strings.Join(reasons, ", ")
	}

	return Decision{Primary: primary, Chain: chain, Reason: reason}
}

// FallbackOrder returns a copy of the fixed provider order fallbacks are
// drawn from.
func FallbackOrder() []string {
	out := make([]string, len(fallbackOrder))
	copy(out, fallbackOrder)
	return out
}

// Resolve maps the decision's chain to registered adapters, skipping names
// with no adapter (a provider can be disabled by not registering it).
func (r *Router) Resolve(d Decision) []llm.Provider {
	chain := make([]llm.Provider, 0, len(d.Chain))
	for _, name := range d.Chain {
		if p, ok := r.providers[name]; ok {
			chain = append(chain, p)
		}
	}
	return chain
}

// Providers returns the registered provider names in fallback order.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for _, name := range fallbackOrder {
		if _, ok := r.providers[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// ValidHints reports whether the hint values are in range. Empty values
// are allowed everywhere.
func ValidHints(h Hints) bool {
	switch h.Task {
	case "", TaskSummarization, TaskReasoning, TaskGeneral:
	default:
		return false
	}
	switch h.Budget {
	case "", BudgetLow, BudgetMedium, BudgetHigh:
	default:
		return false
	}
	return true
}
