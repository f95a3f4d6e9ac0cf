// Package pricing maps (provider, model, tokens) to USD cost using a
// static table. Arithmetic runs in fixed-precision decimal; unknown models
// cost zero so they are still served and recorded.
package pricing

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Entry prices one model prefix. An empty ModelPrefix is the provider
// default, used when no longer prefix matches.
type Entry struct {
	Provider    string
	ModelPrefix string
	// USD per 1k tokens.
	PriceIn  decimal.Decimal
	PriceOut decimal.Decimal
}

// Table is the immutable-after-startup pricing table.
type Table struct {
	mu      sync.RWMutex
	entries map[string][]Entry // provider -> entries
}

// NewTable returns the table with the default entries loaded.
func NewTable() *Table {
	t := &Table{entries: make(map[string][]Entry)}
	for _, e := range defaultEntries() {
		t.Add(e)
	}
	return t
}

func defaultEntries() []Entry {
	d := decimal.RequireFromString
	return []Entry{
		{Provider: "openai", ModelPrefix: "gpt-4", PriceIn: d("0.03"), PriceOut: d("0.06")},
		{Provider: "openai", ModelPrefix: "gpt-3.5", PriceIn: d("0.0015"), PriceOut: d("0.002")},
		{Provider: "deepseek", ModelPrefix: "", PriceIn: d("0.00014"), PriceOut: d("0.00028")},
		{Provider: "huggingface", ModelPrefix: "", PriceIn: decimal.Zero, PriceOut: decimal.Zero},
	}
}

// Add registers an entry. Intended for startup configuration only.
func (t *Table) Add(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[e.Provider] = append(t.entries[e.Provider], e)
}

// lookup finds the entry whose prefix matches model with the longest
// prefix; the provider default (empty prefix) matches everything.
func (t *Table) lookup(provider, model string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best Entry
	bestLen := -1
	for _, e := range t.entries[provider] {
		if strings.HasPrefix(model, e.ModelPrefix) && len(e.ModelPrefix) > bestLen {
			best = e
			bestLen = len(e.ModelPrefix)
		}
	}
	return best, bestLen >= 0
}

// Cost computes tokensIn/1000*priceIn + tokensOut/1000*priceOut. Unknown
// provider/model pairs cost zero.
func (t *Table) Cost(provider, model string, tokensIn, tokensOut int) decimal.Decimal {
	entry, ok := t.lookup(provider, model)
	if !ok {
		return decimal.Zero
	}

	thousand := decimal.NewFromInt(1000)
	in := decimal.NewFromInt(int64(tokensIn)).Div(thousand).Mul(entry.PriceIn)
	out := decimal.NewFromInt(int64(tokensOut)).Div(thousand).Mul(entry.PriceOut)
	return in.Add(out)
}
