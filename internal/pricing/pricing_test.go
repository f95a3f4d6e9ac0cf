package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCostExactValues(t *testing.T) {
	table := NewTable()

	tests := []struct {
		name      string
		provider  string
		model     string
		tokensIn  int
		tokensOut int
		want      string
	}{
		{
			name:     "gpt-4 1k in 1k out",
			provider: "openai", model: "gpt-4",
			tokensIn: 1000, tokensOut: 1000,
			want: "0.09",
		},
		{
			name:     "gpt-3.5-turbo",
			provider: "openai", model: "gpt-3.5-turbo",
			tokensIn: 2000, tokensOut: 500,
			want: "0.004",
		},
		{
			name:     "deepseek tiny request stays exact",
			provider: "deepseek", model: "deepseek-chat",
			tokensIn: 10, tokensOut: 5,
			want: "0.0000028",
		},
		{
			name:     "huggingface is free",
			provider: "huggingface", model: "meta-llama/Meta-Llama-3-8B-Instruct",
			tokensIn: 100000, tokensOut: 100000,
			want: "0",
		},
		{
			name:     "zero tokens cost zero",
			provider: "openai", model: "gpt-4",
			tokensIn: 0, tokensOut: 0,
			want: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.Cost(tt.provider, tt.model, tt.tokensIn, tt.tokensOut)
			want := decimal.RequireFromString(tt.want)
			assert.True(t, got.Equal(want), "got %s, want %s", got, want)
		})
	}
}

func TestCostLongestPrefixWins(t *testing.T) {
	table := NewTable()
	table.Add(Entry{
		Provider:    "openai",
		ModelPrefix: "gpt-4-turbo",
		PriceIn:     decimal.RequireFromString("0.01"),
		PriceOut:    decimal.RequireFromString("0.03"),
	})

	turbo := table.Cost("openai", "gpt-4-turbo-preview", 1000, 1000)
	assert.True(t, turbo.Equal(decimal.RequireFromString("0.04")), "got %s", turbo)

	// Plain gpt-4 still resolves to the shorter prefix.
	plain := table.Cost("openai", "gpt-4", 1000, 1000)
	assert.True(t, plain.Equal(decimal.RequireFromString("0.09")), "got %s", plain)
}

func TestCostUnknownProviderIsZero(t *testing.T) {
	table := NewTable()
	got := table.Cost("mystery", "whatever", 5000, 5000)
	require.True(t, got.IsZero())
}

func TestProviderDefaultMatchesAnyModel(t *testing.T) {
	table := NewTable()
	got := table.Cost("deepseek", "deepseek-reasoner", 1000, 1000)
	assert.True(t, got.Equal(decimal.RequireFromString("0.00042")), "got %s", got)
}
