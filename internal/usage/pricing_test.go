package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupPricing_ExactMatch(t *testing.T) {
	p, ok := LookupPricing("claude-sonnet-4-5")
	require.True(t, ok)
	assert.Equal(t, 0.3, p.InputCentsPer1K)
	assert.Equal(t, 1.5, p.OutputCentsPer1K)
}

func TestLookupPricing_LongestPrefixWins(t *testing.T) {
	// A dated opus-4-6 snapshot must match the opus-4-6 family, not the
	// broader (and pricier) claude-opus family.
	p, ok := LookupPricing("claude-opus-4-6-20270101")
	require.True(t, ok)
	assert.Equal(t, 0.5, p.InputCentsPer1K)
}

func TestLookupPricing_UnknownModel(t *testing.T) {
	_, ok := LookupPricing("some-future-model")
	assert.False(t, ok)
}

func TestCostCents_RoundsToNearest(t *testing.T) {
	// sonnet: 0.3c/1k input, 1.5c/1k output.
	// 1000 in + 1000 out = 0.3 + 1.5 = 1.8c -> 2c.
	cost := CostCents(Usage{Model: "claude-sonnet-4-5", InputTokens: 1000, OutputTokens: 1000})
	assert.Equal(t, int64(2), cost)

	// 100 in + 50 out = 0.03 + 0.075 = 0.105c -> 0c.
	cost = CostCents(Usage{Model: "claude-sonnet-4-5", InputTokens: 100, OutputTokens: 50})
	assert.Equal(t, int64(0), cost)
}

func TestCostCents_LargeUsage(t *testing.T) {
	// 1M in + 100k out on opus-4-6: 500c + 250c = 750c.
	cost := CostCents(Usage{Model: "claude-opus-4-6", InputTokens: 1_000_000, OutputTokens: 100_000})
	assert.Equal(t, int64(750), cost)
}

func TestCostCents_UnknownModelCostsZero(t *testing.T) {
	// Pricing gaps must never block or misbill a request.
	cost := CostCents(Usage{Model: "mystery-model", InputTokens: 1_000_000, OutputTokens: 1_000_000})
	assert.Equal(t, int64(0), cost)
}
