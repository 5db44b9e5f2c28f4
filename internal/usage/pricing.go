package usage

import (
	"math"
	"strings"
)

// ModelPricing holds per-1000-token pricing in minor currency units
// (cents). Fractional cents are fine here; rounding happens once, on the
// final cost.
type ModelPricing struct {
	InputCentsPer1K  float64
	OutputCentsPer1K float64
}

// modelPricingTable maps model names to their pricing.
var modelPricingTable = map[string]ModelPricing{
	// Claude 4.x (dated)
	"claude-opus-4-6":            {InputCentsPer1K: 0.5, OutputCentsPer1K: 2.5},
	"claude-opus-4-0-20250514":   {InputCentsPer1K: 1.5, OutputCentsPer1K: 7.5},
	"claude-sonnet-4-5-20250929": {InputCentsPer1K: 0.3, OutputCentsPer1K: 1.5},
	"claude-sonnet-4-0-20250514": {InputCentsPer1K: 0.3, OutputCentsPer1K: 1.5},
	"claude-haiku-4-5-20251001":  {InputCentsPer1K: 0.1, OutputCentsPer1K: 0.5},

	// Claude short aliases
	"claude-sonnet-4-5": {InputCentsPer1K: 0.3, OutputCentsPer1K: 1.5},
	"claude-sonnet-4-0": {InputCentsPer1K: 0.3, OutputCentsPer1K: 1.5},
	"claude-haiku-4-5":  {InputCentsPer1K: 0.1, OutputCentsPer1K: 0.5},

	// Claude 3.x
	"claude-3-5-sonnet-20241022": {InputCentsPer1K: 0.3, OutputCentsPer1K: 1.5},
	"claude-3-5-haiku-20241022":  {InputCentsPer1K: 0.1, OutputCentsPer1K: 0.5},
	"claude-3-haiku-20240307":    {InputCentsPer1K: 0.025, OutputCentsPer1K: 0.125},

	// OpenAI
	"gpt-4o":                 {InputCentsPer1K: 0.25, OutputCentsPer1K: 1.0},
	"gpt-4o-2024-11-20":      {InputCentsPer1K: 0.25, OutputCentsPer1K: 1.0},
	"gpt-4o-mini":            {InputCentsPer1K: 0.015, OutputCentsPer1K: 0.06},
	"gpt-4o-mini-2024-07-18": {InputCentsPer1K: 0.015, OutputCentsPer1K: 0.06},
}

// modelFamilyPricing maps model family prefixes to pricing.
// Lookup takes the longest matching prefix so e.g. "claude-opus" does not
// shadow "claude-opus-4-6".
var modelFamilyPricing = map[string]ModelPricing{
	// Version-specific families (must win over broad families)
	"claude-opus-4-6":   {InputCentsPer1K: 0.5, OutputCentsPer1K: 2.5},
	"claude-opus-4-0":   {InputCentsPer1K: 1.5, OutputCentsPer1K: 7.5},
	"claude-sonnet-4-5": {InputCentsPer1K: 0.3, OutputCentsPer1K: 1.5},
	"claude-sonnet-4-0": {InputCentsPer1K: 0.3, OutputCentsPer1K: 1.5},
	"claude-haiku-4-5":  {InputCentsPer1K: 0.1, OutputCentsPer1K: 0.5},
	"claude-3-5-sonnet": {InputCentsPer1K: 0.3, OutputCentsPer1K: 1.5},
	"claude-3-5-haiku":  {InputCentsPer1K: 0.1, OutputCentsPer1K: 0.5},
	"claude-3-haiku":    {InputCentsPer1K: 0.025, OutputCentsPer1K: 0.125},

	// Broad families (fallback)
	"claude-opus":   {InputCentsPer1K: 1.5, OutputCentsPer1K: 7.5},
	"claude-sonnet": {InputCentsPer1K: 0.3, OutputCentsPer1K: 1.5},
	"claude-haiku":  {InputCentsPer1K: 0.1, OutputCentsPer1K: 0.5},
	"gpt-4o-mini":   {InputCentsPer1K: 0.015, OutputCentsPer1K: 0.06},
	"gpt-4o":        {InputCentsPer1K: 0.25, OutputCentsPer1K: 1.0},
	"gpt-4":         {InputCentsPer1K: 1.0, OutputCentsPer1K: 3.0},
}

// LookupPricing returns pricing for a model: exact match, then longest
// family prefix. ok is false for unknown models — a pricing gap must
// never block a request, so unknown models cost zero.
func LookupPricing(model string) (ModelPricing, bool) {
	if p, ok := modelPricingTable[model]; ok {
		return p, true
	}

	bestPrefix := ""
	var bestPricing ModelPricing
	for prefix, p := range modelFamilyPricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
			bestPricing = p
		}
	}
	if bestPrefix != "" {
		return bestPricing, true
	}
	return ModelPricing{}, false
}

// CostCents converts normalized usage into integer cents, rounded to the
// nearest unit. Unknown models cost zero.
func CostCents(u Usage) int64 {
	pricing, ok := LookupPricing(u.Model)
	if !ok {
		return 0
	}
	inputCost := float64(u.InputTokens) / 1000 * pricing.InputCentsPer1K
	outputCost := float64(u.OutputTokens) / 1000 * pricing.OutputCentsPer1K
	return int64(math.Round(inputCost + outputCost))
}
