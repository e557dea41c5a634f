// Package cost normalizes vendor usage payloads into contract counters
// and estimates spend from per-million-token prices.
package cost

import (
	"encoding/json"

	"github.com/antigravity-dev/backplane/internal/contract"
)

// Pricing is a vendor price sheet in USD per million tokens.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// vendorUsage covers the field spellings the common vendors use for
// token counters. Unknown fields are ignored.
type vendorUsage struct {
	InputTokens      *int64 `json:"input_tokens"`
	OutputTokens     *int64 `json:"output_tokens"`
	PromptTokens     *int64 `json:"prompt_tokens"`
	CompletionTokens *int64 `json:"completion_tokens"`
	CacheReadTokens  *int64 `json:"cache_read_input_tokens"`
	CacheWriteTokens *int64 `json:"cache_creation_input_tokens"`
	TotalCostUSD     *float64 `json:"total_cost_usd"`
	Usage            *vendorUsage `json:"usage"`
}

// Normalize extracts best-effort token counters from an opaque vendor
// usage payload. Anthropic-style (input_tokens/output_tokens) and
// OpenAI-style (prompt_tokens/completion_tokens) spellings are
// recognized, at the top level or nested under "usage". Unparseable
// payloads yield an empty result, never an error.
func Normalize(usageRaw json.RawMessage) contract.UsageNormalized {
	var out contract.UsageNormalized
	if len(usageRaw) == 0 {
		return out
	}
	var v vendorUsage
	if err := json.Unmarshal(usageRaw, &v); err != nil {
		return out
	}
	if v.Usage != nil && v.InputTokens == nil && v.PromptTokens == nil {
		v = *v.Usage
	}

	switch {
	case v.InputTokens != nil:
		out.InputTokens = v.InputTokens
	case v.PromptTokens != nil:
		out.InputTokens = v.PromptTokens
	}
	switch {
	case v.OutputTokens != nil:
		out.OutputTokens = v.OutputTokens
	case v.CompletionTokens != nil:
		out.OutputTokens = v.CompletionTokens
	}
	out.CacheReadTokens = v.CacheReadTokens
	out.CacheWriteTokens = v.CacheWriteTokens
	out.EstimatedCostUSD = v.TotalCostUSD
	return out
}

// EstimateTokens roughly counts tokens in text, about 4 characters each.
func EstimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	tokens := int64(len(text) / 4)
	if tokens == 0 {
		return 1
	}
	return tokens
}

// Estimate fills gaps in normalized usage: missing token counts fall back
// to length estimates of the prompt and output, and a missing cost is
// computed from the price sheet.
func Estimate(usage contract.UsageNormalized, prompt, output string, pricing Pricing) contract.UsageNormalized {
	if usage.InputTokens == nil {
		n := EstimateTokens(prompt)
		usage.InputTokens = &n
	}
	if usage.OutputTokens == nil {
		n := EstimateTokens(output)
		usage.OutputTokens = &n
	}
	if usage.EstimatedCostUSD == nil {
		cost := Calculate(*usage.InputTokens, *usage.OutputTokens, pricing)
		usage.EstimatedCostUSD = &cost
	}
	return usage
}

// Calculate prices a token count against a sheet.
func Calculate(inputTokens, outputTokens int64, pricing Pricing) float64 {
	return float64(inputTokens)/1_000_000*pricing.InputPerMTok +
		float64(outputTokens)/1_000_000*pricing.OutputPerMTok
}

// TotalTokens sums the normalized counters that are present.
func TotalTokens(u contract.UsageNormalized) int64 {
	var total int64
	for _, n := range []*int64{u.InputTokens, u.OutputTokens, u.CacheReadTokens, u.CacheWriteTokens} {
		if n != nil {
			total += *n
		}
	}
	return total
}
