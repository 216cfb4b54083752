package llm

import "strings"

// ModelInfo describes a known model.
type ModelInfo struct {
	ID                   string
	Provider             string
	ContextWindow        int
	InputCostPerMillion  float64
	OutputCostPerMillion float64
	Aliases              []string
}

// models is the built-in catalog (February 2026). Unknown models fall
// back to prefix inference in InferProvider.
var models = []ModelInfo{
	{
		ID: "claude-opus-4-6", Provider: "anthropic", ContextWindow: 200000,
		InputCostPerMillion: 15.0, OutputCostPerMillion: 75.0,
		Aliases: []string{"opus", "claude-opus"},
	},
	{
		ID: "claude-sonnet-4-5", Provider: "anthropic", ContextWindow: 200000,
		InputCostPerMillion: 3.0, OutputCostPerMillion: 15.0,
		Aliases: []string{"sonnet", "claude-sonnet"},
	},
	{
		ID: "gpt-5.2", Provider: "openai", ContextWindow: 1047576,
		InputCostPerMillion: 2.50, OutputCostPerMillion: 10.0,
		Aliases: []string{"gpt5"},
	},
	{
		ID: "gpt-5.2-mini", Provider: "openai", ContextWindow: 1047576,
		InputCostPerMillion: 0.75, OutputCostPerMillion: 3.0,
		Aliases: []string{"gpt5-mini"},
	},
}

// GetModelInfo returns the catalog entry for a model ID or alias, or nil
// if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range models {
		if models[i].ID == modelID {
			return &models[i]
		}
		for _, alias := range models[i].Aliases {
			if alias == modelID {
				return &models[i]
			}
		}
	}
	return nil
}

// InferProvider maps a model identifier to its provider name. Catalog
// lookup first, then a prefix heuristic, then empty.
func InferProvider(modelID string) string {
	if info := GetModelInfo(modelID); info != nil {
		return info.Provider
	}
	switch {
	case strings.HasPrefix(modelID, "claude"):
		return "anthropic"
	case strings.HasPrefix(modelID, "gpt"):
		return "openai"
	case strings.HasPrefix(modelID, "gemini"):
		return "gemini"
	}
	return ""
}

// CostUSD estimates the dollar cost of the given usage for a model.
// Unknown models cost zero.
func CostUSD(modelID string, usage Usage) float64 {
	info := GetModelInfo(modelID)
	if info == nil {
		return 0
	}
	in := float64(usage.InputTokens) / 1e6 * info.InputCostPerMillion
	out := float64(usage.OutputTokens) / 1e6 * info.OutputCostPerMillion
	return in + out
}
