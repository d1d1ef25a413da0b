package providers

import "ai_config/internal/models"

// providerEntry is the static catalogue entry of one provider.
type providerEntry struct {
	displayName string
	defaults    models.ModelConfig
	models      []string
	settings    ProviderSettings
}

// providerOrder is the presentation order of AvailableProviders.
var providerOrder = []models.ProviderID{
	models.ProviderOpenAI,
	models.ProviderGemini,
	models.ProviderAnthropic,
}

var catalogue = map[models.ProviderID]providerEntry{
	models.ProviderOpenAI: {
		displayName: "OpenAI",
		defaults: models.ModelConfig{
			ModelName:   "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   2048,
		},
		models: []string{
			"gpt-4o-mini",
			"gpt-4o",
			"gpt-4.1-mini",
			"gpt-4.1",
		},
		settings: OpenAISettings{BaseURL: "https://api.openai.com/v1"},
	},
	models.ProviderGemini: {
		displayName: "Google Gemini",
		defaults: models.ModelConfig{
			ModelName:   "gemini-2.0-flash",
			Temperature: 0.4,
			MaxTokens:   8192,
		},
		models: []string{
			"gemini-2.0-flash",
			"gemini-2.0-flash-lite",
			"gemini-1.5-pro",
		},
		settings: GeminiSettings{BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai"},
	},
	models.ProviderAnthropic: {
		displayName: "Anthropic Claude",
		defaults: models.ModelConfig{
			ModelName:   "claude-3-5-sonnet-latest",
			Temperature: 0.5,
			MaxTokens:   4096,
		},
		models: []string{
			"claude-3-5-sonnet-latest",
			"claude-3-5-haiku-latest",
		},
		settings: AnthropicSettings{BaseURL: "https://api.anthropic.com/v1", Version: "2023-06-01"},
	},
}

// AvailableProviders returns every provider in a fixed order.
func AvailableProviders() []models.ProviderID {
	out := make([]models.ProviderID, len(providerOrder))
	copy(out, providerOrder)
	return out
}

// DefaultConfig returns the default generation parameters of p with an empty
// credential.
func DefaultConfig(p models.ProviderID) models.ModelConfig {
	return catalogue[p].defaults
}

// AvailableModels returns the selectable model names of p.
func AvailableModels(p models.ProviderID) []string {
	list := catalogue[p].models
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// DisplayName returns a human readable provider name.
func DisplayName(p models.ProviderID) string {
	if entry, ok := catalogue[p]; ok {
		return entry.displayName
	}
	return string(p)
}

// Settings returns the default connection settings of p.
func Settings(p models.ProviderID) ProviderSettings {
	return catalogue[p].settings
}
