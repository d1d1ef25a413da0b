package providers

import "ai_config/internal/models"

// ProviderSettings holds the connection details of one provider. The set of
// implementations is closed: exactly one concrete type per ProviderID.
type ProviderSettings interface {
	Provider() models.ProviderID
	isProviderSettings()
}

// OpenAISettings configures the OpenAI chat completions API.
type OpenAISettings struct {
	BaseURL      string
	Organization string
}

func (OpenAISettings) Provider() models.ProviderID { return models.ProviderOpenAI }
func (OpenAISettings) isProviderSettings()         {}

// GeminiSettings configures Gemini's OpenAI-compatible endpoint.
type GeminiSettings struct {
	BaseURL string
}

func (GeminiSettings) Provider() models.ProviderID { return models.ProviderGemini }
func (GeminiSettings) isProviderSettings()         {}

// AnthropicSettings configures Anthropic's OpenAI-compatible endpoint.
type AnthropicSettings struct {
	BaseURL string
	Version string
}

func (AnthropicSettings) Provider() models.ProviderID { return models.ProviderAnthropic }
func (AnthropicSettings) isProviderSettings()         {}

// withBaseURL returns a copy of s pointing at baseURL.
func withBaseURL(s ProviderSettings, baseURL string) ProviderSettings {
	switch v := s.(type) {
	case OpenAISettings:
		v.BaseURL = baseURL
		return v
	case GeminiSettings:
		v.BaseURL = baseURL
		return v
	case AnthropicSettings:
		v.BaseURL = baseURL
		return v
	default:
		return s
	}
}
