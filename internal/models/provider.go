package models

import "fmt"

// ProviderID enumerates the supported AI providers.
type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderGemini    ProviderID = "gemini"
	ProviderAnthropic ProviderID = "anthropic"
)

// ParseProviderID validates a provider identifier read from an untyped source
// (persisted records, the local cache file, CLI arguments).
func ParseProviderID(s string) (ProviderID, error) {
	switch p := ProviderID(s); p {
	case ProviderOpenAI, ProviderGemini, ProviderAnthropic:
		return p, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

// String returns the identifier as stored.
func (p ProviderID) String() string {
	return string(p)
}
