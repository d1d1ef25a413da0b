package providers

import (
	"fmt"
	"net/http"
)

// SimpleAPIKeyAuth applies an API key to outgoing requests as a header.
type SimpleAPIKeyAuth struct {
	apiKey     string
	headerName string // e.g., "Authorization"
	prefix     string // e.g., "Bearer "
	extra      map[string]string
}

// NewSimpleAPIKeyAuth creates a new simple API key authenticator
func NewSimpleAPIKeyAuth(apiKey, headerName, prefix string) *SimpleAPIKeyAuth {
	if headerName == "" {
		headerName = "Authorization"
	}
	if prefix == "" && headerName == "Authorization" {
		prefix = "Bearer "
	}

	return &SimpleAPIKeyAuth{
		apiKey:     apiKey,
		headerName: headerName,
		prefix:     prefix,
		extra:      map[string]string{},
	}
}

// WithHeader adds a static header sent next to the credential.
func (a *SimpleAPIKeyAuth) WithHeader(name, value string) *SimpleAPIKeyAuth {
	if value != "" {
		a.extra[name] = value
	}
	return a
}

// Apply adds the API key to the HTTP request
func (a *SimpleAPIKeyAuth) Apply(req *http.Request) error {
	if a.apiKey == "" {
		return fmt.Errorf("API key is required")
	}
	req.Header.Set(a.headerName, a.prefix+a.apiKey)
	for name, value := range a.extra {
		req.Header.Set(name, value)
	}
	return nil
}

// authFor builds the authenticator for a provider's settings.
func authFor(settings ProviderSettings, apiKey string) *SimpleAPIKeyAuth {
	auth := NewSimpleAPIKeyAuth(apiKey, "Authorization", "Bearer ")
	switch s := settings.(type) {
	case OpenAISettings:
		auth.WithHeader("OpenAI-Organization", s.Organization)
	case AnthropicSettings:
		auth.WithHeader("anthropic-version", s.Version)
	case GeminiSettings:
	}
	return auth
}
