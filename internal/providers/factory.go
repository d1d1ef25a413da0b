package providers

import (
	"net/http"
	"time"

	"ai_config/internal/models"
)

// Factory builds capability services. It holds only transport settings, so
// equal (provider, config) inputs always yield equivalent handles.
type Factory struct {
	baseURLs     map[models.ProviderID]string
	organization string
	httpClient   *http.Client
	timeout      time.Duration
}

// FactoryOption customises a Factory.
type FactoryOption func(*Factory)

// WithBaseURL points a provider at a different endpoint (proxies, tests).
func WithBaseURL(p models.ProviderID, baseURL string) FactoryOption {
	return func(f *Factory) {
		if baseURL != "" {
			f.baseURLs[p] = baseURL
		}
	}
}

// WithOpenAIOrganization sends requests to OpenAI on behalf of org.
func WithOpenAIOrganization(org string) FactoryOption {
	return func(f *Factory) {
		f.organization = org
	}
}

// WithHTTPClient shares one HTTP client between all created services.
func WithHTTPClient(client *http.Client) FactoryOption {
	return func(f *Factory) {
		f.httpClient = client
	}
}

// WithRequestTimeout bounds every provider call when no client is supplied.
func WithRequestTimeout(timeout time.Duration) FactoryOption {
	return func(f *Factory) {
		f.timeout = timeout
	}
}

// NewFactory creates a factory with the registry's default settings.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		baseURLs: make(map[models.ProviderID]string),
		timeout:  defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.httpClient == nil {
		f.httpClient = &http.Client{
			Timeout: f.timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return f
}

// CreateService returns a service bound to (p, cfg), or false when cfg has no
// credential or p is not in the registry. No network call is made here.
func (f *Factory) CreateService(p models.ProviderID, cfg models.ModelConfig) (Service, bool) {
	if !cfg.HasCredential() {
		return nil, false
	}

	settings := f.settings(p)
	if settings == nil {
		return nil, false
	}

	var baseURL string
	switch s := settings.(type) {
	case OpenAISettings:
		baseURL = s.BaseURL
	case GeminiSettings:
		baseURL = s.BaseURL
	case AnthropicSettings:
		baseURL = s.BaseURL
	}

	return &chatService{
		provider: p,
		config:   cfg,
		client:   newChatClient(baseURL, authFor(settings, cfg.APIKey), f.httpClient),
	}, true
}

func (f *Factory) settings(p models.ProviderID) ProviderSettings {
	settings := Settings(p)
	if settings == nil {
		return nil
	}
	if override, ok := f.baseURLs[p]; ok {
		settings = withBaseURL(settings, override)
	}
	if s, ok := settings.(OpenAISettings); ok && f.organization != "" {
		s.Organization = f.organization
		settings = s
	}
	return settings
}
