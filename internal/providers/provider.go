package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ai_config/internal/models"
)

// ErrUnconfigured is returned by consumers when no service is bound because
// the current configuration has no credential. It is a state, not a fault.
var ErrUnconfigured = errors.New("AI provider is not configured")

// Image is the input to structured extraction. Prompt is the caller's
// instruction; when empty a generic JSON extraction instruction is used.
type Image struct {
	Data     []byte
	MIMEType string
	Prompt   string
}

// Usage reports token accounting returned by the provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// TextResult is the output of Generate.
type TextResult struct {
	Text  string
	Model string
	Usage Usage
}

// StructuredResult is the output of ExtractStructured.
type StructuredResult struct {
	Fields map[string]any
	Raw    string
	Model  string
	Usage  Usage
}

// Service is the capability handle bound to one (provider, config) pair.
type Service interface {
	// Provider returns the provider the handle is bound to
	Provider() models.ProviderID

	// Generate produces text for a prompt
	Generate(ctx context.Context, prompt string) (*TextResult, error)

	// ExtractStructured reads an image and returns the fields the model found
	ExtractStructured(ctx context.Context, img Image) (*StructuredResult, error)

	// AvailableModels returns the registry's model list for the provider
	AvailableModels() []string
}

// Validator is implemented by services that can check their credential
// without generating anything.
type Validator interface {
	ValidateCredentials(ctx context.Context) error
}

// CapabilityError is a provider-side failure of a single capability call.
// It says nothing about whether the stored configuration is valid.
type CapabilityError struct {
	Provider   models.ProviderID
	Op         string
	StatusCode int
	Err        error
}

func (e *CapabilityError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: model API returned status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether retrying the same call may succeed.
func (e *CapabilityError) Recoverable() bool {
	if e.StatusCode == 0 {
		return false
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
