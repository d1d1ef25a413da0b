package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"ai_config/internal/models"
)

const defaultExtractionPrompt = "Extract every field you can read in this image. " +
	"Respond with a single JSON object and nothing else."

// chatService implements Service over a chatClient.
type chatService struct {
	provider models.ProviderID
	config   models.ModelConfig
	client   *chatClient
}

func (s *chatService) Provider() models.ProviderID {
	return s.provider
}

func (s *chatService) AvailableModels() []string {
	return AvailableModels(s.provider)
}

// Generate sends prompt as a single user message.
func (s *chatService) Generate(ctx context.Context, prompt string) (*TextResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, s.fail("generate", errors.New("prompt is empty"))
	}

	text, resp, err := s.client.complete(ctx, s.request(chatMessage{Role: "user", Content: prompt}))
	if err != nil {
		return nil, s.fail("generate", err)
	}

	return &TextResult{
		Text:  strings.TrimSpace(text),
		Model: s.modelOf(resp),
		Usage: usageOf(resp),
	}, nil
}

// ExtractStructured sends the image inline and parses the reply as JSON,
// repairing near-JSON output when needed.
func (s *chatService) ExtractStructured(ctx context.Context, img Image) (*StructuredResult, error) {
	if len(img.Data) == 0 {
		return nil, s.fail("extract", errors.New("image is empty"))
	}

	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	prompt := img.Prompt
	if prompt == "" {
		prompt = defaultExtractionPrompt
	}

	msg := chatMessage{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &imageURL{
				URL: fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(img.Data)),
			}},
		},
	}

	raw, resp, err := s.client.complete(ctx, s.request(msg))
	if err != nil {
		return nil, s.fail("extract", err)
	}

	fields, err := parseJSONObject(raw)
	if err != nil {
		return nil, s.fail("extract", err)
	}

	return &StructuredResult{
		Fields: fields,
		Raw:    raw,
		Model:  s.modelOf(resp),
		Usage:  usageOf(resp),
	}, nil
}

// ValidateCredentials checks the key against the provider's models endpoint.
func (s *chatService) ValidateCredentials(ctx context.Context) error {
	if err := s.client.listModels(ctx); err != nil {
		return s.fail("validate", err)
	}
	return nil
}

func (s *chatService) request(msg chatMessage) chatRequest {
	return chatRequest{
		Model:       s.config.ModelName,
		Messages:    []chatMessage{msg},
		Temperature: s.config.Temperature,
		MaxTokens:   s.config.MaxTokens,
	}
}

func (s *chatService) modelOf(resp *chatResponse) string {
	if resp != nil && resp.Model != "" {
		return resp.Model
	}
	return s.config.ModelName
}

func (s *chatService) fail(op string, err error) error {
	capErr := &CapabilityError{Provider: s.provider, Op: op, Err: err}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		capErr.StatusCode = statusErr.status
	}
	return capErr
}

func usageOf(resp *chatResponse) Usage {
	if resp == nil {
		return Usage{}
	}
	return Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
}

// parseJSONObject decodes a model reply into a JSON object. Code fences are
// stripped; malformed JSON goes through jsonrepair before giving up.
func parseJSONObject(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var fields map[string]any
	err := json.Unmarshal([]byte(content), &fields)
	if err == nil {
		return fields, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(content)
	if repairErr != nil {
		return nil, fmt.Errorf("failed to parse structured output: %w (repair: %v)", err, repairErr)
	}
	if err := json.Unmarshal([]byte(repaired), &fields); err != nil {
		return nil, fmt.Errorf("failed to parse repaired structured output: %w", err)
	}
	return fields, nil
}
