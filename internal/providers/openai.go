package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultRequestTimeout = 60 * time.Second

// chatClient speaks the OpenAI chat completions wire format. All supported
// providers expose an endpoint compatible with it.
type chatClient struct {
	auth    *SimpleAPIKeyAuth
	client  *http.Client
	baseURL string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// apiError is the error envelope shared by the compatible endpoints.
type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// httpStatusError carries a non-2xx status out of the transport.
type httpStatusError struct {
	status  int
	message string
}

func (e *httpStatusError) Error() string {
	return e.message
}

func newChatClient(baseURL string, auth *SimpleAPIKeyAuth, client *http.Client) *chatClient {
	if client == nil {
		client = &http.Client{
			Timeout: defaultRequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &chatClient{
		auth:    auth,
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// complete sends one chat completion request and returns the first choice.
func (c *chatClient) complete(ctx context.Context, req chatRequest) (string, *chatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if err := c.auth.Apply(httpReq); err != nil {
		return "", nil, fmt.Errorf("failed to apply auth: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", nil, &httpStatusError{status: resp.StatusCode, message: errorMessage(respBody)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", &parsed, fmt.Errorf("response contained no choices")
	}

	return parsed.Choices[0].Message.Content, &parsed, nil
}

// listModels calls the models endpoint; a 200 means the credential is accepted.
func (c *chatClient) listModels(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if err := c.auth.Apply(httpReq); err != nil {
		return fmt.Errorf("failed to apply auth: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &httpStatusError{status: resp.StatusCode, message: errorMessage(body)}
	}
	return nil
}

func errorMessage(body []byte) string {
	var envelope apiError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = "empty response body"
	}
	return msg
}
