package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_config/internal/models"
	"ai_config/internal/utils"
)

// fakeCompletions serves /chat/completions with reply and counts requests.
func fakeCompletions(t *testing.T, status int, reply string, inspect func(*http.Request, chatRequest)) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)

		if r.URL.Path == "/models" {
			w.WriteHeader(status)
			return
		}

		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		require.NoError(t, json.Unmarshal(body, &req))
		if inspect != nil {
			inspect(r, req)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
			return
		}
		resp := map[string]any{
			"model": req.Model,
			"choices": []map[string]any{
				{"message": map[string]any{"content": reply}},
			},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 7},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestCreateService_EmptyKeyYieldsNone(t *testing.T) {
	f := NewFactory()
	for _, p := range AvailableProviders() {
		svc, ok := f.CreateService(p, DefaultConfig(p))
		assert.False(t, ok)
		assert.Nil(t, svc)
	}
}

func TestCreateService_UnknownProvider(t *testing.T) {
	svc, ok := NewFactory().CreateService("bedrock", models.ModelConfig{APIKey: "k"})
	assert.False(t, ok)
	assert.Nil(t, svc)
}

func TestCreateService_ModelsMatchRegistry(t *testing.T) {
	f := NewFactory()
	for _, p := range AvailableProviders() {
		cfg := DefaultConfig(p)
		cfg.APIKey = "sk-test"
		svc, ok := f.CreateService(p, cfg)
		require.True(t, ok)
		assert.Equal(t, p, svc.Provider())
		assert.Equal(t, AvailableModels(p), svc.AvailableModels())
	}
}

func TestCreateService_EqualInputsBehaveAlike(t *testing.T) {
	var seen []string
	srv, _ := fakeCompletions(t, http.StatusOK, "hello", func(r *http.Request, req chatRequest) {
		seen = append(seen, r.Header.Get("Authorization")+"|"+req.Model)
	})

	f := NewFactory(WithBaseURL(models.ProviderOpenAI, srv.URL))
	cfg := models.ModelConfig{APIKey: "sk-same", ModelName: "gpt-4o", Temperature: 0.2, MaxTokens: 64}

	a, ok := f.CreateService(models.ProviderOpenAI, cfg)
	require.True(t, ok)
	b, ok := f.CreateService(models.ProviderOpenAI, cfg)
	require.True(t, ok)

	ctx := context.Background()
	resA, err := a.Generate(ctx, "hi")
	require.NoError(t, err)
	resB, err := b.Generate(ctx, "hi")
	require.NoError(t, err)

	assert.Equal(t, resA, resB)
	require.Len(t, seen, 2)
	assert.Equal(t, seen[0], seen[1])
}

func TestGenerate_SendsConfig(t *testing.T) {
	srv, calls := fakeCompletions(t, http.StatusOK, "  the report  ", func(r *http.Request, req chatRequest) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-anthropic", r.Header.Get("Authorization"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Equal(t, "claude-3-5-haiku-latest", req.Model)
		assert.Equal(t, 0.1, req.Temperature)
		assert.Equal(t, 300, req.MaxTokens)
	})

	f := NewFactory(WithBaseURL(models.ProviderAnthropic, srv.URL))
	svc, ok := f.CreateService(models.ProviderAnthropic, models.ModelConfig{
		APIKey: "sk-anthropic", ModelName: "claude-3-5-haiku-latest", Temperature: 0.1, MaxTokens: 300,
	})
	require.True(t, ok)

	res, err := svc.Generate(context.Background(), "summarise my expenses")
	require.NoError(t, err)
	assert.Equal(t, "the report", res.Text)
	assert.Equal(t, 12, res.Usage.InputTokens)
	assert.Equal(t, 7, res.Usage.OutputTokens)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestGenerate_OpenAIOrganization(t *testing.T) {
	var orgs []string
	srv, _ := fakeCompletions(t, http.StatusOK, "ok", func(r *http.Request, _ chatRequest) {
		orgs = append(orgs, r.Header.Get("OpenAI-Organization"))
	})
	cfg := models.ModelConfig{APIKey: "k", ModelName: "gpt-4o"}

	plain, ok := NewFactory(WithBaseURL(models.ProviderOpenAI, srv.URL)).CreateService(models.ProviderOpenAI, cfg)
	require.True(t, ok)
	_, err := plain.Generate(context.Background(), "hi")
	require.NoError(t, err)

	withOrg := NewFactory(
		WithBaseURL(models.ProviderOpenAI, srv.URL),
		WithOpenAIOrganization("org-acme"),
	)
	svc, ok := withOrg.CreateService(models.ProviderOpenAI, cfg)
	require.True(t, ok)
	_, err = svc.Generate(context.Background(), "hi")
	require.NoError(t, err)

	assert.Equal(t, []string{"", "org-acme"}, orgs)
}

func TestGenerate_EmptyPromptMakesNoCall(t *testing.T) {
	srv, calls := fakeCompletions(t, http.StatusOK, "x", nil)
	f := NewFactory(WithBaseURL(models.ProviderOpenAI, srv.URL))
	svc, _ := f.CreateService(models.ProviderOpenAI, models.ModelConfig{APIKey: "k", ModelName: "gpt-4o"})

	_, err := svc.Generate(context.Background(), "   ")
	var capErr *CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "generate", capErr.Op)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestGenerate_ProviderErrorIsCapabilityError(t *testing.T) {
	srv, _ := fakeCompletions(t, http.StatusTooManyRequests, "", nil)
	f := NewFactory(WithBaseURL(models.ProviderGemini, srv.URL))
	svc, _ := f.CreateService(models.ProviderGemini, models.ModelConfig{APIKey: "k", ModelName: "gemini-2.0-flash"})

	_, err := svc.Generate(context.Background(), "hello")
	var capErr *CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, models.ProviderGemini, capErr.Provider)
	assert.Equal(t, http.StatusTooManyRequests, capErr.StatusCode)
	assert.Contains(t, err.Error(), "slow down")
	assert.True(t, utils.IsRecoverableError(err))
	assert.False(t, errors.Is(err, ErrUnconfigured))
}

func TestExtractStructured_RepairsJSON(t *testing.T) {
	reply := "```json\n{merchant: 'Corner Store', total: 12.5,}\n```"
	srv, _ := fakeCompletions(t, http.StatusOK, reply, func(r *http.Request, req chatRequest) {
		parts, ok := req.Messages[0].Content.([]any)
		require.True(t, ok)
		require.Len(t, parts, 2)
		img := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
		assert.True(t, strings.HasPrefix(img, "data:image/png;base64,"))
	})

	f := NewFactory(WithBaseURL(models.ProviderOpenAI, srv.URL))
	svc, _ := f.CreateService(models.ProviderOpenAI, models.ModelConfig{APIKey: "k", ModelName: "gpt-4o"})

	res, err := svc.ExtractStructured(context.Background(), Image{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "Corner Store", res.Fields["merchant"])
	assert.Equal(t, 12.5, res.Fields["total"])
}

func TestExtractStructured_EmptyImage(t *testing.T) {
	svc, _ := NewFactory().CreateService(models.ProviderOpenAI, models.ModelConfig{APIKey: "k"})
	_, err := svc.ExtractStructured(context.Background(), Image{})
	var capErr *CapabilityError
	assert.ErrorAs(t, err, &capErr)
}

func TestValidateCredentials(t *testing.T) {
	srv, _ := fakeCompletions(t, http.StatusUnauthorized, "", nil)
	f := NewFactory(WithBaseURL(models.ProviderOpenAI, srv.URL))
	svc, _ := f.CreateService(models.ProviderOpenAI, models.ModelConfig{APIKey: "bad"})

	v, ok := svc.(Validator)
	require.True(t, ok)
	err := v.ValidateCredentials(context.Background())
	var capErr *CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, http.StatusUnauthorized, capErr.StatusCode)
	assert.False(t, capErr.Recoverable())
}
