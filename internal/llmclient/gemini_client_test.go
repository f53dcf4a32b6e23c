// File: internal/llmclient/gemini_client_test.go
package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/screenpilot/screenpilot-cli/api/schemas"
	"github.com/screenpilot/screenpilot-cli/internal/config"
)

func testLLMConfig(endpoint string) config.LLMConfig {
	return config.LLMConfig{
		Enabled:     true,
		Provider:    config.ProviderGemini,
		Model:       "gemini-2.5-flash",
		APIKey:      "test-key",
		Endpoint:    endpoint,
		APITimeout:  5 * time.Second,
		Temperature: 0.2,
		MaxTokens:   1024,
	}
}

func geminiSuccessBody(text string) string {
	payload := map[string]any{
		"candidates": []map[string]any{
			{
				"content": map[string]any{
					"parts": []map[string]string{{"text": text}},
				},
				"finishReason": "STOP",
			},
		},
		"usageMetadata": map[string]int{
			"promptTokenCount":     10,
			"candidatesTokenCount": 5,
			"totalTokenCount":      15,
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func testRequest() schemas.GenerationRequest {
	return schemas.GenerationRequest{
		SystemPrompt: "system",
		UserPrompt:   "user",
		Options:      schemas.GenerationOptions{Temperature: 0.2, ForceJSONFormat: true},
	}
}

func TestGenerate_Success(t *testing.T) {
	var gotBody geminiRequestPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(geminiSuccessBody(`{"actions":[]}`)))
	}))
	defer server.Close()

	client, err := NewGeminiClient(testLLMConfig(server.URL), zaptest.NewLogger(t))
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"actions":[]}`, out)

	require.Len(t, gotBody.Contents, 1)
	assert.Equal(t, "user", gotBody.Contents[0].Parts[0].Text)
	require.NotNil(t, gotBody.SystemInstruction)
	assert.Equal(t, "system", gotBody.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "application/json", gotBody.GenerationConfig.ResponseMimeType)
}

func TestGenerate_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(geminiSuccessBody("ok")))
	}))
	defer server.Close()

	client, err := NewGeminiClient(testLLMConfig(server.URL), zaptest.NewLogger(t))
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerate_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewGeminiClient(testLLMConfig(server.URL), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, schemas.ErrLLM))
	assert.Equal(t, int32(1), calls.Load(), "a 400 must not be retried")
}

func TestGenerate_SafetyBlockIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []any{}}, "finishReason": "SAFETY"},
			},
		})
		w.Write(body)
	}))
	defer server.Close()

	client, err := NewGeminiClient(testLLMConfig(server.URL), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGenerate_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewGeminiClient(testLLMConfig(server.URL), zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.Generate(ctx, testRequest())
	require.Error(t, err)
}

func TestGenerate_PacedRequestHonorsContext(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(geminiSuccessBody("ok")))
	}))
	defer server.Close()

	cfg := testLLMConfig(server.URL)
	cfg.RequestsPerMinute = 1
	client, err := NewGeminiClient(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), testRequest())
	require.NoError(t, err)

	// The pacing budget is spent; the second call waits and must give up
	// when its context expires, without reaching the API.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.Generate(ctx, testRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, schemas.ErrLLM))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewGeminiClient_RequiresAPIKey(t *testing.T) {
	cfg := testLLMConfig("")
	cfg.APIKey = ""
	_, err := NewGeminiClient(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestFactory(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("disabled returns nil client", func(t *testing.T) {
		client, err := New(config.LLMConfig{Enabled: false}, logger)
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("gemini", func(t *testing.T) {
		client, err := New(testLLMConfig(""), logger)
		require.NoError(t, err)
		assert.IsType(t, &GeminiClient{}, client)
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := testLLMConfig("")
		cfg.Provider = "psychic"
		_, err := New(cfg, logger)
		require.Error(t, err)
	})
}
