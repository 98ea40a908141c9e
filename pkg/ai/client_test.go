package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/dealscope/pkg/config"
)

// newStubConfig points an AI config at a test server speaking the chat API
func newStubConfig(t *testing.T, handler http.HandlerFunc) config.AIConfig {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return config.AIConfig{
		Endpoint:   ts.URL + "/v1",
		APIKey:     "test-key",
		Model:      "gpt-4o-mini",
		MaxTokens:  500,
		Timeout:    5 * time.Second,
		Retries:    1,
		RetryDelay: 10 * time.Millisecond,
	}
}

// chatHandler serves a fixed completion payload, asserting path and auth
func chatHandler(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}
}

func TestClient_Complete(t *testing.T) {
	c := NewClient(newStubConfig(t, chatHandler(t, "hello from the model")))
	require.True(t, c.Enabled())

	content, err := c.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "hello from the model", content)
}

func TestClient_Complete_RetriesThenFails(t *testing.T) {
	var attempts atomic.Int32
	cfg := newStubConfig(t, func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	cfg.Retries = 2

	c := NewClient(cfg)
	_, err := c.Complete(context.Background(), "system", "user")
	require.Error(t, err)
	assert.Equal(t, int32(2), attempts.Load(), "each configured attempt hits the server")
}

func TestClient_Complete_EmptyChoices(t *testing.T) {
	cfg := newStubConfig(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{}) //nolint:errcheck // test server
	})

	c := NewClient(cfg)
	_, err := c.Complete(context.Background(), "system", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response")
}
