package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/umputun/dealscope/pkg/config"
)

// Client wraps an OpenAI-compatible chat API with timeout and bounded
// retries. A client without a credential is valid, callers check Enabled
// and fall back to deterministic paths.
type Client struct {
	api *openai.Client
	cfg config.AIConfig
}

// NewClient creates a client from AI configuration. An empty API key yields
// a disabled client, not an error.
func NewClient(cfg config.AIConfig) *Client {
	if !cfg.Enabled() {
		return &Client{cfg: cfg}
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}

	return &Client{api: openai.NewClientWithConfig(clientConfig), cfg: cfg}
}

// Enabled reports whether the AI path is configured
func (c *Client) Enabled() bool { return c.api != nil }

// Complete runs one chat completion. Each attempt carries the configured
// timeout, transient failures are retried with a fixed delay up to the
// configured attempt count. Exhausting retries is a fallback trigger for the
// caller, never fatal.
func (c *Client) Complete(ctx context.Context, systemMsg, userMsg string) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("ai client is not configured")
	}

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: float32(c.cfg.Temperature),
		MaxTokens:   c.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMsg},
			{Role: openai.ChatMessageRoleUser, Content: userMsg},
		},
	}

	var content string
	retrier := repeater.NewBackoff(c.cfg.Retries, c.cfg.RetryDelay, repeater.WithMaxDelay(c.cfg.RetryDelay))
	err := retrier.Do(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		resp, err := c.api.CreateChatCompletion(callCtx, req)
		if err != nil {
			return fmt.Errorf("ai request failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no response from ai")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// Timeout returns the per-call timeout, used by callers sizing their own deadlines
func (c *Client) Timeout() time.Duration { return c.cfg.Timeout }

// stripFences removes markdown code fences around a JSON payload and trims
// to the outermost object
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}

// clamp limits a score into [lo, hi]
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
