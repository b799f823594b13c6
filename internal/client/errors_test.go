package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestWrapError(t *testing.T) {
	t.Run("genai API error", func(t *testing.T) {
		err := WrapError("gemini", fmt.Errorf("stream: %w", genai.APIError{Code: 429, Message: "Resource has been exhausted", Status: "RESOURCE_EXHAUSTED"}))
		var pe *ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, 429, pe.StatusCode)
		assert.Equal(t, "Resource has been exhausted", pe.Message)
		assert.True(t, pe.Retryable)
		assert.Equal(t, "gemini: API error 429: Resource has been exhausted", pe.Error())
	})

	t.Run("ollama status error", func(t *testing.T) {
		err := WrapError("ollama", api.StatusError{StatusCode: 404, Status: "404 Not Found", ErrorMessage: `model "qwen" not found`})
		var pe *ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, 404, pe.StatusCode)
		assert.False(t, pe.Retryable)
	})

	t.Run("plain error", func(t *testing.T) {
		err := WrapError("ollama", errors.New("dial tcp 127.0.0.1:11434: connection refused"))
		var pe *ProviderError
		require.True(t, errors.As(err, &pe))
		assert.True(t, pe.Retryable)
		assert.Contains(t, pe.Error(), "connection refused")
	})

	t.Run("passthrough", func(t *testing.T) {
		assert.Nil(t, WrapError("gemini", nil))
		assert.Equal(t, context.Canceled, WrapError("gemini", context.Canceled))
		pe := &ProviderError{Provider: "gemini", Message: "x"}
		assert.Same(t, pe, WrapError("ollama", pe))
	})
}

func TestFriendlyMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"rate limit", &ProviderError{StatusCode: 429}, "rate limiting"},
		{"rate limit text", errors.New("RESOURCE_EXHAUSTED: quota"), "rate limiting"},
		{"timeout", fmt.Errorf("model call: %w", context.DeadlineExceeded), "took too long"},
		{"auth", &ProviderError{StatusCode: 401, Message: "bad key"}, "credentials"},
		{"not found", &ProviderError{StatusCode: 404}, "not found"},
		{"server", &ProviderError{StatusCode: 503}, "having trouble"},
		{"unreachable", &ProviderError{Message: "dial tcp: connection refused"}, "Is it running"},
		{"other", errors.New("malformed stream"), "The model request failed: malformed stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, FriendlyMessage(tt.err), tt.want)
		})
	}
	assert.Empty(t, FriendlyMessage(nil))
}
