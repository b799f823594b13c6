package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ollama/ollama/api"
	"google.golang.org/genai"
)

// ProviderError is a failed model call.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		b.WriteString(e.Provider)
		b.WriteString(": ")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "API error %d: ", e.StatusCode)
	}
	b.WriteString(e.Message)
	if e.Err != nil && e.Message == "" {
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError converts a provider SDK error into a ProviderError. Context
// errors are returned unchanged.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}

	out := &ProviderError{Provider: provider, Err: err}

	var gerr genai.APIError
	var gerrPtr *genai.APIError
	var oerr api.StatusError
	var oerrPtr *api.StatusError
	switch {
	case errors.As(err, &gerr):
		out.StatusCode = gerr.Code
		out.Message = gerr.Message
	case errors.As(err, &gerrPtr):
		out.StatusCode = gerrPtr.Code
		out.Message = gerrPtr.Message
	case errors.As(err, &oerr):
		out.StatusCode = oerr.StatusCode
		out.Message = oerr.ErrorMessage
	case errors.As(err, &oerrPtr):
		out.StatusCode = oerrPtr.StatusCode
		out.Message = oerrPtr.ErrorMessage
	}
	if out.Message == "" {
		out.Message = err.Error()
	}
	out.Retryable = isRetryable(out.StatusCode, err)
	return out
}

func isRetryable(status int, err error) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"rate limit", "resource_exhausted", "unavailable", "connection refused", "connection reset", "eof"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsRateLimit reports whether err is a provider rate-limit response.
func IsRateLimit(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.StatusCode == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "resource_exhausted")
}

// FriendlyMessage turns a failed model call into a short chat notice.
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The model took too long to respond. Please try again."
	}
	if IsRateLimit(err) {
		return "The model provider is rate limiting requests. Wait a moment and send your message again."
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		switch {
		case pe.StatusCode == 401 || pe.StatusCode == 403:
			return "The model provider rejected the credentials. Check the API key in your configuration."
		case pe.StatusCode == 404:
			return "The configured model was not found. Check the model name (for Ollama, pull it first)."
		case pe.StatusCode >= 500:
			return "The model provider is having trouble right now. Please try again shortly."
		}
		msg := strings.ToLower(pe.Message)
		if strings.Contains(msg, "connection refused") {
			return "Could not reach the model provider. Is it running?"
		}
	}
	return "The model request failed: " + truncateMessage(err.Error(), 200)
}

func truncateMessage(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
