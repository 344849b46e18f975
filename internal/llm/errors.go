package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
)

// MalformedModelOutputError reports model text that does not match the expected structure.
type MalformedModelOutputError struct {
	Reason string
	Output string
}

func (e *MalformedModelOutputError) Error() string {
	return fmt.Sprintf("malformed model output: %s", e.Reason)
}

// APIError wraps a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Message    string
	cause      error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("LLM API error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.cause
}

func wrapAPIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error()
		}
		return &APIError{StatusCode: apiErr.StatusCode, Message: msg, cause: err}
	}
	return err
}

// IsRetryable reports whether err is worth another attempt:
// rate limits, server errors, timeouts or transport failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var malformed *MalformedModelOutputError
	if errors.As(err, &malformed) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	// transport failures
	return true
}
