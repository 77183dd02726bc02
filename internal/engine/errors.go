// Package engine drives the language-model backend through multi-turn
// tool-calling exchanges. This file contains error classification.
package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RetryClass indicates whether an error should be retried.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"
	RetryClassMaybe        RetryClass = "maybe" // retry with limited attempts
	RetryClassNonRetryable RetryClass = "non_retryable"
)

// LLMError wraps provider errors with classification metadata.
type LLMError struct {
	Err         error
	Class       RetryClass
	HTTPStatus  int
	RetryAfter  string // Retry-After header value if present
	IsRateLimit bool
	IsAuth      bool
}

func (e *LLMError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("llm error: %s", e.Class)
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

// WrapLLMError wraps a provider error with classification metadata.
func WrapLLMError(err error, httpStatus int, retryAfter string) error {
	if err == nil {
		return nil
	}
	return &LLMError{
		Err:         err,
		Class:       ClassifyLLMError(err),
		HTTPStatus:  httpStatus,
		RetryAfter:  retryAfter,
		IsRateLimit: httpStatus == http.StatusTooManyRequests,
		IsAuth:      httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden,
	}
}

// ClassifyLLMError classifies an error from an LLM provider call.
func ClassifyLLMError(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}

	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Class
	}

	errStr := strings.ToLower(err.Error())

	// Rate limits and server errors are worth retrying.
	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") {
		return RetryClassRetryable
	}
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return RetryClassRetryable
	}
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "temporary failure") {
		return RetryClassRetryable
	}

	if strings.Contains(errStr, "deadline exceeded") {
		return RetryClassMaybe
	}
	if strings.Contains(errStr, "context length") ||
		strings.Contains(errStr, "token limit") {
		return RetryClassMaybe
	}

	// Auth, bad request, quota: pointless to retry.
	if strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "forbidden") ||
		strings.Contains(errStr, "invalid api key") {
		return RetryClassNonRetryable
	}
	if strings.Contains(errStr, "400") ||
		strings.Contains(errStr, "bad request") ||
		strings.Contains(errStr, "invalid request") {
		return RetryClassNonRetryable
	}
	if strings.Contains(errStr, "402") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "billing") {
		return RetryClassNonRetryable
	}

	return RetryClassNonRetryable
}

// ExtractRetryAfter extracts the Retry-After value from an error.
// Returns 0 if not found or invalid.
func ExtractRetryAfter(err error) time.Duration {
	var llmErr *LLMError
	if errors.As(err, &llmErr) && llmErr.RetryAfter != "" {
		var seconds int
		if _, scanErr := fmt.Sscanf(llmErr.RetryAfter, "%d", &seconds); scanErr == nil {
			return time.Duration(seconds) * time.Second
		}
		if t, parseErr := time.Parse(time.RFC1123, llmErr.RetryAfter); parseErr == nil {
			if now := time.Now(); t.After(now) {
				return t.Sub(now)
			}
		}
	}
	return 0
}

// RetryExhaustedError marks an operation that failed after all attempts.
type RetryExhaustedError struct {
	Err      error
	Attempts int
	Max      int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d/%d attempts: %v", e.Attempts, e.Max, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// IsRetryExhausted reports whether err marks exhausted retries.
func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}
