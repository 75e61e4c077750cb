package client

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrMissingAccessKey is returned by New when no access key is configured.
	ErrMissingAccessKey = errors.New("access key is required")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses, or 403 with the hourly quota spent.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a response body that does not match the expected shape.
	ErrorClassDecode ErrorClass = "decode"
)

// APIError is the error returned for failed photo API requests.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	// Errors holds the "errors" array from the remote error payload, if any.
	Errors []string
	Err    error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if len(e.Errors) > 0 {
		msg = msg + ": " + strings.Join(e.Errors, "; ")
	}
	if e.Err != nil {
		return fmt.Sprintf("api %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, msg, e.Err)
	}
	return fmt.Sprintf("api %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, msg)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassOf returns the ErrorClass of err. Errors that did not come from an
// HTTP response are treated as network failures.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ErrorClassNetwork
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassNetwork:
		return true
	case ErrorClassRateLimit:
		// the quota resets hourly; retrying only burns more of it
		return false
	default:
		return false
	}
}
