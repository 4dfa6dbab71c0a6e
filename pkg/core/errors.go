package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a publish failure. Adapters map every underlying
// transport or platform error to one of these kinds; no raw error escapes
// an adapter.
type ErrorKind string

const (
	KindAuthError         ErrorKind = "AUTH_ERROR"
	KindRateLimitExceeded ErrorKind = "RATE_LIMIT_EXCEEDED"
	KindInvalidMedia      ErrorKind = "INVALID_MEDIA"
	KindContentTooLong    ErrorKind = "CONTENT_TOO_LONG"
	KindDuplicateContent  ErrorKind = "DUPLICATE_CONTENT"
	KindNetworkError      ErrorKind = "NETWORK_ERROR"
	KindPlatformError     ErrorKind = "PLATFORM_ERROR"
	KindInvalidWebhook    ErrorKind = "INVALID_WEBHOOK"
	KindContainerError    ErrorKind = "CONTAINER_ERROR"
	KindTimeoutError      ErrorKind = "TIMEOUT_ERROR"
	KindUnknownError      ErrorKind = "UNKNOWN_ERROR"
)

// Retryable reports whether a failure of this kind is inherently transient.
// Structural failures (bad credentials, oversized content, unusable media or
// webhook, duplicates) cannot be fixed by retrying.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNetworkError, KindPlatformError, KindRateLimitExceeded,
		KindTimeoutError, KindContainerError, KindUnknownError:
		return true
	default:
		return false
	}
}

// PublishError is the error type returned by platform adapters. It carries
// the classification kind and, when available, wraps the underlying cause.
type PublishError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// NewPublishError creates a PublishError without an underlying cause.
func NewPublishError(kind ErrorKind, message string) *PublishError {
	return &PublishError{Kind: kind, Message: message}
}

// WrapPublishError creates a PublishError wrapping an underlying cause.
func WrapPublishError(kind ErrorKind, message string, err error) *PublishError {
	return &PublishError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the ErrorKind from an error chain.
// Unclassified errors report KindUnknownError.
func KindOf(err error) ErrorKind {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknownError
}

// IsRetryable reports whether the error chain carries a retryable kind.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}
