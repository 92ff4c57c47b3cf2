package model

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrTransient matches provider errors that are worth retrying
	// (rate limits, overloaded or temporarily failing servers).
	ErrTransient = errors.New("transient provider error")
	// ErrFatal matches every other provider error.
	ErrFatal = errors.New("fatal provider error")
)

// ProviderError is a classified provider failure.
type ProviderError struct {
	Provider   string
	StatusCode int           // HTTP status when known
	Transient  bool          // Retry is worthwhile
	RetryAfter time.Duration // Server supplied hint, zero if none
	Err        error
}

func (e *ProviderError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %v", e.Provider, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, kind, e.Err)
}

// Unwrap returns the underlying vendor error.
func (e *ProviderError) Unwrap() error { return e.Err }

// Is makes errors.Is match ErrTransient or ErrFatal.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Transient
	case ErrFatal:
		return !e.Transient
	}
	return false
}

// NewTransientError classifies err as retryable.
func NewTransientError(provider string, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: status, Transient: true, Err: err}
}

// NewFatalError classifies err as not retryable.
func NewFatalError(provider string, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: status, Err: err}
}

// IsTransient reports whether err is a retryable provider error.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// RetryAfter returns the retry hint carried by err, if any.
func RetryAfter(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// TransientStatus reports whether an HTTP status denotes a transient fault:
// rate limiting, overload or a temporary server failure.
func TransientStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504, 529:
		return true
	}
	return false
}

// ClassifyStatus builds a ProviderError from an HTTP status.
func ClassifyStatus(provider string, status int, err error) *ProviderError {
	if TransientStatus(status) {
		return NewTransientError(provider, status, err)
	}
	return NewFatalError(provider, status, err)
}

// ParseRetryAfter interprets a Retry-After header given in seconds.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}
