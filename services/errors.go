package services

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated covers missing, malformed and invalid credentials
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrCredentialExpired is returned for a well-formed but expired token so
	// clients can prompt for re-authentication
	ErrCredentialExpired = errors.New("credential expired")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	// ErrUpstreamUnavailable wraps model and payment-gateway failures
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrQuotaExceeded       = errors.New("monthly message quota exceeded")
)

// ValidationError reports a bad or missing request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// QuotaExceededError carries the state the client needs to render an
// upgrade prompt
type QuotaExceededError struct {
	Limit     int
	Used      int
	SessionID string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly limit of %d messages reached (used %d)", e.Limit, e.Used)
}

func (e *QuotaExceededError) Unwrap() error {
	return ErrQuotaExceeded
}

// LimitMessage is the user-facing text returned with a quota rejection
func (e *QuotaExceededError) LimitMessage() string {
	return fmt.Sprintf("You have reached your monthly limit of %d messages. Please upgrade to premium.", e.Limit)
}
