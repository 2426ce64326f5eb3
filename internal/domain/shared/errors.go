// Package shared contains common domain types, errors, events, and value objects
// that are used across the domain packages.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation    = errors.New("validation error")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidFormat = errors.New("invalid format")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Infrastructure errors
	ErrStorage     = errors.New("storage error")
	ErrTimeout     = errors.New("operation timeout")
	ErrRateLimited = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "badge", "catalog"
	Op      string // Operation that failed, e.g., "CollectMetrics", "Award"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if t, ok := target.(*DomainError); ok {
		return e.Domain == t.Domain && e.Op == t.Op && e.Message == t.Message
	}
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Wrap returns a copy of a sentinel DomainError carrying err as its cause.
// errors.Is matches both the sentinel and err.
func (e *DomainError) Wrap(err error) *DomainError {
	return &DomainError{
		Domain:  e.Domain,
		Op:      e.Op,
		Kind:    e.Kind,
		Message: e.Message,
		Err:     err,
	}
}

// Badge domain errors
var (
	ErrInvalidUserID      = NewDomainError("badge", "Validate", ErrInvalidID, "invalid user ID")
	ErrInvalidRoomID      = NewDomainError("badge", "Validate", ErrInvalidID, "invalid room ID")
	ErrMetricsUnavailable = NewDomainError("badge", "CollectMetrics", ErrStorage, "failed to collect metrics")
	ErrCatalogUnavailable = NewDomainError("badge", "LoadCatalog", ErrStorage, "failed to load badge catalog")
	ErrAwardFailed        = NewDomainError("badge", "Award", ErrStorage, "failed to award badges")
	ErrSummaryFailed      = NewDomainError("badge", "Summary", ErrStorage, "failed to load badges")
	ErrDefinitionNotFound = NewDomainError("badge", "FindDefinition", ErrNotFound, "badge definition not found")
	ErrInvalidDefinition  = NewDomainError("badge", "ValidateDefinition", ErrValidation, "invalid badge definition")
	ErrDuplicateRule      = NewDomainError("badge", "Registry", ErrAlreadyExists, "badge rule already registered")
)

// Caller errors
var (
	ErrUnauthenticated = NewDomainError("auth", "Authenticate", ErrUnauthorized, "authentication required")
	ErrTooManyRequests = NewDomainError("auth", "RateLimit", ErrRateLimited, "too many requests")
	ErrAdminRequired   = NewDomainError("auth", "Authorize", ErrUnauthorized, "administrator key required")
	ErrAdminDenied     = NewDomainError("auth", "Authorize", ErrForbidden, "administrator key rejected")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	for _, kind := range []error{ErrValidation, ErrInvalidID, ErrInvalidInput, ErrInvalidFormat} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsUnauthorized checks if the caller could not be identified.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsForbidden checks if the caller is not allowed to perform the operation.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsRateLimited checks if the caller exceeded its quota.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
