// Package apperrors defines the error taxonomy shared by the automation
// engine. Callers match with errors.As; the retry executor consults
// IsTransient to decide whether an operation is worth re-attempting.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError is malformed input: the caller's fault, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError covers missing or foreign entities. Ownership failures are
// reported as not-found so the API never leaks another user's state.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InvalidTransitionError is a campaign lifecycle rule violation.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid campaign transition %s -> %s", e.From, e.To)
}

func NewInvalidTransition(from, to string) error {
	return &InvalidTransitionError{From: from, To: to}
}

// InvalidScheduleError rejects scheduling outside the allowed window.
type InvalidScheduleError struct {
	When   time.Time
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule %s: %s", e.When.Format(time.RFC3339), e.Reason)
}

func NewInvalidSchedule(when time.Time, reason string) error {
	return &InvalidScheduleError{When: when, Reason: reason}
}

// RateLimitError carries the wait until the current window resets. The caller
// decides whether to queue, reject, or back off.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Key, e.RetryAfter)
}

func NewRateLimit(key string, retryAfter time.Duration) error {
	return &RateLimitError{Key: key, RetryAfter: retryAfter}
}

// ProviderError is a delivery provider call failure. Transient errors
// (network, 5xx, throttling) are retryable; permanent ones (bad auth,
// rejected payload) are not.
type ProviderError struct {
	Transient bool
	Reason    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error: %s", e.Reason)
}

func NewProviderError(reason string, transient bool) error {
	return &ProviderError{Transient: transient, Reason: reason}
}

// PersistenceError wraps a database failure.
type PersistenceError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func NewPersistence(op string, err error, transient bool) error {
	return &PersistenceError{Op: op, Err: err, Transient: transient}
}

// IsTransient reports whether the error is worth retrying.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	var de *PersistenceError
	if errors.As(err, &de) {
		return de.Transient
	}
	return false
}

// IsNotFound reports whether the error is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
