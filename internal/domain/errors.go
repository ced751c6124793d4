// Package domain provides shared domain-level errors for the orchestration core.
//
// The taxonomy mirrors the recovery policy: validation, timeout, not-found and
// rate-limit errors are recoverable at the handler boundary (degraded result,
// retry, or escalation signal); SystemError is not, and forces an immediate
// handoff.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrPoolExhausted indicates no pool handle became available before the
// caller's deadline.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// ValidationError indicates content was rejected by the validator battery.
// Recoverable: regenerate under the retry budget or escalate.
type ValidationError struct {
	Op      string
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: content rejected: %v", e.Op, e.Reasons)
}

// TimeoutError indicates a collaborator or pool deadline was exceeded.
type TimeoutError struct {
	Op       string
	Deadline time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: deadline %s exceeded", e.Op, e.Deadline)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// NotFoundError indicates a referenced entity is absent. Recoverable: the
// draft generator produces a clarification path instead of failing the turn.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Entity, e.Key, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// RateLimitError indicates upstream or pool throttling.
type RateLimitError struct {
	Op         string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited (retry after %s)", e.Op, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// SystemError indicates an unexpected internal fault that no handler can
// recover from locally.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("%s: internal fault: %v", e.Op, e.Err)
}

func (e *SystemError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsNotFound reports whether err indicates a missing entity.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) || errors.Is(err, ErrNotFound)
}

// IsRateLimit reports whether err is (or wraps) a RateLimitError.
func IsRateLimit(err error) bool {
	var re *RateLimitError
	return errors.As(err, &re)
}

// IsSystem reports whether err is (or wraps) a SystemError.
func IsSystem(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}
