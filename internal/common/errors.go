// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"templarr/internal/model"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Remote instance errors.
	ErrRemoteNotFound      = errors.New("remote resource not found")
	ErrRemoteAlreadyExists = errors.New("remote resource already exists")
	ErrRemoteUnavailable   = errors.New("remote instance unavailable")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError reports a malformed input: a bad customization, an
// out-of-range score, or a structurally invalid template.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// NewValidationError creates a validation error for a field.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// ConflictError reports mutually-exclusive group violations. It blocks apply
// before any remote mutation; preview is never blocked by conflicts.
type ConflictError struct {
	Conflicts model.ConflictSet
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("mutually-exclusive conflict in groups: %s", strings.Join(e.Conflicts.GroupIDs(), ", "))
}

// StalePlanError reports that a plan's basis no longer matches the current
// template state; the caller must re-preview.
type StalePlanError struct {
	PlanVersion    string
	CurrentVersion string
}

func (e *StalePlanError) Error() string {
	return fmt.Sprintf("plan derived from source version %q but template is now %q", e.PlanVersion, e.CurrentVersion)
}

// UnresolvedItemError reports a customization or selection that references an
// item absent from the latest source snapshot. Never fatal to a batch; the
// item is skipped with a warning.
type UnresolvedItemError struct {
	ExternalID string
}

func (e *UnresolvedItemError) Error() string {
	return fmt.Sprintf("item %q not present in the current template source", e.ExternalID)
}

// RemoteError wraps a failure from the remote instance API. Transient errors
// are retried; permanent ones are surfaced per-item in the apply result.
type RemoteError struct {
	Err        error
	Op         string
	StatusCode int
	Transient  bool
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrRemoteUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Transient
	}

	return false
}
