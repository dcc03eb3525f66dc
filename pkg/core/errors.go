package core

import (
	"context"
	"errors"
	"fmt"
	"net"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// ErrorCategory describes the class of an error encountered while reconciling.
type ErrorCategory string

const (
	// ErrorCategoryNone indicates no error.
	ErrorCategoryNone ErrorCategory = ""
	// ErrorCategoryRBAC indicates insufficient permissions (Forbidden/Unauthorized).
	ErrorCategoryRBAC ErrorCategory = "rbac"
	// ErrorCategoryTransient indicates a retryable/transient failure.
	ErrorCategoryTransient ErrorCategory = "transient"
	// ErrorCategoryPermanent indicates a non-retryable failure unrelated to RBAC.
	ErrorCategoryPermanent ErrorCategory = "permanent"
)

// MissingDependencyError reports a relation that has not published its data yet.
type MissingDependencyError struct {
	Relation RelationKind
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("%s relation missing", e.Relation)
}

// ValidationError reports malformed input data. Only the publishing side can fix it.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
}

// CertificateMismatchError reports an issued certificate that does not match the outstanding request.
type CertificateMismatchError struct {
	Reason string
}

func (e *CertificateMismatchError) Error() string {
	return fmt.Sprintf("certificate does not match outstanding request: %s", e.Reason)
}

// WorkloadApplyError reports that pushing artifacts or restarting the workload failed
// after all retry attempts.
type WorkloadApplyError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *WorkloadApplyError) Error() string {
	return fmt.Sprintf("workload %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *WorkloadApplyError) Unwrap() error { return e.Err }

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsCertificateMismatch reports whether err wraps a CertificateMismatchError.
func IsCertificateMismatch(err error) bool {
	var target *CertificateMismatchError
	return errors.As(err, &target)
}

// ClassifiedError wraps an error with its detected category.
type ClassifiedError struct {
	Err      error
	Category ErrorCategory
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }

func (e *ClassifiedError) Unwrap() error { return e.Err }

// ClassifyError inspects an error and returns the appropriate category.
func ClassifyError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}
	for current := err; current != nil; current = errors.Unwrap(current) {
		if classified, ok := current.(*ClassifiedError); ok {
			return classified.Category
		}
		switch {
		case apierrors.IsForbidden(current) || apierrors.IsUnauthorized(current):
			return ErrorCategoryRBAC
		case apierrors.IsTooManyRequests(current), apierrors.IsTimeout(current), apierrors.IsServerTimeout(current),
			apierrors.IsConflict(current), apierrors.IsServiceUnavailable(current):
			return ErrorCategoryTransient
		}
		if errors.Is(current, context.DeadlineExceeded) {
			return ErrorCategoryTransient
		}
		if ne, ok := current.(net.Error); ok && ne.Timeout() {
			return ErrorCategoryTransient
		}
		var opErr *net.OpError
		if errors.As(current, &opErr) {
			return ErrorCategoryTransient
		}
	}
	return ErrorCategoryPermanent
}

// IsRetryable reports whether an apply step should be attempted again.
func IsRetryable(err error) bool {
	return ClassifyError(err) == ErrorCategoryTransient
}
