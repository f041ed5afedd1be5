// Package superrors classifies the supervisor's error taxonomy.
package superrors

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ValidationError signals a tool input that failed schema/shape checks.
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

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundErr signals an unknown taskId.
type NotFoundErr struct {
	TaskID string
}

func (e *NotFoundErr) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// NewNotFound builds a NotFoundErr.
func NewNotFound(taskID string) *NotFoundErr {
	return &NotFoundErr{TaskID: taskID}
}

// PreconditionFailedErr signals a respond/cancel request issued against a
// task in the wrong status.
type PreconditionFailedErr struct {
	TaskID  string
	Status  string
	Message string
}

func (e *PreconditionFailedErr) Error() string {
	return fmt.Sprintf("task %s in status %s: %s", e.TaskID, e.Status, e.Message)
}

// NewPreconditionFailed builds a PreconditionFailedErr.
func NewPreconditionFailed(taskID, status, message string) *PreconditionFailedErr {
	return &PreconditionFailedErr{TaskID: taskID, Status: status, Message: message}
}

// TransientErr represents an error that is safe to retry.
type TransientErr struct {
	Err     error
	Message string
}

func (e *TransientErr) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientErr) Unwrap() error { return e.Err }

// NewTransient wraps err as a TransientErr.
func NewTransient(err error, message string) *TransientErr {
	return &TransientErr{Err: err, Message: message}
}

// PermanentErr represents an error that should not be retried.
type PermanentErr struct {
	Err     error
	Message string
}

func (e *PermanentErr) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentErr) Unwrap() error { return e.Err }

// NewPermanent wraps err as a PermanentErr.
func NewPermanent(err error, message string) *PermanentErr {
	return &PermanentErr{Err: err, Message: message}
}

// IsTransient reports whether err is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transient *TransientErr
	if errors.As(err, &transient) {
		return true
	}
	var permanent *PermanentErr
	if errors.As(err, &permanent) {
		return false
	}

	if isNetworkError(err) {
		return true
	}
	if isSyscallError(err) {
		return true
	}
	return false
}

// IsPermanent reports whether err should never be retried.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var permanent *PermanentErr
	if errors.As(err, &permanent) {
		return true
	}
	var transient *TransientErr
	if errors.As(err, &transient) {
		return false
	}

	var validation *ValidationError
	if errors.As(err, &validation) {
		return true
	}
	var notFound *NotFoundErr
	if errors.As(err, &notFound) {
		return true
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{"not found", "invalid", "permission denied", "unauthorized"} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection refused", "connection reset", "broken pipe", "timeout"} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func isSyscallError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE, syscall.ETIMEDOUT:
			return true
		}
	}
	return false
}
