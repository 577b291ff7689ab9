// internal/common/errors/errors.go

// Package errors provides the standardized error taxonomy shared by the core
// services and the Zeebe job workers.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidReaction   ErrorCode = "INVALID_REACTION"
	ErrCodeInvalidBloodType  ErrorCode = "INVALID_BLOOD_TYPE"
	ErrCodeInvalidLocation   ErrorCode = "INVALID_LOCATION"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	ErrCodeNotFound  ErrorCode = "NOT_FOUND"
	ErrCodeForbidden ErrorCode = "FORBIDDEN"

	ErrCodeDispatchPartialFailure   ErrorCode = "DISPATCH_PARTIAL_FAILURE"
	ErrCodeDispatchAlreadyScheduled ErrorCode = "DISPATCH_ALREADY_SCHEDULED"
	ErrCodeQueueFull                ErrorCode = "QUEUE_FULL"

	ErrCodeStoreUnavailable       ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any StandardError carrying the same code, so the sentinels below
// work with errors.Is regardless of message or details.
func (e *StandardError) Is(target error) bool {
	var t *StandardError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Sentinels for errors.Is checks.
var (
	ErrValidation         = &StandardError{Code: ErrCodeValidationFailed}
	ErrInvalidReaction    = &StandardError{Code: ErrCodeInvalidReaction}
	ErrInvalidBloodType   = &StandardError{Code: ErrCodeInvalidBloodType}
	ErrInvalidLocation    = &StandardError{Code: ErrCodeInvalidLocation}
	ErrInvalidTransition  = &StandardError{Code: ErrCodeInvalidTransition}
	ErrNotFound           = &StandardError{Code: ErrCodeNotFound}
	ErrForbidden          = &StandardError{Code: ErrCodeForbidden}
	ErrDispatchPartial    = &StandardError{Code: ErrCodeDispatchPartialFailure}
	ErrAlreadyScheduled   = &StandardError{Code: ErrCodeDispatchAlreadyScheduled}
	ErrQueueFull          = &StandardError{Code: ErrCodeQueueFull}
	ErrStoreUnavailable   = &StandardError{Code: ErrCodeStoreUnavailable}
	ErrNotificationFailed = &StandardError{Code: ErrCodeNotificationSendFailed}
)

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError creates a non-retryable validation error.
func NewValidationError(details string) *StandardError {
	return newError(ErrCodeValidationFailed, "Validation failed", details, false)
}

// NewInvalidReactionError reports an unsupported donor reaction value.
func NewInvalidReactionError(reaction string) *StandardError {
	return newError(ErrCodeInvalidReaction,
		"Valid response type is required (interested, confirmed, declined)",
		fmt.Sprintf("reaction: %q", reaction), false)
}

// NewInvalidBloodTypeError reports a blood type outside the closed set.
func NewInvalidBloodTypeError(bloodType string) *StandardError {
	return newError(ErrCodeInvalidBloodType, "Unsupported blood type",
		fmt.Sprintf("bloodType: %q", bloodType), false)
}

// NewInvalidLocationError reports non-finite or out-of-range coordinates.
func NewInvalidLocationError(lat, lon float64) *StandardError {
	return newError(ErrCodeInvalidLocation, "Invalid geographic location",
		fmt.Sprintf("lat: %v, lon: %v", lat, lon), false)
}

// NewInvalidTransitionError reports a lifecycle event applied to a closed notification.
func NewInvalidTransitionError(event, status string) *StandardError {
	return newError(ErrCodeInvalidTransition, "Notification transition not allowed",
		fmt.Sprintf("event: %s, status: %s", event, status), false)
}

// NewNotFoundError reports an absent (or not owned) resource.
func NewNotFoundError(resource, id string) *StandardError {
	return newError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource),
		fmt.Sprintf("id: %s", id), false)
}

// NewForbiddenError reports an ownership violation.
func NewForbiddenError(details string) *StandardError {
	return newError(ErrCodeForbidden, "Operation not permitted", details, false)
}

// NewDispatchPartialFailureError reports a partially persisted notification batch.
func NewDispatchPartialFailureError(created, attempted int, err error) *StandardError {
	e := newError(ErrCodeDispatchPartialFailure, "Notification batch partially persisted",
		fmt.Sprintf("created: %d, attempted: %d", created, attempted), false)
	e.Metadata = map[string]interface{}{"created": created, "attempted": attempted}
	e.cause = err
	return e
}

// NewAlreadyScheduledError reports a duplicate dispatch blocked by the guard.
func NewAlreadyScheduledError(requestID string) *StandardError {
	return newError(ErrCodeDispatchAlreadyScheduled, "Dispatch already scheduled for request",
		fmt.Sprintf("requestId: %s", requestID), false)
}

// NewQueueFullError reports that the dispatch queue rejected a task.
func NewQueueFullError(capacity int) *StandardError {
	return newError(ErrCodeQueueFull, "Dispatch queue is full",
		fmt.Sprintf("capacity: %d", capacity), true)
}

// NewStoreUnavailableError wraps a repository-level failure. It is retryable by the caller.
func NewStoreUnavailableError(operation string, err error) *StandardError {
	e := newError(ErrCodeStoreUnavailable, "Store unavailable",
		fmt.Sprintf("operation: %s, error: %v", operation, err), true)
	e.cause = err
	return e
}

// NewNotificationSendFailedError creates a retryable channel delivery error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	e := newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %v", channel, err), true)
	e.cause = err
	return e
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStoreUnavailable, ErrCodeNotificationSendFailed:
		return 3
	case ErrCodeQueueFull:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandard extracts a StandardError from err, wrapping unknown errors as INTERNAL_ERROR.
func AsStandard(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// IsRetryable reports whether err is a StandardError flagged retryable.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	return errors.As(err, &stdErr) && stdErr.Retryable
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case code == ErrCodeNotFound || code == ErrCodeForbidden:
		return "ACCESS"
	case strings.HasPrefix(codeStr, "DISPATCH") || code == ErrCodeQueueFull:
		return "DISPATCH"
	case strings.Contains(codeStr, "STORE"):
		return "STORE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	default:
		return "OTHER"
	}
}
