package services

import (
	"errors"
	"fmt"
)

// Error codes surfaced to API callers.
const (
	CodeValidation      = "VALIDATION"
	CodeNotFound        = "NOT_FOUND"
	CodeExternalService = "EXTERNAL_SERVICE"
	CodeClaimConflict   = "CLAIM_CONFLICT"
	CodeInternal        = "INTERNAL"
)

// ValidationError missing or malformed input; no side effect was performed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError the resource does not exist or is not owned by the caller.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ExternalServiceError a platform or notification call failed or timed out.
type ExternalServiceError struct {
	Service   string
	Operation string
	Err       error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Operation, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ClaimConflictError another tick already claimed this firing.
type ClaimConflictError struct {
	AutomationID string
}

func (e *ClaimConflictError) Error() string {
	return fmt.Sprintf("automation %s already claimed", e.AutomationID)
}

// UnsupportedActionError the action kind is not part of the closed set.
type UnsupportedActionError struct {
	Kind string
}

func (e *UnsupportedActionError) Error() string {
	return fmt.Sprintf("unsupported action kind %q", e.Kind)
}

// InternalError any other fault inside evaluation or dispatch.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return "internal: " + e.Err.Error()
}

func (e *InternalError) Unwrap() error { return e.Err }

// ErrorCode classifies err into one of the Code* constants.
func ErrorCode(err error) string {
	var (
		ve *ValidationError
		nf *NotFoundError
		ex *ExternalServiceError
		cc *ClaimConflictError
		ua *UnsupportedActionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve), errors.As(err, &ua):
		return CodeValidation
	case errors.As(err, &nf):
		return CodeNotFound
	case errors.As(err, &ex):
		return CodeExternalService
	case errors.As(err, &cc):
		return CodeClaimConflict
	default:
		return CodeInternal
	}
}

// IsClaimConflict reports whether err is a lost claim.
func IsClaimConflict(err error) bool {
	var cc *ClaimConflictError
	return errors.As(err, &cc)
}
