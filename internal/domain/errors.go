package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Migration lifecycle errors (MIGRATION_*)
	ErrorCodeMigrationAlreadyRunning  ErrorCode = "MIGRATION_ALREADY_RUNNING"
	ErrorCodeMigrationAlreadyComplete ErrorCode = "MIGRATION_ALREADY_COMPLETE"
	ErrorCodeMigrationBlocked         ErrorCode = "MIGRATION_BLOCKED"
	ErrorCodeMigrationNotPaused       ErrorCode = "MIGRATION_NOT_PAUSED"

	// Per-record errors
	ErrorCodeExtractionFailed           ErrorCode = "EXTRACTION_FAILED"
	ErrorCodeNoPricingSchemes           ErrorCode = "NO_PRICING_SCHEMES"
	ErrorCodePlanCreationFailed         ErrorCode = "PLAN_CREATION_FAILED"
	ErrorCodeSubscriptionCreationFailed ErrorCode = "SUBSCRIPTION_CREATION_FAILED"
	ErrorCodeRecordNotFound             ErrorCode = "RECORD_NOT_FOUND"

	// Gateway errors
	ErrorCodeGatewayUnsupported ErrorCode = "GATEWAY_UNSUPPORTED"

	// Infrastructure errors
	ErrorCodeStateUnavailable ErrorCode = "STATE_UNAVAILABLE"
	ErrorCodeInternalError    ErrorCode = "INTERNAL_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsRecordError reports whether err is scoped to a single record and must not abort a batch
func IsRecordError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeExtractionFailed ||
		code == ErrorCodeNoPricingSchemes ||
		code == ErrorCodePlanCreationFailed ||
		code == ErrorCodeSubscriptionCreationFailed ||
		code == ErrorCodeRecordNotFound
}

// Sentinel errors returned by adapters
var (
	ErrStateNotFound  = errors.New("migration state not found")
	ErrRecordNotFound = errors.New("record not found")
)
