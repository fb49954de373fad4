package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by the engine and the transport layer.
const (
	CodeValidation  = "VALIDATION_FAILED"
	CodeNotFound    = "NOT_FOUND"
	CodeForbidden   = "FORBIDDEN"
	CodeConflict    = "CONFLICT"
	CodeUnavailable = "UNAVAILABLE"
	CodeInternal    = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Reason returns the machine-readable reason attached to the error, if any.
func (e *DomainError) Reason() string {
	if e == nil || e.Details == nil {
		return ""
	}
	reason, _ := e.Details["reason"].(string)
	return reason
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

// NewNotAuthorized is a forbidden error carrying a reason code.
func NewNotAuthorized(reason, message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, map[string]any{"reason": reason})
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewAlreadyDone reports that the requested transition already happened
// or the ticket is in a state where it cannot happen.
func NewAlreadyDone(reason, message string) error {
	return NewConflict(message, map[string]any{"reason": reason})
}

// NewUnavailable reports that the record store could not be reached.
func NewUnavailable(err error) error {
	return &DomainError{
		Code:       CodeUnavailable,
		Message:    "ticket store unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// Outcome discriminates the result of an engine operation for UI rendering.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeAlreadyDone   Outcome = "already_done"
	OutcomeNotAuthorized Outcome = "not_authorized"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeInvalid       Outcome = "invalid"
	OutcomeFailure       Outcome = "failure"
)

// OutcomeOf maps an operation error onto its outcome.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	switch ToDomainError(err).Code {
	case CodeConflict:
		return OutcomeAlreadyDone
	case CodeForbidden:
		return OutcomeNotAuthorized
	case CodeNotFound:
		return OutcomeNotFound
	case CodeValidation:
		return OutcomeInvalid
	default:
		return OutcomeFailure
	}
}

// ReasonOf extracts the reason code from err, or "" when absent.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	return ToDomainError(err).Reason()
}
