// Package apperr provides the typed errors returned by the service layer.
//
// Every error carries a machine-readable Code. The transport layer maps codes
// to HTTP statuses through Code.HTTPStatus and never inspects messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeValidation Code = "VALIDATION_FAILED"

	// State errors
	CodeEstimateNotDraft         Code = "ESTIMATE_NOT_DRAFT"
	CodeInvalidStatusTransition  Code = "ESTIMATE_INVALID_STATUS_TRANSITION"
	CodeOverrideSubjectMissing   Code = "RATE_OVERRIDE_SUBJECT_MISSING"
	CodeInvalidMarginTarget      Code = "MARGIN_TARGET_INVALID"
	CodeZeroTotalAmount          Code = "MARGIN_ZERO_TOTAL_AMOUNT"
	CodeNoMarginOverride         Code = "MARGIN_OVERRIDE_NOT_ACTIVE"
	CodeLineItemEstimateMismatch Code = "LINE_ITEM_ESTIMATE_MISMATCH"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Consistency errors
	CodeInconsistent Code = "ESTIMATE_INCONSISTENT"

	// Auth errors
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"

	CodeInternal Code = "INTERNAL"
)

// Kind groups codes by how a caller should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindState
	KindNotFound
	KindInconsistent
	KindUnauthenticated
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindNotFound:
		return "not_found"
	case KindInconsistent:
		return "inconsistent"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Kind returns the kind of the code.
func (c Code) Kind() Kind {
	switch c {
	case CodeValidation:
		return KindValidation
	case CodeEstimateNotDraft,
		CodeInvalidStatusTransition,
		CodeOverrideSubjectMissing,
		CodeInvalidMarginTarget,
		CodeZeroTotalAmount,
		CodeNoMarginOverride,
		CodeLineItemEstimateMismatch:
		return KindState
	case CodeNotFound:
		return KindNotFound
	case CodeInconsistent:
		return KindInconsistent
	case CodeUnauthenticated:
		return KindUnauthenticated
	case CodeForbidden:
		return KindForbidden
	default:
		return KindInternal
	}
}

// HTTPStatus maps the code to an HTTP status.
func (c Code) HTTPStatus() int {
	switch c.Kind() {
	// 400 - validation failures, bad input
	case KindValidation:
		return http.StatusBadRequest
	// 409 - state doesn't allow operation
	case KindState:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed service error.
type Error struct {
	Code    Code
	Message string

	// Fields holds per-field messages for validation errors.
	Fields map[string]string

	Cause error
}

func (e *Error) Error() string {
	msg := e.Message
	if len(e.Fields) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, formatFields(e.Fields))
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Kind returns the kind of the error's code.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

func formatFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " " + fields[k]
	}
	return strings.Join(parts, "; ")
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a code and a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validation creates a validation error from field messages.
func Validation(fields map[string]string) *Error {
	return &Error{Code: CodeValidation, Message: "validation failed", Fields: fields}
}

// NotFound creates a not-found error for an entity.
func NotFound(entity, id string, cause error) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s not found: %s", entity, id), Cause: cause}
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: message, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, CodeInternal
// for any other non-nil error, and "" for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// KindOf returns the kind of err's code.
func KindOf(err error) Kind {
	return CodeOf(err).Kind()
}

// FieldsOf returns the validation fields carried by err, if any.
func FieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// HTTPError is the JSON body written for a failed request.
type HTTPError struct {
	Code    Code              `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ToHTTPError maps err to a status and response body. Internal causes are
// not exposed to clients.
func ToHTTPError(err error) (int, HTTPError) {
	var e *Error
	if !errors.As(err, &e) || e.Code.Kind() == KindInternal {
		return http.StatusInternalServerError, HTTPError{
			Code:    CodeInternal,
			Message: "an internal error occurred",
		}
	}
	return e.Code.HTTPStatus(), HTTPError{
		Code:    e.Code,
		Message: e.Message,
		Fields:  e.Fields,
	}
}
