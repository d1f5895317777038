// Package apperr defines the error kinds surfaced to callers of the metric engine.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers. Values are stable and appear in API responses.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindComputation Kind = "computation"
	KindInternal    Kind = "internal"
)

// Stable error codes.
const (
	CodeMetricNotFound          = "METRIC_NOT_FOUND"
	CodeNotALeafMetric          = "NOT_A_LEAF_METRIC"
	CodeProductNotFound         = "PRODUCT_NOT_FOUND"
	CodeUserNotFound            = "USER_NOT_FOUND"
	CodeCompanyNotFound         = "COMPANY_NOT_FOUND"
	CodeProjectionNotFound      = "PROJECTION_NOT_FOUND"
	CodeDailyMetricNotFound     = "DAILY_METRIC_NOT_FOUND"
	CodeMissingOperandValue     = "MISSING_OPERAND_VALUE"
	CodeDependencyCycle         = "DEPENDENCY_CYCLE"
	CodeDependencyDepthExceeded = "DEPENDENCY_DEPTH_EXCEEDED"
	CodeInvalidMetricDefinition = "INVALID_METRIC_DEFINITION"
	CodeProjectionExists        = "PROJECTION_EXISTS"
	CodeMetricHasSubmissions    = "METRIC_HAS_SUBMISSIONS"
	CodeMetricInUse             = "METRIC_IN_USE"
	CodeMetricExists            = "METRIC_EXISTS"
	CodeInvalidInput            = "INVALID_INPUT"
)

// Error is a classified error with a stable code and a user-facing message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing or soft-deleted entity.
func NotFound(code, format string, args ...any) *Error {
	return newf(KindNotFound, code, format, args...)
}

// Validation reports malformed input caught before any I/O.
func Validation(code, format string, args ...any) *Error {
	return newf(KindValidation, code, format, args...)
}

// Conflict reports a state clash such as a duplicate active projection.
func Conflict(code, format string, args ...any) *Error {
	return newf(KindConflict, code, format, args...)
}

// Computation reports a derived value that cannot be produced.
func Computation(code, format string, args ...any) *Error {
	return newf(KindComputation, code, format, args...)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or "" when err is not classified.
func CodeOf(err error) string {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return ""
}

// HTTPStatus maps a kind to the status code returned by the API.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindComputation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
