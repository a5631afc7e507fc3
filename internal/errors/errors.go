// Package errors defines the error taxonomy shared by the ledgerfeed core.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a ServiceError.
type Code string

const (
	CodeNotFound      Code = "NOT_FOUND"
	CodeDecode        Code = "DECODE_ERROR"
	CodeSubmission    Code = "SUBMISSION_ERROR"
	CodePrecondition  Code = "PRECONDITION_FAILED"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeRateLimited   Code = "RATE_LIMITED"
	CodeInternal      Code = "INTERNAL"
)

// ServiceError is the structured error returned by core operations.
type ServiceError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches another ServiceError by code, so errors.Is(err, &ServiceError{Code: CodeNotFound}) works.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails returns a copy of the error with an added detail entry.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	cp := *e
	cp.Details = details
	return &cp
}

func newError(code Code, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// NotFound reports that no record exists at an address.
func NotFound(message string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, message, nil)
}

// Decode reports bytes that do not match the expected record layout.
func Decode(message string, err error) *ServiceError {
	return newError(CodeDecode, http.StatusUnprocessableEntity, message, err)
}

// Submission reports a mutation the network rejected or failed to confirm.
func Submission(message string, err error) *ServiceError {
	return newError(CodeSubmission, http.StatusBadGateway, message, err)
}

// Precondition reports a call made without a required argument such as an identity.
func Precondition(message string) *ServiceError {
	return newError(CodePrecondition, http.StatusBadRequest, message, nil)
}

// AlreadyExists reports an occupied address surfaced by the network.
func AlreadyExists(message string, err error) *ServiceError {
	return newError(CodeAlreadyExists, http.StatusConflict, message, err)
}

// RateLimited reports a client exceeding its request budget.
func RateLimited(message string) *ServiceError {
	return newError(CodeRateLimited, http.StatusTooManyRequests, message, nil)
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError extracts the first ServiceError in err's chain.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// HasCode reports whether err carries a ServiceError with the given code.
func HasCode(err error, code Code) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}

func IsNotFound(err error) bool      { return HasCode(err, CodeNotFound) }
func IsDecode(err error) bool        { return HasCode(err, CodeDecode) }
func IsSubmission(err error) bool    { return HasCode(err, CodeSubmission) }
func IsPrecondition(err error) bool  { return HasCode(err, CodePrecondition) }
func IsAlreadyExists(err error) bool { return HasCode(err, CodeAlreadyExists) }
