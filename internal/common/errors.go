package common

import (
	"errors"
	"net/http"
)

// AppError is a failure that already knows how it should be shown to the shopper.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// AsAppError finds an AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	if errors.As(err, &target) && target != nil {
		return target, true
	}
	return nil, false
}

// WriteAppError renders err when it carries an AppError and reports whether it did. A zero
// HTTPStatus falls back to fallbackStatus.
func WriteAppError(w http.ResponseWriter, err error, fallbackStatus int) bool {
	appErr, ok := AsAppError(err)
	if !ok {
		return false
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = fallbackStatus
	}
	JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
	return true
}
