package api

import (
	"context"
	"errors"
	"fmt"
)

// ErrValidation marks failures detected before any request is sent.
var ErrValidation = errors.New("validation failed")

// ErrorKind classifies a failure for notification purposes.
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindApplication ErrorKind = "application"
	KindValidation  ErrorKind = "validation"
	KindUnknown     ErrorKind = "unknown"
)

// NetworkError means no usable response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AppError means the backend answered but reported failure, either through
// success:false or a non-2xx status.
type AppError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *AppError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Validationf returns an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Classify reports which category err belongs to.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrValidation) {
		return KindValidation
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return KindApplication
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindUnknown
}

// Message extracts the text worth showing to a user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return "network error: " + netErr.Err.Error()
	}
	return err.Error()
}
