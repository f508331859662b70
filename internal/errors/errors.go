package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes used across the harness. A CONFIGURATION error aborts a suite
// before any test runs; TESTS_FAILED is the aggregated verdict of a suite.
const (
	CodeConfiguration      = "CONFIGURATION"
	CodeInfrastructure     = "INFRASTRUCTURE"
	CodeCommand            = "COMMAND"
	CodeEmptyFailureStream = "EMPTY_FAILURE_STREAM"
	CodeTestsFailed        = "TESTS_FAILED"
)

type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func Wrapf(err error, code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// HasCode reports whether any error in err's chain is an *Error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// Message returns the human-readable message of err without the code prefix
// when err is an *Error, and err.Error() otherwise.
func Message(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	}
	return err.Error()
}
