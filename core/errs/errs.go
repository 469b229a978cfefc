// Package errs defines the error taxonomy shared by the dispatcher and features.
//
// Two kinds of failures exist: user errors carry a message meant for the chat
// and are expected control flow; everything else is unexpected and is logged
// with the file and line where it was wrapped.
package errs

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// Error codes reported in structured logs as err_code.
const (
	CodeUnknown    = "UNKNOWN"
	CodeUser       = "USER"
	CodeValidation = "VALIDATION"
	CodeDatabase   = "DATABASE"
	CodeTransport  = "TRANSPORT"
	CodeUpstream   = "UPSTREAM"
	CodePanic      = "PANIC"
)

// Error is an application error with a code, an optional user-facing message
// and the source location where it was created.
type Error struct {
	code    string
	message string
	user    bool
	file    string
	line    int
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		if e.message == "" {
			return e.err.Error()
		}
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

// Code returns the log classification of the error.
func (e *Error) Code() string { return e.code }

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error { return e.err }

// Location returns "file:line" of the call site that created the error.
func (e *Error) Location() string {
	if e.file == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", e.file, e.line)
}

func newError(code, message string, user bool, cause error, skip int) *Error {
	e := &Error{code: code, message: message, user: user, err: cause}
	if _, file, line, ok := runtime.Caller(skip); ok {
		e.file = filepath.Base(file)
		e.line = line
	}
	return e
}

// User returns an error whose message is shown to the chat verbatim.
func User(message string) error {
	return newError(CodeUser, message, true, nil, 2)
}

// Userf formats a user-facing error message.
func Userf(format string, args ...any) error {
	return newError(CodeUser, fmt.Sprintf(format, args...), true, nil, 2)
}

// Validation reports malformed user input; the message is user-facing.
func Validation(message string) error {
	return newError(CodeValidation, message, true, nil, 2)
}

// Wrap annotates err with message and the caller's location.
// A nil err yields nil.
func Wrap(message string, err error) error {
	if err == nil {
		return nil
	}
	return newError(codeOf(err), message, false, err, 2)
}

// WrapCode is Wrap with an explicit classification.
func WrapCode(code, message string, err error) error {
	if err == nil {
		return nil
	}
	return newError(code, message, false, err, 2)
}

// Panic converts a recovered value into an error located at file:line.
func Panic(v any, file string, line int) error {
	e := &Error{code: CodePanic, message: "panic", file: filepath.Base(file), line: line}
	if err, ok := v.(error); ok {
		e.err = err
	} else {
		e.err = fmt.Errorf("%v", v)
	}
	return e
}

// IsUser reports whether err carries a user-facing message.
func IsUser(err error) bool {
	var e *Error
	for errors.As(err, &e) {
		if e.user {
			return true
		}
		err = e.err
		if err == nil {
			return false
		}
	}
	return false
}

// UserMessage returns the first user-facing message found in err's chain.
func UserMessage(err error) (string, bool) {
	var e *Error
	for errors.As(err, &e) {
		if e.user {
			return e.message, true
		}
		err = e.err
		if err == nil {
			break
		}
	}
	return "", false
}

// Code returns the classification of err or CodeUnknown.
func Code(err error) string {
	if err == nil {
		return ""
	}
	return codeOf(err)
}

func codeOf(err error) string {
	type coder interface{ Code() string }
	var c coder
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return code
		}
	}
	return CodeUnknown
}

// Location returns the innermost recorded source location in err's chain.
func Location(err error) string {
	loc := ""
	var e *Error
	for errors.As(err, &e) {
		if l := e.Location(); l != "" {
			loc = l
		}
		err = e.err
		if err == nil {
			break
		}
	}
	return loc
}
