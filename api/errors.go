// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for evsock.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotSupported     = errors.New("operation not supported")
	ErrAlreadyConnected = errors.New("socket already connected")
	ErrAlreadyListening = errors.New("server already listening")
	ErrSocketClosed     = errors.New("socket is closed")
	ErrBrokenPipe       = errors.New("connection broken")
	ErrNoListeners      = errors.New("there are no valid listening sockets")
	ErrConnectFailed    = errors.New("could not create connection")
	ErrConnectAborted   = errors.New("connect aborted by close")
	ErrResolve          = errors.New("address resolution failed")
	ErrBadHandler       = errors.New("bad callback")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResolve
	ErrCodeBind
	ErrCodeListen
	ErrCodeAccept
	ErrCodeConnect
	ErrCodeIO
	ErrCodeHandler
	ErrCodeInternal
)

// String returns a short name for the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeResolve:
		return "resolve"
	case ErrCodeBind:
		return "bind"
	case ErrCodeListen:
		return "listen"
	case ErrCodeAccept:
		return "accept"
	case ErrCodeConnect:
		return "connect"
	case ErrCodeIO:
		return "io"
	case ErrCodeHandler:
		return "handler"
	default:
		return "internal"
	}
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil && msg == "" {
		msg = e.Err.Error()
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the wrapped cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WrapError creates a structured error around cause, keeping its message.
func WrapError(code ErrorCode, cause error) *Error {
	return &Error{
		Code:    code,
		Message: cause.Error(),
		Context: make(map[string]any),
		Err:     cause,
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf extracts the ErrorCode from err, or ErrCodeInternal when err carries none.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
