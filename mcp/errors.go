package mcp

import (
	"errors"
	"fmt"
)

// Error codes per the JSON-RPC 2.0 standard and the MCP extensions this
// server adds on top of it.
const (
	ErrorCodeParseError      = -32700
	ErrorCodeInvalidRequest  = -32600
	ErrorCodeMethodNotFound  = -32601
	ErrorCodeInvalidParams   = -32602
	ErrorCodeInternalError   = -32603
	ErrorCodeServerError     = -32000
	ErrorCodeNotFound        = -32001
	ErrorCodeNotInitialized  = -32002

	// Application-defined extensions; spec.md leaves the exact codes to the
	// implementer.
	ErrorCodeAuthenticationRequired = -32010
	ErrorCodeAuthorizationFailed    = -32011
	ErrorCodeSamplingTimeout        = -32012
)

// Error kinds, mirrored 1:1 with the codes above. Kind is never serialized
// on the wire (the numeric code is); it exists for structured logging and
// for the "data.kind" machine-readable field security failures carry.
const (
	KindParse                  = "parse"
	KindInvalidRequest         = "invalid_request"
	KindMethodNotFound         = "method_not_found"
	KindInvalidParams          = "invalid_params"
	KindInternal               = "internal"
	KindServer                 = "server"
	KindNotFound               = "not_found"
	KindNotInitialized         = "not_initialized"
	KindAuthenticationRequired = "authentication_required"
	KindAuthorizationFailed    = "authorization_failed"
	KindSamplingTimeout        = "sampling_timeout"
)

// Error is the single error carrier used throughout the dispatcher,
// handlers, and transports. It implements the `error` interface and
// serializes as a JSON-RPC error object (Kind and ID are not part of the
// wire shape).
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`

	Kind string `json:"-"`
	ID   any    `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// WithID returns a copy of the error with its correlating request id set.
func (e *Error) WithID(id any) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.ID = id
	return &cp
}

// WithData returns a copy of the error with its data payload set.
func (e *Error) WithData(data any) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Data = data
	return &cp
}

// NewError builds an *Error for one of the predefined kinds.
func NewError(kind, message string) *Error {
	code, ok := kindCodes[kind]
	if !ok {
		code = ErrorCodeServerError
	}
	return &Error{Code: code, Message: message, Kind: kind}
}

// Errorf builds an *Error for a kind with a formatted message.
func Errorf(kind, format string, args ...any) *Error {
	return NewError(kind, fmt.Sprintf(format, args...))
}

var kindCodes = map[string]int{
	KindParse:                  ErrorCodeParseError,
	KindInvalidRequest:         ErrorCodeInvalidRequest,
	KindMethodNotFound:         ErrorCodeMethodNotFound,
	KindInvalidParams:          ErrorCodeInvalidParams,
	KindInternal:               ErrorCodeInternalError,
	KindServer:                 ErrorCodeServerError,
	KindNotFound:               ErrorCodeNotFound,
	KindNotInitialized:         ErrorCodeNotInitialized,
	KindAuthenticationRequired: ErrorCodeAuthenticationRequired,
	KindAuthorizationFailed:    ErrorCodeAuthorizationFailed,
	KindSamplingTimeout:        ErrorCodeSamplingTimeout,
}

// AsError reports whether err is (or wraps) an *Error, returning it if so.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsNotFound reports whether err is a NotFound *Error.
func IsNotFound(err error) bool {
	e, ok := AsError(err)
	return ok && e.Kind == KindNotFound
}
