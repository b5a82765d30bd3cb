package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType int

const (
	ErrorNone ErrorType = iota
	ErrorTransport
	ErrorProtocol
	ErrorInvalidArgument
)

// TransportError represents transport-layer specific errors
type TransportError int

const (
	TransportErrorNone TransportError = iota
	TransportErrorSocketCreateFailure
	TransportErrorSocketConnectFailure
	TransportErrorSocketReadFailure
	TransportErrorSocketWriteFailure
	TransportErrorConnectionClosed
	TransportErrorDnsFailure
	TransportErrorTimeout
	TransportErrorIoUringInit
	TransportErrorIoUringSubmit
	TransportErrorUnknownAddress
	TransportErrorTLS
	TransportErrorUnsupported
)

func (e TransportError) String() string {
	switch e {
	case TransportErrorNone:
		return "none"
	case TransportErrorSocketCreateFailure:
		return "socket create failure"
	case TransportErrorSocketConnectFailure:
		return "socket connect failure"
	case TransportErrorSocketReadFailure:
		return "socket read failure"
	case TransportErrorSocketWriteFailure:
		return "socket write failure"
	case TransportErrorConnectionClosed:
		return "connection closed"
	case TransportErrorDnsFailure:
		return "dns failure"
	case TransportErrorTimeout:
		return "timeout"
	case TransportErrorIoUringInit:
		return "io_uring init failure"
	case TransportErrorIoUringSubmit:
		return "io_uring submit failure"
	case TransportErrorUnknownAddress:
		return "unknown address"
	case TransportErrorTLS:
		return "tls failure"
	case TransportErrorUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("transport error %d", int(e))
	}
}

// ProtocolError represents protocol-layer specific errors
type ProtocolError int

const (
	ProtocolErrorNone ProtocolError = iota
	ProtocolErrorFramingMismatch
	ProtocolErrorConnectionFaulted
)

func (e ProtocolError) String() string {
	switch e {
	case ProtocolErrorNone:
		return "none"
	case ProtocolErrorFramingMismatch:
		return "framing mismatch"
	case ProtocolErrorConnectionFaulted:
		return "connection faulted"
	default:
		return fmt.Sprintf("protocol error %d", int(e))
	}
}

// HttpError is the main error type for the HTTP client
type HttpError struct {
	Type          ErrorType
	TransportErr  TransportError
	ProtocolErr   ProtocolError
	Message       string
	UnderlyingErr error
}

// Error implements the error interface
func (e *HttpError) Error() string {
	if e == nil {
		return "no error"
	}

	var typeStr string
	switch e.Type {
	case ErrorTransport:
		typeStr = fmt.Sprintf("Transport error (%s)", e.TransportErr)
	case ErrorProtocol:
		typeStr = fmt.Sprintf("Protocol error (%s)", e.ProtocolErr)
	case ErrorInvalidArgument:
		typeStr = "Invalid argument"
	default:
		typeStr = "Unknown error"
	}

	if e.Message != "" {
		typeStr = fmt.Sprintf("%s: %s", typeStr, e.Message)
	}

	if e.UnderlyingErr != nil {
		return fmt.Sprintf("%s (caused by: %v)", typeStr, e.UnderlyingErr)
	}

	return typeStr
}

// Unwrap returns the underlying error for error chain support
func (e *HttpError) Unwrap() error {
	return e.UnderlyingErr
}

// NewTransportError creates a new transport error
func NewTransportError(err TransportError, message string, underlying error) *HttpError {
	return &HttpError{
		Type:          ErrorTransport,
		TransportErr:  err,
		Message:       message,
		UnderlyingErr: underlying,
	}
}

// NewProtocolError creates a new protocol error
func NewProtocolError(err ProtocolError, message string) *HttpError {
	return &HttpError{
		Type:        ErrorProtocol,
		ProtocolErr: err,
		Message:     message,
	}
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string) *HttpError {
	return &HttpError{
		Type:    ErrorInvalidArgument,
		Message: message,
	}
}

// As is errors.As from the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is is errors.Is from the standard library.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// IsTransport reports whether any error in err's chain is a transport error
// with the given code.
func IsTransport(err error, code TransportError) bool {
	return inChain(err, func(e *HttpError) bool {
		return e.Type == ErrorTransport && e.TransportErr == code
	})
}

// IsProtocol reports whether any error in err's chain is a protocol error
// with the given code.
func IsProtocol(err error, code ProtocolError) bool {
	return inChain(err, func(e *HttpError) bool {
		return e.Type == ErrorProtocol && e.ProtocolErr == code
	})
}

func inChain(err error, match func(*HttpError) bool) bool {
	for err != nil {
		var httpErr *HttpError
		if !stderrors.As(err, &httpErr) {
			return false
		}
		if match(httpErr) {
			return true
		}
		err = httpErr.UnderlyingErr
	}
	return false
}
