package errors

import (
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestHttpError_Error_Transport(t *testing.T) {
	err := NewTransportError(TransportErrorDnsFailure, "failed to resolve example.invalid:80", io.EOF)

	msg := err.Error()
	if !strings.Contains(msg, "dns failure") {
		t.Errorf("Expected message to name the transport code, got %q", msg)
	}
	if !strings.Contains(msg, "example.invalid:80") {
		t.Errorf("Expected message to include context, got %q", msg)
	}
	if !strings.Contains(msg, "caused by: EOF") {
		t.Errorf("Expected message to include cause, got %q", msg)
	}
}

func TestHttpError_Error_Nil(t *testing.T) {
	var err *HttpError
	if err.Error() != "no error" {
		t.Errorf("Expected %q, got %q", "no error", err.Error())
	}
}

func TestHttpError_Unwrap(t *testing.T) {
	err := NewTransportError(TransportErrorSocketReadFailure, "read failed", io.ErrUnexpectedEOF)
	if err.Unwrap() != io.ErrUnexpectedEOF {
		t.Errorf("Expected underlying error to be returned, got %v", err.Unwrap())
	}
}

func TestIsTransport(t *testing.T) {
	err := fmt.Errorf("dial: %w", NewTransportError(TransportErrorSocketConnectFailure, "refused", nil))

	if !IsTransport(err, TransportErrorSocketConnectFailure) {
		t.Error("Expected wrapped transport error to match")
	}
	if IsTransport(err, TransportErrorDnsFailure) {
		t.Error("Expected different transport code not to match")
	}
	if IsTransport(io.EOF, TransportErrorSocketConnectFailure) {
		t.Error("Expected foreign error not to match")
	}
}

func TestIsProtocol(t *testing.T) {
	err := NewProtocolError(ProtocolErrorFramingMismatch, "declared 10 bytes, got 4")

	if !IsProtocol(err, ProtocolErrorFramingMismatch) {
		t.Error("Expected protocol error to match")
	}
	if IsProtocol(err, ProtocolErrorConnectionFaulted) {
		t.Error("Expected different protocol code not to match")
	}
	if IsTransport(err, TransportErrorNone) {
		t.Error("Expected protocol error not to match a transport code")
	}
}

func TestNewInvalidArgumentError(t *testing.T) {
	err := NewInvalidArgumentError("host must not be empty")
	if err.Type != ErrorInvalidArgument {
		t.Errorf("Expected ErrorInvalidArgument, got %v", err.Type)
	}
	if !strings.HasPrefix(err.Error(), "Invalid argument: ") {
		t.Errorf("Unexpected message %q", err.Error())
	}
}
