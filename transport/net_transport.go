package transport

import (
	stderrors "errors"
	"io"
	"net"
	"sync"
	"syscall"

	"github.com/nczempin/httpconn/errors"
)

// NetTransport implements Transport on the portable net package. It is the
// fallback where io_uring is unavailable.
type NetTransport struct {
	mu   sync.Mutex
	conn net.Conn
}

// NewNetTransport creates a new NetTransport instance
func NewNetTransport() *NetTransport {
	return &NetTransport{}
}

// Connect establishes a TCP connection to the specified host and port
func (t *NetTransport) Connect(host string, port int) error {
	addr := dialAddress(host, port)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		var dnsErr *net.DNSError
		if stderrors.As(err, &dnsErr) {
			return errors.NewTransportError(errors.TransportErrorDnsFailure, "failed to resolve "+addr, err)
		}
		return errors.NewTransportError(errors.TransportErrorSocketConnectFailure, "failed to connect to "+addr, err)
	}

	// Disable Nagle's algorithm, requests go out as one write
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			conn.Close()
			return errors.NewTransportError(errors.TransportErrorSocketCreateFailure, "failed to set TCP_NODELAY", err)
		}
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

func (t *NetTransport) current() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

// Write sends data over the TCP connection
func (t *NetTransport) Write(buf []byte) (int, error) {
	conn := t.current()
	if conn == nil {
		return 0, errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "not connected", nil)
	}

	n, err := conn.Write(buf)
	if err != nil {
		if stderrors.Is(err, syscall.EPIPE) || stderrors.Is(err, syscall.ECONNRESET) || stderrors.Is(err, net.ErrClosed) {
			return n, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed during write", err)
		}
		return n, errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "write failed", err)
	}

	return n, nil
}

// Read receives data from the TCP connection
func (t *NetTransport) Read(buf []byte) (int, error) {
	conn := t.current()
	if conn == nil {
		return 0, errors.NewTransportError(errors.TransportErrorSocketReadFailure, "not connected", nil)
	}

	n, err := conn.Read(buf)
	if err != nil {
		if stderrors.Is(err, io.EOF) || stderrors.Is(err, net.ErrClosed) || stderrors.Is(err, syscall.ECONNRESET) {
			return n, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed by peer", err)
		}
		return n, errors.NewTransportError(errors.TransportErrorSocketReadFailure, "read failed", err)
	}

	return n, nil
}

// RemoteAddr returns the peer address once connected.
func (t *NetTransport) RemoteAddr() string {
	conn := t.current()
	if conn == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}

// Close closes the TCP connection. It is idempotent.
func (t *NetTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return errors.NewTransportError(errors.TransportErrorConnectionClosed, "failed to close socket", err)
	}
	return nil
}
