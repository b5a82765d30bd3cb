package transport

import (
	"syscall"

	"github.com/nczempin/httpconn/errors"
)

// UnixTransport implements Transport using Unix domain sockets with io_uring
type UnixTransport struct {
	sock *ringSocket
	path string
}

// NewUnixTransport creates a new Unix domain socket transport with io_uring
func NewUnixTransport() (*UnixTransport, error) {
	sock, err := newRingSocket()
	if err != nil {
		return nil, err
	}
	return &UnixTransport{sock: sock}, nil
}

// Connect establishes a connection to a Unix domain socket
// For Unix sockets, the host parameter is the socket path, and port is ignored
func (t *UnixTransport) Connect(path string, port int) error {
	if t.sock.connected() {
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"already connected",
			nil,
		)
	}

	fd, err := syscall.Socket(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to create socket",
			err,
		)
	}

	if err := t.sock.connectFd(fd, &syscall.SockaddrUnix{Name: path}, path); err != nil {
		return err
	}
	t.path = path
	return nil
}

// Write sends data over the Unix socket using io_uring
func (t *UnixTransport) Write(buf []byte) (int, error) {
	return t.sock.write(buf)
}

// Read receives data from the Unix socket using io_uring
func (t *UnixTransport) Read(buf []byte) (int, error) {
	return t.sock.read(buf)
}

// RemoteAddr returns the socket path.
func (t *UnixTransport) RemoteAddr() string {
	return t.path
}

// Close closes the socket and the io_uring instance
func (t *UnixTransport) Close() error {
	return t.sock.close()
}
