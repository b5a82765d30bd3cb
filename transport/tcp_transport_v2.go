package transport

import (
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"

	"github.com/godzie44/go-uring/uring"
	"github.com/nczempin/httpconn/errors"
)

// TcpTransportV2 implements Transport using godzie44/go-uring.
//
// The ring is not safe for concurrent submitters, so Read and Write are
// serialized: a Write issued while a Read is pending waits for that Read.
type TcpTransportV2 struct {
	ringMu sync.Mutex
	ring   *uring.Ring

	mu     sync.Mutex
	fd     int
	file   *os.File
	remote string
}

// NewTcpTransportV2 creates a new TCP transport with io_uring (v2 using godzie44/go-uring)
func NewTcpTransportV2() (*TcpTransportV2, error) {
	// Create io_uring instance with queue depth of 32
	ring, err := uring.New(32)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}

	return &TcpTransportV2{
		ring: ring,
		fd:   -1,
	}, nil
}

// Connect establishes a TCP connection
func (t *TcpTransportV2) Connect(host string, port int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fd >= 0 {
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"already connected",
			nil,
		)
	}

	addr := dialAddress(host, port)
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return errors.NewTransportError(
			errors.TransportErrorDnsFailure,
			fmt.Sprintf("failed to resolve %s", addr),
			err,
		)
	}

	domain, sa := tcpSockaddr(tcpAddr)
	fd, err := syscall.Socket(domain, syscall.SOCK_STREAM, 0)
	if err != nil {
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to create socket",
			err,
		)
	}

	// go-uring has no connect op; the connect itself is blocking
	if err := syscall.Connect(fd, sa); err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			fmt.Sprintf("failed to connect to %s", addr),
			err,
		)
	}

	if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1); err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to set TCP_NODELAY",
			err,
		)
	}

	t.fd = fd
	t.file = os.NewFile(uintptr(fd), "socket")
	t.remote = tcpAddr.String()
	return nil
}

func (t *TcpTransportV2) handle() (uintptr, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fd < 0 || t.file == nil {
		return 0, false
	}
	return uintptr(t.fd), true
}

// complete queues op, submits it and waits for its completion result.
func (t *TcpTransportV2) complete(op uring.Operation, what string, failure errors.TransportError) (int, error) {
	t.ringMu.Lock()
	defer t.ringMu.Unlock()

	if t.ring == nil {
		return 0, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed", nil)
	}

	if err := t.ring.QueueSQE(op, 0, 0); err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to queue "+what+" request",
			err,
		)
	}

	if _, err := t.ring.Submit(); err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to submit "+what+" request",
			err,
		)
	}

	cqe, err := t.ring.WaitCQEvents(1)
	if err != nil {
		return 0, errors.NewTransportError(
			failure,
			"failed to wait for "+what+" completion",
			err,
		)
	}

	if err := cqe.Error(); err != nil {
		t.ring.SeenCQE(cqe)
		return 0, errors.NewTransportError(
			failure,
			what+" operation failed",
			err,
		)
	}

	n := int(cqe.Res)
	t.ring.SeenCQE(cqe)
	return n, nil
}

// Write sends data over the connection using io_uring
func (t *TcpTransportV2) Write(buf []byte) (int, error) {
	fd, ok := t.handle()
	if !ok {
		return 0, errors.NewTransportError(
			errors.TransportErrorSocketWriteFailure,
			"not connected",
			nil,
		)
	}

	totalWritten := 0
	for totalWritten < len(buf) {
		// Sockets ignore the offset
		n, err := t.complete(uring.Write(fd, buf[totalWritten:], 0), "write", errors.TransportErrorSocketWriteFailure)
		if err != nil {
			return totalWritten, err
		}
		if n <= 0 {
			return totalWritten, errors.NewTransportError(
				errors.TransportErrorConnectionClosed,
				"connection closed during write",
				nil,
			)
		}
		totalWritten += n
	}

	return totalWritten, nil
}

// Read receives data from the connection using io_uring
func (t *TcpTransportV2) Read(buf []byte) (int, error) {
	fd, ok := t.handle()
	if !ok {
		return 0, errors.NewTransportError(
			errors.TransportErrorSocketReadFailure,
			"not connected",
			nil,
		)
	}

	n, err := t.complete(uring.Read(fd, buf, 0), "read", errors.TransportErrorSocketReadFailure)
	if err != nil {
		return 0, err
	}
	if n == 0 && len(buf) > 0 {
		return 0, errors.NewTransportError(
			errors.TransportErrorConnectionClosed,
			"connection closed by peer",
			nil,
		)
	}

	return n, nil
}

// RemoteAddr returns the resolved peer address.
func (t *TcpTransportV2) RemoteAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remote
}

// Close shuts the socket down, which completes any pending read, then
// releases the file and the ring.
func (t *TcpTransportV2) Close() error {
	t.mu.Lock()
	fd, file := t.fd, t.file
	t.fd, t.file = -1, nil
	t.mu.Unlock()

	if fd >= 0 {
		syscall.Shutdown(fd, syscall.SHUT_RDWR)
	}
	if file != nil {
		file.Close()
	}

	t.ringMu.Lock()
	if t.ring != nil {
		t.ring.Close()
		t.ring = nil
	}
	t.ringMu.Unlock()
	return nil
}
