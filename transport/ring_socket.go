package transport

import (
	"sync"
	"syscall"

	"github.com/iceber/iouring-go"
	"github.com/nczempin/httpconn/errors"
)

// ringSocket is a connected socket whose sends and receives are submitted
// through an iouring-go ring. TcpTransport and UnixTransport share it.
type ringSocket struct {
	mu     sync.Mutex
	iour   *iouring.IOURing
	fd     int
	closed bool
}

func newRingSocket() (*ringSocket, error) {
	// Create io_uring instance with queue depth of 32
	iour, err := iouring.New(32)
	if err != nil {
		return nil, errors.NewTransportError(
			errors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}

	return &ringSocket{iour: iour, fd: -1}, nil
}

// connectFd submits a connect for fd and adopts it on success. fd is closed
// on failure.
func (s *ringSocket) connectFd(fd int, sa syscall.Sockaddr, target string) error {
	prep, err := iouring.Connect(fd, sa)
	if err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"unsupported address for "+target,
			err,
		)
	}

	ch := make(chan iouring.Result, 1)
	if _, err := s.iour.SubmitRequest(prep, ch); err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to submit connect request",
			err,
		)
	}

	// Connect completions carry only an error, never a count.
	if err := (<-ch).Err(); err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketConnectFailure,
			"failed to connect to "+target,
			err,
		)
	}

	s.mu.Lock()
	s.fd = fd
	s.mu.Unlock()
	return nil
}

func (s *ringSocket) connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fd >= 0
}

// usable returns the fd and ring, or the error an operation on them should
// report.
func (s *ringSocket) usable(notConnected errors.TransportError) (int, *iouring.IOURing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return -1, nil, errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed", nil)
	}
	if s.fd < 0 {
		return -1, nil, errors.NewTransportError(notConnected, "not connected", nil)
	}
	return s.fd, s.iour, nil
}

func (s *ringSocket) write(buf []byte) (int, error) {
	fd, iour, err := s.usable(errors.TransportErrorSocketWriteFailure)
	if err != nil {
		return 0, err
	}

	totalWritten := 0
	for totalWritten < len(buf) {
		ch := make(chan iouring.Result, 1)
		if _, err := iour.SubmitRequest(iouring.Send(fd, buf[totalWritten:], 0), ch); err != nil {
			return totalWritten, errors.NewTransportError(
				errors.TransportErrorIoUringSubmit,
				"failed to submit write request",
				err,
			)
		}

		n, err := (<-ch).ReturnInt()
		if err != nil {
			return totalWritten, errors.NewTransportError(
				errors.TransportErrorSocketWriteFailure,
				"write failed",
				err,
			)
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

func (s *ringSocket) read(buf []byte) (int, error) {
	fd, iour, err := s.usable(errors.TransportErrorSocketReadFailure)
	if err != nil {
		return 0, err
	}

	ch := make(chan iouring.Result, 1)
	if _, err := iour.SubmitRequest(iouring.Recv(fd, buf, 0), ch); err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorIoUringSubmit,
			"failed to submit read request",
			err,
		)
	}

	n, err := (<-ch).ReturnInt()
	if err != nil {
		return 0, errors.NewTransportError(
			errors.TransportErrorSocketReadFailure,
			"read failed",
			err,
		)
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

// close shuts the socket down, which completes any pending receive, then
// releases the fd and the ring.
func (s *ringSocket) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	fd := s.fd
	s.fd = -1
	iour := s.iour
	s.iour = nil
	s.mu.Unlock()

	var closeErr error
	if fd >= 0 {
		syscall.Shutdown(fd, syscall.SHUT_RDWR)
		if err := syscall.Close(fd); err != nil {
			closeErr = errors.NewTransportError(
				errors.TransportErrorConnectionClosed,
				"failed to close socket",
				err,
			)
		}
	}
	if iour != nil {
		iour.Close()
	}
	return closeErr
}
