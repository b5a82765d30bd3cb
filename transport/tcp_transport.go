package transport

import (
	"fmt"
	"net"
	"syscall"

	"github.com/nczempin/httpconn/errors"
)

// TcpTransport implements Transport using io_uring for async I/O
type TcpTransport struct {
	sock   *ringSocket
	remote string
}

// NewTcpTransport creates a new TCP transport with io_uring
func NewTcpTransport() (*TcpTransport, error) {
	sock, err := newRingSocket()
	if err != nil {
		return nil, err
	}
	return &TcpTransport{sock: sock}, nil
}

// Connect establishes a TCP connection using io_uring
func (t *TcpTransport) Connect(host string, port int) error {
	if t.sock.connected() {
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

	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return errors.NewTransportError(
			errors.TransportErrorSocketCreateFailure,
			"failed to set non-blocking mode",
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

	if err := t.sock.connectFd(fd, sa, addr); err != nil {
		return err
	}
	t.remote = tcpAddr.String()
	return nil
}

// Write sends data over the connection using io_uring
func (t *TcpTransport) Write(buf []byte) (int, error) {
	return t.sock.write(buf)
}

// Read receives data from the connection using io_uring
func (t *TcpTransport) Read(buf []byte) (int, error) {
	return t.sock.read(buf)
}

// RemoteAddr returns the resolved peer address.
func (t *TcpTransport) RemoteAddr() string {
	return t.remote
}

// Close closes the connection and the io_uring instance
func (t *TcpTransport) Close() error {
	return t.sock.close()
}

// tcpSockaddr converts a resolved address to its socket domain and sockaddr.
func tcpSockaddr(tcpAddr *net.TCPAddr) (int, syscall.Sockaddr) {
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		sa4 := &syscall.SockaddrInet4{Port: tcpAddr.Port}
		copy(sa4.Addr[:], ip4)
		return syscall.AF_INET, sa4
	}
	sa6 := &syscall.SockaddrInet6{Port: tcpAddr.Port}
	copy(sa6.Addr[:], tcpAddr.IP.To16())
	return syscall.AF_INET6, sa6
}
