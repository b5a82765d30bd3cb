package transport

import (
	"net"
	"time"
)

// streamConn presents a connected stream Transport as a net.Conn so
// crypto/tls can run over it. Deadlines are not supported and are ignored.
type streamConn struct {
	Transport
	remote string
}

func (c streamConn) LocalAddr() net.Addr  { return streamAddr("local") }
func (c streamConn) RemoteAddr() net.Addr { return streamAddr(c.remote) }

func (c streamConn) SetDeadline(time.Time) error      { return nil }
func (c streamConn) SetReadDeadline(time.Time) error  { return nil }
func (c streamConn) SetWriteDeadline(time.Time) error { return nil }

type streamAddr string

func (a streamAddr) Network() string { return "stream" }
func (a streamAddr) String() string  { return string(a) }
