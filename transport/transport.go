package transport

import (
	"fmt"
	"net"
	"strconv"

	"github.com/nczempin/httpconn/errors"
)

// Transport defines the interface for blocking stream transports
type Transport interface {
	// Connect establishes a connection to the specified host and port.
	// For Unix sockets, the host parameter is the socket path and port is ignored.
	Connect(host string, port int) error

	// Write sends data over the connection
	// Returns the number of bytes written
	Write(buf []byte) (int, error)

	// Read receives data from the connection
	// Returns the number of bytes read
	Read(buf []byte) (int, error)

	// Close closes the connection and releases everything the transport holds
	Close() error
}

// RemoteAddresser is implemented by transports that know the resolved peer
// address once connected.
type RemoteAddresser interface {
	RemoteAddr() string
}

// Stream transport kinds accepted by NewStream.
const (
	KindNet     = "net"
	KindIoUring = "iouring"
	KindUring   = "uring"
	KindUnix    = "unix"
)

// NewStream builds a fresh stream transport of the given kind.
func NewStream(kind string) (Transport, error) {
	switch kind {
	case KindNet, "":
		return NewNetTransport(), nil
	case KindIoUring:
		return NewTcpTransport()
	case KindUring:
		return NewTcpTransportV2()
	case KindUnix:
		return NewUnixTransport()
	default:
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("unknown transport kind %q", kind))
	}
}

// SystemAddress identifies one connection on an EventTransport. Two
// addresses are the same connection when their IDs match; the zero value is
// unassigned.
type SystemAddress struct {
	ID       uint64
	Host     string
	Port     int
	Resolved string
}

// IsAssigned reports whether the address refers to a connection.
func (a SystemAddress) IsAssigned() bool {
	return a.ID != 0
}

// Equal reports whether a and b identify the same connection.
func (a SystemAddress) Equal(b SystemAddress) bool {
	return a.ID != 0 && a.ID == b.ID
}

func (a SystemAddress) String() string {
	if a.Resolved != "" {
		return a.Resolved
	}
	if a.Port == 0 {
		return a.Host
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Packet is one inbound chunk. Length is the byte count the transport
// declares for the chunk.
type Packet struct {
	Address SystemAddress
	Data    []byte
	Length  int
}

// EventTransport is a non-blocking connection manager. Completion of
// connects, peer disconnects and inbound data are queued and observed by
// polling.
type EventTransport interface {
	// Connect starts an asynchronous connect and returns the pending address.
	Connect(host string, port int, secure bool) (SystemAddress, error)

	// Send queues data for the connection.
	Send(data []byte, addr SystemAddress) error

	// CloseConnection closes the connection. Closing an unknown or already
	// closed address is a no-op. A local close never queues a lost event.
	CloseConnection(addr SystemAddress)

	HasCompletedConnectionAttempt() (SystemAddress, bool)
	HasFailedConnectionAttempt() (SystemAddress, bool)

	// HasLostConnection holds a connection's lost event back while packets
	// from that connection are still waiting in Receive.
	HasLostConnection() (SystemAddress, bool)

	// StartSecureSession makes sure the connection is running TLS.
	StartSecureSession(addr SystemAddress) error

	// Receive pops the oldest inbound packet, or nil.
	Receive() *Packet
}

// dialAddress renders host and port as a dial address.
func dialAddress(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
