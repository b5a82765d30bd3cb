package client

import (
	"github.com/nczempin/httpconn/errors"
	"github.com/nczempin/httpconn/transport"
)

// fakeTransport is a scripted EventTransport. Tests push events and packets
// into it and inspect what the connection sent.
type fakeTransport struct {
	nextID uint64

	connects   []transport.SystemAddress
	connectErr error
	sent       [][]byte
	sendErr    error
	closed     []transport.SystemAddress
	secureErr  error
	secureUsed bool

	completed []transport.SystemAddress
	failed    []transport.SystemAddress
	lost      []transport.SystemAddress
	packets   []*transport.Packet
}

func (f *fakeTransport) Connect(host string, port int, secure bool) (transport.SystemAddress, error) {
	if f.connectErr != nil {
		return transport.SystemAddress{}, f.connectErr
	}
	f.nextID++
	addr := transport.SystemAddress{ID: f.nextID, Host: host, Port: port}
	f.connects = append(f.connects, addr)
	return addr, nil
}

func (f *fakeTransport) Send(data []byte, addr transport.SystemAddress) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) CloseConnection(addr transport.SystemAddress) {
	f.closed = append(f.closed, addr)
}

func popAddr(list *[]transport.SystemAddress) (transport.SystemAddress, bool) {
	if len(*list) == 0 {
		return transport.SystemAddress{}, false
	}
	a := (*list)[0]
	*list = (*list)[1:]
	return a, true
}

func (f *fakeTransport) HasCompletedConnectionAttempt() (transport.SystemAddress, bool) {
	return popAddr(&f.completed)
}

func (f *fakeTransport) HasFailedConnectionAttempt() (transport.SystemAddress, bool) {
	return popAddr(&f.failed)
}

func (f *fakeTransport) HasLostConnection() (transport.SystemAddress, bool) {
	return popAddr(&f.lost)
}

func (f *fakeTransport) StartSecureSession(addr transport.SystemAddress) error {
	f.secureUsed = true
	return f.secureErr
}

func (f *fakeTransport) Receive() *transport.Packet {
	if len(f.packets) == 0 {
		return nil
	}
	p := f.packets[0]
	f.packets = f.packets[1:]
	return p
}

// lastConnect returns the address handed out by the most recent Connect.
func (f *fakeTransport) lastConnect() transport.SystemAddress {
	if len(f.connects) == 0 {
		return transport.SystemAddress{}
	}
	return f.connects[len(f.connects)-1]
}

func (f *fakeTransport) complete() { f.completed = append(f.completed, f.lastConnect()) }
func (f *fakeTransport) fail()     { f.failed = append(f.failed, f.lastConnect()) }
func (f *fakeTransport) lose()     { f.lost = append(f.lost, f.lastConnect()) }

func (f *fakeTransport) packet(data string) *transport.Packet {
	return &transport.Packet{Address: f.lastConnect(), Data: []byte(data), Length: len(data)}
}

var _ transport.EventTransport = (*fakeTransport)(nil)

var errRefused = errors.NewTransportError(errors.TransportErrorSocketConnectFailure, "refused", nil)
