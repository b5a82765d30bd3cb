package transport

import (
	"sync"

	"github.com/panjf2000/gnet/v2"

	"github.com/nczempin/httpconn/errors"
	"github.com/nczempin/httpconn/logger"
	"github.com/nczempin/httpconn/signal"
)

// GnetTransport is an EventTransport driven by a gnet client event loop.
// gnet owns the sockets; its callbacks feed the event queues.
type GnetTransport struct {
	gnet.BuiltinEventEngine

	client *gnet.Client
	log    *logger.Logger
	events eventQueues

	mu     sync.Mutex
	nextID uint64
	conns  map[uint64]*gnetConn
}

type gnetConn struct {
	addr  SystemAddress
	conn  gnet.Conn
	local bool
}

// NewGnetTransport starts a gnet client engine. Call Stop to release it.
func NewGnetTransport(wake *signal.Event, log *logger.Logger) (*GnetTransport, error) {
	if log == nil {
		log = logger.WithComponent("transport")
	}
	t := &GnetTransport{
		log:    log,
		events: eventQueues{wake: wake},
		conns:  make(map[uint64]*gnetConn),
	}

	client, err := gnet.NewClient(t, gnet.WithTCPNoDelay(gnet.TCPNoDelay))
	if err != nil {
		return nil, errors.NewTransportError(errors.TransportErrorSocketCreateFailure, "failed to create gnet client", err)
	}
	if err := client.Start(); err != nil {
		return nil, errors.NewTransportError(errors.TransportErrorSocketCreateFailure, "failed to start gnet client", err)
	}
	t.client = client
	return t, nil
}

// Stop shuts the event loop down, closing every connection.
func (t *GnetTransport) Stop() error {
	return t.client.Stop()
}

// Connect dials in the background. gnet has no TLS, so secure connects are
// rejected.
func (t *GnetTransport) Connect(host string, port int, secure bool) (SystemAddress, error) {
	if host == "" {
		return SystemAddress{}, errors.NewInvalidArgumentError("host must not be empty")
	}
	if secure {
		return SystemAddress{}, errors.NewTransportError(errors.TransportErrorUnsupported, "gnet transport cannot open secure connections", nil)
	}

	t.mu.Lock()
	t.nextID++
	gc := &gnetConn{addr: SystemAddress{ID: t.nextID, Host: host, Port: port}}
	t.conns[gc.addr.ID] = gc
	addr := gc.addr
	t.mu.Unlock()

	go func() {
		if _, err := t.client.DialContext("tcp", dialAddress(host, port), gc); err != nil {
			t.mu.Lock()
			_, pending := t.conns[addr.ID]
			delete(t.conns, addr.ID)
			t.mu.Unlock()
			if pending {
				t.log.Debug("connect failed", logger.Fields(logger.FieldAddress, addr.String(), logger.FieldError, err.Error()))
				t.events.push(&t.events.failed, addr)
			}
		}
	}()
	return addr, nil
}

// OnOpen runs on the event loop once a dial completed.
func (t *GnetTransport) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	gc, ok := c.Context().(*gnetConn)
	if !ok {
		return nil, gnet.Close
	}

	t.mu.Lock()
	if gc.local {
		t.mu.Unlock()
		return nil, gnet.Close
	}
	gc.conn = c
	if ra := c.RemoteAddr(); ra != nil {
		gc.addr.Resolved = ra.String()
	}
	addr := gc.addr
	t.mu.Unlock()

	t.log.Debug("connection established", logger.Fields(logger.FieldAddress, addr.String()))
	t.events.push(&t.events.completed, addr)
	return nil, gnet.None
}

// OnTraffic drains everything buffered for c into one packet.
func (t *GnetTransport) OnTraffic(c gnet.Conn) gnet.Action {
	gc, ok := c.Context().(*gnetConn)
	if !ok {
		return gnet.Close
	}

	buf, err := c.Next(-1)
	if err != nil || len(buf) == 0 {
		return gnet.None
	}
	// buf is only valid inside the callback
	data := append([]byte(nil), buf...)

	t.mu.Lock()
	addr := gc.addr
	t.mu.Unlock()

	t.events.pushPacket(&Packet{Address: addr, Data: data, Length: len(data)})
	return gnet.None
}

// OnClose queues a lost event unless the close was requested locally.
func (t *GnetTransport) OnClose(c gnet.Conn, err error) gnet.Action {
	gc, ok := c.Context().(*gnetConn)
	if !ok {
		return gnet.None
	}

	t.mu.Lock()
	local := gc.local
	gc.local = true
	gc.conn = nil
	delete(t.conns, gc.addr.ID)
	addr := gc.addr
	t.mu.Unlock()

	if !local {
		fields := logger.Fields(logger.FieldAddress, addr.String())
		if err != nil {
			fields[logger.FieldError] = err.Error()
		}
		t.log.Debug("connection lost", fields)
		t.events.push(&t.events.lost, addr)
	}
	return gnet.None
}

// Send writes asynchronously on the event loop.
func (t *GnetTransport) Send(data []byte, addr SystemAddress) error {
	t.mu.Lock()
	gc := t.conns[addr.ID]
	var conn gnet.Conn
	if gc != nil {
		conn = gc.conn
	}
	t.mu.Unlock()

	if gc == nil {
		return errors.NewTransportError(errors.TransportErrorUnknownAddress, "no connection for "+addr.String(), nil)
	}
	if conn == nil {
		return errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "not connected", nil)
	}

	buf := append([]byte(nil), data...)
	if err := conn.AsyncWrite(buf, nil); err != nil {
		return errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "async write failed", err)
	}
	return nil
}

func (t *GnetTransport) CloseConnection(addr SystemAddress) {
	t.mu.Lock()
	gc := t.conns[addr.ID]
	delete(t.conns, addr.ID)
	var conn gnet.Conn
	if gc != nil {
		gc.local = true
		conn = gc.conn
	}
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (t *GnetTransport) HasCompletedConnectionAttempt() (SystemAddress, bool) {
	return t.events.completedAttempt()
}

func (t *GnetTransport) HasFailedConnectionAttempt() (SystemAddress, bool) {
	return t.events.failedAttempt()
}

func (t *GnetTransport) HasLostConnection() (SystemAddress, bool) {
	return t.events.lostConnection()
}

func (t *GnetTransport) StartSecureSession(addr SystemAddress) error {
	return errors.NewTransportError(errors.TransportErrorUnsupported, "gnet transport cannot start a secure session", nil)
}

func (t *GnetTransport) Receive() *Packet {
	return t.events.popPacket()
}
