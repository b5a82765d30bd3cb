package transport

import (
	"crypto/tls"
	"io"
	"sync"

	"github.com/nczempin/httpconn/errors"
	"github.com/nczempin/httpconn/logger"
	"github.com/nczempin/httpconn/signal"
)

const (
	defaultReadBufferSize = 4096
	sendQueueDepth        = 16
)

// StreamFactory builds a fresh, unconnected stream transport.
type StreamFactory func() (Transport, error)

// AsyncConfig configures an AsyncTransport.
type AsyncConfig struct {
	// NewStream builds the stream transport behind each connection.
	NewStream StreamFactory

	// TLS is the base configuration for secure connects. ServerName
	// defaults to the connect host.
	TLS *tls.Config

	// Wake, when set, is signalled every time an event is queued.
	Wake *signal.Event

	Logger         *logger.Logger
	ReadBufferSize int
}

// AsyncTransport is an EventTransport that runs each connection on its own
// goroutine over a blocking stream Transport. Inbound data is read once the
// first write has gone out, which keeps half-duplex transports such as
// TcpTransportV2 from blocking a request behind a pending read.
type AsyncTransport struct {
	cfg    AsyncConfig
	log    *logger.Logger
	events eventQueues

	mu     sync.Mutex
	nextID uint64
	conns  map[uint64]*asyncConn
}

type asyncConn struct {
	secure bool
	out    chan []byte
	done   chan struct{}

	mu     sync.Mutex
	addr   SystemAddress
	rw     io.ReadWriteCloser
	closed bool
}

// NewAsyncTransport creates an AsyncTransport.
func NewAsyncTransport(cfg AsyncConfig) *AsyncTransport {
	if cfg.NewStream == nil {
		cfg.NewStream = func() (Transport, error) { return NewNetTransport(), nil }
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaultReadBufferSize
	}
	log := cfg.Logger
	if log == nil {
		log = logger.WithComponent("transport")
	}

	return &AsyncTransport{
		cfg:    cfg,
		log:    log,
		events: eventQueues{wake: cfg.Wake},
		conns:  make(map[uint64]*asyncConn),
	}
}

// Connect starts dialing host:port in the background.
func (t *AsyncTransport) Connect(host string, port int, secure bool) (SystemAddress, error) {
	if host == "" {
		return SystemAddress{}, errors.NewInvalidArgumentError("host must not be empty")
	}

	t.mu.Lock()
	t.nextID++
	addr := SystemAddress{ID: t.nextID, Host: host, Port: port}
	c := &asyncConn{
		secure: secure,
		out:    make(chan []byte, sendQueueDepth),
		done:   make(chan struct{}),
		addr:   addr,
	}
	t.conns[addr.ID] = c
	t.mu.Unlock()

	go t.serve(c)
	return addr, nil
}

func (t *AsyncTransport) lookup(addr SystemAddress) *asyncConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[addr.ID]
}

func (t *AsyncTransport) forget(addr SystemAddress) *asyncConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.conns[addr.ID]
	delete(t.conns, addr.ID)
	return c
}

// Send queues a copy of data for the connection's writer.
func (t *AsyncTransport) Send(data []byte, addr SystemAddress) error {
	c := t.lookup(addr)
	if c == nil {
		return errors.NewTransportError(errors.TransportErrorUnknownAddress, "no connection for "+addr.String(), nil)
	}

	buf := append([]byte(nil), data...)
	select {
	case <-c.done:
		return errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection closed", nil)
	case c.out <- buf:
		return nil
	default:
		return errors.NewTransportError(errors.TransportErrorSocketWriteFailure, "send queue full", nil)
	}
}

// CloseConnection closes the connection without queueing a lost event.
func (t *AsyncTransport) CloseConnection(addr SystemAddress) {
	c := t.forget(addr)
	if c == nil {
		return
	}
	if c.shutdown() {
		t.log.Debug("connection closed locally", logger.Fields(logger.FieldAddress, addr.String()))
	}
}

func (t *AsyncTransport) HasCompletedConnectionAttempt() (SystemAddress, bool) {
	return t.events.completedAttempt()
}

func (t *AsyncTransport) HasFailedConnectionAttempt() (SystemAddress, bool) {
	return t.events.failedAttempt()
}

func (t *AsyncTransport) HasLostConnection() (SystemAddress, bool) {
	return t.events.lostConnection()
}

// StartSecureSession succeeds for connections dialed with secure set. The
// handshake itself runs during connect, before the completed event.
func (t *AsyncTransport) StartSecureSession(addr SystemAddress) error {
	c := t.lookup(addr)
	if c == nil {
		return errors.NewTransportError(errors.TransportErrorUnknownAddress, "no connection for "+addr.String(), nil)
	}
	if !c.secure {
		return errors.NewTransportError(errors.TransportErrorUnsupported, "connection was not opened secure", nil)
	}
	return nil
}

func (t *AsyncTransport) Receive() *Packet {
	return t.events.popPacket()
}

// Shutdown closes every open connection.
func (t *AsyncTransport) Shutdown() {
	t.mu.Lock()
	conns := t.conns
	t.conns = make(map[uint64]*asyncConn)
	t.mu.Unlock()

	for _, c := range conns {
		c.shutdown()
	}
}

func (t *AsyncTransport) serve(c *asyncConn) {
	addr := c.address()

	stream, err := t.cfg.NewStream()
	if err != nil {
		t.fail(c, err)
		return
	}
	if err := stream.Connect(addr.Host, addr.Port); err != nil {
		stream.Close()
		t.fail(c, err)
		return
	}

	resolved := dialAddress(addr.Host, addr.Port)
	if ra, ok := stream.(RemoteAddresser); ok && ra.RemoteAddr() != "" {
		resolved = ra.RemoteAddr()
	}

	var rw io.ReadWriteCloser = stream
	if c.secure {
		tlsConn := tls.Client(streamConn{Transport: stream, remote: resolved}, t.tlsConfig(addr.Host))
		if err := tlsConn.Handshake(); err != nil {
			tlsConn.Close()
			t.fail(c, errors.NewTransportError(errors.TransportErrorTLS, "handshake with "+resolved+" failed", err))
			return
		}
		rw = tlsConn
	}

	addr, ok := c.attach(rw, resolved)
	if !ok {
		rw.Close()
		return
	}
	t.log.Debug("connection established", logger.Fields(logger.FieldAddress, resolved, "secure", c.secure))
	t.events.push(&t.events.completed, addr)

	reading := false
	for {
		select {
		case <-c.done:
			return
		case data := <-c.out:
			if _, err := rw.Write(data); err != nil {
				t.lose(c, err)
				return
			}
			if !reading {
				reading = true
				go t.read(c, rw, addr)
			}
		}
	}
}

func (t *AsyncTransport) read(c *asyncConn, rw io.Reader, addr SystemAddress) {
	buf := make([]byte, t.cfg.ReadBufferSize)
	for {
		n, err := rw.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			t.events.pushPacket(&Packet{Address: addr, Data: data, Length: n})
		}
		if err != nil {
			t.lose(c, err)
			return
		}
	}
}

func (t *AsyncTransport) tlsConfig(host string) *tls.Config {
	var cfg *tls.Config
	if t.cfg.TLS != nil {
		cfg = t.cfg.TLS.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

// fail reports a connect that never completed, unless it was closed locally
// in the meantime.
func (t *AsyncTransport) fail(c *asyncConn, err error) {
	addr := c.address()
	if !c.shutdown() {
		return
	}
	t.forget(addr)
	t.log.Debug("connect failed", logger.Fields(logger.FieldAddress, addr.String(), logger.FieldError, err.Error()))
	t.events.push(&t.events.failed, addr)
}

// lose reports an established connection that went away without a local
// close.
func (t *AsyncTransport) lose(c *asyncConn, err error) {
	addr := c.address()
	if !c.shutdown() {
		return
	}
	t.forget(addr)
	t.log.Debug("connection lost", logger.Fields(logger.FieldAddress, addr.String(), logger.FieldError, err.Error()))
	t.events.push(&t.events.lost, addr)
}

func (c *asyncConn) address() SystemAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// attach records the live stream. It fails if the connection was closed
// while dialing.
func (c *asyncConn) attach(rw io.ReadWriteCloser, resolved string) (SystemAddress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.addr, false
	}
	c.rw = rw
	c.addr.Resolved = resolved
	return c.addr, true
}

// shutdown closes the connection once. It reports whether this call did it.
func (c *asyncConn) shutdown() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	rw := c.rw
	c.mu.Unlock()

	close(c.done)
	if rw != nil {
		rw.Close()
	}
	return true
}
