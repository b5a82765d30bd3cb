// Package client drives HTTP/1.0 POST requests to a single destination over
// an event transport, one request at a time.
//
// An HTTPConnection never blocks. The owner calls Tick periodically and feeds
// every inbound packet to ProcessPacket; results are collected by polling
// HasRead/Read, HasBadResponse and HasFailedRequest. All methods must be
// called from one goroutine.
package client

import (
	"fmt"

	"github.com/nczempin/httpconn/errors"
	"github.com/nczempin/httpconn/logger"
	"github.com/nczempin/httpconn/protocol"
	"github.com/nczempin/httpconn/transport"
)

// ConnectionState is the lifecycle step of an HTTPConnection.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateReceiving
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReceiving:
		return "receiving"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option configures an HTTPConnection.
type Option func(*HTTPConnection)

// WithSecure makes every connect request TLS and starts the secure session
// before the request is sent.
func WithSecure(secure bool) Option {
	return func(c *HTTPConnection) { c.secure = secure }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *HTTPConnection) { c.log = l }
}

// HTTPConnection posts queued requests to one host:port and assembles the
// responses.
type HTTPConnection struct {
	// tr is borrowed and must outlive the connection.
	tr     transport.EventTransport
	host   string
	port   int
	secure bool
	log    *logger.Logger

	state    ConnectionState
	server   transport.SystemAddress
	posts    []protocol.OutgoingRequest
	inFlight *protocol.OutgoingRequest
	incoming *protocol.Assembler

	results      [][]byte
	badResponses []protocol.BadResponse
	failed       []protocol.FailedRequest

	fault error
}

// New creates a connection to host:port over tr.
func New(tr transport.EventTransport, host string, port int, opts ...Option) (*HTTPConnection, error) {
	if tr == nil {
		return nil, errors.NewInvalidArgumentError("transport must not be nil")
	}
	if host == "" {
		return nil, errors.NewInvalidArgumentError("host must not be empty")
	}
	if port <= 0 || port > 65535 {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("port %d out of range", port))
	}

	c := &HTTPConnection{
		tr:       tr,
		host:     host,
		port:     port,
		incoming: protocol.NewAssembler(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.WithComponent("connection")
	}
	c.log = c.log.WithFields(logger.Fields("destination", transport.SystemAddress{Host: host, Port: port}.String()))
	return c, nil
}

// Post queues a POST of payload to remotePath and returns the request ID.
func (c *HTTPConnection) Post(remotePath string, payload []byte, contentType string) string {
	req := protocol.NewOutgoingRequest(remotePath, payload, contentType)
	c.posts = append(c.posts, req)
	c.log.Debug("request queued", logger.Fields(logger.FieldRequestID, req.ID, "path", remotePath, logger.FieldBytes, len(payload)))
	return req.ID
}

// Tick drains the transport's connection events and then advances the
// lifecycle by one step. After a framing fault it does nothing and returns
// the fault.
func (c *HTTPConnection) Tick() error {
	if c.fault != nil {
		return c.faulted()
	}

	for addr, ok := c.tr.HasCompletedConnectionAttempt(); ok; addr, ok = c.tr.HasCompletedConnectionAttempt() {
		if !c.server.Equal(addr) || c.state != StateConnecting {
			c.log.Debug("ignoring completed connect", logger.Fields(logger.FieldAddress, addr.String()))
			continue
		}
		c.server = addr
		c.setState(StateConnected)
	}

	for addr, ok := c.tr.HasFailedConnectionAttempt(); ok; addr, ok = c.tr.HasFailedConnectionAttempt() {
		if !c.server.Equal(addr) {
			continue
		}
		c.log.Warn("connect failed", logger.Fields(logger.FieldAddress, addr.String()))
		c.dropNext(errors.NewTransportError(errors.TransportErrorSocketConnectFailure, "connect to "+addr.String()+" failed", nil))
		c.closeConnection()
	}

	for addr, ok := c.tr.HasLostConnection(); ok; addr, ok = c.tr.HasLostConnection() {
		if !c.server.Equal(addr) {
			continue
		}
		c.log.Debug("connection lost", logger.Fields(logger.FieldAddress, addr.String(), logger.FieldBytes, c.incoming.Len()))
		if c.state == StateReceiving && c.incoming.Len() == 0 && c.inFlight != nil {
			c.failed = append(c.failed, protocol.FailedRequest{
				Request: *c.inFlight,
				Err:     errors.NewTransportError(errors.TransportErrorConnectionClosed, "connection lost before any response", nil),
			})
		}
		c.closeConnection()
	}

	switch c.state {
	case StateIdle:
		if len(c.posts) == 0 {
			return nil
		}
		addr, err := c.tr.Connect(c.host, c.port, c.secure)
		if err != nil {
			c.log.Warn("connect request rejected", logger.Fields(logger.FieldError, err.Error()))
			c.dropNext(err)
			return nil
		}
		c.server = addr
		c.setState(StateConnecting)

	case StateConnecting:

	case StateConnected:
		if len(c.posts) == 0 {
			c.closeConnection()
			return nil
		}
		if c.secure {
			if err := c.tr.StartSecureSession(c.server); err != nil {
				c.log.Warn("secure session failed", logger.Fields(logger.FieldError, err.Error()))
				c.dropNext(err)
				c.closeConnection()
				return nil
			}
		}

		req := c.posts[0]
		c.posts = c.posts[1:]
		msg := protocol.FormatPost(req, c.host, c.port)
		if err := c.tr.Send(msg, c.server); err != nil {
			c.log.Warn("send failed", logger.Fields(logger.FieldRequestID, req.ID, logger.FieldError, err.Error()))
			c.failed = append(c.failed, protocol.FailedRequest{Request: req, Err: err})
			c.closeConnection()
			return nil
		}
		c.inFlight = &req
		c.log.Debug("request sent", logger.Fields(logger.FieldRequestID, req.ID, logger.FieldBytes, len(msg)))
		c.setState(StateReceiving)

	case StateReceiving:
	}
	return nil
}

// ProcessPacket feeds one inbound chunk to the response in flight. Packets
// for other connections, or arriving while no response is expected, are
// ignored. A chunk whose declared length disagrees with its content faults
// the connection for good.
func (c *HTTPConnection) ProcessPacket(p *transport.Packet) error {
	if c.fault != nil {
		return c.faulted()
	}
	if p == nil || !c.server.Equal(p.Address) {
		return nil
	}
	if c.state != StateReceiving {
		c.log.Debug("ignoring packet outside a response", logger.Fields(logger.FieldState, c.state.String(), logger.FieldBytes, len(p.Data)))
		return nil
	}

	if err := protocol.CheckFraming(p.Data, p.Length); err != nil {
		c.faultWith(err)
		return err
	}

	if c.incoming.Len() == 0 {
		if code := protocol.ParseStatusCode(p.Data); code > 299 {
			c.log.Warn("bad response", logger.Fields(logger.FieldStatus, code, logger.FieldRequestID, c.inFlightID()))
			c.badResponses = append(c.badResponses, protocol.BadResponse{
				StatusCode: code,
				Body:       append([]byte(nil), p.Data...),
			})
			c.closeConnection()
			return nil
		}
	}

	c.incoming.Append(protocol.DecodeChunk(p.Data))

	if c.incoming.Complete() {
		c.log.Debug("response complete", logger.Fields(logger.FieldRequestID, c.inFlightID(), logger.FieldBytes, c.incoming.Len()))
		c.closeConnection()
	}
	return nil
}

// closeConnection flushes whatever was received, closes the transport
// connection and returns to idle.
func (c *HTTPConnection) closeConnection() {
	if c.incoming.Len() > 0 {
		c.results = append(c.results, c.incoming.Take())
	}
	c.incoming.Reset()
	c.inFlight = nil
	if c.server.IsAssigned() {
		c.tr.CloseConnection(c.server)
	}
	c.setState(StateIdle)
}

// dropNext removes the head of the queue, recording why it never got sent.
func (c *HTTPConnection) dropNext(err error) {
	if len(c.posts) == 0 {
		return
	}
	req := c.posts[0]
	c.posts = c.posts[1:]
	c.failed = append(c.failed, protocol.FailedRequest{Request: req, Err: err})
}

func (c *HTTPConnection) faultWith(err error) {
	c.fault = err
	c.log.Error("framing fault, connection stopped", logger.Fields(logger.FieldError, err.Error(), logger.FieldRequestID, c.inFlightID()))

	// The buffer may hold miscounted bytes; it is dropped, not delivered.
	c.incoming.Reset()
	if c.inFlight != nil {
		c.failed = append(c.failed, protocol.FailedRequest{Request: *c.inFlight, Err: err})
		c.inFlight = nil
	}
	if c.server.IsAssigned() {
		c.tr.CloseConnection(c.server)
	}
	c.setState(StateIdle)
}

func (c *HTTPConnection) faulted() error {
	return &errors.HttpError{
		Type:          errors.ErrorProtocol,
		ProtocolErr:   errors.ProtocolErrorConnectionFaulted,
		Message:       "connection stopped after a framing fault",
		UnderlyingErr: c.fault,
	}
}

func (c *HTTPConnection) setState(s ConnectionState) {
	if c.state == s {
		return
	}
	c.log.Debug("state change", logger.Fields("from", c.state.String(), "to", s.String()))
	c.state = s
}

func (c *HTTPConnection) inFlightID() string {
	if c.inFlight == nil {
		return ""
	}
	return c.inFlight.ID
}

// HasRead reports whether a completed result is waiting.
func (c *HTTPConnection) HasRead() bool {
	return len(c.results) > 0
}

// Read pops the oldest result and returns the part after its first payload
// marker (one of 0x01, 0x02, 0x03 or '%'). It returns nil when there is no
// result or the result holds no marker.
func (c *HTTPConnection) Read() []byte {
	raw := c.ReadRaw()
	if raw == nil {
		return nil
	}
	return protocol.ExtractPayload(raw)
}

// ReadRaw pops the oldest result as received, headers included.
func (c *HTTPConnection) ReadRaw() []byte {
	if len(c.results) == 0 {
		return nil
	}
	r := c.results[0]
	c.results[0] = nil
	c.results = c.results[1:]
	return r
}

// HasBadResponse pops the oldest response with a status of 300 or more.
func (c *HTTPConnection) HasBadResponse() (protocol.BadResponse, bool) {
	if len(c.badResponses) == 0 {
		return protocol.BadResponse{}, false
	}
	r := c.badResponses[0]
	c.badResponses = c.badResponses[1:]
	return r, true
}

// HasFailedRequest pops the oldest request that was dropped without a
// response.
func (c *HTTPConnection) HasFailedRequest() (protocol.FailedRequest, bool) {
	if len(c.failed) == 0 {
		return protocol.FailedRequest{}, false
	}
	f := c.failed[0]
	c.failed = c.failed[1:]
	return f, true
}

// IsBusy reports whether a request cycle is under way.
func (c *HTTPConnection) IsBusy() bool {
	return c.state != StateIdle
}

// Pending returns the number of queued, unsent requests.
func (c *HTTPConnection) Pending() int {
	return len(c.posts)
}

// State returns the current lifecycle state.
func (c *HTTPConnection) State() ConnectionState {
	return c.state
}

// ServerAddress returns the address of the current or last connection.
func (c *HTTPConnection) ServerAddress() transport.SystemAddress {
	return c.server
}

// Err returns the framing fault that stopped the connection, if any.
func (c *HTTPConnection) Err() error {
	return c.fault
}

// Close closes any open transport connection, flushing a partially received
// response into the results. Queued requests stay queued.
func (c *HTTPConnection) Close() {
	c.closeConnection()
}
