package transport

import (
	"net"
	"testing"

	"github.com/nczempin/httpconn/logger"
)

func TestGnetTransport_RoundTrip(t *testing.T) {
	host, port, cleanup := setupTcpTestServer(t, func(conn net.Conn) {
		buf := make([]byte, 1024)
		conn.Read(buf)
		conn.Write([]byte("pong"))
	})
	defer cleanup()

	tr, err := NewGnetTransport(nil, logger.Nop())
	if err != nil {
		t.Fatalf("Failed to start gnet transport: %v", err)
	}
	defer tr.Stop()

	pending, err := tr.Connect(host, port, false)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var connected SystemAddress
	poll(t, "connect completion", func() bool {
		var ok bool
		connected, ok = tr.HasCompletedConnectionAttempt()
		return ok
	})
	if !connected.Equal(pending) {
		t.Fatalf("Completed address %v does not match pending %v", connected, pending)
	}

	if err := tr.Send([]byte("ping"), connected); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var data []byte
	poll(t, "inbound packet", func() bool {
		for p := tr.Receive(); p != nil; p = tr.Receive() {
			data = append(data, p.Data...)
		}
		return string(data) == "pong"
	})

	poll(t, "lost connection", func() bool {
		lost, ok := tr.HasLostConnection()
		return ok && lost.Equal(pending)
	})
}

func TestGnetTransport_RejectsSecure(t *testing.T) {
	tr, err := NewGnetTransport(nil, logger.Nop())
	if err != nil {
		t.Fatalf("Failed to start gnet transport: %v", err)
	}
	defer tr.Stop()

	if _, err := tr.Connect("127.0.0.1", 443, true); err == nil {
		t.Error("Expected secure connect to be rejected")
	}
}
