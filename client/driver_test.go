package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/nczempin/httpconn/logger"
	"github.com/nczempin/httpconn/signal"
	"github.com/nczempin/httpconn/transport"
)

// serveOnce accepts connections and answers every POST with respond.
func serveOnce(t *testing.T, respond func(body []byte) string) (string, int, <-chan string) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	paths := make(chan string, 8)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				req, err := http.ReadRequest(bufio.NewReader(conn))
				if err != nil {
					return
				}
				body, _ := io.ReadAll(req.Body)
				paths <- req.URL.Path
				io.WriteString(conn, respond(body))
			}(conn)
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, paths
}

func newDriver(t *testing.T, host string, port int) (*Driver, *transport.AsyncTransport) {
	t.Helper()
	wake := signal.New()
	tr := transport.NewAsyncTransport(transport.AsyncConfig{Wake: wake, Logger: logger.Nop()})
	t.Cleanup(tr.Shutdown)

	conn, err := New(tr, host, port, WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &Driver{Conn: conn, Source: tr, Wake: wake}, tr
}

func runUntil(t *testing.T, d *Driver, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := d.Run(ctx, done); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestDriver_LengthResponse(t *testing.T) {
	host, port, paths := serveOnce(t, func(body []byte) string {
		payload := "\x01" + string(body)
		return fmt.Sprintf("HTTP/1.0 200 OK\r\nLength: %d\r\n\r\n%s", len(payload), payload)
	})
	d, _ := newDriver(t, host, port)

	d.Conn.Post("/echo", []byte("hello"), "text/plain")
	runUntil(t, d, d.Conn.HasRead)

	if got := <-paths; got != "/echo" {
		t.Errorf("Expected path /echo, got %s", got)
	}
	if got := string(d.Conn.Read()); got != "hello" {
		t.Errorf("Expected %q, got %q", "hello", got)
	}
}

func TestDriver_PeerCloseCompletes(t *testing.T) {
	host, port, _ := serveOnce(t, func(body []byte) string {
		return "HTTP/1.0 200 OK\r\nContent-Type: text/plain\r\n\r\n%" + string(body)
	})
	d, _ := newDriver(t, host, port)

	d.Conn.Post("/", []byte("no length"), "text/plain")
	runUntil(t, d, d.Conn.HasRead)

	if got := string(d.Conn.Read()); got != "no length" {
		t.Errorf("Expected %q, got %q", "no length", got)
	}
	if d.Conn.IsBusy() {
		t.Errorf("Expected idle, got %v", d.Conn.State())
	}
}

func TestDriver_SequentialRequests(t *testing.T) {
	host, port, paths := serveOnce(t, func(body []byte) string {
		return "HTTP/1.0 200 OK\r\nLength: " + strconv.Itoa(len(body)+1) + "\r\n\r\n\x02" + string(body)
	})
	d, _ := newDriver(t, host, port)

	d.Conn.Post("/one", []byte("1"), "text/plain")
	d.Conn.Post("/two", []byte("2"), "text/plain")

	var results []string
	runUntil(t, d, func() bool {
		for d.Conn.HasRead() {
			results = append(results, string(d.Conn.Read()))
		}
		return len(results) == 2
	})

	if results[0] != "1" || results[1] != "2" {
		t.Errorf("Expected results in order, got %q", results)
	}
	if first, second := <-paths, <-paths; first != "/one" || second != "/two" {
		t.Errorf("Expected /one then /two, got %s then %s", first, second)
	}
}

func TestDriver_BadStatus(t *testing.T) {
	host, port, _ := serveOnce(t, func([]byte) string {
		return "HTTP/1.0 503 Service Unavailable\r\n\r\n"
	})
	d, _ := newDriver(t, host, port)

	d.Conn.Post("/", nil, "text/plain")

	var bad bool
	runUntil(t, d, func() bool {
		r, ok := d.Conn.HasBadResponse()
		if ok && r.StatusCode == 503 {
			bad = true
		}
		return bad
	})
	if d.Conn.HasRead() {
		t.Error("Bad status must not produce a result")
	}
}

func TestDriver_ConnectRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	d, _ := newDriver(t, "127.0.0.1", port)
	d.Conn.Post("/", nil, "text/plain")

	runUntil(t, d, func() bool {
		_, ok := d.Conn.HasFailedRequest()
		return ok
	})
	if d.Conn.Pending() != 0 {
		t.Errorf("Expected the request to be dropped, %d pending", d.Conn.Pending())
	}
}

func TestDriver_RunHonorsContext(t *testing.T) {
	d := &Driver{Conn: mustIdleConnection(t), Source: &fakeTransport{}, Interval: time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := d.Run(ctx, func() bool { return false })
	if err != context.DeadlineExceeded {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func mustIdleConnection(t *testing.T) *HTTPConnection {
	t.Helper()
	c, err := New(&fakeTransport{}, "example.com", 80, WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}
