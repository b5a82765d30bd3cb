package app

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/nczempin/httpconn/errors"
)

// startServer answers every request with status and the request body
// behind a 0x01 marker.
func startServer(t *testing.T, status int) (string, int) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

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
				payload := "\x01" + string(body)
				fmt.Fprintf(conn, "HTTP/1.0 %d X\r\nLength: %d\r\n\r\n%s", status, len(payload), payload)
			}(conn)
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

// emptyConfig isolates a command run from files in the working directory.
func emptyConfig(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "httpconn.yml")
	env := filepath.Join(dir, ".env")
	for _, p := range []string{cfg, env} {
		if err := os.WriteFile(p, []byte("\n"), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", p, err)
		}
	}
	return []string{"--config", cfg, "--env-file", env}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewHTTPConnCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, emptyConfig(t)...))
	err := cmd.Execute()
	return out.String(), err
}

func TestPostCommand(t *testing.T) {
	host, port := startServer(t, 200)

	out, err := execute(t, "post", "/echo", "--data", "hello",
		"--host", host, "--port", strconv.Itoa(port), "--timeout", "3s")
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if out != "hello" {
		t.Errorf("Expected %q, got %q", "hello", out)
	}
}

func TestPostCommand_Raw(t *testing.T) {
	host, port := startServer(t, 200)

	out, err := execute(t, "post", "/echo", "--data", "x", "--raw",
		"--host", host, "--port", strconv.Itoa(port), "--timeout", "3s")
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if !strings.HasPrefix(out, "HTTP/1.0 200") {
		t.Errorf("Expected the full response, got %q", out)
	}
}

func TestPostCommand_BadStatus(t *testing.T) {
	host, port := startServer(t, 500)

	_, err := execute(t, "post", "/", "--host", host, "--port", strconv.Itoa(port), "--timeout", "3s")
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("Expected status error, got %v", err)
	}
}

func TestPostCommand_Timeout(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create listener: %v", err)
	}
	defer listener.Close()

	// Accept and never answer.
	held := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			held <- conn
		}
	}()
	defer func() {
		select {
		case conn := <-held:
			conn.Close()
		default:
		}
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	_, err = execute(t, "post", "/", "--host", "127.0.0.1", "--port", strconv.Itoa(port), "--timeout", "200ms")
	if !errors.IsTransport(err, errors.TransportErrorTimeout) {
		t.Errorf("Expected timeout error, got %v", err)
	}
}

func TestPostCommand_InvalidTransport(t *testing.T) {
	_, err := execute(t, "post", "/", "--transport", "pigeon")
	if err == nil || !strings.Contains(err.Error(), "transport must be one of") {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestPostCommand_DataAndFile(t *testing.T) {
	_, err := execute(t, "post", "/", "--data", "a", "--file", "b")
	if err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("Expected exclusivity error, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := NewHTTPConnCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out.String(), "Version:    dev") {
		t.Errorf("Unexpected output %q", out.String())
	}
}
