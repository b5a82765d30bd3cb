package app

import (
	"crypto/tls"

	"github.com/nczempin/httpconn/config"
	"github.com/nczempin/httpconn/logger"
	"github.com/nczempin/httpconn/signal"
	"github.com/nczempin/httpconn/transport"
)

// eventTransport is an EventTransport plus the call that releases it.
type eventTransport struct {
	transport.EventTransport
	release func()
}

// newEventTransport builds the event transport named by cfg.Transport.
// Every kind except gnet runs over AsyncTransport with a stream transport
// of that kind.
func newEventTransport(cfg *config.Config, wake *signal.Event) (*eventTransport, error) {
	log := logger.WithComponent("transport")

	if cfg.Transport == "gnet" {
		gt, err := transport.NewGnetTransport(wake, log)
		if err != nil {
			return nil, err
		}
		return &eventTransport{EventTransport: gt, release: func() { _ = gt.Stop() }}, nil
	}

	kind := cfg.Transport
	// Fail on an unusable kind now rather than on the first connect.
	probe, err := transport.NewStream(kind)
	if err != nil {
		return nil, err
	}
	_ = probe.Close()

	at := transport.NewAsyncTransport(transport.AsyncConfig{
		NewStream: func() (transport.Transport, error) { return transport.NewStream(kind) },
		TLS: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			ServerName:         cfg.TLS.ServerName,
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		},
		Wake:           wake,
		Logger:         log,
		ReadBufferSize: cfg.ReadBufferSize,
	})
	return &eventTransport{EventTransport: at, release: at.Shutdown}, nil
}
