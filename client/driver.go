package client

import (
	"context"
	"time"

	"github.com/nczempin/httpconn/signal"
	"github.com/nczempin/httpconn/transport"
)

// DefaultInterval is how often a Driver ticks when no wake signal arrives.
const DefaultInterval = 10 * time.Millisecond

// PacketSource yields queued inbound packets, nil when there are none.
// Every EventTransport is a PacketSource.
type PacketSource interface {
	Receive() *transport.Packet
}

// Driver owns the tick loop of one HTTPConnection: it hands every queued
// packet to the connection and then ticks it.
type Driver struct {
	Conn   *HTTPConnection
	Source PacketSource

	// Wake, when set, cuts the wait between steps short as soon as the
	// transport queues an event.
	Wake     *signal.Event
	Interval time.Duration
}

// Step drains all queued packets into the connection, then ticks it once.
// Packets go first so a response's final bytes are seen before the
// connection's loss.
func (d *Driver) Step() error {
	for p := d.Source.Receive(); p != nil; p = d.Source.Receive() {
		if err := d.Conn.ProcessPacket(p); err != nil {
			return err
		}
	}
	return d.Conn.Tick()
}

// Run steps until done reports true, a step fails or ctx ends.
func (d *Driver) Run(ctx context.Context, done func() bool) error {
	interval := d.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	var timer *time.Timer
	for {
		if err := d.Step(); err != nil {
			return err
		}
		if done() {
			return nil
		}

		if d.Wake != nil {
			d.Wake.WaitContext(ctx, interval)
		} else {
			if timer == nil {
				timer = time.NewTimer(interval)
				defer timer.Stop()
			} else {
				timer.Reset(interval)
			}
			select {
			case <-timer.C:
			case <-ctx.Done():
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
