package transport

import (
	"sync"

	"github.com/nczempin/httpconn/signal"
)

// eventQueues holds the pollable event FIFOs shared by the event transports.
// Producers are transport goroutines; the single consumer is the tick loop.
type eventQueues struct {
	mu        sync.Mutex
	completed []SystemAddress
	failed    []SystemAddress
	lost      []SystemAddress
	packets   []*Packet

	wake *signal.Event
}

func (q *eventQueues) push(list *[]SystemAddress, addr SystemAddress) {
	q.mu.Lock()
	*list = append(*list, addr)
	q.mu.Unlock()
	q.notify()
}

func (q *eventQueues) pop(list *[]SystemAddress) (SystemAddress, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(*list) == 0 {
		return SystemAddress{}, false
	}
	addr := (*list)[0]
	*list = (*list)[1:]
	return addr, true
}

func (q *eventQueues) pushPacket(p *Packet) {
	q.mu.Lock()
	q.packets = append(q.packets, p)
	q.mu.Unlock()
	q.notify()
}

func (q *eventQueues) popPacket() *Packet {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.packets) == 0 {
		return nil
	}
	p := q.packets[0]
	q.packets[0] = nil
	q.packets = q.packets[1:]
	return p
}

func (q *eventQueues) notify() {
	if q.wake != nil {
		q.wake.Set()
	}
}

func (q *eventQueues) completedAttempt() (SystemAddress, bool) { return q.pop(&q.completed) }
func (q *eventQueues) failedAttempt() (SystemAddress, bool)    { return q.pop(&q.failed) }

// lostConnection pops the oldest lost connection that has no packets left in
// the packet queue, so a peer's final bytes are always received before its
// disconnect is reported.
func (q *eventQueues) lostConnection() (SystemAddress, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, addr := range q.lost {
		if q.hasPacketsLocked(addr) {
			continue
		}
		q.lost = append(q.lost[:i], q.lost[i+1:]...)
		return addr, true
	}
	return SystemAddress{}, false
}

func (q *eventQueues) hasPacketsLocked(addr SystemAddress) bool {
	for _, p := range q.packets {
		if p.Address.Equal(addr) {
			return true
		}
	}
	return false
}
