// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package worker

import (
	"net"
	"sync"

	"github.com/eapache/queue"
)

// inbox is the unbounded connection hand-off between the acceptor and one
// dispatch worker. It must never block the pusher: a slow worker must not
// stall the shared accept loop, so the queue grows instead.
type inbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	closed bool
}

func newInbox() *inbox {
	i := &inbox{q: queue.New()}
	i.cond = sync.NewCond(&i.mu)
	return i
}

// push enqueues a connection. It reports false once the inbox is closed; the
// caller keeps ownership of the connection in that case.
func (i *inbox) push(c net.Conn) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return false
	}
	i.q.Add(c)
	i.cond.Signal()
	return true
}

// pop blocks until a connection is available or the inbox is closed and
// empty. Connections queued before close are still delivered.
func (i *inbox) pop() (net.Conn, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for i.q.Length() == 0 && !i.closed {
		i.cond.Wait()
	}
	if i.q.Length() == 0 {
		return nil, false
	}
	return i.q.Remove().(net.Conn), true
}

// close marks the inbox drained and wakes all blocked poppers. Queued
// connections remain poppable.
func (i *inbox) close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	i.cond.Broadcast()
}

// closeDiscard closes the inbox and releases any still-queued connections.
func (i *inbox) closeDiscard() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	for i.q.Length() > 0 {
		_ = i.q.Remove().(net.Conn).Close()
	}
	i.cond.Broadcast()
}

func (i *inbox) len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.q.Length()
}
