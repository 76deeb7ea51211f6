// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package listener

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/portmux/internal/worker"
)

// nopConn is a labelled net.Conn stand-in so stream tests can track
// connection identity and close calls without real sockets.
type nopConn struct {
	label  string
	closed atomic.Bool
}

func (c *nopConn) Read(b []byte) (int, error)       { return 0, nil }
func (c *nopConn) Write(b []byte) (int, error)      { return len(b), nil }
func (c *nopConn) Close() error                     { c.closed.Store(true); return nil }
func (c *nopConn) LocalAddr() net.Addr              { return nil }
func (c *nopConn) RemoteAddr() net.Addr             { return nil }
func (c *nopConn) SetDeadline(time.Time) error      { return nil }
func (c *nopConn) SetReadDeadline(time.Time) error  { return nil }
func (c *nopConn) SetWriteDeadline(time.Time) error { return nil }

// fakeHandler yields a fixed sequence of connections and then reports its
// source drained. Bind/Unbind/Stop calls are counted so lifecycle tests can
// assert at-most-once semantics.
type fakeHandler struct {
	mu    sync.Mutex
	conns []net.Conn

	bindErr error
	// bindGate, when set, holds Bind until the channel is closed so tests
	// can race other lifecycle calls against an in-flight bind.
	bindGate chan struct{}

	binds   atomic.Int32
	unbinds atomic.Int32
	stops   atomic.Int32
}

func newFakeHandler(labels ...string) *fakeHandler {
	f := &fakeHandler{}
	for _, l := range labels {
		f.conns = append(f.conns, &nopConn{label: l})
	}
	return f
}

func (f *fakeHandler) Bind(ctx context.Context) error {
	f.binds.Add(1)
	if f.bindGate != nil {
		<-f.bindGate
	}
	return f.bindErr
}

func (f *fakeHandler) Accept() (net.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil, worker.ErrDrained
	}
	c := f.conns[0]
	f.conns = f.conns[1:]
	return c, nil
}

func (f *fakeHandler) Unbind(ctx context.Context) error {
	f.unbinds.Add(1)
	return nil
}

func (f *fakeHandler) Stop(ctx context.Context) error {
	f.stops.Add(1)
	return nil
}

// blockingHandler blocks in Accept until unbound or stopped, like a real
// worker waiting for a connection that never arrives.
type blockingHandler struct {
	closeOnce sync.Once
	closed    chan struct{}

	binds atomic.Int32
	stops atomic.Int32
}

func newBlockingHandler() *blockingHandler {
	return &blockingHandler{closed: make(chan struct{})}
}

func (b *blockingHandler) Bind(ctx context.Context) error {
	b.binds.Add(1)
	return nil
}

func (b *blockingHandler) Accept() (net.Conn, error) {
	<-b.closed
	return nil, worker.ErrDrained
}

func (b *blockingHandler) Unbind(ctx context.Context) error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

func (b *blockingHandler) Stop(ctx context.Context) error {
	b.stops.Add(1)
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

// errHandler fails its first accept with a fixed error; a well-behaved
// stream retires the slot instead of racing it again.
type errHandler struct {
	err error
}

func (e *errHandler) Bind(ctx context.Context) error   { return nil }
func (e *errHandler) Accept() (net.Conn, error)        { return nil, e.err }
func (e *errHandler) Unbind(ctx context.Context) error { return nil }
func (e *errHandler) Stop(ctx context.Context) error   { return nil }

// withFakeBuild replaces the listener's handler construction with one that
// returns the given handlers as workers (no acceptor).
func withFakeBuild(l *Listener, handlers ...worker.Handler) {
	l.build = func(plan []int) (handlerSet, error) {
		return handlerSet{workers: handlers}, nil
	}
}
