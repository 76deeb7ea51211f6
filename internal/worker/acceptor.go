// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/portmux/internal/log"
	"github.com/ManuGH/portmux/internal/sock"
)

// Acceptor owns the single shared listening socket of a dispatch-style
// listener and distributes every accepted connection round-robin across its
// dispatch workers. It is tracked as a handler like any other, but it is not
// an accept source for the merged stream: connections reach the stream
// through the workers it feeds.
type Acceptor struct {
	id      int64
	sock    *sock.Socket
	workers []*DispatchWorker
	log     zerolog.Logger

	mu       sync.Mutex
	started  bool
	loopDone chan struct{}

	unbindOnce sync.Once
}

// NewAcceptor wraps an already-listening socket. The acceptor takes
// ownership of the socket; it is released on Stop (or Unbind).
func NewAcceptor(s *sock.Socket, workers []*DispatchWorker, logger zerolog.Logger) *Acceptor {
	id := nextID()
	return &Acceptor{
		id:       id,
		sock:     s,
		workers:  workers,
		log:      logger.With().Int64(log.FieldWorkerID, id).Str(log.FieldAddr, s.Addr()).Logger(),
		loopDone: make(chan struct{}),
	}
}

// ID returns the acceptor's diagnostic id.
func (a *Acceptor) ID() int64 { return a.id }

// Bind starts the shared accept loop. The listener binds all dispatch
// workers first so early connections always find a ready worker.
func (a *Acceptor) Bind(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(a.workers) == 0 {
		return fmt.Errorf("acceptor %d: no dispatch workers", a.id)
	}

	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("acceptor %d: already bound", a.id)
	}
	a.started = true
	a.mu.Unlock()

	go a.acceptLoop()

	a.log.Info().Str(log.FieldEvent, "acceptor.bound").Int("workers", len(a.workers)).Msg("acceptor bound")
	return nil
}

func (a *Acceptor) acceptLoop() {
	defer close(a.loopDone)

	next := 0
	for {
		c, err := a.sock.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				a.log.Error().Err(err).Str(log.FieldEvent, "acceptor.accept.failed").Msg("accept loop terminated")
			}
			return
		}
		if !a.dispatch(c, &next) {
			// Every worker has stopped taking connections; teardown is
			// in progress and this connection has no destination.
			_ = c.Close()
		}
	}
}

// dispatch offers the connection to workers round-robin, starting after the
// last one used, until a worker takes it.
func (a *Acceptor) dispatch(c net.Conn, next *int) bool {
	for range a.workers {
		w := a.workers[*next%len(a.workers)]
		*next++
		if w.offer(c) {
			return true
		}
	}
	return false
}

// Accept never yields connections: the acceptor feeds its workers instead of
// the merged stream.
func (a *Acceptor) Accept() (net.Conn, error) {
	return nil, ErrDrained
}

// Unbind closes the listening socket and waits for the accept loop to exit.
// Idempotent; safe without a prior Bind.
func (a *Acceptor) Unbind(ctx context.Context) error {
	a.unbindOnce.Do(func() {
		_ = a.sock.Close()
	})

	a.mu.Lock()
	started := a.started
	a.mu.Unlock()
	if !started {
		return nil
	}
	select {
	case <-a.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop releases the listening socket. The acceptor owns nothing beyond it.
func (a *Acceptor) Stop(ctx context.Context) error {
	return a.Unbind(ctx)
}
