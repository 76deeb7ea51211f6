// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/portmux/internal/cputopo"
	"github.com/ManuGH/portmux/internal/log"
	"github.com/ManuGH/portmux/internal/sock"
)

// Config carries the per-worker acceptance options.
type Config struct {
	// Addr is the shared listen address for reuse-port workers.
	Addr string

	// CPU is the preferred logical CPU for this worker's accept thread,
	// -1 when no placement was computed.
	CPU int

	// PinThread pins the accept thread to CPU when CPU >= 0.
	PinThread bool

	// DeferAccept enables TCP_DEFER_ACCEPT on the listening socket.
	DeferAccept bool

	// ReceiveOnIncomingCPU sets SO_INCOMING_CPU so the kernel prefers
	// delivering connections whose softirq processing ran on this
	// worker's CPU.
	ReceiveOnIncomingCPU bool
}

// ReusePortWorker owns one independently bound listening socket. All workers
// of a listener bind the same address with SO_REUSEPORT, letting the kernel
// balance incoming connections across them.
type ReusePortWorker struct {
	id  int64
	cfg Config
	log zerolog.Logger

	mu   sync.Mutex
	sock *sock.Socket

	inbox    chan net.Conn
	done     chan struct{}
	loopDone chan struct{}

	unbindOnce sync.Once
	stopOnce   sync.Once
}

// NewReusePort creates an unbound reuse-port worker.
func NewReusePort(cfg Config, logger zerolog.Logger) *ReusePortWorker {
	id := nextID()
	return &ReusePortWorker{
		id:       id,
		cfg:      cfg,
		log:      logger.With().Int64(log.FieldWorkerID, id).Logger(),
		inbox:    make(chan net.Conn),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// ID returns the worker's diagnostic id.
func (w *ReusePortWorker) ID() int64 { return w.id }

// Bind creates and binds the worker's own listening socket, then starts the
// dedicated accept thread.
func (w *ReusePortWorker) Bind(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := sock.Options{
		ReusePort:   true,
		DeferAccept: w.cfg.DeferAccept,
		IncomingCPU: -1,
		Backlog:     sock.DefaultBacklog,
	}
	if w.cfg.ReceiveOnIncomingCPU && w.cfg.CPU >= 0 {
		opts.IncomingCPU = w.cfg.CPU
	}

	s, err := sock.ListenTCP(w.cfg.Addr, opts)
	if err != nil {
		return fmt.Errorf("worker %d: %w", w.id, err)
	}

	w.mu.Lock()
	select {
	case <-w.done:
		// Stop raced the bind; the socket must not outlive the worker.
		w.mu.Unlock()
		_ = s.Close()
		return fmt.Errorf("worker %d: stopped during bind", w.id)
	default:
	}
	w.sock = s
	w.mu.Unlock()

	go w.acceptLoop(s)

	w.log.Info().
		Str(log.FieldEvent, "worker.bound").
		Str(log.FieldAddr, w.cfg.Addr).
		Int(log.FieldCPU, w.cfg.CPU).
		Msg("reuse-port worker bound")
	return nil
}

// acceptLoop runs on a dedicated OS thread. The thread is destroyed with the
// goroutine on exit, which is intended: each worker owns its thread.
func (w *ReusePortWorker) acceptLoop(s *sock.Socket) {
	defer close(w.loopDone)
	defer close(w.inbox)

	runtime.LockOSThread()
	if w.cfg.PinThread && w.cfg.CPU >= 0 {
		if err := cputopo.PinThread(w.cfg.CPU); err != nil {
			w.log.Warn().Err(err).Int(log.FieldCPU, w.cfg.CPU).Msg("thread pinning failed, continuing unpinned")
		} else {
			w.log.Debug().Str(log.FieldEvent, "worker.pinned").Int(log.FieldCPU, w.cfg.CPU).Msg("accept thread pinned")
		}
	}

	for {
		c, err := s.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				w.log.Error().Err(err).Str(log.FieldEvent, "worker.accept.failed").Msg("accept loop terminated")
			}
			return
		}
		select {
		case w.inbox <- c:
		case <-w.done:
			_ = c.Close()
			return
		}
	}
}

// Accept returns the next connection this worker accepted, or ErrDrained
// once the worker has been unbound and its intake is exhausted.
func (w *ReusePortWorker) Accept() (net.Conn, error) {
	c, ok := <-w.inbox
	if !ok {
		return nil, ErrDrained
	}
	return c, nil
}

// Unbind closes the listening socket and waits for the accept thread to
// exit. Idempotent; safe to call without a prior Bind.
func (w *ReusePortWorker) Unbind(ctx context.Context) error {
	w.unbindOnce.Do(func() {
		// The mutex makes closing done atomic with respect to Bind
		// publishing the socket: either Bind sees done closed and
		// aborts, or the socket is visible here and gets closed.
		w.mu.Lock()
		close(w.done)
		s := w.sock
		w.mu.Unlock()
		if s != nil {
			_ = s.Close()
		}
	})

	w.mu.Lock()
	s := w.sock
	w.mu.Unlock()
	if s == nil {
		return nil
	}
	select {
	case <-w.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop unbinds and releases connections that were accepted but never
// consumed. Idempotent.
func (w *ReusePortWorker) Stop(ctx context.Context) error {
	err := w.Unbind(ctx)
	if err != nil {
		return err
	}
	w.stopOnce.Do(func() {
		w.mu.Lock()
		s := w.sock
		w.mu.Unlock()
		if s == nil {
			return
		}
		// The loop has exited and closed the inbox; drain what is left.
		for c := range w.inbox {
			_ = c.Close()
		}
		w.log.Debug().Str(log.FieldEvent, "worker.stopped").Msg("reuse-port worker stopped")
	})
	return nil
}
