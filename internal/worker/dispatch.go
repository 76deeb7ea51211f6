// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package worker

import (
	"context"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/portmux/internal/log"
)

// DispatchWorker serves connections that an Acceptor accepted on a shared
// listening socket. It owns no socket of its own; its accept source is the
// inbox the acceptor pushes into. Used for endpoint kinds that cannot be
// reuse-port bound per worker (path sockets, inherited descriptors).
type DispatchWorker struct {
	id  int64
	cfg Config
	log zerolog.Logger

	inbox    *inbox
	stopOnce sync.Once
}

// NewDispatch creates a dispatch worker ready to receive connections.
func NewDispatch(cfg Config, logger zerolog.Logger) *DispatchWorker {
	id := nextID()
	return &DispatchWorker{
		id:    id,
		cfg:   cfg,
		log:   logger.With().Int64(log.FieldWorkerID, id).Logger(),
		inbox: newInbox(),
	}
}

// ID returns the worker's diagnostic id.
func (w *DispatchWorker) ID() int64 { return w.id }

// Bind marks the worker ready. The inbox exists from construction, so a
// dispatch worker can receive connections the moment the acceptor starts;
// binding the acceptor only after all workers were bound preserves that
// ordering at the orchestration level.
func (w *DispatchWorker) Bind(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.log.Debug().
		Str(log.FieldEvent, "worker.bound").
		Int(log.FieldCPU, w.cfg.CPU).
		Msg("dispatch worker ready")
	return nil
}

// offer hands a connection to this worker. It reports false once the worker
// no longer takes new connections.
func (w *DispatchWorker) offer(c net.Conn) bool {
	return w.inbox.push(c)
}

// Accept returns the next dispatched connection. Connections queued before
// unbind are still delivered; afterwards Accept reports ErrDrained.
func (w *DispatchWorker) Accept() (net.Conn, error) {
	c, ok := w.inbox.pop()
	if !ok {
		return nil, ErrDrained
	}
	return c, nil
}

// Unbind stops the intake of new connections. Idempotent.
func (w *DispatchWorker) Unbind(ctx context.Context) error {
	w.inbox.close()
	return nil
}

// Stop unbinds and releases any still-queued connections. Idempotent.
func (w *DispatchWorker) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() {
		w.inbox.closeDiscard()
		w.log.Debug().Str(log.FieldEvent, "worker.stopped").Msg("dispatch worker stopped")
	})
	return nil
}
