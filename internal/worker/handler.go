// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package worker implements the acceptance handlers the listener
// orchestrates: reuse-port workers that own an independently bound listening
// socket each, dispatch workers that are fed already-accepted connections,
// and the acceptor that owns a single shared listening socket and fans its
// connections out to dispatch workers.
package worker

import (
	"context"
	"errors"
	"net"
)

// ErrDrained reports that a handler's accept source has permanently ended,
// typically because the handler was unbound or stopped.
var ErrDrained = errors.New("worker: accept source drained")

// Handler is one acceptance execution context driven by the listener.
//
// Bind prepares the handler to produce connections; Accept blocks until the
// next connection or returns ErrDrained once the source has ended; Unbind
// stops the intake of new connections; Stop releases all resources. Unbind
// and Stop are idempotent and Stop does not require a prior Unbind.
type Handler interface {
	Bind(ctx context.Context) error
	Accept() (net.Conn, error)
	Unbind(ctx context.Context) error
	Stop(ctx context.Context) error
}
