// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package listener

import "errors"

var (
	// ErrNilEndpoint is returned when a listener is created without an endpoint.
	ErrNilEndpoint = errors.New("listener: endpoint is required")

	// ErrInvalidState is returned when an operation is attempted in a state
	// that does not allow it, e.g. binding twice.
	ErrInvalidState = errors.New("listener: operation not allowed in current state")

	// ErrStopped is returned when the listener has been stopped and can no
	// longer serve the operation.
	ErrStopped = errors.New("listener: already stopped")

	// ErrDrained is returned by Accept once every accept source has ended.
	// Subsequent calls keep returning it.
	ErrDrained = errors.New("listener: accept stream drained")

	// ErrNoCancellation is returned when Accept is handed a cancellable
	// context. Acceptance cannot be cancelled at this layer; callers must
	// unbind or shut down instead.
	ErrNoCancellation = errors.New("listener: accept does not support cancellation")
)
