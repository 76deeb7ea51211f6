// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package sock wraps raw listening sockets: create/bind/listen for TCP
// addresses and filesystem paths, adoption of externally inherited file
// descriptors, and a blocking Accept that adapts accepted descriptors to
// net.Conn. Socket options relevant to multi-worker acceptance
// (SO_REUSEPORT, TCP_DEFER_ACCEPT, SO_INCOMING_CPU) are applied here so the
// layers above never touch syscalls directly.
package sock

// Options controls listening-socket setup.
type Options struct {
	// ReusePort binds with SO_REUSEPORT so several sockets can listen on
	// the same address and let the kernel spread incoming connections.
	ReusePort bool

	// DeferAccept sets TCP_DEFER_ACCEPT where available (Linux); elsewhere
	// it is ignored.
	DeferAccept bool

	// IncomingCPU sets SO_INCOMING_CPU to the given logical CPU where
	// available (Linux). Negative disables it.
	IncomingCPU int

	// Backlog for listen(2). Zero means DefaultBacklog.
	Backlog int
}

// DefaultBacklog is the listen backlog used when Options.Backlog is zero.
const DefaultBacklog = 128
