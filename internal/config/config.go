// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config assembles the daemon configuration from environment
// variables. All keys carry the PORTMUX_ prefix; every lookup logs whether
// the environment or the default won.
package config

import (
	"fmt"

	"github.com/ManuGH/portmux/internal/listener"
)

// Config is the full daemon configuration.
type Config struct {
	// Listen is the endpoint in textual form: "host:port", "unix:/path",
	// or "fd:N".
	Listen string

	// Threads is the worker count; zero lets the listener pick.
	Threads int

	// SetThreadAffinity pins worker accept threads to their planned CPUs.
	SetThreadAffinity bool

	// CPUSet overrides CPU auto-discovery; empty enables discovery.
	CPUSet []int

	// ReceiveOnIncomingCPU enables SO_INCOMING_CPU on worker sockets.
	ReceiveOnIncomingCPU bool

	// DeferAccept enables TCP_DEFER_ACCEPT on worker sockets.
	DeferAccept bool

	// LogLevel is the zerolog level name ("debug", "info", ...).
	LogLevel string
}

// FromEnv builds the configuration from PORTMUX_* environment variables.
func FromEnv() Config {
	return Config{
		Listen:               ParseString("PORTMUX_LISTEN", "127.0.0.1:7070"),
		Threads:              ParseInt("PORTMUX_THREADS", 0),
		SetThreadAffinity:    ParseBool("PORTMUX_AFFINITY", false),
		CPUSet:               ParseIntList("PORTMUX_CPUS", nil),
		ReceiveOnIncomingCPU: ParseBool("PORTMUX_INCOMING_CPU", false),
		DeferAccept:          ParseBool("PORTMUX_DEFER_ACCEPT", false),
		LogLevel:             ParseString("PORTMUX_LOG_LEVEL", "info"),
	}
}

// Endpoint resolves the textual listen target into a typed endpoint.
func (c Config) Endpoint() (listener.Endpoint, error) {
	ep, err := listener.ParseEndpoint(c.Listen)
	if err != nil {
		return nil, fmt.Errorf("config: invalid PORTMUX_LISTEN %q: %w", c.Listen, err)
	}
	return ep, nil
}

// ListenerOptions maps the configuration onto the listener's option set.
func (c Config) ListenerOptions() listener.Options {
	return listener.Options{
		Threads:              c.Threads,
		SetThreadAffinity:    c.SetThreadAffinity,
		CPUSet:               c.CPUSet,
		ReceiveOnIncomingCPU: c.ReceiveOnIncomingCPU,
		DeferAccept:          c.DeferAccept,
	}
}
