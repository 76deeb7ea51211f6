//go:build linux || darwin

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package worker

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/portmux/internal/log"
	"github.com/ManuGH/portmux/internal/sock"
)

// reserveListenAddr grabs a free TCP port and releases it again; the test
// then binds it with SO_REUSEPORT.
func reserveListenAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestReusePortWorker_AcceptAndUnbind(t *testing.T) {
	addr := reserveListenAddr(t)
	w := NewReusePort(Config{Addr: addr, CPU: -1}, log.WithComponent("test"))
	require.NoError(t, w.Bind(context.Background()))

	client, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer client.Close()

	c, err := w.Accept()
	require.NoError(t, err)
	_ = c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, w.Unbind(ctx))

	_, err = w.Accept()
	assert.ErrorIs(t, err, ErrDrained)

	require.NoError(t, w.Stop(ctx))
}

func TestReusePortWorkers_ShareAddress(t *testing.T) {
	addr := reserveListenAddr(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	first := NewReusePort(Config{Addr: addr, CPU: -1}, log.WithComponent("test"))
	second := NewReusePort(Config{Addr: addr, CPU: -1}, log.WithComponent("test"))

	require.NoError(t, first.Bind(ctx))
	require.NoError(t, second.Bind(ctx), "second worker must bind the same address via SO_REUSEPORT")

	require.NoError(t, first.Stop(ctx))
	require.NoError(t, second.Stop(ctx))
}

func TestReusePortWorker_StopWithoutBind(t *testing.T) {
	w := NewReusePort(Config{Addr: "127.0.0.1:0", CPU: -1}, log.WithComponent("test"))
	ctx := context.Background()
	require.NoError(t, w.Stop(ctx))
	require.NoError(t, w.Stop(ctx))

	// A bind after stop must not leak a socket.
	err := w.Bind(ctx)
	require.Error(t, err)
}

func TestReusePortWorker_StopClosesUnconsumed(t *testing.T) {
	addr := reserveListenAddr(t)
	w := NewReusePort(Config{Addr: addr, CPU: -1}, log.WithComponent("test"))
	require.NoError(t, w.Bind(context.Background()))

	client, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer client.Close()

	// Give the accept loop time to queue the connection, then stop without
	// ever consuming it.
	time.Sleep(100 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))
}

func TestAcceptor_RoundRobinDispatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acceptor.sock")
	s, err := sock.ListenPath(path, sock.Options{})
	require.NoError(t, err)

	logger := log.WithComponent("test")
	workers := []*DispatchWorker{
		NewDispatch(Config{CPU: -1}, logger),
		NewDispatch(Config{CPU: -1}, logger),
	}
	a := NewAcceptor(s, workers, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, w := range workers {
		require.NoError(t, w.Bind(ctx))
	}
	require.NoError(t, a.Bind(ctx))

	const dials = 4
	for i := 0; i < dials; i++ {
		c, err := net.Dial("unix", path)
		require.NoError(t, err)
		defer c.Close()
	}

	// Every dialed connection must surface through exactly one worker.
	got := make(chan net.Conn, dials)
	for _, w := range workers {
		go func(w *DispatchWorker) {
			for {
				c, err := w.Accept()
				if err != nil {
					return
				}
				got <- c
			}
		}(w)
	}

	for i := 0; i < dials; i++ {
		select {
		case c := <-got:
			_ = c.Close()
		case <-time.After(3 * time.Second):
			t.Fatalf("connection %d was never dispatched", i)
		}
	}

	require.NoError(t, a.Unbind(ctx))
	for _, w := range workers {
		require.NoError(t, w.Unbind(ctx))
	}
	for _, w := range workers {
		require.NoError(t, w.Stop(ctx))
	}
	require.NoError(t, a.Stop(ctx))
}

func TestAcceptor_RequiresWorkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acceptor.sock")
	s, err := sock.ListenPath(path, sock.Options{})
	require.NoError(t, err)
	defer s.Close()

	a := NewAcceptor(s, nil, log.WithComponent("test"))
	require.Error(t, a.Bind(context.Background()))
}
