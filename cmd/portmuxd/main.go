// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// portmuxd is a demonstration echo daemon built on the multi-worker
// listener: it binds the configured endpoint, fans acceptance out across
// worker threads, and echoes every byte back until shut down.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ManuGH/portmux/internal/config"
	"github.com/ManuGH/portmux/internal/listener"
	pmlog "github.com/ManuGH/portmux/internal/log"
	"github.com/ManuGH/portmux/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.FromEnv()

	flag.StringVar(&cfg.Listen, "listen", cfg.Listen, "endpoint: host:port, unix:/path, or fd:N")
	flag.IntVar(&cfg.Threads, "threads", cfg.Threads, "worker count (0 = GOMAXPROCS)")
	flag.BoolVar(&cfg.SetThreadAffinity, "affinity", cfg.SetThreadAffinity, "pin worker accept threads to CPUs")
	flag.BoolVar(&cfg.DeferAccept, "defer-accept", cfg.DeferAccept, "enable TCP_DEFER_ACCEPT")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("portmuxd %s (%s, %s)\n", version.Version, version.Commit, version.Date)
		return
	}

	pmlog.Configure(pmlog.Config{Level: cfg.LogLevel, Service: "portmuxd"})
	logger := pmlog.WithComponent("main")

	logger.Info().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str(pmlog.FieldEndpoint, cfg.Listen).
		Int(pmlog.FieldThreads, cfg.Threads).
		Bool("affinity", cfg.SetThreadAffinity).
		Msg("starting portmuxd")

	if err := run(cfg); err != nil {
		logger.Error().Err(err).Msg("portmuxd failed")
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return err
	}

	l, err := listener.New(endpoint, cfg.ListenerOptions(), pmlog.WithComponent("listener"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := l.Bind(ctx); err != nil {
		return fmt.Errorf("bind %s: %w", endpoint, err)
	}

	var wg sync.WaitGroup
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		serve(l, &wg)
	}()

	// Block until a shutdown signal arrives or the accept stream ends on
	// its own.
	select {
	case <-ctx.Done():
	case <-serveDone:
	}

	// Bounded teardown independent of the parent context: unbind stops the
	// intake, draining finishes in-flight echoes, shutdown releases the
	// sockets and threads.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	logger := pmlog.WithComponent("main")
	if err := l.Unbind(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("unbind failed")
	}
	<-serveDone
	wg.Wait()
	return l.Shutdown(shutdownCtx)
}

// serve pulls the merged accept stream and echoes each connection on its own
// goroutine until the stream ends.
func serve(l *listener.Listener, wg *sync.WaitGroup) {
	logger := pmlog.WithComponent("serve")
	for {
		c, err := l.Accept(context.Background())
		if err != nil {
			if !errors.Is(err, listener.ErrDrained) && !errors.Is(err, listener.ErrStopped) {
				logger.Error().Err(err).Msg("accept failed")
			}
			return
		}
		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			if _, err := io.Copy(c, c); err != nil {
				logger.Debug().Err(err).Msg("echo ended with error")
			}
		}(c)
	}
}
