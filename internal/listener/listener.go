// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package listener orchestrates multi-worker connection acceptance for one
// logical endpoint. It drives the bind → accept → unbind → shutdown
// lifecycle, chooses the acceptance architecture per endpoint kind, computes
// a topology-aware CPU placement for the worker threads, and merges every
// worker's accept operations into one pull-based connection stream.
package listener

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/portmux/internal/cputopo"
	"github.com/ManuGH/portmux/internal/log"
	"github.com/ManuGH/portmux/internal/sock"
	"github.com/ManuGH/portmux/internal/worker"
)

// Options is the immutable listener configuration.
type Options struct {
	// Threads is the number of worker handlers. Zero means GOMAXPROCS.
	Threads int

	// SetThreadAffinity pins each worker's accept thread to its planned CPU.
	SetThreadAffinity bool

	// CPUSet overrides topology auto-discovery. Used verbatim, cycled
	// modulo its length when Threads exceeds it.
	CPUSet []int

	// ReceiveOnIncomingCPU sets SO_INCOMING_CPU on worker sockets.
	ReceiveOnIncomingCPU bool

	// DeferAccept sets TCP_DEFER_ACCEPT on worker sockets.
	DeferAccept bool
}

// handlerSet is the outcome of endpoint-kind dispatch: the workers that feed
// the merged stream, plus the optional shared acceptor.
type handlerSet struct {
	workers  []worker.Handler
	acceptor worker.Handler
}

// all returns the tracked handlers, workers first, acceptor last.
func (h handlerSet) all() []worker.Handler {
	out := slices.Clone(h.workers)
	if h.acceptor != nil {
		out = append(out, h.acceptor)
	}
	return out
}

// Listener is the transport orchestrator for one endpoint.
type Listener struct {
	endpoint Endpoint
	opts     Options
	log      zerolog.Logger

	// mu is the gate: it serializes state transitions and guards the
	// handler slice and stream reference. All socket I/O happens outside it.
	mu       sync.Mutex
	state    State
	handlers []worker.Handler
	stream   *acceptStream

	// Seams for tests.
	discover func() (cputopo.Topology, error)
	build    func(plan []int) (handlerSet, error)
}

// New validates the configuration and creates a listener in the Created
// state. Nothing is bound yet.
func New(endpoint Endpoint, opts Options, logger zerolog.Logger) (*Listener, error) {
	if endpoint == nil {
		return nil, ErrNilEndpoint
	}
	if opts.Threads < 0 {
		return nil, fmt.Errorf("listener: invalid thread count %d", opts.Threads)
	}
	if opts.Threads == 0 {
		opts.Threads = runtime.GOMAXPROCS(0)
	}
	for _, cpu := range opts.CPUSet {
		if cpu < 0 {
			return nil, fmt.Errorf("listener: invalid CPU id %d in CPU set", cpu)
		}
	}

	l := &Listener{
		endpoint: endpoint,
		opts:     opts,
		log: logger.With().
			Str(log.FieldEndpoint, endpoint.String()).
			Logger(),
		state:    StateCreated,
		discover: cputopo.Discover,
	}
	l.build = l.buildHandlers
	return l, nil
}

// State reports the current lifecycle state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Bind creates and binds all handlers for the endpoint. It is legal exactly
// once, from the Created state. On any handler failure every handler created
// by this attempt is torn down and the original failure is returned: bind is
// all-or-nothing from the caller's perspective. A concurrent Unbind or
// Shutdown supersedes an in-flight bind; the superseded bind tears down its
// handlers and reports an error instead of committing.
func (l *Listener) Bind(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateCreated {
		st := l.state
		l.mu.Unlock()
		return fmt.Errorf("%w: bind from state %s", ErrInvalidState, st)
	}
	l.state = StateBinding
	l.mu.Unlock()

	l.log.Info().
		Str(log.FieldEvent, "listener.binding").
		Int(log.FieldThreads, l.opts.Threads).
		Msg("binding listener")

	set, err := l.build(l.plan())
	if err != nil {
		// Nothing was registered; a full shutdown still settles the state.
		l.log.Error().Err(err).Str(log.FieldEvent, "listener.bind.failed").Msg("handler construction failed")
		_ = l.Shutdown(context.WithoutCancel(ctx))
		return err
	}

	l.mu.Lock()
	if l.state >= StateUnbinding {
		// Unbind or Shutdown raced the bind before the handlers were
		// registered; they are ours to tear down.
		stopped := l.state >= StateStopping
		l.mu.Unlock()
		l.stopHandlers(context.WithoutCancel(ctx), set.all())
		if stopped {
			return fmt.Errorf("%w: stopped during bind", ErrStopped)
		}
		return fmt.Errorf("%w: unbound during bind", ErrInvalidState)
	}
	l.handlers = set.all()
	l.mu.Unlock()

	if err := l.bindHandlers(ctx, set); err != nil {
		l.log.Error().Err(err).Str(log.FieldEvent, "listener.bind.failed").Msg("handler bind failed, tearing down")
		_ = l.Shutdown(context.WithoutCancel(ctx))
		return err
	}

	l.mu.Lock()
	if l.state >= StateStopping {
		l.mu.Unlock()
		return fmt.Errorf("%w: stopped during bind", ErrStopped)
	}
	if l.state >= StateUnbinding {
		// A concurrent unbind superseded the bind. It already unbound the
		// registered handlers; finish the job by stopping them so the
		// just-created sockets are released.
		l.mu.Unlock()
		l.stopHandlers(context.WithoutCancel(ctx), set.all())
		return fmt.Errorf("%w: unbound during bind", ErrInvalidState)
	}
	if l.state != StateBinding {
		st := l.state
		l.mu.Unlock()
		panic(fmt.Sprintf("listener: state %s at bind commit, expected %s", st, StateBinding))
	}
	l.state = StateBound
	l.stream = newAcceptStream(set.workers, l.log)
	l.mu.Unlock()

	l.log.Info().
		Str(log.FieldEvent, "listener.bound").
		Int("handlers", len(set.all())).
		Msg("listener bound")
	return nil
}

// Accept returns the next connection from the merged stream, or ErrDrained
// once every worker's accept source has ended. The context must not be
// cancellable: acceptance cannot be cancelled at this layer, so a context
// with a Done channel is a usage error, not a cancellation.
func (l *Listener) Accept(ctx context.Context) (net.Conn, error) {
	if ctx != nil && ctx.Done() != nil {
		return nil, ErrNoCancellation
	}

	l.mu.Lock()
	if l.state >= StateStopping {
		l.mu.Unlock()
		return nil, ErrStopped
	}
	stream := l.stream
	l.mu.Unlock()

	if stream == nil {
		return nil, fmt.Errorf("%w: accept before bind", ErrInvalidState)
	}
	return stream.next()
}

// Unbind stops every handler from taking new connections. Connections
// already accepted remain retrievable via Accept until the stream drains.
// Idempotent: calls at or past Unbinding are no-ops.
func (l *Listener) Unbind(ctx context.Context) error {
	l.mu.Lock()
	if l.state >= StateUnbinding {
		l.mu.Unlock()
		return nil
	}
	from := l.state
	l.state = StateUnbinding
	handlers := slices.Clone(l.handlers)
	l.mu.Unlock()

	l.log.Info().
		Str(log.FieldEvent, "listener.unbinding").
		Str(log.FieldOldState, from.String()).
		Msg("unbinding listener")

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handlers {
		h := h
		g.Go(func() error { return h.Unbind(gctx) })
	}
	err := g.Wait()

	l.mu.Lock()
	switch {
	case l.state == StateUnbinding:
		l.state = StateUnbound
	case l.state >= StateStopping:
		// A concurrent shutdown superseded the unbind; it owns the rest
		// of the teardown.
	default:
		st := l.state
		l.mu.Unlock()
		panic(fmt.Sprintf("listener: state %s at unbind commit, expected %s", st, StateUnbinding))
	}
	l.mu.Unlock()
	return err
}

// Shutdown stops all handlers and releases every resource. Legal from any
// state, with or without a prior Unbind, and idempotent: once the listener
// is stopping, further calls are no-ops. This is the only path that releases
// sockets and worker threads.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if l.state >= StateStopping {
		l.mu.Unlock()
		return nil
	}
	from := l.state
	l.state = StateStopping
	handlers := slices.Clone(l.handlers)
	stream := l.stream
	l.mu.Unlock()

	l.log.Info().
		Str(log.FieldEvent, "listener.stopping").
		Str(log.FieldOldState, from.String()).
		Msg("stopping listener")

	err := l.stopHandlers(ctx, handlers)
	if stream != nil {
		stream.discard()
	}

	l.mu.Lock()
	if l.state != StateStopping {
		st := l.state
		l.mu.Unlock()
		panic(fmt.Sprintf("listener: state %s at shutdown commit, expected %s", st, StateStopping))
	}
	l.state = StateStopped
	l.mu.Unlock()

	l.log.Info().Str(log.FieldEvent, "listener.stopped").Msg("listener stopped")
	return err
}

func (l *Listener) stopHandlers(ctx context.Context, handlers []worker.Handler) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handlers {
		h := h
		g.Go(func() error { return h.Stop(gctx) })
	}
	return g.Wait()
}

// bindHandlers binds all workers in parallel and, only once every worker is
// ready to receive connections, binds the acceptor. Binding the acceptor
// last keeps early connections from being dispatched into the void.
func (l *Listener) bindHandlers(ctx context.Context, set handlerSet) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range set.workers {
		h := h
		g.Go(func() error { return h.Bind(gctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if set.acceptor != nil {
		return set.acceptor.Bind(ctx)
	}
	return nil
}

// plan computes the per-worker CPU placement. Placement is only computed
// when something consumes it; discovery failure degrades to unpinned workers
// rather than failing the bind.
func (l *Listener) plan() []int {
	if len(l.opts.CPUSet) == 0 && !l.opts.SetThreadAffinity && !l.opts.ReceiveOnIncomingCPU {
		return nil
	}
	var topo cputopo.Topology
	if len(l.opts.CPUSet) == 0 {
		var err error
		topo, err = l.discover()
		if err != nil {
			l.log.Warn().Err(err).Msg("CPU topology discovery failed, workers stay unpinned")
			return nil
		}
	}
	plan := planCPUs(topo, l.opts.CPUSet, l.opts.Threads)
	if plan != nil {
		l.log.Debug().Ints(log.FieldCPUSet, plan).Msg("computed CPU placement")
	}
	return plan
}

// buildHandlers dispatches on the endpoint kind. TCP endpoints get N
// independently bound reuse-port workers. Path and fd endpoints get one
// shared listening socket wrapped in an acceptor plus N dispatch workers fed
// by it.
func (l *Listener) buildHandlers(plan []int) (handlerSet, error) {
	switch ep := l.endpoint.(type) {
	case TCPEndpoint:
		workers := make([]worker.Handler, l.opts.Threads)
		for i := range workers {
			workers[i] = worker.NewReusePort(worker.Config{
				Addr:                 ep.Addr,
				CPU:                  cpuFor(plan, i),
				PinThread:            l.opts.SetThreadAffinity,
				DeferAccept:          l.opts.DeferAccept,
				ReceiveOnIncomingCPU: l.opts.ReceiveOnIncomingCPU,
			}, l.log)
		}
		return handlerSet{workers: workers}, nil

	case UnixEndpoint:
		s, err := sock.ListenPath(ep.Path, sock.Options{Backlog: sock.DefaultBacklog})
		if err != nil {
			return handlerSet{}, err
		}
		return l.dispatchSet(s, plan), nil

	case FDEndpoint:
		s, err := sock.FromFD(ep.FD)
		if err != nil {
			return handlerSet{}, err
		}
		return l.dispatchSet(s, plan), nil

	default:
		return handlerSet{}, fmt.Errorf("listener: unsupported endpoint kind %T", l.endpoint)
	}
}

// dispatchSet builds the shared-acceptor architecture around an
// already-listening socket.
func (l *Listener) dispatchSet(s *sock.Socket, plan []int) handlerSet {
	dispatch := make([]*worker.DispatchWorker, l.opts.Threads)
	workers := make([]worker.Handler, l.opts.Threads)
	for i := range dispatch {
		dispatch[i] = worker.NewDispatch(worker.Config{CPU: cpuFor(plan, i)}, l.log)
		workers[i] = dispatch[i]
	}
	return handlerSet{
		workers:  workers,
		acceptor: worker.NewAcceptor(s, dispatch, l.log),
	}
}

func cpuFor(plan []int, i int) int {
	if len(plan) == 0 {
		return -1
	}
	return plan[i%len(plan)]
}
