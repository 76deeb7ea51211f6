// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package listener

import (
	"errors"
	"net"

	"github.com/rs/zerolog"

	"github.com/ManuGH/portmux/internal/worker"
)

// acceptStream merges the accept operations of all source handlers into one
// pull-based sequence. Each slot keeps exactly one in-flight accept per
// still-live handler: when a slot completes with a connection it is re-armed
// immediately, so memory use stays flat no matter how many connections the
// listener ever accepts. A slot whose handler reports end-of-stream is
// retired and never re-armed; the stream ends once every slot has retired.
//
// The stream is built once after a successful bind and is driven by a single
// logical consumer.
type acceptStream struct {
	sources []worker.Handler
	// completions is buffered to one entry per slot so a retiring slot's
	// final send never blocks, even with no consumer left.
	completions chan slotResult
	live        int
	log         zerolog.Logger
}

type slotResult struct {
	slot int
	conn net.Conn
	err  error
}

func newAcceptStream(sources []worker.Handler, logger zerolog.Logger) *acceptStream {
	s := &acceptStream{
		sources:     sources,
		completions: make(chan slotResult, len(sources)),
		live:        len(sources),
		log:         logger,
	}
	for i := range sources {
		s.arm(i)
	}
	return s
}

// arm issues the slot's next accept operation.
func (s *acceptStream) arm(slot int) {
	h := s.sources[slot]
	go func() {
		c, err := h.Accept()
		s.completions <- slotResult{slot: slot, conn: c, err: err}
	}()
}

// discard closes connections still parked in the completions buffer. Called
// during shutdown after every source handler has stopped, when no consumer
// will pull them out.
func (s *acceptStream) discard() {
	for {
		select {
		case r := <-s.completions:
			if r.conn != nil {
				_ = r.conn.Close()
			}
		default:
			return
		}
	}
}

// next races all in-flight slots and returns whichever connection completes
// first; ordering across slots is demand-driven and unspecified. It returns
// ErrDrained once all slots have retired, and keeps returning it.
func (s *acceptStream) next() (net.Conn, error) {
	for s.live > 0 {
		r := <-s.completions
		if r.err != nil {
			s.live--
			if errors.Is(r.err, worker.ErrDrained) {
				s.log.Debug().Int("slot", r.slot).Int("live", s.live).Msg("accept slot retired")
				continue
			}
			return nil, r.err
		}
		s.arm(r.slot)
		return r.conn, nil
	}
	return nil, ErrDrained
}
