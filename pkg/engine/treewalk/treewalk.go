// Package treewalk is a reference engine for the boundary contract in
// pkg/engine: a tree-walking evaluator for generated programs with
// recursion, allocation, memory, and duration accounting. It executes only
// the generated instruction vocabulary; no evaluator path touches the
// filesystem, the network, or dynamic code, so scripts cannot reach them.
//
// Hosts may substitute any conforming engine; the bridge depends only on the
// pkg/engine interfaces.
package treewalk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"scriptgate/sandbox-go/pkg/codegen"
	"scriptgate/sandbox-go/pkg/engine"
)

// Engine starts tree-walk sessions.
type Engine struct{}

// New returns a stateless engine; one instance serves any number of
// concurrent sessions.
func New() *Engine { return &Engine{} }

// Start begins one session. The evaluator runs on its own goroutine and
// rendezvouses with the caller through the session's event channel, so the
// engine and the caller never execute concurrently against the same session.
func (e *Engine) Start(ctx context.Context, program *codegen.Program, limits engine.Limits, inputs map[string]engine.Value) (engine.Session, error) {
	if program == nil {
		return nil, fmt.Errorf("treewalk: nil program")
	}
	if program.FormatVersion != codegen.FormatVersion {
		return nil, fmt.Errorf("treewalk: unsupported program format %d", program.FormatVersion)
	}
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("treewalk: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &session{
		cancel: cancel,
		events: make(chan engine.Event),
		resume: make(chan []engine.CallResult),
		done:   make(chan struct{}),
	}
	ip := newInterp(runCtx, s, program, limits, inputs)
	go func() {
		defer close(s.done)
		ip.run()
	}()
	return s, nil
}

var errSessionSpent = errors.New("treewalk: session already reached a terminal state")

type session struct {
	cancel context.CancelFunc
	events chan engine.Event
	resume chan []engine.CallResult

	done chan struct{}

	mu        sync.Mutex
	suspended bool
	terminal  bool
	closed    bool
}

// Step blocks until the evaluator emits the next event.
func (s *session) Step(ctx context.Context) (engine.Event, error) {
	s.mu.Lock()
	if s.terminal || s.closed {
		s.mu.Unlock()
		return engine.Event{}, errSessionSpent
	}
	if s.suspended {
		s.mu.Unlock()
		return engine.Event{}, errors.New("treewalk: session is suspended; resume it first")
	}
	s.mu.Unlock()

	select {
	case ev := <-s.events:
		s.mu.Lock()
		switch ev.Kind {
		case engine.EventSuspended:
			s.suspended = true
		default:
			s.terminal = true
		}
		s.mu.Unlock()
		return ev, nil
	case <-ctx.Done():
		return engine.Event{}, ctx.Err()
	case <-s.done:
		return engine.Event{}, errors.New("treewalk: session terminated")
	}
}

// Resume hands the pending calls' outcomes back to the evaluator. Exactly
// one Resume is accepted per suspension.
func (s *session) Resume(results []engine.CallResult) error {
	s.mu.Lock()
	if s.terminal || s.closed {
		s.mu.Unlock()
		return errSessionSpent
	}
	if !s.suspended {
		s.mu.Unlock()
		return errors.New("treewalk: session is not suspended")
	}
	s.suspended = false
	s.mu.Unlock()

	select {
	case s.resume <- results:
		return nil
	case <-s.done:
		return errors.New("treewalk: session terminated")
	}
}

// Close cancels the evaluator and waits for it to exit. Closing a session is
// idempotent; a closed session never resumes.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
	return nil
}

// emit parks the evaluator until the caller consumes the event.
func (s *session) emit(ctx context.Context, ev engine.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// await blocks the evaluator until Resume supplies outcomes.
func (s *session) await(ctx context.Context) ([]engine.CallResult, bool) {
	select {
	case results := <-s.resume:
		return results, true
	case <-ctx.Done():
		return nil, false
	}
}
