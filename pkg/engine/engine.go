// Package engine defines the boundary contract with the isolated execution
// engine: the events it may emit, the single resume operation, and the
// resource limits every session runs under. The engine itself is an external
// collaborator; this package contains no execution semantics.
package engine

import (
	"context"

	"scriptgate/sandbox-go/pkg/codegen"
)

// Value is a boundary value: nil, bool, int64, float64, string, []any, or
// map[string]any.
type Value = any

// EventKind discriminates the events a session can emit.
type EventKind int

const (
	// EventCompleted carries the script's terminal value.
	EventCompleted EventKind = iota
	// EventFaulted carries a script-authored or engine-internal fault.
	EventFaulted
	// EventLimit reports a configured limit breach; no partial value
	// accompanies it.
	EventLimit
	// EventSuspended requests one or more external calls. The session is
	// parked until Resume supplies an outcome for every pending call.
	EventSuspended
)

// PendingCall is one requested external invocation.
type PendingCall struct {
	// Seq orders the calls within a single suspension event.
	Seq int
	// External is the declared external-function name.
	External string
	Args     []Value
	Kwargs   map[string]Value
}

// Fault describes a failed run.
type Fault struct {
	Message string
	// External names the host function a routed fault originated from, when
	// one did.
	External string
	// Internal marks engine defects, as opposed to script-authored faults.
	Internal bool
	Line     int
	Col      int
}

// Event is exactly one of a terminal value, a fault, a limit breach, or a
// suspension.
type Event struct {
	Kind  EventKind
	Value Value
	Fault *Fault
	Limit LimitKind
	Calls []PendingCall
}

// CallResult resolves one pending call: a validated value, or an error the
// engine routes into the script as a catchable fault.
type CallResult struct {
	Seq   int
	Value Value
	Err   error
}

// Session is one engine run. Sessions alternate strictly with the caller:
// Step runs the engine until it emits an event; after a suspension, exactly
// one Resume supplies the outcomes and re-arms Step. A session that has
// emitted a terminal event is spent; further calls fail.
type Session interface {
	Step(ctx context.Context) (Event, error)
	Resume(results []CallResult) error
	Close() error
}

// Engine starts sessions. Implementations must grant the program no ambient
// filesystem or network capability; the only host interaction surface is the
// suspension protocol above.
type Engine interface {
	Start(ctx context.Context, program *codegen.Program, limits Limits, inputs map[string]Value) (Session, error)
}
