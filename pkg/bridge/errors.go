// Package bridge mediates every cross-boundary interaction of a run: it
// validates the host-supplied inputs and externals against the script's
// manifest, drives the engine session, services suspension events, and maps
// the terminal state to exactly one outcome.
package bridge

import (
	"fmt"

	"scriptgate/sandbox-go/pkg/engine"
)

// ConfigError reports a host configuration mistake, e.g. missing limits.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "bridge: configuration error: " + e.Reason }

// InputValidationError reports a supplied input set that does not satisfy
// the manifest's input declarations. Returned before any engine session
// starts.
type InputValidationError struct {
	Name   string
	Reason string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("bridge: input %q: %s", e.Name, e.Reason)
}

// MissingExternalError reports a declared external with no host-supplied
// implementation. Returned before any engine session starts.
type MissingExternalError struct {
	Name string
}

func (e *MissingExternalError) Error() string {
	return fmt.Sprintf("bridge: no implementation supplied for external %q", e.Name)
}

// ArgumentValidationError reports a value crossing the external-call
// boundary that violates the declared schema. Result distinguishes a host
// return value from script-supplied arguments; either way the offending
// value never reaches the other side.
type ArgumentValidationError struct {
	External string
	Param    string
	Reason   string
	Result   bool
}

func (e *ArgumentValidationError) Error() string {
	if e.Result {
		return fmt.Sprintf("bridge: external %q returned a value violating its declared schema: %s", e.External, e.Reason)
	}
	return fmt.Sprintf("bridge: external %q argument %q: %s", e.External, e.Param, e.Reason)
}

// ScriptRuntimeError is a fault the script itself raised (or a routed host
// error it did not catch).
type ScriptRuntimeError struct {
	Message string
	// External names the host function the fault originated from, when it
	// did.
	External string
	Line     int
	Col      int
}

func (e *ScriptRuntimeError) Error() string {
	msg := "script error: " + e.Message
	if e.Line > 0 {
		msg = fmt.Sprintf("%s (at %d:%d)", msg, e.Line, e.Col)
	}
	if e.External != "" {
		msg = fmt.Sprintf("%s (from external %q)", msg, e.External)
	}
	return msg
}

// SandboxFault is an engine-internal or bridge-internal defect. Always fatal
// to the session, always logged, never swallowed.
type SandboxFault struct {
	Message string
}

func (e *SandboxFault) Error() string { return "sandbox fault: " + e.Message }

// LimitError reports a breached resource bound. No partial value accompanies
// it, and the same limits should not be retried.
type LimitError struct {
	Kind engine.LimitKind
}

func (e *LimitError) Error() string { return fmt.Sprintf("%s limit exceeded", e.Kind) }
