// Package codegen lowers a validated script into an engine-consumable
// program. Generation is deterministic: the same validated script and
// manifest always produce byte-identical output, which makes the program a
// stable cache payload.
package codegen

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Node is one instruction of the generated program. The encoding is a
// map-free struct tree so the canonical JSON form is byte-deterministic.
//
// Ops: statements are assign, expr, if, for, while, break, continue, pass,
// return, raise, try, block; expressions are name, int, float, str, bool,
// none, list, dict, binop, unary, cond, subscript, listcomp, kwarg, and the
// three call forms. Input references lower to load_input placeholders bound
// by name at run time; external calls lower to call_external placeholders
// carrying the manifest index of the target declaration.
type Node struct {
	Op    string  `json:"op"`
	Str   string  `json:"str,omitempty"`
	Int   int64   `json:"int,omitempty"`
	Float float64 `json:"float,omitempty"`
	Bool  bool    `json:"bool,omitempty"`
	Index int     `json:"index,omitempty"`
	Kids  []Node  `json:"kids,omitempty"`
	Line  int     `json:"line,omitempty"`
	Col   int     `json:"col,omitempty"`
}

// Func is a lowered script-local function.
type Func struct {
	Name   string   `json:"name"`
	Params []string `json:"params,omitempty"`
	Body   []Node   `json:"body,omitempty"`
}

// Program is the engine-consumable representation of a validated script.
// It is immutable after generation and safe to share across sessions.
type Program struct {
	FormatVersion int    `json:"format_version"`
	SourceHash    string `json:"source_hash"`
	ManifestHash  string `json:"manifest_hash"`
	Funcs         []Func `json:"funcs,omitempty"`
	Body          []Node `json:"body,omitempty"`
	Result        *Node  `json:"result,omitempty"`
}

// FormatVersion identifies the program encoding; bump on any change to the
// Node vocabulary so stale cache entries never reach an engine.
const FormatVersion = 1

// Encode renders the canonical byte form of the program.
func (p *Program) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, &InternalError{Message: fmt.Sprintf("encode program: %v", err)}
	}
	return data, nil
}

// Decode restores a program from its canonical byte form.
func Decode(data []byte) (*Program, error) {
	var p Program
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("codegen: decode program: %w", err)
	}
	if p.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("codegen: unsupported program format %d", p.FormatVersion)
	}
	return &p, nil
}

// Hash returns the hex sha256 of the canonical encoding.
func (p *Program) Hash() (string, error) {
	data, err := p.Encode()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// InternalError reports a generator invariant violation. Validation already
// guarantees well-formed syntax, so one of these indicates a defect in the
// bridge, never a user error.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return "codegen: internal error: " + e.Message
}
