package bridge

import (
	"fmt"

	"scriptgate/sandbox-go/pkg/ast"
	"scriptgate/sandbox-go/pkg/codegen"
	"scriptgate/sandbox-go/pkg/manifest"
	"scriptgate/sandbox-go/pkg/parser"
)

// CheckResult is the outcome of a dry validation.
type CheckResult struct {
	OK          bool
	Diagnostics []parser.Diagnostic
}

// Check statically confirms that every external reference in the program
// resolves in the manifest and that literal-inferable values are
// type-consistent: literal arguments at external call sites against the
// declared parameter schema, and typed inputs against literal operands they
// can never combine with. It never starts an engine run and never invokes a
// host implementation.
func Check(program *codegen.Program, mf *manifest.Manifest) CheckResult {
	c := &checker{mf: mf}
	if program == nil {
		c.errorf(codegen.Node{}, "nil program")
		return c.result()
	}
	for _, fn := range program.Funcs {
		c.walkAll(fn.Body)
	}
	c.walkAll(program.Body)
	if program.Result != nil {
		c.walk(*program.Result)
	}
	return c.result()
}

type checker struct {
	mf    *manifest.Manifest
	diags []parser.Diagnostic
	bad   bool
}

func (c *checker) result() CheckResult {
	return CheckResult{OK: !c.bad, Diagnostics: c.diags}
}

func (c *checker) errorf(n codegen.Node, format string, args ...any) {
	c.bad = true
	c.diags = append(c.diags, parser.Diagnostic{
		Kind:     parser.DiagError,
		Message:  fmt.Sprintf(format, args...),
		Location: ast.Span{Line: n.Line, Column: n.Col},
	})
}

func (c *checker) walkAll(nodes []codegen.Node) {
	for _, n := range nodes {
		c.walk(n)
	}
}

func (c *checker) walk(n codegen.Node) {
	switch n.Op {
	case "load_input":
		if _, ok := c.mf.Input(n.Str); !ok {
			c.errorf(n, "input %q is not declared in the manifest", n.Str)
		}
	case "call_external":
		c.checkExternalCall(n)
	case "binop":
		if len(n.Kids) == 2 {
			c.checkInputOperand(n.Str, n.Kids[0], n.Kids[1])
			c.checkInputOperand(n.Str, n.Kids[1], n.Kids[0])
		}
	}
	c.walkAll(n.Kids)
}

// checkInputOperand flags a typed input paired with a literal operand it can
// never combine with. Equality and membership accept mixed types, and any
// numeric literal pairs with a numeric input, so only clear mismatches are
// reported.
func (c *checker) checkInputOperand(op string, lhs, rhs codegen.Node) {
	switch op {
	case "==", "!=", "in", "not in", "and", "or":
		return
	}
	if lhs.Op != "load_input" {
		return
	}
	decl, ok := c.mf.Input(lhs.Str)
	if !ok || decl.Type.IsAny() {
		return
	}
	value, ok := literalValue(rhs)
	if !ok {
		return
	}
	if numericKind(decl.Type.Kind) && numericValue(value) {
		return
	}
	if err := decl.Type.Check(value); err != nil {
		c.errorf(rhs, "input %q used with an incompatible literal: %v", lhs.Str, err)
	}
}

func numericKind(k manifest.Kind) bool {
	return k == manifest.KindInt || k == manifest.KindFloat
}

func numericValue(v any) bool {
	switch v.(type) {
	case int64, float64, bool:
		return true
	}
	return false
}

// checkExternalCall resolves the manifest index and type-checks every
// literal argument against the declared parameter schema. Non-literal
// arguments are only known at run time and are checked there.
func (c *checker) checkExternalCall(n codegen.Node) {
	decl, err := c.mf.External(n.Index)
	if err != nil || decl.Name != n.Str {
		c.errorf(n, "external call %q does not resolve in the manifest (index %d)", n.Str, n.Index)
		return
	}

	pos := 0
	for _, kid := range n.Kids {
		if kid.Op == "kwarg" {
			param, ok := declParam(decl, kid.Str)
			if !ok {
				c.errorf(kid, "external %q has no parameter %q", decl.Name, kid.Str)
				continue
			}
			c.checkLiteral(kid.Kids[0], decl.Name, param)
			continue
		}
		if pos >= len(decl.Params) {
			c.errorf(kid, "external %q takes %d parameters, got more", decl.Name, len(decl.Params))
			pos++
			continue
		}
		c.checkLiteral(kid, decl.Name, decl.Params[pos])
		pos++
	}
}

func (c *checker) checkLiteral(n codegen.Node, external string, param manifest.Param) {
	value, ok := literalValue(n)
	if !ok {
		return
	}
	if err := param.Type.Check(value); err != nil {
		c.errorf(n, "external %q argument %q: %v", external, param.Name, err)
	}
}

func declParam(decl manifest.ExternalDeclaration, name string) (manifest.Param, bool) {
	for _, p := range decl.Params {
		if p.Name == name {
			return p, true
		}
	}
	return manifest.Param{}, false
}

// literalValue reconstructs a value from a literal node tree; the second
// result is false for anything computed at run time.
func literalValue(n codegen.Node) (any, bool) {
	switch n.Op {
	case "int":
		return n.Int, true
	case "float":
		return n.Float, true
	case "str":
		return n.Str, true
	case "bool":
		return n.Bool, true
	case "none":
		return nil, true
	case "list":
		out := make([]any, 0, len(n.Kids))
		for _, kid := range n.Kids {
			v, ok := literalValue(kid)
			if !ok {
				return nil, false
			}
			out = append(out, v)
		}
		return out, true
	case "dict":
		out := make(map[string]any, len(n.Kids)/2)
		for i := 0; i+1 < len(n.Kids); i += 2 {
			if n.Kids[i].Op != "str" {
				return nil, false
			}
			v, ok := literalValue(n.Kids[i+1])
			if !ok {
				return nil, false
			}
			out[n.Kids[i].Str] = v
		}
		return out, true
	default:
		return nil, false
	}
}
