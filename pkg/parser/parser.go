// Package parser parses restricted-dialect source with tree-sitter and
// validates the resulting tree against the dialect's allow-list, extracting
// the script's declared contract along the way.
package parser

import (
	"fmt"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tspython "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"scriptgate/sandbox-go/pkg/ast"
	"scriptgate/sandbox-go/pkg/manifest"
)

// ValidatedScript is the validator's output: the restricted AST, the derived
// manifest, and non-blocking diagnostics.
type ValidatedScript struct {
	Source      *Source
	AST         *ast.Script
	Manifest    manifest.Manifest
	Diagnostics []Diagnostic
}

// ScriptParser wraps a tree-sitter parser configured for the dialect's
// grammar. It is not safe for concurrent use; callers hold one per
// goroutine or serialize access.
type ScriptParser struct {
	parser *sitter.Parser
}

// NewScriptParser constructs a parser with the dialect grammar loaded.
func NewScriptParser() (*ScriptParser, error) {
	lang := sitter.NewLanguage(tspython.Language())
	if lang == nil {
		return nil, fmt.Errorf("parser: dialect grammar not available")
	}

	p := sitter.NewParser()
	if err := p.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("parser: %w", err)
	}

	return &ScriptParser{parser: p}, nil
}

// Close releases parser resources.
func (p *ScriptParser) Close() {
	if p == nil || p.parser == nil {
		return
	}
	p.parser.Close()
}

// Validate parses source and walks the tree against the allow-list. It
// returns a *ParseError for malformed syntax, ValidationErrors when any
// disallowed construct or contract violation is present (the walk collects
// all of them in one pass), and otherwise the validated script with its
// manifest and warning diagnostics.
func (p *ScriptParser) Validate(src *Source) (*ValidatedScript, error) {
	if p == nil || p.parser == nil {
		return nil, fmt.Errorf("parser: nil parser")
	}
	if src == nil {
		return nil, fmt.Errorf("parser: nil source")
	}

	tree := p.parser.Parse(src.Bytes(), nil)
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.Kind() != "module" {
		return nil, &ParseError{Message: "parser: unexpected root node"}
	}
	if root.HasError() {
		return nil, syntaxError(root)
	}

	w := newWalker(src.Bytes())
	script := w.walkModule(root)
	if len(w.errs) > 0 {
		return nil, w.errs
	}

	return &ValidatedScript{
		Source:      src,
		AST:         script,
		Manifest:    w.mf,
		Diagnostics: w.diags,
	}, nil
}

// Validate is a convenience wrapper that builds a parser for one call.
func Validate(source string) (*ValidatedScript, error) {
	p, err := NewScriptParser()
	if err != nil {
		return nil, err
	}
	defer p.Close()
	return p.Validate(NewSource(source))
}
