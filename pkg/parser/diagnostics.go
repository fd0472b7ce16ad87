package parser

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"scriptgate/sandbox-go/pkg/ast"
)

// DiagnosticKind classifies a non-blocking diagnostic.
type DiagnosticKind string

const (
	// DiagWarning marks degraded behavior, e.g. a declaration whose missing
	// annotation downgrades its schema checking to a no-op.
	DiagWarning DiagnosticKind = "warning"
	// DiagError marks a blocking finding in check() output.
	DiagError DiagnosticKind = "error"
)

// Diagnostic is a located, non-fatal finding.
type Diagnostic struct {
	Kind     DiagnosticKind
	Message  string
	Location ast.Span
}

// ParseError reports malformed syntax with a best-effort source location.
type ParseError struct {
	Message  string
	Location ast.Span
}

func (e *ParseError) Error() string {
	if e.Location == (ast.Span{}) {
		return e.Message
	}
	return fmt.Sprintf("%s at %d:%d", e.Message, e.Location.Line, e.Location.Column)
}

// ValidationError reports one disallowed construct or contract violation,
// naming the construct and its location.
type ValidationError struct {
	Construct string
	Message   string
	Location  ast.Span
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s at %d:%d: %s", e.Construct, e.Location.Line, e.Location.Column, e.Message)
}

// ValidationErrors aggregates every violation found in one validation pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("%d violations: %s", len(e), strings.Join(msgs, "; "))
}

func locationForNode(node *sitter.Node) ast.Span {
	if node == nil {
		return ast.Span{}
	}
	start := node.StartPosition()
	end := node.EndPosition()
	return ast.Span{
		Line:      int(start.Row) + 1,
		Column:    int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndColumn: int(end.Column) + 1,
	}
}

func syntaxError(root *sitter.Node) *ParseError {
	errorNode := findFirstMissingNode(root)
	if errorNode == nil {
		errorNode = findFirstErrorNode(root)
	}
	if errorNode == nil {
		errorNode = root
	}
	message := "syntax error"
	if errorNode.IsMissing() {
		message = fmt.Sprintf("syntax error: missing %s", errorNode.Kind())
	}
	return &ParseError{Message: message, Location: locationForNode(errorNode)}
}

func findFirstMissingNode(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsMissing() {
		return node
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if found := findFirstMissingNode(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

func findFirstErrorNode(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsError() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if found := findFirstErrorNode(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}
