package parser

import (
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"scriptgate/sandbox-go/pkg/ast"
	"scriptgate/sandbox-go/pkg/manifest"
)

// Builtins is the closed set of callable names the dialect provides.
var Builtins = map[string]bool{
	"len": true, "sum": true, "min": true, "max": true, "abs": true,
	"str": true, "int": true, "float": true, "bool": true, "round": true,
	"range": true,
}

// bannedCalls are filesystem/network/dynamic-code primitives. Naming one is a
// violation in its own right, distinct from calling an undeclared function.
var bannedCalls = map[string]string{
	"open":       "filesystem primitive",
	"exec":       "dynamic-code primitive",
	"eval":       "dynamic-code primitive",
	"compile":    "dynamic-code primitive",
	"__import__": "dynamic-code primitive",
	"globals":    "reflection primitive",
	"locals":     "reflection primitive",
	"vars":       "reflection primitive",
	"getattr":    "reflection primitive",
	"setattr":    "reflection primitive",
	"delattr":    "reflection primitive",
	"breakpoint": "debugger primitive",
}

type callRef struct {
	target string
	loc    ast.Span
}

type walker struct {
	source   []byte
	mf       manifest.Manifest
	diags    []Diagnostic
	errs     ValidationErrors
	declared map[string]ast.Span
	funcs    map[string]bool
	calls    []callRef
	awaited  map[string]bool
}

func newWalker(source []byte) *walker {
	return &walker{
		source:   source,
		declared: make(map[string]ast.Span),
		funcs:    make(map[string]bool),
		awaited:  make(map[string]bool),
	}
}

func (w *walker) text(node *sitter.Node) string {
	return node.Utf8Text(w.source)
}

func (w *walker) violate(node *sitter.Node, construct, format string, args ...any) {
	w.errs = append(w.errs, ValidationError{
		Construct: construct,
		Message:   fmt.Sprintf(format, args...),
		Location:  locationForNode(node),
	})
}

func (w *walker) warn(node *sitter.Node, format string, args ...any) {
	w.diags = append(w.diags, Diagnostic{
		Kind:     DiagWarning,
		Message:  fmt.Sprintf(format, args...),
		Location: locationForNode(node),
	})
}

// walkModule validates every top-level statement, folds the trailing
// top-level expression into the script result, and finalizes the manifest.
func (w *walker) walkModule(root *sitter.Node) *ast.Script {
	script := &ast.Script{}
	ast.SetSpan(script, locationForNode(root))

	var nodes []*sitter.Node
	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child.Kind() == "comment" {
			continue
		}
		nodes = append(nodes, child)
	}

	for i, node := range nodes {
		if i == len(nodes)-1 {
			if result, ok := w.trailingExpression(node); ok {
				script.Result = result
				break
			}
		}
		if s := w.topLevel(node); s != nil {
			script.Stmts = append(script.Stmts, s)
		}
	}

	w.resolveCalls()
	for i := range w.mf.Externals {
		if w.awaited[w.mf.Externals[i].Name] {
			w.mf.Externals[i].Async = true
		}
	}
	w.mf.ReturnType = inferLiteralType(script.Result)
	return script
}

// trailingExpression recognizes a final expression statement that is a plain
// expression (not an assignment) and converts it into the script result.
func (w *walker) trailingExpression(node *sitter.Node) (ast.Expr, bool) {
	if node.Kind() != "expression_statement" || node.NamedChildCount() != 1 {
		return nil, false
	}
	child := node.NamedChild(0)
	switch child.Kind() {
	case "assignment", "augmented_assignment":
		return nil, false
	}
	return w.expr(child), true
}

func (w *walker) topLevel(node *sitter.Node) ast.Stmt {
	switch node.Kind() {
	case "import_from_statement":
		w.importFrom(node)
		return nil
	case "import_statement", "future_import_statement":
		w.violate(node, "import", "import of %q is not allowed", strings.TrimSpace(w.text(node)))
		return nil
	case "decorated_definition":
		w.externalDecl(node)
		return nil
	case "function_definition":
		return w.funcDef(node)
	default:
		return w.stmt(node, true)
	}
}

func (w *walker) block(node *sitter.Node) []ast.Stmt {
	if node == nil {
		return nil
	}
	var out []ast.Stmt
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() == "comment" {
			continue
		}
		if s := w.stmt(child, false); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (w *walker) stmt(node *sitter.Node, topLevel bool) ast.Stmt {
	switch node.Kind() {
	case "expression_statement":
		child := node.NamedChild(0)
		if child == nil {
			return nil
		}
		switch child.Kind() {
		case "assignment":
			return w.assignment(child, topLevel)
		case "augmented_assignment":
			return w.augmented(child)
		}
		s := &ast.ExprStmt{X: w.expr(child)}
		ast.SetSpan(s, locationForNode(node))
		return s
	case "if_statement":
		return w.ifStmt(node)
	case "for_statement":
		return w.forStmt(node)
	case "while_statement":
		return w.whileStmt(node)
	case "try_statement":
		return w.tryStmt(node)
	case "return_statement":
		s := &ast.Return{}
		if x := node.NamedChild(0); x != nil {
			s.X = w.expr(x)
		}
		ast.SetSpan(s, locationForNode(node))
		return s
	case "raise_statement":
		s := &ast.Raise{}
		if x := node.NamedChild(0); x != nil {
			s.X = w.expr(x)
		}
		ast.SetSpan(s, locationForNode(node))
		return s
	case "pass_statement":
		s := &ast.Pass{}
		ast.SetSpan(s, locationForNode(node))
		return s
	case "break_statement":
		s := &ast.Break{}
		ast.SetSpan(s, locationForNode(node))
		return s
	case "continue_statement":
		s := &ast.Continue{}
		ast.SetSpan(s, locationForNode(node))
		return s
	case "function_definition":
		if topLevel {
			return w.funcDef(node)
		}
		w.violate(node, "function_definition", "nested function definitions are not allowed")
		return nil
	case "decorated_definition":
		w.violate(node, "decorator", "decorated definitions are only allowed at the top level")
		return nil
	case "import_statement", "import_from_statement", "future_import_statement":
		w.violate(node, "import", "import of %q is not allowed", strings.TrimSpace(w.text(node)))
		return nil
	case "class_definition":
		w.violate(node, "class_definition", "class definitions are not allowed")
		return nil
	case "with_statement":
		w.violate(node, "with_statement", "with statements are not allowed")
		return nil
	case "global_statement", "nonlocal_statement":
		w.violate(node, node.Kind(), "scope declarations are not allowed")
		return nil
	case "delete_statement":
		w.violate(node, "delete_statement", "del is not allowed")
		return nil
	case "assert_statement":
		w.violate(node, "assert_statement", "assert is not allowed")
		return nil
	default:
		w.violate(node, node.Kind(), "construct %q is not allowed", node.Kind())
		return nil
	}
}

func (w *walker) assignment(node *sitter.Node, topLevel bool) ast.Stmt {
	left := node.ChildByFieldName("left")
	if left == nil || left.Kind() != "identifier" {
		w.violate(node, "assignment", "assignment targets must be plain names")
		return nil
	}
	right := node.ChildByFieldName("right")
	if right == nil {
		w.violate(node, "assignment", "annotation without a value is not allowed")
		return nil
	}

	annotation := ""
	if typeNode := node.ChildByFieldName("type"); typeNode != nil {
		annotation = strings.TrimSpace(w.text(typeNode))
	}

	s := &ast.Assign{Name: w.text(left), Annotated: annotation}
	ast.SetSpan(s, locationForNode(node))

	if isInputCall(right, w.source) {
		s.Value = w.inputDecl(right, node, annotation, topLevel)
		return s
	}
	s.Value = w.expr(right)
	return s
}

func (w *walker) augmented(node *sitter.Node) ast.Stmt {
	left := node.ChildByFieldName("left")
	if left == nil || left.Kind() != "identifier" {
		w.violate(node, "assignment", "assignment targets must be plain names")
		return nil
	}
	opNode := node.ChildByFieldName("operator")
	op := strings.TrimSuffix(w.text(opNode), "=")
	switch op {
	case "+", "-", "*", "/", "//", "%":
	default:
		w.violate(node, "operator", "operator %q= is not allowed", op)
		return nil
	}
	name := &ast.Name{Ident: w.text(left)}
	ast.SetSpan(name, locationForNode(left))
	bin := &ast.BinOp{Op: op, L: name, R: w.expr(node.ChildByFieldName("right"))}
	ast.SetSpan(bin, locationForNode(node))
	s := &ast.Assign{Name: w.text(left), Value: bin}
	ast.SetSpan(s, locationForNode(node))
	return s
}

func (w *walker) ifStmt(node *sitter.Node) ast.Stmt {
	out := &ast.If{
		Cond: w.expr(node.ChildByFieldName("condition")),
		Then: w.block(node.ChildByFieldName("consequence")),
	}
	ast.SetSpan(out, locationForNode(node))
	cur := out
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "elif_clause":
			next := &ast.If{
				Cond: w.expr(child.ChildByFieldName("condition")),
				Then: w.block(child.ChildByFieldName("consequence")),
			}
			ast.SetSpan(next, locationForNode(child))
			cur.Else = []ast.Stmt{next}
			cur = next
		case "else_clause":
			cur.Else = w.block(child.ChildByFieldName("body"))
		}
	}
	return out
}

func (w *walker) forStmt(node *sitter.Node) ast.Stmt {
	left := node.ChildByFieldName("left")
	if left == nil || left.Kind() != "identifier" {
		w.violate(node, "for_statement", "loop targets must be plain names")
		return nil
	}
	if node.ChildByFieldName("alternative") != nil {
		w.violate(node, "for_statement", "for-else is not allowed")
		return nil
	}
	s := &ast.For{
		Var:  w.text(left),
		Iter: w.expr(node.ChildByFieldName("right")),
		Body: w.block(node.ChildByFieldName("body")),
	}
	ast.SetSpan(s, locationForNode(node))
	return s
}

func (w *walker) whileStmt(node *sitter.Node) ast.Stmt {
	if node.ChildByFieldName("alternative") != nil {
		w.violate(node, "while_statement", "while-else is not allowed")
		return nil
	}
	s := &ast.While{
		Cond: w.expr(node.ChildByFieldName("condition")),
		Body: w.block(node.ChildByFieldName("body")),
	}
	ast.SetSpan(s, locationForNode(node))
	return s
}

func (w *walker) tryStmt(node *sitter.Node) ast.Stmt {
	s := &ast.Try{Body: w.block(node.ChildByFieldName("body"))}
	ast.SetSpan(s, locationForNode(node))
	handlers := 0
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "except_clause":
			handlers++
			if handlers > 1 {
				w.violate(child, "try_statement", "multiple except clauses are not allowed")
				continue
			}
			s.ErrName = exceptAlias(child, w.source)
			s.Handler = w.block(lastNamedChildOfKind(child, "block"))
		case "finally_clause":
			w.violate(child, "try_statement", "finally is not allowed")
		case "else_clause":
			w.violate(child, "try_statement", "try-else is not allowed")
		case "except_group_clause":
			w.violate(child, "try_statement", "except* is not allowed")
		}
	}
	if handlers == 0 {
		w.violate(node, "try_statement", "try requires exactly one except clause")
		return nil
	}
	return s
}

func (w *walker) funcDef(node *sitter.Node) ast.Stmt {
	if hasChildToken(node, "async") {
		w.violate(node, "function_definition", "async is only allowed on external declarations")
		return nil
	}
	nameNode := node.ChildByFieldName("name")
	name := w.text(nameNode)
	w.declare(name, nameNode, "function")
	w.funcs[name] = true

	var params []string
	paramsNode := node.ChildByFieldName("parameters")
	for i := uint(0); i < paramsNode.NamedChildCount(); i++ {
		p := paramsNode.NamedChild(i)
		switch p.Kind() {
		case "identifier":
			params = append(params, w.text(p))
		case "typed_parameter":
			params = append(params, w.text(p.NamedChild(0)))
		default:
			w.violate(p, "parameter", "parameter form %q is not allowed", p.Kind())
		}
	}

	s := &ast.FuncDef{Name: name, Params: params, Body: w.block(node.ChildByFieldName("body"))}
	ast.SetSpan(s, locationForNode(node))
	return s
}

func (w *walker) declare(name string, node *sitter.Node, what string) {
	if prev, ok := w.declared[name]; ok {
		w.violate(node, "declaration", "duplicate declaration %q (previously declared at %d:%d)", name, prev.Line, prev.Column)
		return
	}
	w.declared[name] = locationForNode(node)
	_ = what
}

func (w *walker) resolveCalls() {
	for _, call := range w.calls {
		if _, ok := w.mf.ExternalIndex(call.target); ok {
			continue
		}
		if w.funcs[call.target] || Builtins[call.target] {
			continue
		}
		w.errs = append(w.errs, ValidationError{
			Construct: "call",
			Message:   fmt.Sprintf("call to undeclared function %q", call.target),
			Location:  call.loc,
		})
	}
}

func (w *walker) expr(node *sitter.Node) ast.Expr {
	if node == nil {
		return nil
	}
	loc := locationForNode(node)
	switch node.Kind() {
	case "identifier":
		e := &ast.Name{Ident: w.text(node)}
		ast.SetSpan(e, loc)
		return e
	case "integer":
		raw := strings.ReplaceAll(w.text(node), "_", "")
		v, err := strconv.ParseInt(raw, 0, 64)
		if err != nil {
			w.violate(node, "integer", "integer literal out of range")
			return nil
		}
		e := &ast.IntLit{Value: v}
		ast.SetSpan(e, loc)
		return e
	case "float":
		v, err := strconv.ParseFloat(strings.ReplaceAll(w.text(node), "_", ""), 64)
		if err != nil {
			w.violate(node, "float", "malformed float literal")
			return nil
		}
		e := &ast.FloatLit{Value: v}
		ast.SetSpan(e, loc)
		return e
	case "string":
		return w.stringLit(node)
	case "true":
		e := &ast.BoolLit{Value: true}
		ast.SetSpan(e, loc)
		return e
	case "false":
		e := &ast.BoolLit{Value: false}
		ast.SetSpan(e, loc)
		return e
	case "none":
		e := &ast.NoneLit{}
		ast.SetSpan(e, loc)
		return e
	case "list":
		e := &ast.ListLit{}
		for i := uint(0); i < node.NamedChildCount(); i++ {
			e.Elems = append(e.Elems, w.expr(node.NamedChild(i)))
		}
		ast.SetSpan(e, loc)
		return e
	case "dictionary":
		return w.dictLit(node)
	case "call":
		return w.call(node, false)
	case "await":
		inner := node.NamedChild(0)
		if inner == nil || inner.Kind() != "call" {
			w.violate(node, "await", "await is only allowed on external calls")
			return nil
		}
		return w.call(inner, true)
	case "binary_operator":
		return w.binary(node)
	case "comparison_operator":
		return w.comparison(node)
	case "boolean_operator":
		e := &ast.BinOp{
			Op: w.text(node.ChildByFieldName("operator")),
			L:  w.expr(node.ChildByFieldName("left")),
			R:  w.expr(node.ChildByFieldName("right")),
		}
		ast.SetSpan(e, loc)
		return e
	case "not_operator":
		e := &ast.UnaryOp{Op: "not", X: w.expr(node.ChildByFieldName("argument"))}
		ast.SetSpan(e, loc)
		return e
	case "unary_operator":
		op := w.text(node.ChildByFieldName("operator"))
		if op == "~" {
			w.violate(node, "operator", "bitwise operators are not allowed")
			return nil
		}
		e := &ast.UnaryOp{Op: op, X: w.expr(node.ChildByFieldName("argument"))}
		ast.SetSpan(e, loc)
		return e
	case "parenthesized_expression":
		return w.expr(node.NamedChild(0))
	case "conditional_expression":
		e := &ast.Cond{
			Then: w.expr(node.NamedChild(0)),
			Test: w.expr(node.NamedChild(1)),
			Else: w.expr(node.NamedChild(2)),
		}
		ast.SetSpan(e, loc)
		return e
	case "subscript":
		e := &ast.Subscript{
			X:     w.expr(node.ChildByFieldName("value")),
			Index: w.expr(node.ChildByFieldName("subscript")),
		}
		ast.SetSpan(e, loc)
		return e
	case "list_comprehension":
		return w.listComp(node)
	case "attribute":
		w.violate(node, "attribute", "attribute access is not allowed")
		return nil
	case "lambda":
		w.violate(node, "lambda", "lambda is not allowed")
		return nil
	case "named_expression":
		w.violate(node, "named_expression", "assignment expressions are not allowed")
		return nil
	case "tuple":
		w.violate(node, "tuple", "tuples are not allowed")
		return nil
	case "set", "set_comprehension", "dictionary_comprehension", "generator_expression":
		w.violate(node, node.Kind(), "construct %q is not allowed", node.Kind())
		return nil
	case "yield":
		w.violate(node, "yield", "yield is not allowed")
		return nil
	default:
		w.violate(node, node.Kind(), "expression %q is not allowed", node.Kind())
		return nil
	}
}

func (w *walker) dictLit(node *sitter.Node) ast.Expr {
	e := &ast.DictLit{}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "pair":
			e.Keys = append(e.Keys, w.expr(child.ChildByFieldName("key")))
			e.Values = append(e.Values, w.expr(child.ChildByFieldName("value")))
		case "comment":
		default:
			w.violate(child, child.Kind(), "dict entries must be key: value pairs")
		}
	}
	ast.SetSpan(e, locationForNode(node))
	return e
}

func (w *walker) call(node *sitter.Node, awaited bool) ast.Expr {
	fn := node.ChildByFieldName("function")
	if fn == nil || fn.Kind() != "identifier" {
		w.violate(node, "call", "only calls to named functions are allowed")
		return nil
	}
	target := w.text(fn)
	if reason, banned := bannedCalls[target]; banned {
		w.violate(node, target, "%s %q is not allowed", reason, target)
		return nil
	}
	if target == "input" {
		w.violate(node, "input", "input declarations must be top-level annotated assignments")
		return nil
	}
	if target == "external" {
		w.violate(node, "external", "external is a declaration marker, not a callable")
		return nil
	}

	e := &ast.Call{Target: target, Await: awaited}
	args := node.ChildByFieldName("arguments")
	for i := uint(0); i < args.NamedChildCount(); i++ {
		arg := args.NamedChild(i)
		switch arg.Kind() {
		case "keyword_argument":
			e.Kwargs = append(e.Kwargs, ast.Kwarg{
				Name:  w.text(arg.ChildByFieldName("name")),
				Value: w.expr(arg.ChildByFieldName("value")),
			})
		case "list_splat", "dictionary_splat":
			w.violate(arg, "argument", "argument splats are not allowed")
		case "comment":
		default:
			if len(e.Kwargs) > 0 {
				w.violate(arg, "argument", "positional argument after keyword argument")
				continue
			}
			e.Args = append(e.Args, w.expr(arg))
		}
	}
	ast.SetSpan(e, locationForNode(node))
	w.calls = append(w.calls, callRef{target: target, loc: locationForNode(node)})
	if awaited {
		w.awaited[target] = true
	}
	return e
}

func (w *walker) binary(node *sitter.Node) ast.Expr {
	op := w.text(node.ChildByFieldName("operator"))
	switch op {
	case "+", "-", "*", "/", "//", "%", "**":
	default:
		w.violate(node, "operator", "operator %q is not allowed", op)
		return nil
	}
	e := &ast.BinOp{
		Op: op,
		L:  w.expr(node.ChildByFieldName("left")),
		R:  w.expr(node.ChildByFieldName("right")),
	}
	ast.SetSpan(e, locationForNode(node))
	return e
}

func (w *walker) comparison(node *sitter.Node) ast.Expr {
	if node.NamedChildCount() != 2 {
		w.violate(node, "comparison", "chained comparisons are not allowed")
		return nil
	}
	var ops []string
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child.IsNamed() {
			continue
		}
		switch child.Kind() {
		case "<", "<=", ">", ">=", "==", "!=", "in", "not":
			ops = append(ops, child.Kind())
		case "is":
			w.violate(node, "comparison", "identity comparison is not allowed")
			return nil
		}
	}
	left := w.expr(node.NamedChild(0))
	right := w.expr(node.NamedChild(1))
	loc := locationForNode(node)

	op := strings.Join(ops, " ")
	if op == "not in" {
		in := &ast.BinOp{Op: "in", L: left, R: right}
		ast.SetSpan(in, loc)
		e := &ast.UnaryOp{Op: "not", X: in}
		ast.SetSpan(e, loc)
		return e
	}
	e := &ast.BinOp{Op: op, L: left, R: right}
	ast.SetSpan(e, loc)
	return e
}

func (w *walker) listComp(node *sitter.Node) ast.Expr {
	e := &ast.ListComp{Elem: w.expr(node.ChildByFieldName("body"))}
	clauses := 0
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "for_in_clause":
			clauses++
			if clauses > 1 {
				w.violate(child, "comprehension", "nested comprehension clauses are not allowed")
				continue
			}
			left := child.ChildByFieldName("left")
			if left == nil || left.Kind() != "identifier" {
				w.violate(child, "comprehension", "comprehension targets must be plain names")
				continue
			}
			e.Var = w.text(left)
			e.Iter = w.expr(child.ChildByFieldName("right"))
		case "if_clause":
			if e.Filter != nil {
				w.violate(child, "comprehension", "multiple comprehension filters are not allowed")
				continue
			}
			e.Filter = w.expr(child.NamedChild(0))
		}
	}
	ast.SetSpan(e, locationForNode(node))
	return e
}

// stringLit handles plain and formatted strings. An f-string lowers to a
// concatenation chain over its parts, with each interpolated expression
// wrapped in a str() conversion, so later stages see only constructs they
// already know.
func (w *walker) stringLit(node *sitter.Node) ast.Expr {
	loc := locationForNode(node)
	var parts []ast.Expr
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		lit := &ast.StrLit{Value: b.String()}
		ast.SetSpan(lit, loc)
		parts = append(parts, lit)
		b.Reset()
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		switch child.Kind() {
		case "string_content":
			b.WriteString(w.text(child))
		case "escape_sequence":
			b.WriteString(unescape(w.text(child)))
		case "interpolation":
			if part := w.interpolation(child); part != nil {
				flush()
				parts = append(parts, part)
			}
		}
	}
	flush()

	switch len(parts) {
	case 0:
		e := &ast.StrLit{Value: ""}
		ast.SetSpan(e, loc)
		return e
	case 1:
		return parts[0]
	}
	out := parts[0]
	for _, part := range parts[1:] {
		bin := &ast.BinOp{Op: "+", L: out, R: part}
		ast.SetSpan(bin, loc)
		out = bin
	}
	return out
}

// interpolation lowers one f-string hole to a str() call on its expression.
// Conversion and format specifiers are outside the dialect.
func (w *walker) interpolation(node *sitter.Node) ast.Expr {
	if node.ChildByFieldName("format_specification") != nil || node.ChildByFieldName("type_conversion") != nil {
		w.violate(node, "string", "format specifiers are not allowed in interpolations")
		return nil
	}
	inner := w.expr(node.ChildByFieldName("expression"))
	if inner == nil {
		return nil
	}
	e := &ast.Call{Target: "str", Args: []ast.Expr{inner}}
	ast.SetSpan(e, locationForNode(node))
	return e
}

func unescape(seq string) string {
	if len(seq) < 2 || seq[0] != '\\' {
		return seq
	}
	switch seq[1] {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case '\\':
		return "\\"
	case '\'':
		return "'"
	case '"':
		return "\""
	case '0':
		return "\x00"
	default:
		return seq[1:]
	}
}

func hasChildToken(node *sitter.Node, kind string) bool {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if !child.IsNamed() && child.Kind() == kind {
			return true
		}
	}
	return false
}

func lastNamedChildOfKind(node *sitter.Node, kind string) *sitter.Node {
	var found *sitter.Node
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() == kind {
			found = child
		}
	}
	return found
}

func exceptAlias(node *sitter.Node, source []byte) string {
	target := findDescendant(node, "as_pattern_target")
	if target == nil {
		return ""
	}
	if id := target.NamedChild(0); id != nil && id.Kind() == "identifier" {
		return id.Utf8Text(source)
	}
	return ""
}

func findDescendant(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Kind() == kind {
		return node
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if found := findDescendant(node.NamedChild(i), kind); found != nil {
			return found
		}
	}
	return nil
}

func inferLiteralType(e ast.Expr) manifest.Type {
	switch v := e.(type) {
	case nil:
		return manifest.Type{Kind: manifest.KindNone}
	case *ast.IntLit:
		return manifest.Type{Kind: manifest.KindInt}
	case *ast.FloatLit:
		return manifest.Type{Kind: manifest.KindFloat}
	case *ast.StrLit:
		return manifest.Type{Kind: manifest.KindStr}
	case *ast.BoolLit:
		return manifest.Type{Kind: manifest.KindBool}
	case *ast.NoneLit:
		return manifest.Type{Kind: manifest.KindNone}
	case *ast.ListLit:
		return manifest.Type{Kind: manifest.KindList}
	case *ast.DictLit:
		for _, key := range v.Keys {
			if _, ok := key.(*ast.StrLit); !ok {
				return manifest.Any()
			}
		}
		return manifest.Type{Kind: manifest.KindDict}
	default:
		return manifest.Any()
	}
}
