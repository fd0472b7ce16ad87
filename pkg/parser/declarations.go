package parser

// Declaration extraction runs inside the validation walk: input declarations
// and @external signatures are registered into the manifest as they are
// encountered, so validation and extraction stay a single pass.

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"scriptgate/sandbox-go/pkg/ast"
	"scriptgate/sandbox-go/pkg/manifest"
)

// importFrom accepts only the fixed declaration vocabulary:
// `from sandbox import input, external`.
func (w *walker) importFrom(node *sitter.Node) {
	moduleName := node.ChildByFieldName("module_name")
	if moduleName == nil || w.text(moduleName) != "sandbox" {
		w.violate(node, "import", "import of %q is not allowed", strings.TrimSpace(w.text(node)))
		return
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.StartByte() == moduleName.StartByte() {
			continue
		}
		switch child.Kind() {
		case "dotted_name", "identifier":
			name := w.text(child)
			if name != "input" && name != "external" {
				w.violate(child, "import", "%q is not part of the declaration vocabulary", name)
			}
		case "wildcard_import":
			w.violate(child, "import", "wildcard imports are not allowed")
		case "aliased_import":
			w.violate(child, "import", "import aliases are not allowed")
		}
	}
}

func isInputCall(node *sitter.Node, source []byte) bool {
	if node == nil || node.Kind() != "call" {
		return false
	}
	fn := node.ChildByFieldName("function")
	return fn != nil && fn.Kind() == "identifier" && fn.Utf8Text(source) == "input"
}

// inputDecl registers an InputDeclaration from `name: type = input("name")`
// and returns the placeholder expression the generator lowers to an input
// load. The declared type comes from the variable annotation; a missing
// annotation downgrades schema checking to a no-op with a warning.
func (w *walker) inputDecl(call, assign *sitter.Node, annotation string, topLevel bool) ast.Expr {
	if !topLevel {
		w.violate(call, "input", "input declarations must be top-level")
		return nil
	}

	decl := manifest.InputDeclaration{Required: true, Type: manifest.Any()}
	args := call.ChildByFieldName("arguments")
	for i := uint(0); i < args.NamedChildCount(); i++ {
		arg := args.NamedChild(i)
		switch arg.Kind() {
		case "string":
			if decl.Name != "" {
				w.violate(arg, "input", "input declarations take a single name")
				continue
			}
			lit, ok := w.stringLit(arg).(*ast.StrLit)
			if !ok {
				return nil
			}
			decl.Name = lit.Value
		case "keyword_argument":
			key := w.text(arg.ChildByFieldName("name"))
			value := arg.ChildByFieldName("value")
			if key != "required" || value == nil {
				w.violate(arg, "input", "unknown input option %q", key)
				continue
			}
			switch value.Kind() {
			case "true":
				decl.Required = true
			case "false":
				decl.Required = false
			default:
				w.violate(value, "input", "required must be a boolean literal")
			}
		case "comment":
		default:
			w.violate(arg, "input", "input names must be string literals")
		}
	}
	if decl.Name == "" {
		w.violate(call, "input", "input declarations require a name")
		return nil
	}

	if annotation == "" {
		w.warn(assign, "input %q has no type annotation; schema checking is disabled for it", decl.Name)
	} else {
		typ, ok := manifest.ParseAnnotation(annotation)
		if !ok {
			w.warn(assign, "unrecognized annotation %q on input %q; schema checking is disabled for it", annotation, decl.Name)
		}
		decl.Type = typ
	}

	w.declare(decl.Name, call, "input")
	w.mf.Inputs = append(w.mf.Inputs, decl)

	e := &ast.Call{Target: "input", Args: []ast.Expr{&ast.StrLit{Value: decl.Name}}}
	ast.SetSpan(e, locationForNode(call))
	return e
}

// externalDecl registers an ExternalDeclaration from an @external-decorated
// function. The body must be empty: the implementation is host-provided.
func (w *walker) externalDecl(node *sitter.Node) {
	ordered, ok := w.externalMarker(node)
	if !ok {
		return
	}
	def := node.ChildByFieldName("definition")
	if def == nil || def.Kind() != "function_definition" {
		w.violate(node, "decorator", "@external applies only to function definitions")
		return
	}

	nameNode := def.ChildByFieldName("name")
	decl := manifest.ExternalDeclaration{
		Name:    w.text(nameNode),
		Async:   hasChildToken(def, "async"),
		Ordered: ordered,
		Return:  manifest.Any(),
	}

	params := def.ChildByFieldName("parameters")
	for i := uint(0); i < params.NamedChildCount(); i++ {
		p := params.NamedChild(i)
		switch p.Kind() {
		case "typed_parameter":
			name := w.text(p.NamedChild(0))
			decl.Params = append(decl.Params, manifest.Param{Name: name, Type: w.annotationType(p.ChildByFieldName("type"), decl.Name, name)})
		case "identifier":
			w.warn(p, "parameter %q of external %q has no annotation; schema checking is disabled for it", w.text(p), decl.Name)
			decl.Params = append(decl.Params, manifest.Param{Name: w.text(p), Type: manifest.Any()})
		default:
			w.violate(p, "parameter", "parameter form %q is not allowed on externals", p.Kind())
		}
	}

	if ret := def.ChildByFieldName("return_type"); ret != nil {
		decl.Return = w.annotationType(ret, decl.Name, "return")
	} else {
		w.warn(def, "external %q has no return annotation; schema checking is disabled for its result", decl.Name)
	}

	if !emptyFunctionBody(def.ChildByFieldName("body")) {
		w.violate(def, "external", "external %q must have an empty body; the implementation is host-provided", decl.Name)
		return
	}

	w.declare(decl.Name, nameNode, "external")
	w.mf.Externals = append(w.mf.Externals, decl)
}

// externalMarker enforces that the only decorator form is @external, with an
// optional ordered=True option.
func (w *walker) externalMarker(node *sitter.Node) (ordered, ok bool) {
	count := 0
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() != "decorator" {
			continue
		}
		count++
		if count > 1 {
			w.violate(child, "decorator", "externals take a single @external marker")
			return false, false
		}
		inner := child.NamedChild(0)
		switch {
		case inner == nil:
			w.violate(child, "decorator", "empty decorator")
			return false, false
		case inner.Kind() == "identifier" && w.text(inner) == "external":
		case isExternalCall(inner, w.source):
			ordered = w.orderedOption(inner)
		default:
			w.violate(child, "decorator", "decorator %q is not allowed; only @external marks host-provided functions", strings.TrimSpace(w.text(inner)))
			return false, false
		}
	}
	if count == 0 {
		w.violate(node, "decorator", "missing decorator")
		return false, false
	}
	return ordered, true
}

func isExternalCall(node *sitter.Node, source []byte) bool {
	if node.Kind() != "call" {
		return false
	}
	fn := node.ChildByFieldName("function")
	return fn != nil && fn.Kind() == "identifier" && fn.Utf8Text(source) == "external"
}

func (w *walker) orderedOption(call *sitter.Node) bool {
	ordered := false
	args := call.ChildByFieldName("arguments")
	for i := uint(0); i < args.NamedChildCount(); i++ {
		arg := args.NamedChild(i)
		if arg.Kind() == "comment" {
			continue
		}
		if arg.Kind() != "keyword_argument" {
			w.violate(arg, "decorator", "@external takes only ordered=True/False")
			continue
		}
		key := w.text(arg.ChildByFieldName("name"))
		value := arg.ChildByFieldName("value")
		if key != "ordered" || value == nil {
			w.violate(arg, "decorator", "unknown external option %q", key)
			continue
		}
		switch value.Kind() {
		case "true":
			ordered = true
		case "false":
			ordered = false
		default:
			w.violate(value, "decorator", "ordered must be a boolean literal")
		}
	}
	return ordered
}

func (w *walker) annotationType(typeNode *sitter.Node, owner, param string) manifest.Type {
	text := strings.TrimSpace(w.text(typeNode))
	typ, ok := manifest.ParseAnnotation(text)
	if !ok {
		w.warn(typeNode, "unrecognized annotation %q on %s of external %q; schema checking is disabled for it", text, param, owner)
	}
	return typ
}

// emptyFunctionBody accepts pass, ellipsis, and a docstring.
func emptyFunctionBody(body *sitter.Node) bool {
	if body == nil {
		return true
	}
	for i := uint(0); i < body.NamedChildCount(); i++ {
		child := body.NamedChild(i)
		switch child.Kind() {
		case "pass_statement", "comment":
		case "expression_statement":
			inner := child.NamedChild(0)
			if inner == nil {
				continue
			}
			if inner.Kind() != "string" && inner.Kind() != "ellipsis" {
				return false
			}
		default:
			return false
		}
	}
	return true
}
