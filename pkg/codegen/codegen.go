package codegen

import (
	"fmt"

	"scriptgate/sandbox-go/pkg/ast"
	"scriptgate/sandbox-go/pkg/manifest"
	"scriptgate/sandbox-go/pkg/parser"
)

// Generate lowers a validated script plus its manifest into a Program.
func Generate(script *parser.ValidatedScript) (*Program, error) {
	if script == nil || script.AST == nil {
		return nil, &InternalError{Message: "nil validated script"}
	}
	g := &generator{mf: &script.Manifest}

	p := &Program{
		FormatVersion: FormatVersion,
		SourceHash:    script.Source.Hash(),
		ManifestHash:  script.Manifest.Hash(),
	}
	for _, stmt := range script.AST.Stmts {
		if def, ok := stmt.(*ast.FuncDef); ok {
			body, err := g.stmts(def.Body)
			if err != nil {
				return nil, err
			}
			p.Funcs = append(p.Funcs, Func{Name: def.Name, Params: def.Params, Body: body})
			continue
		}
		node, err := g.stmt(stmt)
		if err != nil {
			return nil, err
		}
		p.Body = append(p.Body, node)
	}
	if script.AST.Result != nil {
		result, err := g.expr(script.AST.Result)
		if err != nil {
			return nil, err
		}
		p.Result = &result
	}
	return p, nil
}

type generator struct {
	mf *manifest.Manifest
}

func (g *generator) stmts(in []ast.Stmt) ([]Node, error) {
	out := make([]Node, 0, len(in))
	for _, s := range in {
		node, err := g.stmt(s)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

func (g *generator) blockNode(in []ast.Stmt) (Node, error) {
	kids, err := g.stmts(in)
	if err != nil {
		return Node{}, err
	}
	return Node{Op: "block", Kids: kids}, nil
}

func (g *generator) stmt(s ast.Stmt) (Node, error) {
	switch v := s.(type) {
	case *ast.Assign:
		value, err := g.expr(v.Value)
		if err != nil {
			return Node{}, err
		}
		return g.at(v, Node{Op: "assign", Str: v.Name, Kids: []Node{value}}), nil
	case *ast.ExprStmt:
		x, err := g.expr(v.X)
		if err != nil {
			return Node{}, err
		}
		return g.at(v, Node{Op: "expr", Kids: []Node{x}}), nil
	case *ast.If:
		cond, err := g.expr(v.Cond)
		if err != nil {
			return Node{}, err
		}
		then, err := g.blockNode(v.Then)
		if err != nil {
			return Node{}, err
		}
		kids := []Node{cond, then}
		if v.Else != nil {
			els, err := g.blockNode(v.Else)
			if err != nil {
				return Node{}, err
			}
			kids = append(kids, els)
		}
		return g.at(v, Node{Op: "if", Kids: kids}), nil
	case *ast.For:
		iter, err := g.expr(v.Iter)
		if err != nil {
			return Node{}, err
		}
		body, err := g.blockNode(v.Body)
		if err != nil {
			return Node{}, err
		}
		return g.at(v, Node{Op: "for", Str: v.Var, Kids: []Node{iter, body}}), nil
	case *ast.While:
		cond, err := g.expr(v.Cond)
		if err != nil {
			return Node{}, err
		}
		body, err := g.blockNode(v.Body)
		if err != nil {
			return Node{}, err
		}
		return g.at(v, Node{Op: "while", Kids: []Node{cond, body}}), nil
	case *ast.Break:
		return g.at(v, Node{Op: "break"}), nil
	case *ast.Continue:
		return g.at(v, Node{Op: "continue"}), nil
	case *ast.Pass:
		return g.at(v, Node{Op: "pass"}), nil
	case *ast.Return:
		node := Node{Op: "return"}
		if v.X != nil {
			x, err := g.expr(v.X)
			if err != nil {
				return Node{}, err
			}
			node.Kids = []Node{x}
		}
		return g.at(v, node), nil
	case *ast.Raise:
		node := Node{Op: "raise"}
		if v.X != nil {
			x, err := g.expr(v.X)
			if err != nil {
				return Node{}, err
			}
			node.Kids = []Node{x}
		}
		return g.at(v, node), nil
	case *ast.Try:
		body, err := g.blockNode(v.Body)
		if err != nil {
			return Node{}, err
		}
		handler, err := g.blockNode(v.Handler)
		if err != nil {
			return Node{}, err
		}
		return g.at(v, Node{Op: "try", Str: v.ErrName, Kids: []Node{body, handler}}), nil
	case *ast.FuncDef:
		return Node{}, &InternalError{Message: "nested function definition survived validation"}
	default:
		return Node{}, &InternalError{Message: fmt.Sprintf("unknown statement %T", s)}
	}
}

func (g *generator) expr(e ast.Expr) (Node, error) {
	switch v := e.(type) {
	case nil:
		return Node{}, &InternalError{Message: "nil expression survived validation"}
	case *ast.Name:
		return g.at(v, Node{Op: "name", Str: v.Ident}), nil
	case *ast.IntLit:
		return g.at(v, Node{Op: "int", Int: v.Value}), nil
	case *ast.FloatLit:
		return g.at(v, Node{Op: "float", Float: v.Value}), nil
	case *ast.StrLit:
		return g.at(v, Node{Op: "str", Str: v.Value}), nil
	case *ast.BoolLit:
		return g.at(v, Node{Op: "bool", Bool: v.Value}), nil
	case *ast.NoneLit:
		return g.at(v, Node{Op: "none"}), nil
	case *ast.ListLit:
		kids, err := g.exprs(v.Elems)
		if err != nil {
			return Node{}, err
		}
		return g.at(v, Node{Op: "list", Kids: kids}), nil
	case *ast.DictLit:
		if len(v.Keys) != len(v.Values) {
			return Node{}, &InternalError{Message: "dict literal with mismatched keys and values"}
		}
		kids := make([]Node, 0, 2*len(v.Keys))
		for i := range v.Keys {
			key, err := g.expr(v.Keys[i])
			if err != nil {
				return Node{}, err
			}
			value, err := g.expr(v.Values[i])
			if err != nil {
				return Node{}, err
			}
			kids = append(kids, key, value)
		}
		return g.at(v, Node{Op: "dict", Kids: kids}), nil
	case *ast.BinOp:
		l, err := g.expr(v.L)
		if err != nil {
			return Node{}, err
		}
		r, err := g.expr(v.R)
		if err != nil {
			return Node{}, err
		}
		return g.at(v, Node{Op: "binop", Str: v.Op, Kids: []Node{l, r}}), nil
	case *ast.UnaryOp:
		x, err := g.expr(v.X)
		if err != nil {
			return Node{}, err
		}
		return g.at(v, Node{Op: "unary", Str: v.Op, Kids: []Node{x}}), nil
	case *ast.Call:
		return g.call(v)
	case *ast.Subscript:
		x, err := g.expr(v.X)
		if err != nil {
			return Node{}, err
		}
		index, err := g.expr(v.Index)
		if err != nil {
			return Node{}, err
		}
		return g.at(v, Node{Op: "subscript", Kids: []Node{x, index}}), nil
	case *ast.Cond:
		test, err := g.expr(v.Test)
		if err != nil {
			return Node{}, err
		}
		then, err := g.expr(v.Then)
		if err != nil {
			return Node{}, err
		}
		els, err := g.expr(v.Else)
		if err != nil {
			return Node{}, err
		}
		return g.at(v, Node{Op: "cond", Kids: []Node{test, then, els}}), nil
	case *ast.ListComp:
		iter, err := g.expr(v.Iter)
		if err != nil {
			return Node{}, err
		}
		elem, err := g.expr(v.Elem)
		if err != nil {
			return Node{}, err
		}
		kids := []Node{iter, elem}
		if v.Filter != nil {
			filter, err := g.expr(v.Filter)
			if err != nil {
				return Node{}, err
			}
			kids = append(kids, filter)
		}
		return g.at(v, Node{Op: "listcomp", Str: v.Var, Kids: kids}), nil
	default:
		return Node{}, &InternalError{Message: fmt.Sprintf("unknown expression %T", e)}
	}
}

func (g *generator) exprs(in []ast.Expr) ([]Node, error) {
	out := make([]Node, 0, len(in))
	for _, e := range in {
		node, err := g.expr(e)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

// call resolves the target by name into the closed capability set: the input
// placeholder, a manifest-indexed external, a script-local function, or a
// builtin. Resolution happens here, once, so the engine never dispatches by
// reflection.
func (g *generator) call(v *ast.Call) (Node, error) {
	if v.Target == "input" {
		name, ok := inputName(v)
		if !ok {
			return Node{}, &InternalError{Message: "malformed input placeholder survived validation"}
		}
		return g.at(v, Node{Op: "load_input", Str: name}), nil
	}

	kids := make([]Node, 0, len(v.Args)+len(v.Kwargs))
	for _, arg := range v.Args {
		node, err := g.expr(arg)
		if err != nil {
			return Node{}, err
		}
		kids = append(kids, node)
	}
	for _, kw := range v.Kwargs {
		value, err := g.expr(kw.Value)
		if err != nil {
			return Node{}, err
		}
		kids = append(kids, Node{Op: "kwarg", Str: kw.Name, Kids: []Node{value}})
	}

	if index, ok := g.mf.ExternalIndex(v.Target); ok {
		return g.at(v, Node{Op: "call_external", Str: v.Target, Index: index, Kids: kids}), nil
	}
	if parser.Builtins[v.Target] {
		return g.at(v, Node{Op: "call_builtin", Str: v.Target, Kids: kids}), nil
	}
	// Script-local functions are resolved against the lowered Funcs table at
	// run time; validation guaranteed the name exists.
	return g.at(v, Node{Op: "call_func", Str: v.Target, Kids: kids}), nil
}

func inputName(v *ast.Call) (string, bool) {
	if len(v.Args) != 1 {
		return "", false
	}
	lit, ok := v.Args[0].(*ast.StrLit)
	if !ok {
		return "", false
	}
	return lit.Value, true
}

func (g *generator) at(n ast.Node, node Node) Node {
	span := n.Span()
	node.Line = span.Line
	node.Col = span.Column
	return node
}
