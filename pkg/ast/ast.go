// Package ast defines the restricted syntax tree produced by the validator.
//
// The tree deliberately covers only the allow-listed subset of the dialect:
// anything the validator rejects has no node type here, so later stages cannot
// accidentally represent (or execute) a disallowed construct.
package ast

// Span locates a node in the source with 1-based line/column coordinates.
type Span struct {
	Line      int
	Column    int
	EndLine   int
	EndColumn int
}

// Node is implemented by every statement and expression.
type Node interface {
	Span() Span
}

type base struct {
	Loc Span
}

func (b base) Span() Span { return b.Loc }

// SetSpan annotates the node with the provided span.
func SetSpan(node Node, span Span) {
	if setter, ok := node.(interface{ setSpan(Span) }); ok {
		setter.setSpan(span)
	}
}

func (b *base) setSpan(span Span) { b.Loc = span }

// Script is the root of a validated source file.
type Script struct {
	base
	Stmts []Stmt
	// Result is the trailing top-level expression, nil when the script
	// produces no value.
	Result Expr
}

// Stmt is a statement in the restricted dialect.
type Stmt interface {
	Node
	stmt()
}

// Expr is an expression in the restricted dialect.
type Expr interface {
	Node
	expr()
}

// Assign binds a name. Annotated declares the type annotation text verbatim;
// it is empty for plain assignments.
type Assign struct {
	base
	Name      string
	Annotated string
	Value     Expr
}

// ExprStmt evaluates an expression for effect.
type ExprStmt struct {
	base
	X Expr
}

// If is a conditional with an optional else arm; elif chains are folded into
// nested If nodes in the else arm.
type If struct {
	base
	Cond Expr
	Then []Stmt
	Else []Stmt
}

// For iterates Var over Iter.
type For struct {
	base
	Var  string
	Iter Expr
	Body []Stmt
}

// While loops while Cond holds.
type While struct {
	base
	Cond Expr
	Body []Stmt
}

// Break exits the innermost loop.
type Break struct{ base }

// Continue resumes the innermost loop.
type Continue struct{ base }

// Pass does nothing.
type Pass struct{ base }

// Return exits a script-local function; X may be nil.
type Return struct {
	base
	X Expr
}

// FuncDef declares a script-local function. Parameters carry no runtime
// types; script-local calls are checked structurally at call time.
type FuncDef struct {
	base
	Name   string
	Params []string
	Body   []Stmt
}

// Raise raises a script fault; X may be nil only inside an except body.
type Raise struct {
	base
	X Expr
}

// Try runs Body and diverts script faults to Handler, binding the fault
// message to ErrName when non-empty.
type Try struct {
	base
	Body    []Stmt
	ErrName string
	Handler []Stmt
}

func (*Assign) stmt()   {}
func (*ExprStmt) stmt() {}
func (*If) stmt()       {}
func (*For) stmt()      {}
func (*While) stmt()    {}
func (*Break) stmt()    {}
func (*Continue) stmt() {}
func (*Pass) stmt()     {}
func (*Return) stmt()   {}
func (*FuncDef) stmt()  {}
func (*Raise) stmt()    {}
func (*Try) stmt()      {}

// Name references a bound variable.
type Name struct {
	base
	Ident string
}

// IntLit is an integer literal.
type IntLit struct {
	base
	Value int64
}

// FloatLit is a floating-point literal.
type FloatLit struct {
	base
	Value float64
}

// StrLit is a string literal.
type StrLit struct {
	base
	Value string
}

// BoolLit is True or False.
type BoolLit struct {
	base
	Value bool
}

// NoneLit is None.
type NoneLit struct{ base }

// ListLit is a list display.
type ListLit struct {
	base
	Elems []Expr
}

// DictLit is a dict display; Keys[i] pairs with Values[i].
type DictLit struct {
	base
	Keys   []Expr
	Values []Expr
}

// BinOp covers arithmetic, comparison, and boolean operators. Op is the
// dialect's operator token ("+", "==", "and", "in", ...).
type BinOp struct {
	base
	Op string
	L  Expr
	R  Expr
}

// UnaryOp covers "-", "+", and "not".
type UnaryOp struct {
	base
	Op string
	X  Expr
}

// Kwarg is a keyword argument at a call site.
type Kwarg struct {
	Name  string
	Value Expr
}

// Call invokes a declared external, a script-local function, or a builtin.
// Target resolution happens at generation time; Await records whether the
// call site awaited the result.
type Call struct {
	base
	Target string
	Args   []Expr
	Kwargs []Kwarg
	Await  bool
}

// Subscript indexes a list or dict.
type Subscript struct {
	base
	X     Expr
	Index Expr
}

// Cond is the ternary form: Then if Test else Else.
type Cond struct {
	base
	Test Expr
	Then Expr
	Else Expr
}

// ListComp is a single-clause list comprehension with an optional filter.
type ListComp struct {
	base
	Elem   Expr
	Var    string
	Iter   Expr
	Filter Expr
}

func (*Name) expr()      {}
func (*IntLit) expr()    {}
func (*FloatLit) expr()  {}
func (*StrLit) expr()    {}
func (*BoolLit) expr()   {}
func (*NoneLit) expr()   {}
func (*ListLit) expr()   {}
func (*DictLit) expr()   {}
func (*BinOp) expr()     {}
func (*UnaryOp) expr()   {}
func (*Call) expr()      {}
func (*Subscript) expr() {}
func (*Cond) expr()      {}
func (*ListComp) expr()  {}
