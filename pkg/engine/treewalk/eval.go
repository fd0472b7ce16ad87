package treewalk

import (
	"context"
	"fmt"
	"sort"
	"time"

	"scriptgate/sandbox-go/pkg/codegen"
	"scriptgate/sandbox-go/pkg/engine"
)

// scriptFault is a script-authored failure: a raised value, a type or name
// error, or a routed host error. It is catchable by the script's try/except.
type scriptFault struct {
	Message  string
	External string
	Line     int
	Col      int
}

func (f *scriptFault) Error() string { return f.Message }

// limitFault reports a breached resource bound; never catchable.
type limitFault struct {
	Kind engine.LimitKind
}

func (f *limitFault) Error() string { return string(f.Kind) + " limit exceeded" }

// internalFault is an evaluator defect; never catchable.
type internalFault struct {
	Message string
}

func (f *internalFault) Error() string { return "internal fault: " + f.Message }

type ctrlKind int

const (
	ctrlNone ctrlKind = iota
	ctrlBreak
	ctrlContinue
	ctrlReturn
)

type control struct {
	kind  ctrlKind
	value any
}

type env struct {
	vars   map[string]any
	global bool
}

type interp struct {
	ctx      context.Context
	s        *session
	prog     *codegen.Program
	limits   engine.Limits
	inputs   map[string]engine.Value
	globals  map[string]any
	funcs    map[string]codegen.Func
	deadline time.Time

	depth      int
	allocs     int64
	allocBytes int64

	faultStack []*scriptFault
}

func newInterp(ctx context.Context, s *session, program *codegen.Program, limits engine.Limits, inputs map[string]engine.Value) *interp {
	funcs := make(map[string]codegen.Func, len(program.Funcs))
	for _, fn := range program.Funcs {
		funcs[fn.Name] = fn
	}
	return &interp{
		ctx:      ctx,
		s:        s,
		prog:     program,
		limits:   limits,
		inputs:   inputs,
		globals:  make(map[string]any),
		funcs:    funcs,
		deadline: time.Now().Add(limits.Duration),
	}
}

// run evaluates the program to one terminal event and emits it.
func (ip *interp) run() {
	value, err := func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &internalFault{Message: fmt.Sprintf("evaluator panic: %v", r)}
			}
		}()
		return ip.evalProgram()
	}()

	var ev engine.Event
	switch fault := err.(type) {
	case nil:
		ev = engine.Event{Kind: engine.EventCompleted, Value: value}
	case *scriptFault:
		ev = engine.Event{Kind: engine.EventFaulted, Fault: &engine.Fault{
			Message: fault.Message, External: fault.External, Line: fault.Line, Col: fault.Col,
		}}
	case *limitFault:
		ev = engine.Event{Kind: engine.EventLimit, Limit: fault.Kind}
	case *internalFault:
		ev = engine.Event{Kind: engine.EventFaulted, Fault: &engine.Fault{Message: fault.Message, Internal: true}}
	default:
		// Context cancellation: the caller tore the session down, nothing to
		// report.
		return
	}
	ip.s.emit(ip.ctx, ev)
}

func (ip *interp) evalProgram() (any, error) {
	top := &env{vars: ip.globals, global: true}
	for i := range ip.prog.Body {
		ctrl, err := ip.evalStmt(&ip.prog.Body[i], top)
		if err != nil {
			return nil, err
		}
		if ctrl.kind != ctrlNone {
			return nil, &scriptFault{Message: "control statement outside its scope"}
		}
	}
	if ip.prog.Result == nil {
		return nil, nil
	}
	return ip.evalExpr(ip.prog.Result, top)
}

func (ip *interp) tick(n *codegen.Node) error {
	if err := ip.ctx.Err(); err != nil {
		return err
	}
	if time.Now().After(ip.deadline) {
		return &limitFault{Kind: engine.LimitDuration}
	}
	_ = n
	return nil
}

// alloc charges one allocation of approximately size bytes against the
// session's allocation and memory budgets.
func (ip *interp) alloc(size int64) error {
	ip.allocs++
	if ip.allocs > ip.limits.MaxAllocations {
		return &limitFault{Kind: engine.LimitAllocation}
	}
	ip.allocBytes += size
	if ip.allocBytes > ip.limits.MemoryBytes {
		return &limitFault{Kind: engine.LimitMemory}
	}
	return nil
}

func (ip *interp) fault(n *codegen.Node, format string, args ...any) error {
	return &scriptFault{Message: fmt.Sprintf(format, args...), Line: n.Line, Col: n.Col}
}

func (ip *interp) evalStmt(n *codegen.Node, e *env) (control, error) {
	if err := ip.tick(n); err != nil {
		return control{}, err
	}
	switch n.Op {
	case "assign":
		value, err := ip.evalExpr(&n.Kids[0], e)
		if err != nil {
			return control{}, err
		}
		e.vars[n.Str] = value
		return control{}, nil
	case "expr":
		_, err := ip.evalExpr(&n.Kids[0], e)
		return control{}, err
	case "if":
		cond, err := ip.evalExpr(&n.Kids[0], e)
		if err != nil {
			return control{}, err
		}
		if truthy(cond) {
			return ip.evalBlock(&n.Kids[1], e)
		}
		if len(n.Kids) > 2 {
			return ip.evalBlock(&n.Kids[2], e)
		}
		return control{}, nil
	case "for":
		return ip.evalFor(n, e)
	case "while":
		for {
			if err := ip.tick(n); err != nil {
				return control{}, err
			}
			cond, err := ip.evalExpr(&n.Kids[0], e)
			if err != nil {
				return control{}, err
			}
			if !truthy(cond) {
				return control{}, nil
			}
			ctrl, err := ip.evalBlock(&n.Kids[1], e)
			if err != nil {
				return control{}, err
			}
			switch ctrl.kind {
			case ctrlBreak:
				return control{}, nil
			case ctrlReturn:
				return ctrl, nil
			}
		}
	case "break":
		return control{kind: ctrlBreak}, nil
	case "continue":
		return control{kind: ctrlContinue}, nil
	case "pass":
		return control{}, nil
	case "return":
		if e.global {
			return control{}, ip.fault(n, "return outside function")
		}
		out := control{kind: ctrlReturn}
		if len(n.Kids) > 0 {
			value, err := ip.evalExpr(&n.Kids[0], e)
			if err != nil {
				return control{}, err
			}
			out.value = value
		}
		return out, nil
	case "raise":
		if len(n.Kids) == 0 {
			if len(ip.faultStack) == 0 {
				return control{}, ip.fault(n, "no active fault to re-raise")
			}
			return control{}, ip.faultStack[len(ip.faultStack)-1]
		}
		value, err := ip.evalExpr(&n.Kids[0], e)
		if err != nil {
			return control{}, err
		}
		return control{}, &scriptFault{Message: toStr(value), Line: n.Line, Col: n.Col}
	case "try":
		ctrl, err := ip.evalBlock(&n.Kids[0], e)
		fault, caught := err.(*scriptFault)
		if !caught {
			return ctrl, err
		}
		ip.faultStack = append(ip.faultStack, fault)
		defer func() { ip.faultStack = ip.faultStack[:len(ip.faultStack)-1] }()
		if n.Str != "" {
			e.vars[n.Str] = fault.Message
		}
		return ip.evalBlock(&n.Kids[1], e)
	case "block":
		return ip.evalBlock(n, e)
	default:
		return control{}, &internalFault{Message: fmt.Sprintf("unknown statement op %q", n.Op)}
	}
}

func (ip *interp) evalBlock(block *codegen.Node, e *env) (control, error) {
	for i := range block.Kids {
		ctrl, err := ip.evalStmt(&block.Kids[i], e)
		if err != nil || ctrl.kind != ctrlNone {
			return ctrl, err
		}
	}
	return control{}, nil
}

func (ip *interp) evalFor(n *codegen.Node, e *env) (control, error) {
	iter, err := ip.evalExpr(&n.Kids[0], e)
	if err != nil {
		return control{}, err
	}
	elems, err := ip.iterate(n, iter)
	if err != nil {
		return control{}, err
	}
	for _, elem := range elems {
		if err := ip.tick(n); err != nil {
			return control{}, err
		}
		e.vars[n.Str] = elem
		ctrl, err := ip.evalBlock(&n.Kids[1], e)
		if err != nil {
			return control{}, err
		}
		switch ctrl.kind {
		case ctrlBreak:
			return control{}, nil
		case ctrlReturn:
			return ctrl, nil
		}
	}
	return control{}, nil
}

// iterate yields the elements of a list, the characters of a string, or the
// keys of a dict. Dict keys iterate sorted so runs are deterministic.
func (ip *interp) iterate(n *codegen.Node, v any) ([]any, error) {
	switch it := v.(type) {
	case []any:
		return it, nil
	case string:
		out := make([]any, 0, len(it))
		for _, r := range it {
			out = append(out, string(r))
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(it))
		for k := range it {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out, nil
	default:
		return nil, ip.fault(n, "%s is not iterable", typeName(v))
	}
}

func (ip *interp) evalExpr(n *codegen.Node, e *env) (any, error) {
	if err := ip.tick(n); err != nil {
		return nil, err
	}
	switch n.Op {
	case "name":
		if value, ok := e.vars[n.Str]; ok {
			return value, nil
		}
		if !e.global {
			if value, ok := ip.globals[n.Str]; ok {
				return value, nil
			}
		}
		return nil, ip.fault(n, "name %q is not defined", n.Str)
	case "int":
		return n.Int, nil
	case "float":
		return n.Float, nil
	case "str":
		return n.Str, nil
	case "bool":
		return n.Bool, nil
	case "none":
		return nil, nil
	case "list":
		if err := ip.alloc(16 * int64(len(n.Kids)+1)); err != nil {
			return nil, err
		}
		out := make([]any, 0, len(n.Kids))
		for i := range n.Kids {
			elem, err := ip.evalExpr(&n.Kids[i], e)
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case "dict":
		if err := ip.alloc(32 * int64(len(n.Kids)/2+1)); err != nil {
			return nil, err
		}
		out := make(map[string]any, len(n.Kids)/2)
		for i := 0; i+1 < len(n.Kids); i += 2 {
			key, err := ip.evalExpr(&n.Kids[i], e)
			if err != nil {
				return nil, err
			}
			keyStr, ok := key.(string)
			if !ok {
				return nil, ip.fault(&n.Kids[i], "dict keys must be strings, got %s", typeName(key))
			}
			value, err := ip.evalExpr(&n.Kids[i+1], e)
			if err != nil {
				return nil, err
			}
			out[keyStr] = value
		}
		return out, nil
	case "binop":
		return ip.evalBinOp(n, e)
	case "unary":
		x, err := ip.evalExpr(&n.Kids[0], e)
		if err != nil {
			return nil, err
		}
		return ip.applyUnary(n, x)
	case "cond":
		test, err := ip.evalExpr(&n.Kids[0], e)
		if err != nil {
			return nil, err
		}
		if truthy(test) {
			return ip.evalExpr(&n.Kids[1], e)
		}
		return ip.evalExpr(&n.Kids[2], e)
	case "subscript":
		return ip.evalSubscript(n, e)
	case "listcomp":
		return ip.evalListComp(n, e)
	case "load_input":
		value, ok := ip.inputs[n.Str]
		if !ok {
			// Optional inputs the host omitted bind None; required coverage
			// was checked before the session started.
			return nil, nil
		}
		return value, nil
	case "call_builtin":
		return ip.callBuiltin(n, e)
	case "call_func":
		return ip.callFunc(n, e)
	case "call_external":
		return ip.callExternal(n, e)
	default:
		return nil, &internalFault{Message: fmt.Sprintf("unknown expression op %q", n.Op)}
	}
}

func (ip *interp) evalBinOp(n *codegen.Node, e *env) (any, error) {
	// and/or short-circuit.
	switch n.Str {
	case "and":
		l, err := ip.evalExpr(&n.Kids[0], e)
		if err != nil || !truthy(l) {
			return l, err
		}
		return ip.evalExpr(&n.Kids[1], e)
	case "or":
		l, err := ip.evalExpr(&n.Kids[0], e)
		if err != nil || truthy(l) {
			return l, err
		}
		return ip.evalExpr(&n.Kids[1], e)
	}
	l, err := ip.evalExpr(&n.Kids[0], e)
	if err != nil {
		return nil, err
	}
	r, err := ip.evalExpr(&n.Kids[1], e)
	if err != nil {
		return nil, err
	}
	return ip.applyBinOp(n, n.Str, l, r)
}

func (ip *interp) evalSubscript(n *codegen.Node, e *env) (any, error) {
	x, err := ip.evalExpr(&n.Kids[0], e)
	if err != nil {
		return nil, err
	}
	index, err := ip.evalExpr(&n.Kids[1], e)
	if err != nil {
		return nil, err
	}
	switch container := x.(type) {
	case []any:
		i, ok := asInt(index)
		if !ok {
			return nil, ip.fault(n, "list indices must be integers, got %s", typeName(index))
		}
		if i < 0 {
			i += int64(len(container))
		}
		if i < 0 || i >= int64(len(container)) {
			return nil, ip.fault(n, "list index %d out of range", i)
		}
		return container[i], nil
	case map[string]any:
		key, ok := index.(string)
		if !ok {
			return nil, ip.fault(n, "dict keys must be strings, got %s", typeName(index))
		}
		value, ok := container[key]
		if !ok {
			return nil, ip.fault(n, "key %q not found", key)
		}
		return value, nil
	case string:
		i, ok := asInt(index)
		if !ok {
			return nil, ip.fault(n, "string indices must be integers, got %s", typeName(index))
		}
		runes := []rune(container)
		if i < 0 {
			i += int64(len(runes))
		}
		if i < 0 || i >= int64(len(runes)) {
			return nil, ip.fault(n, "string index %d out of range", i)
		}
		return string(runes[i]), nil
	default:
		return nil, ip.fault(n, "%s is not subscriptable", typeName(x))
	}
}

func (ip *interp) evalListComp(n *codegen.Node, e *env) (any, error) {
	iter, err := ip.evalExpr(&n.Kids[0], e)
	if err != nil {
		return nil, err
	}
	elems, err := ip.iterate(n, iter)
	if err != nil {
		return nil, err
	}
	if err := ip.alloc(16 * int64(len(elems)+1)); err != nil {
		return nil, err
	}
	out := make([]any, 0, len(elems))
	for _, elem := range elems {
		if err := ip.tick(n); err != nil {
			return nil, err
		}
		e.vars[n.Str] = elem
		if len(n.Kids) > 2 {
			keep, err := ip.evalExpr(&n.Kids[2], e)
			if err != nil {
				return nil, err
			}
			if !truthy(keep) {
				continue
			}
		}
		value, err := ip.evalExpr(&n.Kids[1], e)
		if err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, nil
}

func (ip *interp) callFunc(n *codegen.Node, e *env) (any, error) {
	fn, ok := ip.funcs[n.Str]
	if !ok {
		return nil, &internalFault{Message: fmt.Sprintf("call to unresolved function %q", n.Str)}
	}
	ip.depth++
	defer func() { ip.depth-- }()
	if ip.depth > ip.limits.MaxRecursion {
		return nil, &limitFault{Kind: engine.LimitRecursion}
	}

	args, kwargs, err := ip.evalArgs(n, e)
	if err != nil {
		return nil, err
	}
	locals := make(map[string]any, len(fn.Params))
	if len(args) > len(fn.Params) {
		return nil, ip.fault(n, "%s() takes %d arguments, got %d", n.Str, len(fn.Params), len(args))
	}
	for i, arg := range args {
		locals[fn.Params[i]] = arg
	}
	for name, value := range kwargs {
		if !contains(fn.Params, name) {
			return nil, ip.fault(n, "%s() has no parameter %q", n.Str, name)
		}
		if _, dup := locals[name]; dup {
			return nil, ip.fault(n, "%s() got multiple values for %q", n.Str, name)
		}
		locals[name] = value
	}
	for _, param := range fn.Params {
		if _, ok := locals[param]; !ok {
			return nil, ip.fault(n, "%s() missing argument %q", n.Str, param)
		}
	}

	frame := &env{vars: locals}
	for i := range fn.Body {
		ctrl, err := ip.evalStmt(&fn.Body[i], frame)
		if err != nil {
			return nil, err
		}
		switch ctrl.kind {
		case ctrlReturn:
			return ctrl.value, nil
		case ctrlBreak, ctrlContinue:
			return nil, ip.fault(n, "control statement outside its loop")
		}
	}
	return nil, nil
}

// callExternal is the evaluator's single suspension point: it emits one
// suspension event and parks until the caller resumes with the call's
// outcome. Time spent parked is excluded from the engine's own duration
// accounting; the caller enforces wall-clock limits independently.
func (ip *interp) callExternal(n *codegen.Node, e *env) (any, error) {
	args, kwargs, err := ip.evalArgs(n, e)
	if err != nil {
		return nil, err
	}
	call := engine.PendingCall{Seq: 0, External: n.Str, Args: args, Kwargs: kwargs}

	parked := time.Now()
	if !ip.s.emit(ip.ctx, engine.Event{Kind: engine.EventSuspended, Calls: []engine.PendingCall{call}}) {
		return nil, ip.ctx.Err()
	}
	results, ok := ip.s.await(ip.ctx)
	if !ok {
		return nil, ip.ctx.Err()
	}
	ip.deadline = ip.deadline.Add(time.Since(parked))

	for _, res := range results {
		if res.Seq != call.Seq {
			continue
		}
		if res.Err != nil {
			return nil, &scriptFault{Message: res.Err.Error(), External: n.Str, Line: n.Line, Col: n.Col}
		}
		return res.Value, nil
	}
	return nil, &internalFault{Message: fmt.Sprintf("resume missing outcome for call %d", call.Seq)}
}

func (ip *interp) evalArgs(n *codegen.Node, e *env) ([]any, map[string]any, error) {
	var args []any
	var kwargs map[string]any
	for i := range n.Kids {
		kid := &n.Kids[i]
		if kid.Op == "kwarg" {
			value, err := ip.evalExpr(&kid.Kids[0], e)
			if err != nil {
				return nil, nil, err
			}
			if kwargs == nil {
				kwargs = make(map[string]any)
			}
			kwargs[kid.Str] = value
			continue
		}
		value, err := ip.evalExpr(kid, e)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, value)
	}
	return args, kwargs, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
