package bridge

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"scriptgate/sandbox-go/pkg/engine"
	"scriptgate/sandbox-go/pkg/manifest"
)

// dispatch services one suspension event: it validates every pending call's
// arguments against the declared parameter schema, invokes the host
// implementations, validates their results, and collects one outcome per
// call. This is the system's only suspension point.
//
// An argument or result schema violation is returned as an error and ends
// the session — the offending value never crosses the boundary. A host
// implementation failure is not an error here: it becomes the call's
// outcome, routed into the script as a catchable fault.
//
// Externals the manifest marks ordered run sequentially in call order;
// unordered calls run concurrently.
func (b *Bridge) dispatch(ctx context.Context, mf *manifest.Manifest, externals map[string]External, calls []engine.PendingCall) ([]engine.CallResult, error) {
	if len(calls) == 0 {
		return nil, &SandboxFault{Message: "engine suspended with no pending calls"}
	}

	type target struct {
		call engine.PendingCall
		decl manifest.ExternalDeclaration
		impl External
	}
	ordered := make([]target, 0, len(calls))
	unordered := make([]target, 0, len(calls))
	for _, call := range calls {
		index, ok := mf.ExternalIndex(call.External)
		if !ok {
			return nil, &SandboxFault{Message: fmt.Sprintf("engine requested undeclared external %q", call.External)}
		}
		decl := mf.Externals[index]
		if err := validateArguments(decl, call); err != nil {
			return nil, err
		}
		impl := externals[call.External]
		if impl == nil {
			return nil, &MissingExternalError{Name: call.External}
		}
		t := target{call: call, decl: decl, impl: impl}
		if decl.Ordered {
			ordered = append(ordered, t)
		} else {
			unordered = append(unordered, t)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].call.Seq < ordered[j].call.Seq })

	results := make([]engine.CallResult, 0, len(calls))
	var resultErr error

	collect := func(t target, value engine.Value, hostErr error) (engine.CallResult, error) {
		if hostErr != nil {
			return engine.CallResult{Seq: t.call.Seq, Err: hostErr}, nil
		}
		if err := t.decl.Return.Check(value); err != nil {
			return engine.CallResult{}, &ArgumentValidationError{External: t.decl.Name, Reason: err.Error(), Result: true}
		}
		return engine.CallResult{Seq: t.call.Seq, Value: value}, nil
	}

	for _, t := range ordered {
		value, hostErr := b.invoke(ctx, t.impl, t.call)
		res, err := collect(t, value, hostErr)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	if len(unordered) == 1 {
		t := unordered[0]
		value, hostErr := b.invoke(ctx, t.impl, t.call)
		res, err := collect(t, value, hostErr)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	} else if len(unordered) > 1 {
		group, groupCtx := errgroup.WithContext(ctx)
		slots := make([]engine.CallResult, len(unordered))
		for i, t := range unordered {
			group.Go(func() error {
				value, hostErr := b.invoke(groupCtx, t.impl, t.call)
				res, err := collect(t, value, hostErr)
				if err != nil {
					return err
				}
				slots[i] = res
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			resultErr = err
		} else {
			results = append(results, slots...)
		}
	}
	if resultErr != nil {
		return nil, resultErr
	}
	return results, nil
}

// invoke calls a host implementation, converting a panic into an ordinary
// host error so a misbehaving implementation cannot take the bridge down.
func (b *Bridge) invoke(ctx context.Context, impl External, call engine.PendingCall) (value engine.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("external %q panicked: %v", call.External, r)
		}
	}()
	return impl(ctx, call.Args, call.Kwargs)
}

// validateArguments checks the supplied arguments against the declared
// parameter schema: arity, names, and types. On a mismatch the call never
// reaches the host implementation.
func validateArguments(decl manifest.ExternalDeclaration, call engine.PendingCall) error {
	if len(call.Args) > len(decl.Params) {
		return &ArgumentValidationError{
			External: decl.Name,
			Reason:   fmt.Sprintf("takes %d arguments, got %d", len(decl.Params), len(call.Args)),
		}
	}
	seen := make(map[string]bool, len(decl.Params))
	for i, arg := range call.Args {
		param := decl.Params[i]
		seen[param.Name] = true
		if err := param.Type.Check(arg); err != nil {
			return &ArgumentValidationError{External: decl.Name, Param: param.Name, Reason: err.Error()}
		}
	}
	for name, value := range call.Kwargs {
		param, ok := declParam(decl, name)
		if !ok {
			return &ArgumentValidationError{External: decl.Name, Param: name, Reason: "no such parameter"}
		}
		if seen[name] {
			return &ArgumentValidationError{External: decl.Name, Param: name, Reason: "supplied both positionally and by keyword"}
		}
		seen[name] = true
		if err := param.Type.Check(value); err != nil {
			return &ArgumentValidationError{External: decl.Name, Param: name, Reason: err.Error()}
		}
	}
	for _, param := range decl.Params {
		if !seen[param.Name] {
			return &ArgumentValidationError{External: decl.Name, Param: param.Name, Reason: "missing argument"}
		}
	}
	return nil
}
