package treewalk

import (
	"math"
	"strconv"
	"strings"

	"scriptgate/sandbox-go/pkg/codegen"
)

// callBuiltin dispatches the dialect's closed builtin set. Builtins take
// positional arguments only.
func (ip *interp) callBuiltin(n *codegen.Node, e *env) (any, error) {
	args, kwargs, err := ip.evalArgs(n, e)
	if err != nil {
		return nil, err
	}
	if len(kwargs) > 0 {
		return nil, ip.fault(n, "%s() takes no keyword arguments", n.Str)
	}
	switch n.Str {
	case "len":
		if len(args) != 1 {
			return nil, ip.fault(n, "len() takes one argument, got %d", len(args))
		}
		switch t := args[0].(type) {
		case string:
			return int64(len([]rune(t))), nil
		case []any:
			return int64(len(t)), nil
		case map[string]any:
			return int64(len(t)), nil
		}
		return nil, ip.fault(n, "%s has no len()", typeName(args[0]))
	case "sum":
		if len(args) != 1 {
			return nil, ip.fault(n, "sum() takes one argument, got %d", len(args))
		}
		list, ok := args[0].([]any)
		if !ok {
			return nil, ip.fault(n, "sum() requires a list, got %s", typeName(args[0]))
		}
		return ip.sumList(n, list)
	case "min", "max":
		return ip.minMax(n, args)
	case "abs":
		if len(args) != 1 {
			return nil, ip.fault(n, "abs() takes one argument, got %d", len(args))
		}
		switch t := args[0].(type) {
		case int64:
			if t < 0 {
				return -t, nil
			}
			return t, nil
		case float64:
			return math.Abs(t), nil
		}
		return nil, ip.fault(n, "abs() requires a number, got %s", typeName(args[0]))
	case "str":
		if len(args) != 1 {
			return nil, ip.fault(n, "str() takes one argument, got %d", len(args))
		}
		return toStr(args[0]), nil
	case "int":
		return ip.convInt(n, args)
	case "float":
		return ip.convFloat(n, args)
	case "bool":
		if len(args) != 1 {
			return nil, ip.fault(n, "bool() takes one argument, got %d", len(args))
		}
		return truthy(args[0]), nil
	case "round":
		return ip.round(n, args)
	case "range":
		return ip.rangeList(n, args)
	default:
		return nil, &internalFault{Message: "unknown builtin " + n.Str}
	}
}

func (ip *interp) sumList(n *codegen.Node, list []any) (any, error) {
	intSum := int64(0)
	floatSum := 0.0
	sawFloat := false
	for _, elem := range list {
		switch t := elem.(type) {
		case int64:
			intSum += t
			floatSum += float64(t)
		case float64:
			sawFloat = true
			floatSum += t
		default:
			return nil, ip.fault(n, "sum() requires numbers, got %s", typeName(elem))
		}
	}
	if sawFloat {
		return floatSum, nil
	}
	return intSum, nil
}

func (ip *interp) minMax(n *codegen.Node, args []any) (any, error) {
	var items []any
	if len(args) == 1 {
		list, ok := args[0].([]any)
		if !ok {
			return nil, ip.fault(n, "%s() requires a list or multiple arguments", n.Str)
		}
		items = list
	} else {
		items = args
	}
	if len(items) == 0 {
		return nil, ip.fault(n, "%s() of an empty sequence", n.Str)
	}
	best := items[0]
	for _, item := range items[1:] {
		cmp, err := ip.compare(n, "<", item, best)
		if err != nil {
			return nil, err
		}
		less := cmp.(bool)
		if (n.Str == "min") == less {
			best = item
		}
	}
	return best, nil
}

func (ip *interp) convInt(n *codegen.Node, args []any) (any, error) {
	if len(args) != 1 {
		return nil, ip.fault(n, "int() takes one argument, got %d", len(args))
	}
	switch t := args[0].(type) {
	case int64:
		return t, nil
	case float64:
		return int64(t), nil
	case bool:
		if t {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		v, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return nil, ip.fault(n, "invalid literal for int(): %q", t)
		}
		return v, nil
	}
	return nil, ip.fault(n, "int() cannot convert %s", typeName(args[0]))
}

func (ip *interp) convFloat(n *codegen.Node, args []any) (any, error) {
	if len(args) != 1 {
		return nil, ip.fault(n, "float() takes one argument, got %d", len(args))
	}
	switch t := args[0].(type) {
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	case bool:
		if t {
			return 1.0, nil
		}
		return 0.0, nil
	case string:
		v, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil, ip.fault(n, "invalid literal for float(): %q", t)
		}
		return v, nil
	}
	return nil, ip.fault(n, "float() cannot convert %s", typeName(args[0]))
}

func (ip *interp) round(n *codegen.Node, args []any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, ip.fault(n, "round() takes one or two arguments, got %d", len(args))
	}
	value, ok := asFloat(args[0])
	if !ok || !isNumber(args[0]) {
		return nil, ip.fault(n, "round() requires a number, got %s", typeName(args[0]))
	}
	if len(args) == 1 {
		return int64(math.RoundToEven(value)), nil
	}
	digits, ok := asInt(args[1])
	if !ok {
		return nil, ip.fault(n, "round() digits must be an int, got %s", typeName(args[1]))
	}
	scale := math.Pow(10, float64(digits))
	return math.RoundToEven(value*scale) / scale, nil
}

func (ip *interp) rangeList(n *codegen.Node, args []any) (any, error) {
	params := make([]int64, 0, 3)
	for _, arg := range args {
		v, ok := asInt(arg)
		if !ok {
			return nil, ip.fault(n, "range() requires ints, got %s", typeName(arg))
		}
		params = append(params, v)
	}
	start, stop, step := int64(0), int64(0), int64(1)
	switch len(params) {
	case 1:
		stop = params[0]
	case 2:
		start, stop = params[0], params[1]
	case 3:
		start, stop, step = params[0], params[1], params[2]
	default:
		return nil, ip.fault(n, "range() takes one to three arguments, got %d", len(args))
	}
	if step == 0 {
		return nil, ip.fault(n, "range() step must not be zero")
	}
	var out []any
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		if err := ip.alloc(16); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}
