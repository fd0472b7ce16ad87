package treewalk

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"scriptgate/sandbox-go/pkg/codegen"
)

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "None"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func asInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case int64, float64:
		return true
	}
	return false
}

func bothInt(l, r any) (int64, int64, bool) {
	li, ok := l.(int64)
	if !ok {
		return 0, 0, false
	}
	ri, ok := r.(int64)
	if !ok {
		return 0, 0, false
	}
	return li, ri, true
}

func (ip *interp) applyBinOp(n *codegen.Node, op string, l, r any) (any, error) {
	switch op {
	case "+":
		if li, ri, ok := bothInt(l, r); ok {
			return li + ri, nil
		}
		if lf, ok := asFloat(l); ok {
			if rf, ok := asFloat(r); ok {
				return lf + rf, nil
			}
		}
		if ls, ok := l.(string); ok {
			if rs, ok := r.(string); ok {
				if err := ip.alloc(int64(len(ls) + len(rs))); err != nil {
					return nil, err
				}
				return ls + rs, nil
			}
		}
		if ll, ok := l.([]any); ok {
			if rl, ok := r.([]any); ok {
				if err := ip.alloc(16 * int64(len(ll)+len(rl)+1)); err != nil {
					return nil, err
				}
				out := make([]any, 0, len(ll)+len(rl))
				out = append(out, ll...)
				out = append(out, rl...)
				return out, nil
			}
		}
	case "-":
		if li, ri, ok := bothInt(l, r); ok {
			return li - ri, nil
		}
		if lf, ok := asFloat(l); ok {
			if rf, ok := asFloat(r); ok {
				return lf - rf, nil
			}
		}
	case "*":
		if li, ri, ok := bothInt(l, r); ok {
			return li * ri, nil
		}
		if lf, ok := asFloat(l); ok {
			if rf, ok := asFloat(r); ok {
				return lf * rf, nil
			}
		}
	case "/":
		if lf, ok := asFloat(l); ok {
			if rf, ok := asFloat(r); ok {
				if rf == 0 {
					return nil, ip.fault(n, "division by zero")
				}
				return lf / rf, nil
			}
		}
	case "//":
		if li, ri, ok := bothInt(l, r); ok {
			if ri == 0 {
				return nil, ip.fault(n, "division by zero")
			}
			return floorDiv(li, ri), nil
		}
		if lf, ok := asFloat(l); ok {
			if rf, ok := asFloat(r); ok {
				if rf == 0 {
					return nil, ip.fault(n, "division by zero")
				}
				return math.Floor(lf / rf), nil
			}
		}
	case "%":
		if li, ri, ok := bothInt(l, r); ok {
			if ri == 0 {
				return nil, ip.fault(n, "division by zero")
			}
			return li - floorDiv(li, ri)*ri, nil
		}
		if lf, ok := asFloat(l); ok {
			if rf, ok := asFloat(r); ok {
				if rf == 0 {
					return nil, ip.fault(n, "division by zero")
				}
				return lf - math.Floor(lf/rf)*rf, nil
			}
		}
	case "**":
		if li, ri, ok := bothInt(l, r); ok && ri >= 0 {
			return intPow(li, ri), nil
		}
		if lf, ok := asFloat(l); ok {
			if rf, ok := asFloat(r); ok {
				return math.Pow(lf, rf), nil
			}
		}
	case "==":
		return valuesEqual(l, r), nil
	case "!=":
		return !valuesEqual(l, r), nil
	case "<", "<=", ">", ">=":
		return ip.compare(n, op, l, r)
	case "in":
		return ip.membership(n, l, r)
	default:
		return nil, &internalFault{Message: fmt.Sprintf("unknown operator %q", op)}
	}
	return nil, ip.fault(n, "unsupported operand types for %s: %s and %s", op, typeName(l), typeName(r))
}

func (ip *interp) applyUnary(n *codegen.Node, x any) (any, error) {
	switch n.Str {
	case "not":
		return !truthy(x), nil
	case "-":
		switch t := x.(type) {
		case int64:
			return -t, nil
		case float64:
			return -t, nil
		}
	case "+":
		if isNumber(x) {
			return x, nil
		}
	}
	return nil, ip.fault(n, "unsupported operand type for unary %s: %s", n.Str, typeName(x))
}

func (ip *interp) compare(n *codegen.Node, op string, l, r any) (any, error) {
	if lf, ok := asFloat(l); ok && isNumber(l) {
		if rf, ok := asFloat(r); ok && isNumber(r) {
			return orderResult(op, compareFloats(lf, rf)), nil
		}
	}
	if ls, ok := l.(string); ok {
		if rs, ok := r.(string); ok {
			return orderResult(op, strings.Compare(ls, rs)), nil
		}
	}
	return nil, ip.fault(n, "%s is not comparable with %s", typeName(l), typeName(r))
}

func compareFloats(l, r float64) int {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}

func orderResult(op string, cmp int) bool {
	switch op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	default:
		return cmp >= 0
	}
}

func (ip *interp) membership(n *codegen.Node, needle, haystack any) (any, error) {
	switch container := haystack.(type) {
	case []any:
		for _, elem := range container {
			if valuesEqual(needle, elem) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		key, ok := needle.(string)
		if !ok {
			return nil, ip.fault(n, "dict membership requires a str, got %s", typeName(needle))
		}
		_, found := container[key]
		return found, nil
	case string:
		sub, ok := needle.(string)
		if !ok {
			return nil, ip.fault(n, "string membership requires a str, got %s", typeName(needle))
		}
		return strings.Contains(container, sub), nil
	default:
		return nil, ip.fault(n, "%s does not support membership tests", typeName(haystack))
	}
}

// valuesEqual compares numbers across int/float and containers deeply.
func valuesEqual(l, r any) bool {
	if isNumber(l) && isNumber(r) {
		lf, _ := asFloat(l)
		rf, _ := asFloat(r)
		return lf == rf
	}
	return reflect.DeepEqual(l, r)
}

func floorDiv(l, r int64) int64 {
	q := l / r
	if (l%r != 0) && ((l < 0) != (r < 0)) {
		q--
	}
	return q
}

func intPow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

// toStr renders a value the way the dialect's str() does.
func toStr(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case bool:
		if t {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return t
	case []any:
		parts := make([]string, len(t))
		for i, elem := range t {
			parts[i] = reprStr(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = reprStr(k) + ": " + reprStr(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func reprStr(v any) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	return toStr(v)
}
