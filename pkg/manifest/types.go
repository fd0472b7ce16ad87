package manifest

import (
	"fmt"
	"strings"
)

// Kind enumerates the closed set of schema kinds the dialect can declare.
type Kind string

const (
	KindAny   Kind = "any"
	KindInt   Kind = "int"
	KindFloat Kind = "float"
	KindStr   Kind = "str"
	KindBool  Kind = "bool"
	KindNone  Kind = "none"
	KindList  Kind = "list"
	KindDict  Kind = "dict"
)

// Type is a declared schema. Elem is the element type for lists and the
// value type for dicts (dict keys are always strings); nil Elem means any.
type Type struct {
	Kind Kind
	Elem *Type
}

// Any is the permissive type recorded for missing or unrecognized
// annotations. It checks every value, downgrading schema enforcement for the
// declaration to a no-op.
func Any() Type { return Type{Kind: KindAny} }

// Key renders a canonical, unambiguous form used in hashes and diagnostics.
func (t Type) Key() string {
	switch t.Kind {
	case KindList:
		return "list[" + t.elem().Key() + "]"
	case KindDict:
		return "dict[str," + t.elem().Key() + "]"
	case "":
		return string(KindAny)
	default:
		return string(t.Kind)
	}
}

func (t Type) elem() Type {
	if t.Elem == nil {
		return Any()
	}
	return *t.Elem
}

// IsAny reports whether the type checks every value.
func (t Type) IsAny() bool { return t.Kind == KindAny || t.Kind == "" }

// Check validates a runtime value against the declared type. Values cross
// the boundary as the JSON-ish family: nil, bool, int64, float64, string,
// []any, and map[string]any. Int values satisfy float declarations, matching
// the dialect's numeric widening.
func (t Type) Check(v any) error {
	switch t.Kind {
	case KindAny, "":
		return nil
	case KindNone:
		if v != nil {
			return fmt.Errorf("expected None, got %s", valueKind(v))
		}
		return nil
	case KindInt:
		switch v.(type) {
		case int64, int:
			return nil
		}
	case KindFloat:
		switch v.(type) {
		case float64, int64, int:
			return nil
		}
	case KindStr:
		if _, ok := v.(string); ok {
			return nil
		}
	case KindBool:
		if _, ok := v.(bool); ok {
			return nil
		}
	case KindList:
		list, ok := v.([]any)
		if !ok {
			break
		}
		for i, elem := range list {
			if err := t.elem().Check(elem); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		return nil
	case KindDict:
		dict, ok := v.(map[string]any)
		if !ok {
			break
		}
		for key, val := range dict {
			if err := t.elem().Check(val); err != nil {
				return fmt.Errorf("key %q: %w", key, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown schema kind %q", t.Kind)
	}
	return fmt.Errorf("expected %s, got %s", t.Key(), valueKind(v))
}

func valueKind(v any) string {
	switch v.(type) {
	case nil:
		return "None"
	case bool:
		return "bool"
	case int64, int:
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

// ParseAnnotation converts an annotation's source text into a Type. The
// second result is false when the annotation is not part of the dialect's
// type vocabulary; callers record a warning diagnostic and fall back to Any.
func ParseAnnotation(text string) (Type, bool) {
	text = strings.TrimSpace(text)
	switch text {
	case "int":
		return Type{Kind: KindInt}, true
	case "float":
		return Type{Kind: KindFloat}, true
	case "str":
		return Type{Kind: KindStr}, true
	case "bool":
		return Type{Kind: KindBool}, true
	case "None":
		return Type{Kind: KindNone}, true
	case "Any", "any":
		return Any(), true
	}
	if inner, ok := subscriptBody(text, "list"); ok {
		elem, ok := ParseAnnotation(inner)
		if !ok {
			return Any(), false
		}
		return Type{Kind: KindList, Elem: &elem}, true
	}
	if inner, ok := subscriptBody(text, "dict"); ok {
		key, value, ok := splitTopLevelComma(inner)
		if !ok || strings.TrimSpace(key) != "str" {
			return Any(), false
		}
		elem, ok := ParseAnnotation(value)
		if !ok {
			return Any(), false
		}
		return Type{Kind: KindDict, Elem: &elem}, true
	}
	return Any(), false
}

func subscriptBody(text, head string) (string, bool) {
	if !strings.HasPrefix(text, head+"[") || !strings.HasSuffix(text, "]") {
		return "", false
	}
	return text[len(head)+1 : len(text)-1], true
}

func splitTopLevelComma(text string) (string, string, bool) {
	depth := 0
	for i, r := range text {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				return text[:i], text[i+1:], true
			}
		}
	}
	return "", "", false
}
