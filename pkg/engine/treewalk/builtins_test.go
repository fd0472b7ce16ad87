package treewalk

import (
	"reflect"
	"testing"

	"scriptgate/sandbox-go/pkg/engine"
)

func evalScript(t *testing.T, source string) engine.Event {
	t.Helper()
	program := compile(t, source)
	sess := start(t, program, testLimits(), nil)
	return runToEnd(t, sess, nil)
}

func TestFormattedStrings(t *testing.T) {
	ev := evalScript(t, `name = "world"
count = 3
f"hello {name}, count={count + 1}"
`)
	if ev.Kind != engine.EventCompleted {
		t.Fatalf("event = %+v, want completed", ev)
	}
	if ev.Value != "hello world, count=4" {
		t.Fatalf("value = %#v, want %q", ev.Value, "hello world, count=4")
	}
}

func TestBuiltins(t *testing.T) {
	cases := []struct {
		name   string
		source string
		want   any
	}{
		{"len str", `len("héllo")` + "\n", int64(5)},
		{"len list", `len([1, 2, 3])` + "\n", int64(3)},
		{"len dict", `len({"a": 1, "b": 2})` + "\n", int64(2)},
		{"sum ints", `sum([1, 2, 3])` + "\n", int64(6)},
		{"sum mixed", `sum([1, 2.5])` + "\n", 3.5},
		{"min list", `min([3, 1, 2])` + "\n", int64(1)},
		{"max variadic", `max(3, 1, 2)` + "\n", int64(3)},
		{"abs int", `abs(0 - 4)` + "\n", int64(4)},
		{"abs float", `abs(0.0 - 4.5)` + "\n", 4.5},
		{"str of int", `str(42)` + "\n", "42"},
		{"str of bool", `str(True)` + "\n", "True"},
		{"str of none", `str(None)` + "\n", "None"},
		{"str of list", `str([1, "a"])` + "\n", "[1, 'a']"},
		{"int of float", `int(3.9)` + "\n", int64(3)},
		{"int of str", `int("17")` + "\n", int64(17)},
		{"float of int", `float(3)` + "\n", 3.0},
		{"float of str", `float("2.5")` + "\n", 2.5},
		{"bool of empty", `bool([])` + "\n", false},
		{"bool of value", `bool("x")` + "\n", true},
		{"round half even", `round(2.5)` + "\n", int64(2)},
		{"round digits", `round(1.25, 1)` + "\n", 1.2},
		{"range stop", `range(4)` + "\n", []any{int64(0), int64(1), int64(2), int64(3)}},
		{"range start step", `range(1, 10, 4)` + "\n", []any{int64(1), int64(5), int64(9)}},
		{"range negative step", `range(3, 0, 0 - 1)` + "\n", []any{int64(3), int64(2), int64(1)}},
	}
	for _, tc := range cases {
		ev := evalScript(t, tc.source)
		if ev.Kind != engine.EventCompleted {
			t.Errorf("%s: event = %+v, want completed", tc.name, ev)
			continue
		}
		if !reflect.DeepEqual(ev.Value, tc.want) {
			t.Errorf("%s: value = %#v, want %#v", tc.name, ev.Value, tc.want)
		}
	}
}

func TestOperators(t *testing.T) {
	cases := []struct {
		name   string
		source string
		want   any
	}{
		{"str concat", `"ab" + "cd"` + "\n", "abcd"},
		{"list concat", `[1] + [2, 3]` + "\n", []any{int64(1), int64(2), int64(3)}},
		{"floor div negative", `(0 - 7) // 2` + "\n", int64(-4)},
		{"mod follows floor", `(0 - 7) % 2` + "\n", int64(1)},
		{"true div is float", `6 / 3` + "\n", 2.0},
		{"numeric equality crosses kinds", `1 == 1.0` + "\n", true},
		{"membership list", `2 in [1, 2, 3]` + "\n", true},
		{"membership dict", `"a" in {"a": 1}` + "\n", true},
		{"membership str", `"ell" in "hello"` + "\n", true},
		{"not in", `4 not in [1, 2, 3]` + "\n", true},
		{"and short circuit", `False and undefined` + "\n", false},
		{"or short circuit", `True or undefined` + "\n", true},
		{"conditional", `"hi" if 1 < 2 else "bye"` + "\n", "hi"},
		{"negative index", `[10, 20, 30][0 - 1]` + "\n", int64(30)},
		{"string index", `"abc"[1]` + "\n", "b"},
		{"unary minus", `-(3)` + "\n", int64(-3)},
		{"not", `not []` + "\n", true},
	}
	for _, tc := range cases {
		ev := evalScript(t, tc.source)
		if ev.Kind != engine.EventCompleted {
			t.Errorf("%s: event = %+v, want completed", tc.name, ev)
			continue
		}
		if !reflect.DeepEqual(ev.Value, tc.want) {
			t.Errorf("%s: value = %#v, want %#v", tc.name, ev.Value, tc.want)
		}
	}
}

func TestFaultingOperations(t *testing.T) {
	cases := []struct {
		name   string
		source string
	}{
		{"division by zero", `1 / 0` + "\n"},
		{"floor div by zero", `1 // 0` + "\n"},
		{"undefined name", `missing + 1` + "\n"},
		{"bad operand types", `"a" - 1` + "\n"},
		{"index out of range", `[1][5]` + "\n"},
		{"missing key", `{"a": 1}["b"]` + "\n"},
		{"not iterable", `[x for x in 5]` + "\n"},
		{"len of int", `len(5)` + "\n"},
	}
	for _, tc := range cases {
		ev := evalScript(t, tc.source)
		if ev.Kind != engine.EventFaulted {
			t.Errorf("%s: event = %+v, want faulted", tc.name, ev)
			continue
		}
		if ev.Fault == nil || ev.Fault.Internal {
			t.Errorf("%s: fault = %+v, want a script fault", tc.name, ev.Fault)
		}
	}
}
