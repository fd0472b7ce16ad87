package codegen

import (
	"bytes"
	"testing"

	"scriptgate/sandbox-go/pkg/parser"
)

const budgetScript = `from sandbox import input, external

budget: float = input("budget")

@external
async def getExpenses(userId: int) -> list[dict[str, float]]:
    pass

expenses = await getExpenses(42)
total = sum([e["amount"] for e in expenses])
{"total": total, "overBudget": total > budget}
`

func mustGenerate(t *testing.T, source string) *Program {
	t.Helper()
	script, err := parser.Validate(source)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	program, err := Generate(script)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return program
}

func TestGenerateDeterministic(t *testing.T) {
	a := mustGenerate(t, budgetScript)
	b := mustGenerate(t, budgetScript)

	ea, err := a.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	eb, err := b.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Equal(ea, eb) {
		t.Fatalf("repeated generation is not byte-identical:\n%s\n%s", ea, eb)
	}

	ha, err := a.Hash()
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	hb, _ := b.Hash()
	if ha != hb {
		t.Fatalf("program hashes differ: %s vs %s", ha, hb)
	}
}

func TestGenerateLowersDeclarations(t *testing.T) {
	p := mustGenerate(t, budgetScript)

	if p.FormatVersion != FormatVersion {
		t.Errorf("FormatVersion = %d, want %d", p.FormatVersion, FormatVersion)
	}
	if p.SourceHash == "" || p.ManifestHash == "" {
		t.Errorf("program missing hashes: source=%q manifest=%q", p.SourceHash, p.ManifestHash)
	}

	var loads, externals []Node
	var walk func(Node)
	walk = func(n Node) {
		switch n.Op {
		case "load_input":
			loads = append(loads, n)
		case "call_external":
			externals = append(externals, n)
		}
		for _, kid := range n.Kids {
			walk(kid)
		}
	}
	for _, n := range p.Body {
		walk(n)
	}
	if p.Result != nil {
		walk(*p.Result)
	}

	if len(loads) != 1 || loads[0].Str != "budget" {
		t.Fatalf("load_input nodes = %+v, want one for %q", loads, "budget")
	}
	if len(externals) != 1 {
		t.Fatalf("call_external nodes = %+v, want one", externals)
	}
	ext := externals[0]
	if ext.Str != "getExpenses" || ext.Index != 0 {
		t.Errorf("call_external = %+v, want getExpenses at index 0", ext)
	}
	if len(ext.Kids) != 1 || ext.Kids[0].Op != "int" || ext.Kids[0].Int != 42 {
		t.Errorf("call_external args = %+v, want the literal 42", ext.Kids)
	}

	if p.Result == nil || p.Result.Op != "dict" {
		t.Fatalf("Result = %+v, want a dict node", p.Result)
	}
}

func TestGenerateCallResolution(t *testing.T) {
	p := mustGenerate(t, `from sandbox import external

@external
def lookup(key: str) -> str:
    pass

def shout(s):
    return s + "!"

shout(lookup("greeting"))
`)
	if p.Result == nil {
		t.Fatalf("no result node")
	}
	if p.Result.Op != "call_func" || p.Result.Str != "shout" {
		t.Fatalf("result = %+v, want call_func shout", p.Result)
	}
	inner := p.Result.Kids[0]
	if inner.Op != "call_external" || inner.Str != "lookup" {
		t.Fatalf("inner call = %+v, want call_external lookup", inner)
	}
	if len(p.Funcs) != 1 || p.Funcs[0].Name != "shout" {
		t.Fatalf("Funcs = %+v, want shout", p.Funcs)
	}
}

func TestGenerateBuiltinCall(t *testing.T) {
	p := mustGenerate(t, `len([1, 2, 3])
`)
	if p.Result == nil || p.Result.Op != "call_builtin" || p.Result.Str != "len" {
		t.Fatalf("result = %+v, want call_builtin len", p.Result)
	}
}

func TestGenerateCarriesLocations(t *testing.T) {
	p := mustGenerate(t, `x = 1
y = x + 2
y
`)
	if len(p.Body) != 2 {
		t.Fatalf("len(Body) = %d, want 2", len(p.Body))
	}
	if p.Body[0].Line != 1 || p.Body[1].Line != 2 {
		t.Errorf("statement lines = %d, %d, want 1, 2", p.Body[0].Line, p.Body[1].Line)
	}
}

func TestDecodeRejectsUnknownFormat(t *testing.T) {
	p := mustGenerate(t, `x = 1
x
`)
	data, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	back, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	h1, _ := p.Hash()
	h2, _ := back.Hash()
	if h1 != h2 {
		t.Fatalf("decoded program hash = %s, want %s", h2, h1)
	}

	if _, err := Decode([]byte(`{"format_version": 99}`)); err == nil {
		t.Fatalf("Decode accepted an unknown format version")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("Decode accepted malformed bytes")
	}
}
