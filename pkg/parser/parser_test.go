package parser

import (
	"errors"
	"strings"
	"testing"

	"scriptgate/sandbox-go/pkg/ast"
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

func TestValidateExtractsManifest(t *testing.T) {
	script, err := Validate(budgetScript)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if len(script.Manifest.Inputs) != 1 {
		t.Fatalf("len(Inputs) = %d, want 1", len(script.Manifest.Inputs))
	}
	in := script.Manifest.Inputs[0]
	if in.Name != "budget" || !in.Required {
		t.Errorf("input = %+v, want required input named budget", in)
	}
	if in.Type.Key() != "float" {
		t.Errorf("input type = %q, want %q", in.Type.Key(), "float")
	}

	if len(script.Manifest.Externals) != 1 {
		t.Fatalf("len(Externals) = %d, want 1", len(script.Manifest.Externals))
	}
	ext := script.Manifest.Externals[0]
	if ext.Name != "getExpenses" {
		t.Errorf("external name = %q, want %q", ext.Name, "getExpenses")
	}
	if !ext.Async {
		t.Errorf("external %q not marked async", ext.Name)
	}
	if len(ext.Params) != 1 || ext.Params[0].Name != "userId" || ext.Params[0].Type.Key() != "int" {
		t.Errorf("params = %+v, want one int param named userId", ext.Params)
	}
	if got := ext.Return.Key(); got != "list[dict[str,float]]" {
		t.Errorf("return type = %q, want %q", got, "list[dict[str,float]]")
	}

	if script.AST.Result == nil {
		t.Fatalf("trailing expression was not folded into the script result")
	}
	if got := script.Manifest.ReturnType.Key(); got != "dict" {
		t.Errorf("script return type = %q, want %q", got, "dict")
	}
	for _, d := range script.Diagnostics {
		if d.Kind != DiagWarning {
			t.Errorf("unexpected diagnostic %+v", d)
		}
	}
}

func TestValidateOrderedExternal(t *testing.T) {
	script, err := Validate(`from sandbox import external

@external(ordered=True)
def audit(message: str) -> None:
    pass

audit("started")
`)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	ext := script.Manifest.Externals[0]
	if !ext.Ordered {
		t.Errorf("external %q not marked ordered", ext.Name)
	}
	if ext.Async {
		t.Errorf("external %q marked async without an async def or await", ext.Name)
	}
}

func TestValidateAwaitedCallSiteMarksAsync(t *testing.T) {
	script, err := Validate(`from sandbox import external

@external
def fetch(url: str) -> str:
    pass

await fetch("https://example.com")
`)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !script.Manifest.Externals[0].Async {
		t.Errorf("awaited external not marked async")
	}
}

func TestValidateDisallowedImport(t *testing.T) {
	_, err := Validate(`import os

os.remove("/etc/passwd")
`)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Validate() error = %T (%v), want ValidationErrors", err, err)
	}
	found := false
	for _, v := range verrs {
		if v.Construct == "import" {
			found = true
			if v.Location.Line != 1 {
				t.Errorf("import violation at line %d, want 1", v.Location.Line)
			}
			if !strings.Contains(v.Message, "os") {
				t.Errorf("import violation message %q does not name the module", v.Message)
			}
		}
	}
	if !found {
		t.Fatalf("no import violation in %v", verrs)
	}
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	_, err := Validate(`import os

class Config:
    pass

with open("data.txt") as f:
    pass

x = lambda y: y
`)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Validate() error = %T (%v), want ValidationErrors", err, err)
	}
	constructs := make(map[string]bool)
	for _, v := range verrs {
		constructs[v.Construct] = true
	}
	for _, want := range []string{"import", "class_definition", "with_statement", "lambda"} {
		if !constructs[want] {
			t.Errorf("missing %q violation; got %v", want, verrs)
		}
	}
}

func TestValidateBannedCallNamed(t *testing.T) {
	_, err := Validate(`data = open("secrets.txt")
`)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Validate() error = %T (%v), want ValidationErrors", err, err)
	}
	if verrs[0].Construct != "open" {
		t.Errorf("violation construct = %q, want %q", verrs[0].Construct, "open")
	}
}

func TestValidateUndeclaredCall(t *testing.T) {
	_, err := Validate(`result = fetchRates("USD")
`)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Validate() error = %T (%v), want ValidationErrors", err, err)
	}
	if !strings.Contains(verrs[0].Message, "fetchRates") {
		t.Errorf("violation %q does not name the undeclared function", verrs[0].Message)
	}
}

func TestValidateFormattedString(t *testing.T) {
	script, err := Validate(`from sandbox import input

name: str = input("name")

f"hello {name}, id={1 + 2}"
`)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	// The lowering turns the f-string into a concatenation chain with str()
	// wrapped around each hole.
	bin, ok := script.AST.Result.(*ast.BinOp)
	if !ok || bin.Op != "+" {
		t.Fatalf("result = %T, want a + chain", script.AST.Result)
	}
	call, ok := bin.R.(*ast.Call)
	if !ok || call.Target != "str" {
		t.Fatalf("last segment = %T, want str() conversion", bin.R)
	}
}

func TestValidateFormatSpecifierRejected(t *testing.T) {
	_, err := Validate(`x = 3.14159
f"{x:.2f}"
`)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Validate() error = %T (%v), want ValidationErrors", err, err)
	}
	if verrs[0].Construct != "string" {
		t.Errorf("violation construct = %q, want %q", verrs[0].Construct, "string")
	}
}

func TestValidateTupleRejected(t *testing.T) {
	_, err := Validate(`pair = (1, 2)
`)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Validate() error = %T (%v), want ValidationErrors", err, err)
	}
	if verrs[0].Construct != "tuple" {
		t.Errorf("violation construct = %q, want %q", verrs[0].Construct, "tuple")
	}
	if verrs[0].Location.Line != 1 {
		t.Errorf("tuple violation at line %d, want 1", verrs[0].Location.Line)
	}
}

func TestValidateSyntaxError(t *testing.T) {
	_, err := Validate(`def broken(
`)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Validate() error = %T (%v), want *ParseError", err, err)
	}
	if perr.Location.Line == 0 {
		t.Errorf("parse error carries no location: %v", perr)
	}
}

func TestValidateDuplicateDeclaration(t *testing.T) {
	_, err := Validate(`from sandbox import input

rate: float = input("rate")
rate2: float = input("rate")
`)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Validate() error = %T (%v), want ValidationErrors", err, err)
	}
	if verrs[0].Construct != "declaration" {
		t.Errorf("violation construct = %q, want %q", verrs[0].Construct, "declaration")
	}
}

func TestValidateMissingAnnotationWarns(t *testing.T) {
	script, err := Validate(`from sandbox import input

city = input("city", required=False)

city
`)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	in := script.Manifest.Inputs[0]
	if in.Required {
		t.Errorf("required=False input recorded as required")
	}
	if !in.Type.IsAny() {
		t.Errorf("unannotated input type = %q, want any", in.Type.Key())
	}
	if len(script.Diagnostics) == 0 {
		t.Fatalf("missing annotation produced no warning")
	}
	if script.Diagnostics[0].Kind != DiagWarning {
		t.Errorf("diagnostic kind = %q, want %q", script.Diagnostics[0].Kind, DiagWarning)
	}
}

func TestValidateExternalBodyMustBeEmpty(t *testing.T) {
	_, err := Validate(`from sandbox import external

@external
def compute(x: int) -> int:
    return x * 2
`)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Validate() error = %T (%v), want ValidationErrors", err, err)
	}
	if verrs[0].Construct != "external" {
		t.Errorf("violation construct = %q, want %q", verrs[0].Construct, "external")
	}
}

func TestSourceHashStable(t *testing.T) {
	a := NewSource("x = 1\n")
	b := NewSource("x = 1\n")
	if a.Hash() != b.Hash() {
		t.Fatalf("identical sources hash differently")
	}
	if a.Hash() == NewSource("x = 2\n").Hash() {
		t.Fatalf("distinct sources share a hash")
	}
}
