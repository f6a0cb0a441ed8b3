package lir

import (
	"errors"
	"strings"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	prog, err := Parse(sampleText)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := String(prog); got != sampleText {
		t.Errorf("round trip =\n%s\nwant:\n%s", got, sampleText)
	}
}

func TestParseResolvesScopes(t *testing.T) {
	src := `x:int

fn f(x:&int) -> int {
entry:
  y = $load x
  $ret y
}
`
	_, err := Parse(src)
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("expected a syntax error for undeclared y, got %v", err)
	}

	src = `x:int

fn f(x:&int) -> int {
let y:int
entry:
  y = $load x
  x = $copy 0
  $ret y
}
`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	entry := prog.Functions["f"].Body[EntryBlock]
	load := entry.Insts[0].(Load)
	if load.Src.IsGlobal() || load.Src.Type != PointerType(IntType()) {
		t.Errorf("x resolved to %+v, want the parameter", load.Src)
	}
}

func TestParseAllocAndFieldTypes(t *testing.T) {
	src := `struct s {
  f:&int
}

fn main() -> int {
let p:&s, q:&&int
entry:
  p = $alloc 2 [a]
  q = $gfp p f
  $ret 0
}
`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	insts := prog.Functions[MainFunc].Body[EntryBlock].Insts
	alloc := insts[0].(Alloc)
	if alloc.ID.Type != StructType("s") || !alloc.ID.IsGlobal() {
		t.Errorf("alloc id = %+v, want unscoped s", alloc.ID)
	}
	gfp := insts[1].(Gfp)
	if gfp.Field.Type != PointerType(IntType()) {
		t.Errorf("field type = %s, want &int", gfp.Field.Type)
	}
	if err := Validate(prog); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty", "", "no functions"},
		{"bad char", "fn main() -> int {\nentry:\n  $ret #\n}\n", "unexpected character"},
		{"no terminal", "fn main() -> int {\nentry:\n}\n", "expected identifier"},
		{"unknown op", "fn main() -> int {\nentry:\n  $frob\n}\n", "unknown instruction"},
		{"extern not fn", "extern f:int\nfn main() -> int {\nentry:\n  $ret 0\n}\n", "function type"},
		{"empty struct", "struct s {\n}\nfn main() -> int {\nentry:\n  $ret 0\n}\n", "no fields"},
		{"missing brace", "fn main() -> int {\nentry:\n  $ret 0\n", "closing brace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
