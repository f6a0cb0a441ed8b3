package parser

import (
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/raymyers/cflat/pkg/ast"
	"github.com/raymyers/cflat/pkg/lexer"
	"github.com/raymyers/cflat/pkg/lir"
	"gopkg.in/yaml.v3"
)

// TestSpec represents a test case from parse.yaml
type TestSpec struct {
	Name   string  `yaml:"name"`
	Input  string  `yaml:"input"`
	Output *string `yaml:"output,omitempty"`
	Fail   bool    `yaml:"fail,omitempty"`
}

// TestFile represents the parse.yaml file structure
type TestFile struct {
	Tests []TestSpec `yaml:"tests"`
}

func TestParseYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/parse.yaml")
	if err != nil {
		t.Fatalf("failed to read parse.yaml: %v", err)
	}

	var testFile TestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse parse.yaml: %v", err)
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			l := lexer.New(tc.Input)
			p := New(l)
			prog := p.ParseProgram()

			if tc.Fail {
				if len(p.Errors()) == 0 {
					t.Fatalf("expected a parse error, got:\n%s", ast.String(prog))
				}
				return
			}
			if len(p.Errors()) > 0 {
				t.Fatalf("parser errors: %v", p.Errors())
			}

			want := tc.Input
			if tc.Output != nil {
				want = *tc.Output
			}
			if got := ast.String(prog); got != want {
				t.Errorf("pretty output mismatch\ngot:\n%s\nwant:\n%s", got, want)
			}
		})
	}
}

// Pretty output must be a fixed point of parse-then-print.
func TestPrettyPrintIsStable(t *testing.T) {
	data, err := os.ReadFile("../../testdata/parse.yaml")
	if err != nil {
		t.Fatalf("failed to read parse.yaml: %v", err)
	}
	var testFile TestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse parse.yaml: %v", err)
	}

	for _, tc := range testFile.Tests {
		if tc.Fail {
			continue
		}
		t.Run(tc.Name, func(t *testing.T) {
			first, err := Parse(tc.Input)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			printed := ast.String(first)
			second, err := Parse(printed)
			if err != nil {
				t.Fatalf("reparse of\n%s\nfailed: %v", printed, err)
			}
			if !reflect.DeepEqual(first, second) {
				t.Errorf("tree changed after printing:\n%s", printed)
			}
		})
	}
}

func TestParseTree(t *testing.T) {
	input := `
struct node { val: int, next: &node }
extern print: (int) -> _;
let head: &node;
fn main() -> int {
  let n: &node = nil, k: int = 2;
  n = new node k;
  n[1].val = -k * 3;
  print(n.val);
  return n == nil or k;
}
`
	prog, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	nodePtr := lir.PointerType(lir.StructType("node"))
	wantTypedefs := []ast.Typedef{{Name: "node", Fields: []ast.Decl{
		{Name: "val", Type: lir.IntType()},
		{Name: "next", Type: nodePtr},
	}}}
	if !reflect.DeepEqual(prog.Typedefs, wantTypedefs) {
		t.Errorf("typedefs = %+v", prog.Typedefs)
	}
	if len(prog.Externs) != 1 || prog.Externs[0].Type != lir.FuncType(nil, lir.IntType()) {
		t.Errorf("externs = %+v", prog.Externs)
	}
	if len(prog.Globals) != 1 || prog.Globals[0].Type != nodePtr {
		t.Errorf("globals = %+v", prog.Globals)
	}

	if len(prog.Functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(prog.Functions))
	}
	fn := prog.Functions[0]
	if fn.Ret != lir.IntType() || len(fn.Params) != 0 {
		t.Errorf("main signature: params=%v ret=%v", fn.Params, fn.Ret)
	}

	wantLocals := []ast.Local{
		{Decl: ast.Decl{Name: "n", Type: nodePtr}, Init: ast.Nil{}},
		{Decl: ast.Decl{Name: "k", Type: lir.IntType()}, Init: ast.Num{Value: 2}},
	}
	if !reflect.DeepEqual(fn.Body.Locals, wantLocals) {
		t.Errorf("locals = %+v", fn.Body.Locals)
	}

	wantStmts := []ast.Stmt{
		ast.Assign{Lhs: ast.LvId{Name: "n"}, Rhs: ast.New{Type: lir.StructType("node"), Num: ast.Id{Name: "k"}}},
		ast.Assign{
			Lhs: ast.LvField{Ptr: ast.LvIndex{Ptr: ast.LvId{Name: "n"}, Index: ast.Num{Value: 1}}, Field: "val"},
			Rhs: ast.Arith{Op: lir.Mul, L: ast.Neg{X: ast.Id{Name: "k"}}, R: ast.Num{Value: 3}},
		},
		ast.CallStmt{Callee: ast.LvId{Name: "print"}, Args: []ast.Expr{ast.FieldAccess{Ptr: ast.Id{Name: "n"}, Field: "val"}}},
		ast.Return{Value: ast.Or{
			L: ast.Compare{Op: lir.Eq, L: ast.Id{Name: "n"}, R: ast.Nil{}},
			R: ast.Id{Name: "k"},
		}},
	}
	if !reflect.DeepEqual(fn.Body.Stmts, wantStmts) {
		t.Errorf("stmts =\n%#v\nwant\n%#v", fn.Body.Stmts, wantStmts)
	}
}

func TestNumberBounds(t *testing.T) {
	tests := []struct {
		input   string
		want    int32
		wantErr bool
	}{
		{"0", 0, false},
		{"2147483647", 2147483647, false},
		{"2147483648", 0, true},
		{"99999999999", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			prog, err := Parse("fn main() -> int { return " + tt.input + "; }")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), "does not fit in 32 bits") {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			ret := prog.Functions[0].Body.Stmts[0].(ast.Return)
			if got := ret.Value.(ast.Num).Value; got != tt.want {
				t.Errorf("value = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorPosition(t *testing.T) {
	p := New(lexer.New("fn main() -> int {\n  return 1\n}"))
	p.ParseProgram()

	errs := p.Errors()
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", errs)
	}
	want := "line 3, col 1: expected ;, got '}'"
	if errs[0] != want {
		t.Errorf("error = %q, want %q", errs[0], want)
	}
}
