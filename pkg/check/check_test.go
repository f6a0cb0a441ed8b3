package check

import (
	"errors"
	"strings"
	"testing"

	"github.com/raymyers/cflat/pkg/parser"
)

func TestValidPrograms(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"minimal", `fn main() -> int { return 0; }`},
		{"nil assignment and compare", `fn main() -> int { let x: &int; x = nil; return x == nil; }`},
		{"function pointers", `
fn foo() -> _ { return; }
fn main() -> int {
  let p: &() -> _, q: &() -> _;
  p = foo;
  return (p == q) + (q < p);
}`},
		{"forward references", `
fn main() -> int { return twice(f(2)); }
fn twice(x: int) -> int { return x * 2; }
fn f(x: int) -> int { return x; }`},
		{"structs and arrays", `
struct list { value: int, next: &list }
fn main() -> int {
  let l: &list, a: &int;
  l = new list;
  l.next = new list 3;
  l.next.value = 4;
  a = new int l.next.value;
  return l.next == nil or a[0];
}`},
		{"externs and shadowing", `
extern print: (int) -> _;
extern isPythagorean: (int, int, int) -> int;
fn main() -> int {
  print(isPythagorean(3, 4, 5));
  return 0;
}`},
		{"initializers see later locals", `
fn main() -> int {
  let x: int = 3, y: int = x - z, z: int = 4;
  return y;
}`},
		{"if else returns on every path", `
fn f(x: int) -> int {
  if x { return 1; } else { return 2; }
}
fn main() -> int { return f(1); }`},
		{"break inside nested loop", `
fn main() -> int {
  while 1 { if 1 { break; } continue; }
  return 0;
}`},
		{"local shadows function", `
fn g() -> int { return 1; }
fn main() -> int {
  let g: &() -> int;
  g = nil;
  return g == nil;
}`},
		{"indirect call through field", `
struct obj { get: &(&obj) -> int, v: int }
fn getV(o: &obj) -> int { return o.v; }
fn main() -> int {
  let o: &obj;
  o = new obj;
  o.get = getV;
  o.v = 9;
  return o.get(o);
}`},
		{"not on pointer", `fn main() -> int { let p: &int; return !p; }`},
		{"struct values", `
struct pair { a: int, b: int }
fn main() -> int {
  let p: &pair, q: &pair;
  p = new pair;
  q = new pair;
  *q = *p;
  return q.a;
}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := parser.Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			valid, err := Program(prog)
			if err != nil {
				t.Fatalf("unexpected check failure: %v", err)
			}
			if valid.Program() != prog {
				t.Error("Valid does not wrap the checked program")
			}
		})
	}
}

func TestInvalidPrograms(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing main", `fn f() -> int { return 0; }`, "missing function main"},
		{"main with params", `fn main(x: int) -> int { return x; }`, "main must have type () -> int, got (int) -> int"},
		{"void main", `fn main() -> _ { return; }`, "main must have type () -> int"},
		{"duplicate top level", `let f: int; fn f() -> int { return 0; } fn main() -> int { return 0; }`, "f is declared more than once"},
		{"duplicate struct", `struct a { x: int } struct a { y: int } fn main() -> int { return 0; }`, "struct a is defined more than once"},
		{"duplicate field", `struct a { x: int, x: &a } fn main() -> int { return 0; }`, "field x of struct a is declared more than once"},
		{"unknown struct", `let g: &nope; fn main() -> int { return 0; }`, "unknown struct nope in global g"},
		{"function typed global", `let g: () -> int; fn main() -> int { return 0; }`, "global g has function type () -> int; use a function pointer"},
		{"function typed field", `struct s { f: (int) -> int } fn main() -> int { return 0; }`, "field s.f has function type"},
		{"duplicate local", `fn main() -> int { let x: int, x: int; return 0; }`, "in function main: variable x is declared more than once"},
		{"param and local clash", `fn f(x: int) -> int { let x: int; return x; } fn main() -> int { return 0; }`, "in function f: variable x is declared more than once"},
		{"reserved word", `fn main() -> int { let then: int; return 0; }`, `reserved word "then" used as identifier`},
		{"undeclared", `fn main() -> int { return y; }`, "in function main: undeclared variable y"},
		{"assign undeclared", `fn main() -> int { y = 1; return 0; }`, "undeclared variable y"},
		{"assign to function", `fn f() -> _ { return; } fn main() -> int { f = nil; return 0; }`, "cannot assign to function f"},
		{"int to pointer", `fn main() -> int { let p: &int; p = 0; return 0; }`, "cannot assign int to p of type &int"},
		{"pointer arithmetic", `fn main() -> int { let p: &int; return p + 1; }`, "operand of + must be int, got &int"},
		{"mismatched compare", `fn main() -> int { let p: &int; return p == 1; }`, "cannot compare &int with int"},
		{"compare struct values", `struct s { a: int } fn main() -> int { let p: &s; return *p == *p; }`, "cannot compare s with s"},
		{"deref int", `fn main() -> int { let x: int; return *x; }`, "cannot dereference non-pointer int"},
		{"deref nil", `fn main() -> int { return *nil; }`, "cannot dereference nil"},
		{"deref function pointer", `fn f() -> int { return 1; } fn main() -> int { let p: &() -> int; p = f; return *p == nil; }`, "cannot dereference function pointer &() -> int"},
		{"field of non struct", `fn main() -> int { let p: &int; return p.x; }`, "field access .x on &int, which is not a struct pointer"},
		{"missing field", `struct s { a: int } fn main() -> int { let p: &s; return p.b; }`, "struct s has no field b"},
		{"index with pointer", `fn main() -> int { let p: &int; return p[p]; }`, "operand of [] must be int, got &int"},
		{"guard must be int", `fn main() -> int { let p: &int; if p { return 1; } return 0; }`, "if condition must be int, got &int"},
		{"logic on pointer", `fn main() -> int { let p: &int; return p and 1; }`, "operand of and must be int, got &int"},
		{"break outside loop", `fn main() -> int { break; return 0; }`, "break outside of a loop"},
		{"continue outside loop", `fn main() -> int { if 1 { continue; } return 0; }`, "continue outside of a loop"},
		{"missing return", `fn main() -> int { let x: int; x = 1; }`, "missing return at end of function returning int"},
		{"return only in one arm", `fn main() -> int { if 1 { return 1; } }`, "missing return at end of function returning int"},
		{"return only in loop", `fn main() -> int { while 1 { return 1; } }`, "missing return at end of function returning int"},
		{"bare return in int function", `fn main() -> int { return; }`, "return without a value in function returning int"},
		{"value from void function", `fn f() -> _ { return 1; } fn main() -> int { return 0; }`, "return with a value in function returning nothing"},
		{"wrong return type", `fn main() -> int { return nil; }`, "cannot return nil from function returning int"},
		{"void call as value", `fn f() -> _ { return; } fn main() -> int { return f(); }`, "call to f returns no value"},
		{"call main", `fn f() -> int { return main(); } fn main() -> int { return 0; }`, "main cannot be called"},
		{"main as value", `fn main() -> int { let p: &() -> int; p = main; return 0; }`, "main cannot be used as a value"},
		{"extern as value", `extern print: (int) -> _; fn main() -> int { let p: &(int) -> _; p = print; return 0; }`, "extern print can only be called directly"},
		{"arity", `fn f(x: int) -> int { return x; } fn main() -> int { return f(1, 2); }`, "call to f expects 1 arguments, got 2"},
		{"argument type", `fn f(x: int) -> int { return x; } fn main() -> int { return f(nil); }`, "argument 1 of call to f: cannot use nil as int"},
		{"call non function", `fn main() -> int { let x: int; x(); return 0; }`, "cannot call x of type int"},
		{"new type mismatch", `fn main() -> int { let p: &int; p = new &int; return 0; }`, "cannot assign new &int to p of type &int"},
		{"new count type", `fn main() -> int { let p: &int; p = new int nil; return 0; }`, "allocation count must be int, got nil"},
		{"new function type", `fn main() -> int { let p: &() -> int; p = new () -> int; return 0; }`, "cannot allocate function type () -> int"},
		{"bad initializer", `fn main() -> int { let x: int = nil; return x; }`, "cannot initialize x of type int with nil"},
		{"bare function parameter type", `extern f: (() -> int) -> int; fn main() -> int { return 0; }`, "bare function type () -> int as parameter in extern f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := parser.Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			_, err = Program(prog)
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *check.Error, got %v", err)
			}
			found := false
			for _, msg := range cerr.Errors {
				if strings.Contains(msg, tt.want) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("errors %q do not mention %q", cerr.Errors, tt.want)
			}
		})
	}
}

func TestErrorsAreSortedAndUnique(t *testing.T) {
	prog, err := parser.Parse(`fn main() -> int { return y + y + z; }`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = Program(prog)
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *check.Error, got %v", err)
	}
	want := []string{
		"in function main: undeclared variable y",
		"in function main: undeclared variable z",
	}
	if strings.Join(cerr.Errors, "|") != strings.Join(want, "|") {
		t.Errorf("errors = %q, want %q", cerr.Errors, want)
	}
	if !strings.HasPrefix(err.Error(), "invalid program:\n  ") {
		t.Errorf("unexpected Error() text: %q", err.Error())
	}
}
