package lir

import "testing"

func sampleProgram() *Program {
	prog := NewProgram()
	list := StructType("list")
	prog.Structs["list"] = []FieldID{
		{Name: "value", Type: IntType()},
		{Name: "next", Type: PointerType(list)},
	}
	prog.Globals.Add(Global("count", IntType()))
	prog.Externs["print"] = FuncType(nil, IntType())

	n := Var("n", PointerType(list), MainFunc)
	p := Var("p", PointerType(IntType()), MainFunc)
	v := Var("v", IntType(), MainFunc)
	main := &Function{
		ID:     MainFunc,
		Ret:    IntType(),
		Locals: VarSet{},
		Body:   map[BbID]*BasicBlock{},
	}
	main.Locals.Add(n)
	main.Locals.Add(p)
	main.Locals.Add(v)
	valueField, _ := prog.Field("list", "value")
	main.Body["entry"] = &BasicBlock{
		ID: "entry",
		Insts: []Instruction{
			Alloc{Lhs: n, Num: CInt(1), ID: Global("_a1", list)},
			Gfp{Lhs: p, Src: n, Field: valueField},
			Store{Dst: p, Op: CInt(7)},
			Load{Lhs: v, Src: p},
			CallExt{Callee: "print", Args: []Operand{v}},
		},
		Term: Jump{Target: "bb1"},
	}
	main.Body["bb1"] = &BasicBlock{ID: "bb1", Term: Ret{Value: v}}
	prog.Functions[MainFunc] = main
	return prog
}

const sampleText = `struct list {
  next:&list
  value:int
}

count:int

extern print:(int) -> _

fn main() -> int {
let n:&list, p:&int, v:int
bb1:
  $ret v

entry:
  n = $alloc 1 [_a1]
  p = $gfp n value
  $store p 7
  v = $load p
  $call_ext print(v)
  $jump bb1
}
`

func TestPrintProgram(t *testing.T) {
	got := String(sampleProgram())
	if got != sampleText {
		t.Errorf("String() =\n%s\nwant:\n%s", got, sampleText)
	}
}

func TestInstructionString(t *testing.T) {
	x := Var("x", IntType(), "f")
	fp := Var("fp", PointerType(FuncType(IntType(), IntType())), "f")
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"arith", InstructionString(Arith{Lhs: x, Op: Div, Op1: x, Op2: CInt(-3)}), "x = $arith div x -3"},
		{"cmp", InstructionString(Cmp{Lhs: x, Op: Gte, Op1: x, Op2: CInt(0)}), "x = $cmp gte x 0"},
		{"copy", InstructionString(Copy{Lhs: x, Op: CInt(4)}), "x = $copy 4"},
		{"phi", InstructionString(Phi{Lhs: x, Args: []Operand{x, CInt(1)}}), "x = $phi(x, 1)"},
		{"call_ext lhs", InstructionString(CallExt{Lhs: &x, Callee: "isPythagorean", Args: []Operand{CInt(3), CInt(4), CInt(5)}}), "x = $call_ext isPythagorean(3, 4, 5)"},
		{"branch", TerminalString(Branch{Cond: x, True: "bb1", False: "bb2"}), "$branch x bb1 bb2"},
		{"call_dir", TerminalString(CallDirect{Lhs: &x, Callee: "g", Args: []Operand{x}, Next: "bb3"}), "x = $call_dir g(x) then bb3"},
		{"call_idr", TerminalString(CallIndirect{Callee: fp, Next: "bb4"}), "$call_idr fp() then bb4"},
		{"ret void", TerminalString(Ret{}), "$ret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
