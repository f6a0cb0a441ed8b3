// Package interp is the reference interpreter for LIR. It defines the
// operational semantics of lowered programs.
//
// The machine executes one basic block per step: all of its instructions in
// order, then its terminal. Internal calls push a call site holding the
// continuation block, the destination variable and the caller's
// environment; returns pop it.
package interp

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/raymyers/cflat/pkg/lir"
)

// Options configures a run.
type Options struct {
	// Output receives the output of the print builtin. Defaults to os.Stdout.
	Output io.Writer
}

// callSite is a suspended caller.
type callSite struct {
	next *lir.BasicBlock
	dst  *lir.VarID
	env  map[lir.VarID]Value
	fn   *lir.Function
}

// Machine is the interpreter state.
type Machine struct {
	prog    *lir.Program
	out     io.Writer
	fn      *lir.Function
	block   *lir.BasicBlock
	env     map[lir.VarID]Value
	globals map[lir.VarID]Value
	heap    *Heap
	stack   []callSite
	steps   int
}

// Interpret runs prog and returns the value main returns. prog is expected
// to have passed lir.Validate.
func Interpret(prog *lir.Program) (int64, error) {
	return Run(prog, Options{})
}

// Run is Interpret with options.
func Run(prog *lir.Program, opts Options) (int64, error) {
	m, err := New(prog, opts)
	if err != nil {
		return 0, err
	}
	for {
		result, done, err := m.Step()
		if err != nil {
			return 0, err
		}
		if done {
			slog.Debug("interpretation finished", "result", result, "steps", m.steps, "heap_cells", m.heap.Size())
			return result, nil
		}
	}
}

// New prepares a machine positioned at the entry block of main. Globals
// start zeroed, except that a global named after a function points to it.
func New(prog *lir.Program, opts Options) (*Machine, error) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	main, ok := prog.Functions[lir.MainFunc]
	if !ok {
		return nil, fail(ErrUndefined, "program has no main function")
	}
	m := &Machine{
		prog:    prog,
		out:     out,
		globals: make(map[lir.VarID]Value),
		heap:    NewHeap(),
	}
	for g := range prog.Globals {
		if _, ok := prog.Functions[lir.FuncID(g.Name)]; ok {
			m.globals[g] = FnPtr(g.Name)
		} else {
			m.globals[g] = zero(prog, g.Type)
		}
	}
	m.fn = main
	m.env = m.newEnv(main)
	block, err := m.blockOf(main, lir.EntryBlock)
	if err != nil {
		return nil, err
	}
	m.block = block
	return m, nil
}

func (m *Machine) newEnv(fn *lir.Function) map[lir.VarID]Value {
	env := make(map[lir.VarID]Value, len(fn.Locals)+len(fn.Params))
	for v := range fn.Locals {
		env[v] = zero(m.prog, v.Type)
	}
	for _, p := range fn.Params {
		env[p] = zero(m.prog, p.Type)
	}
	return env
}

func (m *Machine) blockOf(fn *lir.Function, label lir.BbID) (*lir.BasicBlock, error) {
	bb, ok := fn.Body[label]
	if !ok {
		return nil, fail(ErrUndefined, "function %s has no block %s", fn.ID, label)
	}
	return bb, nil
}

// Step executes the current block. It reports done once main returns.
func (m *Machine) Step() (result int64, done bool, err error) {
	m.steps++
	for _, inst := range m.block.Insts {
		if err := m.exec(inst); err != nil {
			return 0, false, err
		}
	}
	return m.terminal(m.block.Term)
}

// lookup reads a variable: the current environment first, then globals.
func (m *Machine) lookup(v lir.VarID) (Value, error) {
	if val, ok := m.env[v]; ok {
		return val, nil
	}
	if val, ok := m.globals[v]; ok {
		return val, nil
	}
	return nil, fail(ErrUndefined, "undefined variable %s", v.Name)
}

// bind writes a variable. The integer 0 stored into a pointer-typed
// variable becomes nil.
func (m *Machine) bind(v lir.VarID, val Value) error {
	val = coerce(v.Type, val)
	if _, ok := m.env[v]; ok {
		m.env[v] = clone(val)
		return nil
	}
	if _, ok := m.globals[v]; ok {
		m.globals[v] = clone(val)
		return nil
	}
	return fail(ErrUndefined, "undefined variable %s", v.Name)
}

func coerce(typ *lir.Type, val Value) Value {
	if n, ok := val.(Int); ok && n == 0 && typ.IsPointer() {
		return Ptr{Addr: NilAddr{}}
	}
	return val
}

func (m *Machine) eval(op lir.Operand) (Value, error) {
	switch op := op.(type) {
	case lir.CInt:
		return Int(op), nil
	case lir.VarID:
		return m.lookup(op)
	}
	return nil, fail(ErrTypeMismatch, "unknown operand %v", op)
}

func (m *Machine) evalInt(op lir.Operand) (int64, error) {
	v, err := m.eval(op)
	if err != nil {
		return 0, err
	}
	n, ok := v.(Int)
	if !ok {
		return 0, fail(ErrTypeMismatch, "expected int when evaluating %s, got %s", op, v)
	}
	return int64(n), nil
}

func (m *Machine) evalPtr(v lir.VarID, what string) (Address, error) {
	val, err := m.lookup(v)
	if err != nil {
		return nil, err
	}
	p, ok := val.(Ptr)
	if !ok {
		return nil, fail(ErrTypeMismatch, "operand of %s must be a pointer, got %s", what, val)
	}
	return p.Addr, nil
}

// slot resolves an address to the memory cell or struct field it names.
func (m *Machine) slot(a Address) (*Value, error) {
	switch a := a.(type) {
	case NilAddr:
		return nil, fail(ErrNullDereference, "tried to dereference a null pointer")
	case HeapAddr:
		return m.heap.Slot(a)
	case FieldAddr:
		base, err := m.slot(a.Base)
		if err != nil {
			return nil, err
		}
		s, ok := (*base).(*Struct)
		if !ok {
			return nil, fail(ErrInvalidAddress, "invalid address: %s does not refer to a struct", a.Base)
		}
		f, ok := s.field(a.Field)
		if !ok {
			return nil, fail(ErrInvalidAddress, "invalid address: the struct at %s does not have the field %s", a.Base, a.Field)
		}
		return f, nil
	}
	return nil, fail(ErrInvalidAddress, "invalid address %v", a)
}

func (m *Machine) exec(inst lir.Instruction) error {
	switch i := inst.(type) {
	case lir.Alloc:
		n, err := m.evalInt(i.Num)
		if err != nil {
			return err
		}
		elem := i.ID.Type
		addr, err := m.heap.Alloc(n, func() Value { return zero(m.prog, elem) })
		if err != nil {
			return err
		}
		return m.bind(i.Lhs, Ptr{Addr: addr})

	case lir.Arith:
		x, err := m.evalInt(i.Op1)
		if err != nil {
			return err
		}
		y, err := m.evalInt(i.Op2)
		if err != nil {
			return err
		}
		var r int64
		switch i.Op {
		case lir.Add:
			r = x + y
		case lir.Sub:
			r = x - y
		case lir.Mul:
			r = x * y
		case lir.Div:
			if y == 0 {
				return fail(ErrDivisionByZero, "division by zero")
			}
			r = x / y
		}
		return m.bind(i.Lhs, Int(r))

	case lir.CallExt:
		return m.callExt(i)

	case lir.Cmp:
		x, err := m.eval(i.Op1)
		if err != nil {
			return err
		}
		y, err := m.eval(i.Op2)
		if err != nil {
			return err
		}
		r, err := compare(i.Op, x, y)
		if err != nil {
			return err
		}
		return m.bind(i.Lhs, r)

	case lir.Copy:
		v, err := m.eval(i.Op)
		if err != nil {
			return err
		}
		return m.bind(i.Lhs, v)

	case lir.Gep:
		idx, err := m.evalInt(i.Idx)
		if err != nil {
			return err
		}
		addr, err := m.evalPtr(i.Src, "$gep")
		if err != nil {
			return err
		}
		switch a := addr.(type) {
		case HeapAddr:
			a.Offset += int(idx)
			return m.bind(i.Lhs, Ptr{Addr: a})
		case NilAddr:
			return fail(ErrNullDereference, "tried to dereference a null pointer")
		default:
			return fail(ErrInvalidAddress, "src in $gep must be a heap pointer, got %s", addr)
		}

	case lir.Gfp:
		addr, err := m.evalPtr(i.Src, "$gfp")
		if err != nil {
			return err
		}
		return m.bind(i.Lhs, Ptr{Addr: FieldAddr{Base: addr, Field: i.Field.Name}})

	case lir.Load:
		addr, err := m.evalPtr(i.Src, "$load")
		if err != nil {
			return err
		}
		cell, err := m.slot(addr)
		if err != nil {
			return err
		}
		return m.bind(i.Lhs, *cell)

	case lir.Store:
		v, err := m.eval(i.Op)
		if err != nil {
			return err
		}
		addr, err := m.evalPtr(i.Dst, "$store")
		if err != nil {
			return err
		}
		cell, err := m.slot(addr)
		if err != nil {
			return err
		}
		*cell = clone(coerce(i.Dst.Type.Elem(), v))
		return nil

	case lir.Phi:
		return fail(ErrUnsupportedInstruction, "$phi is not supported by the interpreter")
	case lir.AddrOf:
		return fail(ErrUnsupportedInstruction, "$addrof is not supported by the interpreter")
	}
	return fail(ErrUnsupportedInstruction, "unknown instruction %T", inst)
}

// Builtin externs the interpreter implements.
const builtinExterns = "print: (int) -> _, isPythagorean: (int, int, int) -> int"

func (m *Machine) callExt(c lir.CallExt) error {
	args := make([]int64, len(c.Args))
	for i, a := range c.Args {
		n, err := m.evalInt(a)
		if err != nil {
			return err
		}
		args[i] = n
	}
	slog.Debug("extern call", "callee", string(c.Callee), "args", args)

	switch {
	case c.Callee == "print" && len(args) == 1 && c.Lhs == nil:
		if _, err := fmt.Fprintln(m.out, args[0]); err != nil {
			return fmt.Errorf("print: %w", err)
		}
		return nil
	case c.Callee == "isPythagorean" && len(args) == 3 && c.Lhs != nil:
		r := Int(0)
		if args[0]*args[0]+args[1]*args[1] == args[2]*args[2] {
			r = 1
		}
		return m.bind(*c.Lhs, r)
	}
	return fail(ErrUnsupportedExtern, "the interpreter supports only these external functions: %s", builtinExterns)
}

// compare implements $cmp. Integers compare numerically, pointers by
// address, function pointers by name. The constant 0 and nil compare below
// every function pointer.
func compare(op lir.CmpOp, x, y Value) (Value, error) {
	var c int
	switch {
	case isInt(x) && isInt(y):
		a, b := x.(Int), y.(Int)
		c = cmpInts(int64(a), int64(b))
	case isPtrLike(x) && isPtrLike(y):
		c = compareAddr(asAddr(x), asAddr(y))
	case isFn(x) && isFn(y):
		c = cmpStrings(string(x.(FnPtr)), string(y.(FnPtr)))
	case isFn(x) && isNilLike(y):
		c = 1
	case isNilLike(x) && isFn(y):
		c = -1
	default:
		return nil, fail(ErrIllTypedCompare,
			"comparison is allowed only between ints, between pointers, or between function pointers and nil; got %s and %s", x, y)
	}

	var r bool
	switch op {
	case lir.Eq:
		r = c == 0
	case lir.Neq:
		r = c != 0
	case lir.Lt:
		r = c < 0
	case lir.Lte:
		r = c <= 0
	case lir.Gt:
		r = c > 0
	case lir.Gte:
		r = c >= 0
	}
	if r {
		return Int(1), nil
	}
	return Int(0), nil
}

func isInt(v Value) bool {
	_, ok := v.(Int)
	return ok
}

func isFn(v Value) bool {
	_, ok := v.(FnPtr)
	return ok
}

func isNilLike(v Value) bool {
	switch v := v.(type) {
	case Int:
		return v == 0
	case Ptr:
		_, ok := v.Addr.(NilAddr)
		return ok
	}
	return false
}

// isPtrLike accepts data pointers and the constant 0, but not two integers;
// that case is handled first.
func isPtrLike(v Value) bool {
	if _, ok := v.(Ptr); ok {
		return true
	}
	return isNilLike(v)
}

func asAddr(v Value) Address {
	if p, ok := v.(Ptr); ok {
		return p.Addr
	}
	return NilAddr{}
}

func cmpInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (m *Machine) terminal(term lir.Terminal) (int64, bool, error) {
	switch t := term.(type) {
	case lir.Branch:
		v, err := m.eval(t.Cond)
		if err != nil {
			return 0, false, err
		}
		n, ok := v.(Int)
		if !ok {
			return 0, false, fail(ErrTypeMismatch, "argument of $branch is not an int: %s", v)
		}
		target := t.True
		if n == 0 {
			target = t.False
		}
		return 0, false, m.jump(target)

	case lir.Jump:
		return 0, false, m.jump(t.Target)

	case lir.CallDirect:
		return 0, false, m.call(t.Lhs, t.Callee, t.Args, t.Next)

	case lir.CallIndirect:
		v, err := m.lookup(t.Callee)
		if err != nil {
			return 0, false, err
		}
		f, ok := v.(FnPtr)
		if !ok {
			return 0, false, fail(ErrNotAFunction, "tried to call non-function value %s", v)
		}
		return 0, false, m.call(t.Lhs, lir.FuncID(f), t.Args, t.Next)

	case lir.Ret:
		return m.ret(t)
	}
	return 0, false, fail(ErrUnsupportedInstruction, "unknown terminal %T", term)
}

func (m *Machine) jump(label lir.BbID) error {
	bb, err := m.blockOf(m.fn, label)
	if err != nil {
		return err
	}
	m.block = bb
	return nil
}

func (m *Machine) call(dst *lir.VarID, callee lir.FuncID, args []lir.Operand, next lir.BbID) error {
	fn, ok := m.prog.Functions[callee]
	if !ok {
		return fail(ErrUndefined, "call to undefined function %s", callee)
	}
	if len(fn.Params) != len(args) {
		return fail(ErrTypeMismatch, "function %s expects %d arguments, got %d", callee, len(fn.Params), len(args))
	}
	cont, err := m.blockOf(m.fn, next)
	if err != nil {
		return err
	}
	entry, err := m.blockOf(fn, lir.EntryBlock)
	if err != nil {
		return err
	}

	env := m.newEnv(fn)
	for i, p := range fn.Params {
		v, err := m.eval(args[i])
		if err != nil {
			return err
		}
		env[p] = clone(coerce(p.Type, v))
	}

	m.stack = append(m.stack, callSite{next: cont, dst: dst, env: m.env, fn: m.fn})
	m.env = env
	m.fn = fn
	m.block = entry
	return nil
}

func (m *Machine) ret(t lir.Ret) (int64, bool, error) {
	var v Value
	if t.Value != nil {
		var err error
		if v, err = m.eval(t.Value); err != nil {
			return 0, false, err
		}
	}

	if len(m.stack) == 0 {
		if v == nil {
			return 0, false, fail(ErrNoCaller, "there is no callee to return to")
		}
		n, ok := v.(Int)
		if !ok {
			return 0, false, fail(ErrBadResult, "main returned non-int value %s", v)
		}
		return int64(n), true, nil
	}

	site := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	m.env = site.env
	m.fn = site.fn
	m.block = site.next
	if site.dst != nil && v != nil {
		if err := m.bind(*site.dst, v); err != nil {
			return 0, false, err
		}
	}
	return 0, false, nil
}
