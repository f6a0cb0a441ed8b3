// Package lower translates checked CFlat programs to LIR.
//
// Each function is lowered statement by statement into a CFGBuilder. Nested
// expressions are flattened into typed temporaries, and internal calls end the
// current block. Afterwards every function with more than one return is
// rewritten to jump to a single exit block.
package lower

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/raymyers/cflat/pkg/ast"
	"github.com/raymyers/cflat/pkg/lir"
)

// ExitBlock labels the shared return block created by single-return
// normalization.
const ExitBlock lir.BbID = "exit"

// lowering holds the program-wide state plus the state of the function
// currently being lowered.
type lowering struct {
	out       *lir.Program
	globals   map[string]lir.VarID
	funcNames map[string]bool
	allocs    int // program-wide _aN counter

	vars  map[string]lir.VarID // locals and params of the current function
	cfg   *CFGBuilder
	loops LoopContext
}

// Program lowers a checked program. The result satisfies lir.Validate;
// lowering panics on input that did not pass the checker.
func Program(valid *ast.Valid) *lir.Program {
	prog := valid.Program()
	l := &lowering{
		out:       lir.NewProgram(),
		globals:   make(map[string]lir.VarID),
		funcNames: make(map[string]bool),
	}

	for _, td := range prog.Typedefs {
		fields := make([]lir.FieldID, len(td.Fields))
		for i, f := range td.Fields {
			fields[i] = lir.FieldID{Name: f.Name, Type: f.Type}
		}
		l.out.Structs[lir.StructID(td.Name)] = fields
	}
	for _, g := range prog.Globals {
		l.addGlobal(lir.Global(g.Name, g.Type))
	}
	for _, e := range prog.Externs {
		l.out.Externs[lir.FuncID(e.Name)] = e.Type
	}
	// Every function but main is reachable through a global function pointer
	// of the same name.
	for _, f := range prog.Functions {
		l.funcNames[f.Name] = true
		if lir.FuncID(f.Name) == lir.MainFunc {
			continue
		}
		l.addGlobal(lir.Global(f.Name, lir.PointerType(signature(f))))
	}

	for _, f := range prog.Functions {
		fn := l.function(f)
		l.out.Functions[fn.ID] = fn
		slog.Debug("lowered function", "function", string(fn.ID), "blocks", len(fn.Body))
	}
	return l.out
}

func signature(f *ast.Function) *lir.Type {
	params := make([]*lir.Type, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Type
	}
	return lir.FuncType(f.Ret, params...)
}

func (l *lowering) addGlobal(v lir.VarID) {
	l.out.Globals.Add(v)
	l.globals[v.Name] = v
}

func (l *lowering) function(f *ast.Function) *lir.Function {
	id := lir.FuncID(f.Name)
	l.vars = make(map[string]lir.VarID)
	l.loops = LoopContext{}

	params := make([]lir.VarID, len(f.Params))
	for i, p := range f.Params {
		params[i] = lir.Var(p.Name, p.Type, id)
		l.vars[p.Name] = params[i]
	}
	locals := make(lir.VarSet)
	for _, loc := range f.Body.Locals {
		v := lir.Var(loc.Name, loc.Type, id)
		locals.Add(v)
		l.vars[loc.Name] = v
	}

	l.cfg = NewCFGBuilder(id, locals)
	l.cfg.StartBlock(lir.EntryBlock)
	if end, open := l.stmts(eliminateInits(f.Body), lir.EntryBlock); open {
		if f.Ret != nil {
			panic(fmt.Sprintf("lower: function %s can finish without returning a value", f.Name))
		}
		l.cfg.Terminate(end, lir.Ret{})
	}

	fn := &lir.Function{
		ID:     id,
		Ret:    f.Ret,
		Params: params,
		Locals: locals,
		Body:   l.cfg.Blocks(),
	}
	singleReturn(fn, l.cfg)
	return fn
}

// eliminateInits turns local initializers into leading assignments, in
// declaration order.
func eliminateInits(body ast.Body) []ast.Stmt {
	var out []ast.Stmt
	for _, loc := range body.Locals {
		if loc.Init != nil {
			out = append(out, ast.Assign{Lhs: ast.LvId{Name: loc.Name}, Rhs: loc.Init})
		}
	}
	return append(out, body.Stmts...)
}

// singleReturn rewrites a function with several ret terminals so that each
// of them jumps to one exit block. Returned values are funneled through a
// fresh _retN local.
func singleReturn(fn *lir.Function, cfg *CFGBuilder) {
	var rets []lir.BbID
	for id, bb := range fn.Body {
		if _, ok := bb.Term.(lir.Ret); ok {
			rets = append(rets, id)
		}
	}
	if len(rets) <= 1 {
		return
	}
	sort.Slice(rets, func(i, j int) bool { return rets[i] < rets[j] })

	exit := &lir.BasicBlock{ID: ExitBlock, Term: lir.Ret{}}
	var tmp lir.VarID
	if fn.Ret != nil {
		tmp = cfg.AllocTemp(fn.Ret, "_ret")
		exit.Term = lir.Ret{Value: tmp}
	}
	for _, id := range rets {
		bb := fn.Body[id]
		if fn.Ret != nil {
			bb.Insts = append(bb.Insts, lir.Copy{Lhs: tmp, Op: bb.Term.(lir.Ret).Value})
		}
		bb.Term = lir.Jump{Target: ExitBlock}
	}
	fn.Body[ExitBlock] = exit
}

// lookup resolves a variable name: locals and params first, then globals.
func (l *lowering) lookup(name string) lir.VarID {
	if v, ok := l.vars[name]; ok {
		return v
	}
	if v, ok := l.globals[name]; ok {
		return v
	}
	panic(fmt.Sprintf("lower: unbound variable %s", name))
}

// isExtern reports whether a call to name goes to an extern, i.e. name is not
// shadowed by a local or parameter.
func (l *lowering) isExtern(name string) bool {
	if _, ok := l.vars[name]; ok {
		return false
	}
	_, ok := l.out.Externs[lir.FuncID(name)]
	return ok
}

// isInternalFunc reports whether v is the function pointer global standing
// for a function of this program.
func (l *lowering) isInternalFunc(v lir.VarID) bool {
	return v.IsGlobal() && v.Type.IsFuncPointer() && l.funcNames[v.Name]
}

func (l *lowering) temp(typ *lir.Type) lir.VarID {
	return l.cfg.AllocTemp(typ, "_t")
}

// load reads through ptr into a fresh temporary.
func (l *lowering) load(ptr lir.VarID, bb lir.BbID) lir.VarID {
	t := l.temp(ptr.Type.Elem())
	l.cfg.Emit(bb, lir.Load{Lhs: t, Src: ptr})
	return t
}

func (l *lowering) field(ptr *lir.Type, name string) lir.FieldID {
	s := ptr.Elem().StructName()
	f, ok := l.out.Field(s, name)
	if !ok {
		panic(fmt.Sprintf("lower: struct %s has no field %s", s, name))
	}
	return f
}

// callTerm builds the terminal for a call through callee, which is direct
// when callee names one of the program's functions.
func (l *lowering) callTerm(lhs *lir.VarID, callee lir.VarID, args []lir.Operand, next lir.BbID) lir.Terminal {
	if l.isInternalFunc(callee) {
		return lir.CallDirect{Lhs: lhs, Callee: lir.FuncID(callee.Name), Args: args, Next: next}
	}
	return lir.CallIndirect{Lhs: lhs, Callee: callee, Args: args, Next: next}
}
