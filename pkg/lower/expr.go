package lower

import (
	"fmt"

	"github.com/raymyers/cflat/pkg/ast"
	"github.com/raymyers/cflat/pkg/lir"
)

// lval lowers an assignable location. With direct == true the result is the
// variable itself; otherwise it is a pointer to the location.
func (l *lowering) lval(lv ast.Lval, bb lir.BbID) (v lir.VarID, direct bool, end lir.BbID) {
	switch lv := lv.(type) {
	case ast.LvId:
		return l.lookup(lv.Name), true, bb
	case ast.LvDeref:
		inner, direct, bb := l.lval(lv.Lval, bb)
		if direct {
			return inner, false, bb
		}
		return l.load(inner, bb), false, bb
	case ast.LvIndex:
		base, bb := l.lvalValue(lv.Ptr, bb)
		idx, bb := l.expr(lv.Index, bb)
		t := l.temp(base.Type)
		l.cfg.Emit(bb, lir.Gep{Lhs: t, Src: base, Idx: idx})
		return t, false, bb
	case ast.LvField:
		base, bb := l.lvalValue(lv.Ptr, bb)
		f := l.field(base.Type, lv.Field)
		t := l.temp(lir.PointerType(f.Type))
		l.cfg.Emit(bb, lir.Gfp{Lhs: t, Src: base, Field: f})
		return t, false, bb
	default:
		panic(fmt.Sprintf("lower: unexpected lval %T", lv))
	}
}

// lvalValue lowers lv and reads its current value.
func (l *lowering) lvalValue(lv ast.Lval, bb lir.BbID) (lir.VarID, lir.BbID) {
	v, direct, bb := l.lval(lv, bb)
	if direct {
		return v, bb
	}
	return l.load(v, bb), bb
}

func (l *lowering) exprs(list []ast.Expr, bb lir.BbID) ([]lir.Operand, lir.BbID) {
	ops := make([]lir.Operand, len(list))
	for i, e := range list {
		ops[i], bb = l.expr(e, bb)
	}
	return ops, bb
}

// variable lowers e and requires the result to be a variable.
func (l *lowering) variable(e ast.Expr, bb lir.BbID) (lir.VarID, lir.BbID) {
	op, bb := l.expr(e, bb)
	v, ok := op.(lir.VarID)
	if !ok {
		panic(fmt.Sprintf("lower: expected a pointer-valued expression, got constant %v", op))
	}
	return v, bb
}

// expr lowers e starting in block bb. It returns the operand holding the
// value and the block where evaluation ends; calls and short-circuit
// operators move evaluation to new blocks.
func (l *lowering) expr(e ast.Expr, bb lir.BbID) (lir.Operand, lir.BbID) {
	switch e := e.(type) {
	case ast.Num:
		return lir.CInt(e.Value), bb
	case ast.Nil:
		return lir.CInt(0), bb
	case ast.Id:
		return l.lookup(e.Name), bb

	case ast.Neg:
		x, bb := l.expr(e.X, bb)
		t := l.temp(lir.IntType())
		l.cfg.Emit(bb, lir.Arith{Lhs: t, Op: lir.Sub, Op1: lir.CInt(0), Op2: x})
		return t, bb
	case ast.Not:
		x, bb := l.expr(e.X, bb)
		t := l.temp(lir.IntType())
		l.cfg.Emit(bb, lir.Cmp{Lhs: t, Op: lir.Eq, Op1: x, Op2: lir.CInt(0)})
		return t, bb

	case ast.Arith:
		x, bb := l.expr(e.L, bb)
		y, bb := l.expr(e.R, bb)
		t := l.temp(lir.IntType())
		l.cfg.Emit(bb, lir.Arith{Lhs: t, Op: e.Op, Op1: x, Op2: y})
		return t, bb
	case ast.Compare:
		x, bb := l.expr(e.L, bb)
		y, bb := l.expr(e.R, bb)
		t := l.temp(lir.IntType())
		l.cfg.Emit(bb, lir.Cmp{Lhs: t, Op: e.Op, Op1: x, Op2: y})
		return t, bb

	case ast.Deref:
		ptr, bb := l.variable(e.X, bb)
		return l.load(ptr, bb), bb
	case ast.Index:
		ptr, bb := l.variable(e.Ptr, bb)
		idx, bb := l.expr(e.Index, bb)
		elem := l.temp(ptr.Type)
		l.cfg.Emit(bb, lir.Gep{Lhs: elem, Src: ptr, Idx: idx})
		return l.load(elem, bb), bb
	case ast.FieldAccess:
		ptr, bb := l.variable(e.Ptr, bb)
		f := l.field(ptr.Type, e.Field)
		addr := l.temp(lir.PointerType(f.Type))
		l.cfg.Emit(bb, lir.Gfp{Lhs: addr, Src: ptr, Field: f})
		return l.load(addr, bb), bb

	case ast.And:
		return l.shortCircuit(e.L, e.R, true, bb)
	case ast.Or:
		return l.shortCircuit(e.L, e.R, false, bb)

	case ast.Call:
		return l.call(e, bb)
	default:
		panic(fmt.Sprintf("lower: unexpected expression %T", e))
	}
}

// shortCircuit evaluates the right operand only when the left one does not
// decide the result: when it is nonzero for and, zero for or. The result is
// the value of the last operand evaluated.
func (l *lowering) shortCircuit(lhs, rhs ast.Expr, isAnd bool, bb lir.BbID) (lir.Operand, lir.BbID) {
	x, bb := l.expr(lhs, bb)
	t := l.temp(lir.IntType())
	l.cfg.Emit(bb, lir.Copy{Lhs: t, Op: x})

	rhsBB := l.cfg.NewBlock()
	join := l.cfg.NewBlock()
	if isAnd {
		l.cfg.Terminate(bb, lir.Branch{Cond: t, True: rhsBB, False: join})
	} else {
		l.cfg.Terminate(bb, lir.Branch{Cond: t, True: join, False: rhsBB})
	}

	y, end := l.expr(rhs, rhsBB)
	l.cfg.Emit(end, lir.Copy{Lhs: t, Op: y})
	l.cfg.Terminate(end, lir.Jump{Target: join})
	return t, join
}

func (l *lowering) call(c ast.Call, bb lir.BbID) (lir.Operand, lir.BbID) {
	args, bb := l.exprs(c.Args, bb)
	if id, ok := c.Callee.(ast.Id); ok && l.isExtern(id.Name) {
		typ := l.out.Externs[lir.FuncID(id.Name)]
		t := l.temp(returnType(id.Name, typ))
		l.cfg.Emit(bb, lir.CallExt{Lhs: &t, Callee: lir.FuncID(id.Name), Args: args})
		return t, bb
	}

	next := l.cfg.AllocLabel()
	callee, bb := l.variable(c.Callee, bb)
	t := l.temp(returnType(callee.Name, callee.Type.Elem()))
	l.cfg.Terminate(bb, l.callTerm(&t, callee, args, next))
	l.cfg.StartBlock(next)
	return t, next
}

func returnType(name string, fn *lir.Type) *lir.Type {
	if fn.Ret() == nil {
		panic(fmt.Sprintf("lower: call to %s used as a value returns nothing", name))
	}
	return fn.Ret()
}
