package lower

import (
	"fmt"

	"github.com/raymyers/cflat/pkg/ast"
	"github.com/raymyers/cflat/pkg/lir"
)

// stmts lowers a statement list starting in the open block bb. It returns the
// block control falls out of, or open == false when every path has already
// left through break, continue or return. Statements after such a jump are
// unreachable and are not lowered.
func (l *lowering) stmts(list []ast.Stmt, bb lir.BbID) (end lir.BbID, open bool) {
	for _, s := range list {
		bb, open = l.stmt(s, bb)
		if !open {
			return "", false
		}
	}
	return bb, true
}

func (l *lowering) stmt(s ast.Stmt, bb lir.BbID) (lir.BbID, bool) {
	switch s := s.(type) {
	case ast.Assign:
		return l.assign(s, bb), true
	case ast.CallStmt:
		return l.callStmt(s, bb), true
	case ast.If:
		return l.ifStmt(s, bb)
	case ast.While:
		return l.while(s, bb), true
	case ast.Break:
		_, exit, ok := l.loops.Innermost()
		if !ok {
			panic("lower: break outside of a loop")
		}
		l.cfg.Terminate(bb, lir.Jump{Target: exit})
		return "", false
	case ast.Continue:
		header, _, ok := l.loops.Innermost()
		if !ok {
			panic("lower: continue outside of a loop")
		}
		l.cfg.Terminate(bb, lir.Jump{Target: header})
		return "", false
	case ast.Return:
		var val lir.Operand
		if s.Value != nil {
			val, bb = l.expr(s.Value, bb)
		}
		l.cfg.Terminate(bb, lir.Ret{Value: val})
		return "", false
	default:
		panic(fmt.Sprintf("lower: unexpected statement %T", s))
	}
}

// assign evaluates the right-hand side before the target location.
func (l *lowering) assign(s ast.Assign, bb lir.BbID) lir.BbID {
	if n, ok := s.Rhs.(ast.New); ok {
		return l.alloc(s.Lhs, n, bb)
	}
	val, bb := l.expr(s.Rhs.(ast.Expr), bb)
	dst, direct, bb := l.lval(s.Lhs, bb)
	if direct {
		l.cfg.Emit(bb, lir.Copy{Lhs: dst, Op: val})
	} else {
		l.cfg.Emit(bb, lir.Store{Dst: dst, Op: val})
	}
	return bb
}

func (l *lowering) alloc(lhs ast.Lval, n ast.New, bb lir.BbID) lir.BbID {
	var num lir.Operand = lir.CInt(1)
	if n.Num != nil {
		num, bb = l.expr(n.Num, bb)
	}
	dst, direct, bb := l.lval(lhs, bb)

	l.allocs++
	site := lir.Global(fmt.Sprintf("_a%d", l.allocs), n.Type)
	if direct {
		l.cfg.Emit(bb, lir.Alloc{Lhs: dst, Num: num, ID: site})
		return bb
	}
	t := l.temp(lir.PointerType(n.Type))
	l.cfg.Emit(bb, lir.Alloc{Lhs: t, Num: num, ID: site})
	l.cfg.Emit(bb, lir.Store{Dst: dst, Op: t})
	return bb
}

func (l *lowering) callStmt(s ast.CallStmt, bb lir.BbID) lir.BbID {
	args, bb := l.exprs(s.Args, bb)
	if id, ok := s.Callee.(ast.LvId); ok && l.isExtern(id.Name) {
		l.cfg.Emit(bb, lir.CallExt{Callee: lir.FuncID(id.Name), Args: args})
		return bb
	}

	next := l.cfg.AllocLabel()
	callee, direct, bb := l.lval(s.Callee, bb)
	if !direct {
		callee = l.load(callee, bb)
	}
	l.cfg.Terminate(bb, l.callTerm(nil, callee, args, next))
	l.cfg.StartBlock(next)
	return next
}

// ifStmt creates the join block only when at least one arm falls through.
func (l *lowering) ifStmt(s ast.If, bb lir.BbID) (lir.BbID, bool) {
	cond, bb := l.expr(s.Guard, bb)
	thenBB := l.cfg.NewBlock()
	elseBB := l.cfg.NewBlock()
	l.cfg.Terminate(bb, lir.Branch{Cond: cond, True: thenBB, False: elseBB})

	thenEnd, thenOpen := l.stmts(s.Then, thenBB)
	elseEnd, elseOpen := l.stmts(s.Else, elseBB)
	if !thenOpen && !elseOpen {
		return "", false
	}

	join := l.cfg.NewBlock()
	if thenOpen {
		l.cfg.Terminate(thenEnd, lir.Jump{Target: join})
	}
	if elseOpen {
		l.cfg.Terminate(elseEnd, lir.Jump{Target: join})
	}
	return join, true
}

// while lowers to a header evaluating the guard, the body, and an exit
// block. The exit block is returned even when only break reaches it.
func (l *lowering) while(s ast.While, bb lir.BbID) lir.BbID {
	header := l.cfg.NewBlock()
	l.cfg.Terminate(bb, lir.Jump{Target: header})

	cond, condEnd := l.expr(s.Guard, header)
	body := l.cfg.NewBlock()
	exit := l.cfg.NewBlock()
	l.cfg.Terminate(condEnd, lir.Branch{Cond: cond, True: body, False: exit})

	l.loops.Push(header, exit)
	if end, open := l.stmts(s.Body, body); open {
		l.cfg.Terminate(end, lir.Jump{Target: header})
	}
	l.loops.Pop()
	return exit
}
