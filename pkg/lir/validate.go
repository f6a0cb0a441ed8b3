package lir

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError holds every rule violation found in a program, sorted and
// without duplicates.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid LIR program:\n  " + strings.Join(e.Errors, "\n  ")
}

var reservedWords = map[string]bool{
	"struct": true, "fn": true, "decl": true, "then": true, "int": true, "void": true,
}

// IsReserved reports whether name is a reserved word of the textual LIR.
func IsReserved(name string) bool { return reservedWords[name] }

// Validate checks that prog is well-formed:
//
//   - identifiers are well-formed, not reserved, and alloc ids are unique
//   - every struct has at least one field
//   - map keys agree with the names they map to
//   - main exists with type () -> int and every function has an entry block
//   - parameters are distinct and each function has exactly one $ret
//   - terminal targets exist and $call_dir targets a function other than main
//   - every variable used is declared and nothing has a bare function type
//   - every block is reachable from entry and reaches the $ret
//   - externs and functions do not share names, and globals named after
//     functions are pointers to that function's type
//   - instructions are well-typed (only checked when everything else holds)
//
// Validate never modifies prog. It returns a *ValidationError or nil.
func Validate(prog *Program) error {
	errs := make(map[string]struct{})
	add := func(format string, args ...any) {
		errs[fmt.Sprintf(format, args...)] = struct{}{}
	}

	checkIdentifiers(prog, add)
	checkStructs(prog, add)
	checkNameMapping(prog, add)
	checkRequired(prog, add)
	checkParams(prog, add)
	checkRet(prog, add)
	checkTerminals(prog, add)
	checkDeclared(prog, add)
	checkNoFuncType(prog, add)
	checkReachability(prog, add)
	checkExternNames(prog, add)
	checkGlobalFuncPtrs(prog, add)

	// Typing assumes the structural rules hold.
	if len(errs) == 0 {
		checkTypes(prog, add)
	}

	if len(errs) == 0 {
		return nil
	}
	out := make([]string, 0, len(errs))
	for e := range errs {
		out = append(out, e)
	}
	sort.Strings(out)
	return &ValidationError{Errors: out}
}

type reporter func(format string, args ...any)

func checkIdentifiers(prog *Program, add reporter) {
	check := func(s string) {
		switch {
		case s == "":
			add("identifier cannot be the empty string")
		case !isIdent(s):
			add("%s is an invalid identifier", s)
		case reservedWords[s]:
			add("reserved word %q used as identifier", s)
		}
	}

	for name, fields := range prog.Structs {
		check(string(name))
		for _, f := range fields {
			check(f.Name)
		}
	}
	for v := range prog.Globals {
		check(v.Name)
	}

	seen := make(map[VarID]bool)
	for _, name := range prog.FunctionNames() {
		fn := prog.Functions[name]
		check(string(name))
		for _, p := range fn.Params {
			check(p.Name)
		}
		for v := range fn.Locals {
			check(v.Name)
		}
		for _, label := range fn.Labels() {
			check(string(label))
			for _, inst := range fn.Body[label].Insts {
				if a, ok := inst.(Alloc); ok {
					check(a.ID.Name)
					if seen[a.ID] {
						add("alloc id %q is not unique", a.ID.Name)
					}
					seen[a.ID] = true
				}
			}
		}
	}
}

func checkStructs(prog *Program, add reporter) {
	for name, fields := range prog.Structs {
		if len(fields) == 0 {
			add("struct %s has 0 fields", name)
		}
	}
}

func checkNameMapping(prog *Program, add reporter) {
	for name, fn := range prog.Functions {
		if fn.ID != name {
			add("'functions' maps %s to %s", name, fn.ID)
		}
		for label, bb := range fn.Body {
			if bb.ID != label {
				add("%s's 'body' maps %s to %s", name, label, bb.ID)
			}
		}
	}
}

func checkRequired(prog *Program, add reporter) {
	if main, ok := prog.Functions[MainFunc]; !ok {
		add("there is no main function")
	} else if len(main.Params) != 0 || !main.Ret.IsInt() {
		add("function main should have type () -> int")
	}
	for name, fn := range prog.Functions {
		if _, ok := fn.Body[EntryBlock]; !ok {
			add("function %s does not have an 'entry' block", name)
		}
	}
}

func checkParams(prog *Program, add reporter) {
	for name, fn := range prog.Functions {
		seen := make(map[VarID]bool)
		for _, p := range fn.Params {
			if seen[p] {
				add("function %s has duplicated parameter %s", name, p)
			}
			seen[p] = true
		}
	}
}

func checkRet(prog *Program, add reporter) {
	for name, fn := range prog.Functions {
		n := 0
		for _, bb := range fn.Body {
			if _, ok := bb.Term.(Ret); ok {
				n++
			}
		}
		switch {
		case n == 0:
			add("function %s has no $ret instruction", name)
		case n > 1:
			add("function %s has multiple $ret instructions", name)
		}
	}
}

func checkTerminals(prog *Program, add reporter) {
	for name, fn := range prog.Functions {
		for label, bb := range fn.Body {
			malformed := func(msg string) {
				add("malformed basic block %s in function %s: %s", label, name, msg)
			}
			has := func(l BbID) bool {
				_, ok := fn.Body[l]
				return ok
			}

			switch t := bb.Term.(type) {
			case Branch:
				if !has(t.True) || !has(t.False) {
					malformed("invalid branch target")
				}
			case CallDirect:
				if !has(t.Next) {
					malformed("invalid call next_bb")
				}
				if _, ok := prog.Functions[t.Callee]; !ok {
					malformed("invalid callee")
				}
				if t.Callee == MainFunc {
					malformed("cannot call function main")
				}
			case CallIndirect:
				if !has(t.Next) {
					malformed("invalid call next_bb")
				}
			case Jump:
				if !has(t.Target) {
					malformed("invalid jump target")
				}
			case nil:
				malformed("missing terminal")
			}
		}
	}
}

// usedVars lists every variable an instruction reads or writes. Alloc ids
// and fields are not variables.
func usedVars(inst Instruction) []VarID {
	var vs []VarID
	op := func(o Operand) {
		if v, ok := o.(VarID); ok {
			vs = append(vs, v)
		}
	}
	switch i := inst.(type) {
	case AddrOf:
		vs = append(vs, i.Lhs, i.Rhs)
	case Alloc:
		vs = append(vs, i.Lhs)
		op(i.Num)
	case Arith:
		vs = append(vs, i.Lhs)
		op(i.Op1)
		op(i.Op2)
	case CallExt:
		if i.Lhs != nil {
			vs = append(vs, *i.Lhs)
		}
		for _, a := range i.Args {
			op(a)
		}
	case Cmp:
		vs = append(vs, i.Lhs)
		op(i.Op1)
		op(i.Op2)
	case Copy:
		vs = append(vs, i.Lhs)
		op(i.Op)
	case Gep:
		vs = append(vs, i.Lhs, i.Src)
		op(i.Idx)
	case Gfp:
		vs = append(vs, i.Lhs, i.Src)
	case Load:
		vs = append(vs, i.Lhs, i.Src)
	case Phi:
		vs = append(vs, i.Lhs)
		for _, a := range i.Args {
			op(a)
		}
	case Store:
		vs = append(vs, i.Dst)
		op(i.Op)
	}
	return vs
}

func terminalVars(term Terminal) []VarID {
	var vs []VarID
	op := func(o Operand) {
		if v, ok := o.(VarID); ok {
			vs = append(vs, v)
		}
	}
	switch t := term.(type) {
	case Branch:
		op(t.Cond)
	case CallDirect:
		if t.Lhs != nil {
			vs = append(vs, *t.Lhs)
		}
		for _, a := range t.Args {
			op(a)
		}
	case CallIndirect:
		if t.Lhs != nil {
			vs = append(vs, *t.Lhs)
		}
		vs = append(vs, t.Callee)
		for _, a := range t.Args {
			op(a)
		}
	case Ret:
		if t.Value != nil {
			op(t.Value)
		}
	}
	return vs
}

func checkDeclared(prog *Program, add reporter) {
	for name, fn := range prog.Functions {
		check := func(v VarID) {
			declared := prog.Globals.Has(v)
			if !v.IsGlobal() {
				declared = fn.Locals.Has(v) || fn.IsParam(v)
			}
			if !declared {
				add("variable %s in function %s is undeclared", v, name)
			}
		}
		for _, bb := range fn.Body {
			for _, inst := range bb.Insts {
				for _, v := range usedVars(inst) {
					check(v)
				}
			}
			for _, v := range terminalVars(bb.Term) {
				check(v)
			}
		}
	}
}

func checkNoFuncType(prog *Program, add reporter) {
	for name, fields := range prog.Structs {
		for _, f := range fields {
			if f.Type.IsFunction() {
				add("struct %s's field %s cannot be a function type", name, f)
			}
		}
	}
	for v := range prog.Globals {
		if v.Type.IsFunction() {
			add("global %s cannot be a function type", v)
		}
	}
	for name, fn := range prog.Functions {
		for _, p := range fn.Params {
			if p.Type.IsFunction() {
				add("function %s's parameter %s cannot be a function type", name, p)
			}
		}
		for v := range fn.Locals {
			if v.Type.IsFunction() {
				add("function %s's local %s cannot be a function type", name, v)
			}
		}
	}
}

// checkReachability requires every block to be reachable from entry and to
// reach a $ret. Calls count as edges to their continuation block.
func checkReachability(prog *Program, add reporter) {
	for name, fn := range prog.Functions {
		preds := make(map[BbID][]BbID)
		var exits []BbID
		for label, bb := range fn.Body {
			if bb.Term == nil {
				continue
			}
			if _, ok := bb.Term.(Ret); ok {
				exits = append(exits, label)
			}
			for _, s := range bb.Term.Successors() {
				preds[s] = append(preds[s], label)
			}
		}

		forward := walk([]BbID{EntryBlock}, func(l BbID) []BbID {
			if bb, ok := fn.Body[l]; ok && bb.Term != nil {
				return bb.Term.Successors()
			}
			return nil
		})
		backward := walk(exits, func(l BbID) []BbID { return preds[l] })

		for label := range fn.Body {
			if !forward[label] {
				add("block %s in function %s is unreachable from entry", label, name)
			}
			if !backward[label] {
				add("block %s in function %s does not reach a $ret instruction", label, name)
			}
		}
	}
}

func walk(roots []BbID, next func(BbID) []BbID) map[BbID]bool {
	seen := make(map[BbID]bool)
	work := append([]BbID(nil), roots...)
	for len(work) > 0 {
		l := work[len(work)-1]
		work = work[:len(work)-1]
		if seen[l] {
			continue
		}
		seen[l] = true
		work = append(work, next(l)...)
	}
	return seen
}

func checkExternNames(prog *Program, add reporter) {
	for name := range prog.Externs {
		if _, ok := prog.Functions[name]; ok {
			add("%s is both declared as an extern and defined as a function", name)
		}
	}
}

func checkGlobalFuncPtrs(prog *Program, add reporter) {
	for g := range prog.Globals {
		if FuncID(g.Name) == MainFunc {
			add("global variable cannot be named 'main'")
			continue
		}
		fn, ok := prog.Functions[FuncID(g.Name)]
		if !ok {
			continue
		}
		want := fn.Type()
		if !g.Type.IsPointer() || g.Type.Elem() != want {
			add("global variable with same name as function but incorrect type: %s should be &%s", g, want)
		}
	}
}

// assignable reports whether op may flow into a slot of type want, allowing
// the constant 0 for any pointer.
func assignable(op Operand, want *Type) bool {
	return op.OperandType() == want || (want.IsPointer() && IsZero(op))
}

func argsMatch(args []Operand, params []*Type) bool {
	if len(args) != len(params) {
		return false
	}
	for i, a := range args {
		if !assignable(a, params[i]) {
			return false
		}
	}
	return true
}

func checkTypes(prog *Program, add reporter) {
	for name, fn := range prog.Functions {
		for label, bb := range fn.Body {
			for pos, inst := range bb.Insts {
				if !instWellTyped(prog, inst) {
					add("instruction at %s.%s.%d is ill-typed", name, label, pos)
				}
			}
			if !termWellTyped(prog, fn, bb.Term) {
				add("terminal instruction at %s.%s.%d is ill-typed", name, label, len(bb.Insts))
			}
		}
	}
}

func instWellTyped(prog *Program, inst Instruction) bool {
	switch i := inst.(type) {
	case AddrOf:
		return i.Lhs.Type.IsPointer() && i.Lhs.Type.Elem() == i.Rhs.Type
	case Alloc:
		return i.Lhs.Type.IsPointer() && !i.Lhs.Type.Elem().IsFunction() && i.Num.OperandType().IsInt()
	case Arith:
		return i.Lhs.Type.IsInt() && i.Op1.OperandType().IsInt() && i.Op2.OperandType().IsInt()
	case CallExt:
		ft, ok := prog.Externs[i.Callee]
		if !ok || !ft.IsFunction() {
			return false
		}
		// The result may be discarded even when the extern returns a value.
		if i.Lhs != nil && i.Lhs.Type != ft.Ret() {
			return false
		}
		return argsMatch(i.Args, ft.Params())
	case Cmp:
		if !i.Lhs.Type.IsInt() {
			return false
		}
		t1, t2 := i.Op1.OperandType(), i.Op2.OperandType()
		switch {
		case t1 == t2:
			return t1.IsInt() || t1.IsPointer()
		case t1.IsPointer() && IsZero(i.Op2):
			return true
		case t2.IsPointer() && IsZero(i.Op1):
			return true
		}
		return false
	case Copy:
		return assignable(i.Op, i.Lhs.Type)
	case Gep:
		return i.Lhs.Type.IsPointer() && i.Src.Type.IsPointer() &&
			i.Lhs.Type.Elem() == i.Src.Type.Elem() && i.Idx.OperandType().IsInt()
	case Gfp:
		if !i.Lhs.Type.IsPointer() || !i.Src.Type.IsPointer() || !i.Src.Type.Elem().IsStruct() {
			return false
		}
		f, ok := prog.Field(i.Src.Type.Elem().StructName(), i.Field.Name)
		return ok && f == i.Field && i.Lhs.Type.Elem() == f.Type
	case Load:
		return i.Src.Type.IsPointer() && i.Src.Type.Elem() == i.Lhs.Type
	case Phi:
		if len(i.Args) == 0 {
			return false
		}
		for _, a := range i.Args {
			if !assignable(a, i.Lhs.Type) {
				return false
			}
		}
		return true
	case Store:
		return i.Dst.Type.IsPointer() && assignable(i.Op, i.Dst.Type.Elem())
	}
	return false
}

func termWellTyped(prog *Program, fn *Function, term Terminal) bool {
	call := func(lhs *VarID, ft *Type, args []Operand) bool {
		if lhs != nil && (ft.Ret() == nil || lhs.Type != ft.Ret()) {
			return false
		}
		return argsMatch(args, ft.Params())
	}

	switch t := term.(type) {
	case Branch:
		return t.Cond.OperandType().IsInt()
	case CallDirect:
		callee, ok := prog.Functions[t.Callee]
		return ok && call(t.Lhs, callee.Type(), t.Args)
	case CallIndirect:
		if !t.Callee.Type.IsFuncPointer() {
			return false
		}
		return call(t.Lhs, t.Callee.Type.Elem(), t.Args)
	case Jump:
		return true
	case Ret:
		if t.Value == nil {
			return fn.Ret == nil
		}
		return fn.Ret != nil && assignable(t.Value, fn.Ret)
	}
	return false
}
