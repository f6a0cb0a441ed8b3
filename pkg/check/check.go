// Package check enforces CFlat's static rules on a parsed program. A program
// that passes is wrapped as *ast.Valid, which is what lowering accepts.
package check

import (
	"fmt"
	"sort"
	"strings"

	"github.com/raymyers/cflat/pkg/ast"
	"github.com/raymyers/cflat/pkg/lir"
)

// Error lists every rule a program breaks, sorted and without duplicates.
type Error struct {
	Errors []string
}

func (e *Error) Error() string {
	return "invalid program:\n  " + strings.Join(e.Errors, "\n  ")
}

// nilType is the type of the nil literal. nil is a keyword, so no
// user-defined struct can share the name.
var nilType = lir.PointerType(lir.StructType("nil"))

// Program checks prog and wraps it on success. Otherwise it returns an
// *Error.
func Program(prog *ast.Program) (*ast.Valid, error) {
	c := &checker{
		structs:  make(map[string]map[string]*lir.Type),
		globals:  make(map[string]*lir.Type),
		externs:  make(map[string]*lir.Type),
		funcs:    make(map[string]*lir.Type),
		topLevel: make(map[string]bool),
		errs:     make(map[string]struct{}),
	}

	c.collect(prog)
	for _, f := range prog.Functions {
		c.checkFunction(f)
	}

	if len(c.errs) > 0 {
		msgs := make([]string, 0, len(c.errs))
		for m := range c.errs {
			msgs = append(msgs, m)
		}
		sort.Strings(msgs)
		return nil, &Error{Errors: msgs}
	}
	return ast.SkipValidation(prog), nil
}

type checker struct {
	structs  map[string]map[string]*lir.Type
	globals  map[string]*lir.Type
	externs  map[string]*lir.Type
	funcs    map[string]*lir.Type
	topLevel map[string]bool
	errs     map[string]struct{}

	// per function
	fn    *ast.Function
	scope map[string]*lir.Type
	loops int
}

func (c *checker) errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if c.fn != nil {
		msg = fmt.Sprintf("in function %s: %s", c.fn.Name, msg)
	}
	c.errs[msg] = struct{}{}
}

func (c *checker) checkName(name string) {
	if lir.IsReserved(name) {
		c.errorf("reserved word %q used as identifier", name)
	}
}

func (c *checker) declareTopLevel(name string) {
	c.checkName(name)
	if c.topLevel[name] {
		c.errorf("%s is declared more than once", name)
	}
	c.topLevel[name] = true
}

// collect records every top-level declaration so function bodies can refer
// to items declared after them.
func (c *checker) collect(prog *ast.Program) {
	for _, td := range prog.Typedefs {
		c.checkName(td.Name)
		if _, dup := c.structs[td.Name]; dup {
			c.errorf("struct %s is defined more than once", td.Name)
			continue
		}
		fields := make(map[string]*lir.Type)
		for _, f := range td.Fields {
			c.checkName(f.Name)
			if _, dup := fields[f.Name]; dup {
				c.errorf("field %s of struct %s is declared more than once", f.Name, td.Name)
			}
			fields[f.Name] = f.Type
		}
		c.structs[td.Name] = fields
	}
	for _, td := range prog.Typedefs {
		for _, f := range td.Fields {
			c.checkVarType(f.Type, fmt.Sprintf("field %s.%s", td.Name, f.Name))
		}
	}

	for _, g := range prog.Globals {
		c.declareTopLevel(g.Name)
		c.checkVarType(g.Type, "global "+g.Name)
		c.globals[g.Name] = g.Type
	}
	for _, e := range prog.Externs {
		c.declareTopLevel(e.Name)
		c.checkType(e.Type, "extern "+e.Name)
		if !e.Type.IsFunction() {
			c.errorf("extern %s must have a function type", e.Name)
		}
		c.externs[e.Name] = e.Type
	}
	for _, f := range prog.Functions {
		c.declareTopLevel(f.Name)
		params := make([]*lir.Type, len(f.Params))
		for i, p := range f.Params {
			params[i] = p.Type
		}
		c.funcs[f.Name] = lir.FuncType(f.Ret, params...)
		if f.Ret != nil {
			c.checkType(f.Ret, "return type of "+f.Name)
			if f.Ret.IsFunction() {
				c.errorf("function %s returns a bare function type %s", f.Name, f.Ret)
			}
		}
	}

	mainType, ok := c.funcs[string(lir.MainFunc)]
	switch {
	case !ok:
		c.errorf("missing function main")
	case mainType != lir.FuncType(lir.IntType()):
		c.errorf("main must have type () -> int, got %s", mainType)
	}
}

// checkType reports unknown structs and bare function types nested in
// function signatures.
func (c *checker) checkType(t *lir.Type, what string) {
	switch {
	case t.IsStruct():
		if _, ok := c.structs[string(t.StructName())]; !ok {
			c.errorf("unknown struct %s in %s", t.StructName(), what)
		}
	case t.IsPointer():
		c.checkType(t.Elem(), what)
	case t.IsFunction():
		for _, p := range t.Params() {
			c.checkType(p, what)
			if p.IsFunction() {
				c.errorf("bare function type %s as parameter in %s", p, what)
			}
		}
		if t.Ret() != nil {
			c.checkType(t.Ret(), what)
			if t.Ret().IsFunction() {
				c.errorf("bare function type %s as return type in %s", t.Ret(), what)
			}
		}
	}
}

// checkVarType checks the type of something that holds a value.
func (c *checker) checkVarType(t *lir.Type, what string) {
	c.checkType(t, what)
	if t.IsFunction() {
		c.errorf("%s has function type %s; use a function pointer", what, t)
	}
}

func (c *checker) checkFunction(f *ast.Function) {
	c.fn = f
	c.scope = make(map[string]*lir.Type)
	c.loops = 0
	defer func() { c.fn = nil }()

	declare := func(d ast.Decl, kind string) {
		c.checkName(d.Name)
		if _, dup := c.scope[d.Name]; dup {
			c.errorf("variable %s is declared more than once", d.Name)
		}
		c.scope[d.Name] = d.Type
		c.checkVarType(d.Type, kind+" "+d.Name)
	}
	for _, p := range f.Params {
		declare(p, "parameter")
	}
	for _, l := range f.Body.Locals {
		declare(l.Decl, "local")
	}

	// Initializers see every local, including later ones.
	for _, l := range f.Body.Locals {
		if l.Init == nil {
			continue
		}
		if t, ok := c.expr(l.Init); ok && !assignable(l.Type, t) {
			c.errorf("cannot initialize %s of type %s with %s", l.Name, l.Type, describeType(t))
		}
	}

	c.stmts(f.Body.Stmts)

	if f.Ret != nil && !returns(f.Body.Stmts) {
		c.errorf("missing return at end of function returning %s", f.Ret)
	}
}

// returns reports whether stmts always end in a return.
func returns(stmts []ast.Stmt) bool {
	for _, s := range stmts {
		switch s := s.(type) {
		case ast.Return:
			return true
		case ast.If:
			if returns(s.Then) && returns(s.Else) {
				return true
			}
		}
	}
	return false
}

func (c *checker) stmts(stmts []ast.Stmt) {
	for _, s := range stmts {
		c.stmt(s)
	}
}

func (c *checker) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case ast.If:
		c.guard(s.Guard, "if")
		c.stmts(s.Then)
		c.stmts(s.Else)
	case ast.While:
		c.guard(s.Guard, "while")
		c.loops++
		c.stmts(s.Body)
		c.loops--
	case ast.Break:
		if c.loops == 0 {
			c.errorf("break outside of a loop")
		}
	case ast.Continue:
		if c.loops == 0 {
			c.errorf("continue outside of a loop")
		}
	case ast.Return:
		c.checkReturn(s)
	case ast.Assign:
		c.checkAssign(s)
	case ast.CallStmt:
		c.call(ast.LvalExpr(s.Callee), s.Args)
	}
}

func (c *checker) guard(e ast.Expr, what string) {
	if t, ok := c.expr(e); ok && !t.IsInt() {
		c.errorf("%s condition must be int, got %s", what, describeType(t))
	}
}

func (c *checker) checkReturn(s ast.Return) {
	ret := c.fn.Ret
	switch {
	case s.Value == nil && ret != nil:
		c.errorf("return without a value in function returning %s", ret)
	case s.Value != nil && ret == nil:
		c.errorf("return with a value in function returning nothing")
		c.expr(s.Value)
	case s.Value != nil:
		if t, ok := c.expr(s.Value); ok && !assignable(ret, t) {
			c.errorf("cannot return %s from function returning %s", describeType(t), ret)
		}
	}
}

func (c *checker) checkAssign(s ast.Assign) {
	lt, lok := c.lval(s.Lhs)

	if n, isNew := s.Rhs.(ast.New); isNew {
		c.checkType(n.Type, "new")
		if n.Type.IsFunction() {
			c.errorf("cannot allocate function type %s", n.Type)
		}
		if n.Num != nil {
			if t, ok := c.expr(n.Num); ok && !t.IsInt() {
				c.errorf("allocation count must be int, got %s", describeType(t))
			}
		}
		if lok && lt != lir.PointerType(n.Type) {
			c.errorf("cannot assign new %s to %s of type %s", n.Type, ast.LvalString(s.Lhs), lt)
		}
		return
	}

	rt, rok := c.expr(s.Rhs.(ast.Expr))
	if lok && rok && !assignable(lt, rt) {
		c.errorf("cannot assign %s to %s of type %s", describeType(rt), ast.LvalString(s.Lhs), lt)
	}
}

func (c *checker) lval(lv ast.Lval) (*lir.Type, bool) {
	if id, ok := lv.(ast.LvId); ok {
		if t, ok := c.variable(id.Name); ok {
			return t, true
		}
		switch {
		case c.funcs[id.Name] != nil:
			c.errorf("cannot assign to function %s", id.Name)
		case c.externs[id.Name] != nil:
			c.errorf("cannot assign to extern %s", id.Name)
		default:
			c.errorf("undeclared variable %s", id.Name)
		}
		return nil, false
	}
	return c.expr(ast.LvalExpr(lv))
}

// variable resolves name among locals, parameters and globals.
func (c *checker) variable(name string) (*lir.Type, bool) {
	if t, ok := c.scope[name]; ok {
		return t, true
	}
	t, ok := c.globals[name]
	return t, ok
}

func assignable(dst, src *lir.Type) bool {
	return dst == src || (dst.IsPointer() && src == nilType)
}

func describeType(t *lir.Type) string {
	if t == nilType {
		return "nil"
	}
	return t.String()
}

// expr computes the type of e. ok is false if e is ill-typed; the problem
// has already been reported.
func (c *checker) expr(e ast.Expr) (*lir.Type, bool) {
	switch e := e.(type) {
	case ast.Num:
		return lir.IntType(), true
	case ast.Nil:
		return nilType, true
	case ast.Id:
		return c.ident(e.Name)
	case ast.Neg:
		return c.intOperand(e.X, "-")
	case ast.Not:
		t, ok := c.expr(e.X)
		if !ok {
			return nil, false
		}
		if !t.IsInt() && !t.IsPointer() {
			c.errorf("operand of ! must be int or pointer, got %s", describeType(t))
			return nil, false
		}
		return lir.IntType(), true
	case ast.Deref:
		return c.pointee(e.X, "dereference")
	case ast.Arith:
		_, lok := c.intOperand(e.L, ast.ArithSymbol(e.Op))
		_, rok := c.intOperand(e.R, ast.ArithSymbol(e.Op))
		return lir.IntType(), lok && rok
	case ast.Compare:
		lt, lok := c.expr(e.L)
		rt, rok := c.expr(e.R)
		if !lok || !rok {
			return nil, false
		}
		if !comparable(lt, rt) {
			c.errorf("cannot compare %s with %s", describeType(lt), describeType(rt))
			return nil, false
		}
		return lir.IntType(), true
	case ast.And:
		_, lok := c.intOperand(e.L, "and")
		_, rok := c.intOperand(e.R, "and")
		return lir.IntType(), lok && rok
	case ast.Or:
		_, lok := c.intOperand(e.L, "or")
		_, rok := c.intOperand(e.R, "or")
		return lir.IntType(), lok && rok
	case ast.Index:
		elem, pok := c.pointee(e.Ptr, "index")
		_, iok := c.intOperand(e.Index, "[]")
		return elem, pok && iok
	case ast.FieldAccess:
		return c.field(e)
	case ast.Call:
		ret, ok := c.call(e.Callee, e.Args)
		if !ok {
			return nil, false
		}
		if ret == nil {
			c.errorf("call to %s returns no value", ast.ExprString(e.Callee))
			return nil, false
		}
		return ret, true
	}
	return nil, false
}

func comparable(l, r *lir.Type) bool {
	switch {
	case l == r:
		return l.IsInt() || l.IsPointer()
	case l == nilType:
		return r.IsPointer()
	case r == nilType:
		return l.IsPointer()
	}
	return false
}

func (c *checker) ident(name string) (*lir.Type, bool) {
	if t, ok := c.variable(name); ok {
		return t, true
	}
	if ft, ok := c.funcs[name]; ok {
		if name == string(lir.MainFunc) {
			c.errorf("main cannot be used as a value")
			return nil, false
		}
		return lir.PointerType(ft), true
	}
	if _, ok := c.externs[name]; ok {
		c.errorf("extern %s can only be called directly", name)
		return nil, false
	}
	c.errorf("undeclared variable %s", name)
	return nil, false
}

func (c *checker) intOperand(e ast.Expr, op string) (*lir.Type, bool) {
	t, ok := c.expr(e)
	if !ok {
		return nil, false
	}
	if !t.IsInt() {
		c.errorf("operand of %s must be int, got %s", op, describeType(t))
		return nil, false
	}
	return t, true
}

// pointee checks that e is a pointer to a value and returns the value type.
func (c *checker) pointee(e ast.Expr, what string) (*lir.Type, bool) {
	t, ok := c.expr(e)
	if !ok {
		return nil, false
	}
	switch {
	case t == nilType:
		c.errorf("cannot %s nil", what)
	case !t.IsPointer():
		c.errorf("cannot %s non-pointer %s", what, describeType(t))
	case t.Elem().IsFunction():
		c.errorf("cannot %s function pointer %s", what, t)
	default:
		return t.Elem(), true
	}
	return nil, false
}

func (c *checker) field(e ast.FieldAccess) (*lir.Type, bool) {
	t, ok := c.expr(e.Ptr)
	if !ok {
		return nil, false
	}
	if !t.IsPointer() || !t.Elem().IsStruct() {
		c.errorf("field access .%s on %s, which is not a struct pointer", e.Field, describeType(t))
		return nil, false
	}
	name := string(t.Elem().StructName())
	fields, ok := c.structs[name]
	if !ok {
		return nil, false
	}
	ft, ok := fields[e.Field]
	if !ok {
		c.errorf("struct %s has no field %s", name, e.Field)
		return nil, false
	}
	return ft, true
}

// call checks a call and returns the callee's return type (nil for none).
// Unshadowed extern and function names are called directly; anything else
// must evaluate to a function pointer.
func (c *checker) call(callee ast.Expr, args []ast.Expr) (*lir.Type, bool) {
	var fnType *lir.Type
	if id, isID := callee.(ast.Id); isID && c.scope[id.Name] == nil {
		if et, ok := c.externs[id.Name]; ok {
			fnType = et
		} else if id.Name == string(lir.MainFunc) && c.funcs[id.Name] != nil {
			c.errorf("main cannot be called")
			return nil, false
		}
	}
	if fnType == nil {
		t, ok := c.expr(callee)
		if !ok {
			return nil, false
		}
		if !t.IsFuncPointer() {
			c.errorf("cannot call %s of type %s", ast.ExprString(callee), describeType(t))
			return nil, false
		}
		fnType = t.Elem()
	}

	params := fnType.Params()
	if len(args) != len(params) {
		c.errorf("call to %s expects %d arguments, got %d", ast.ExprString(callee), len(params), len(args))
		return nil, false
	}
	ok := true
	for i, a := range args {
		t, aok := c.expr(a)
		if !aok {
			ok = false
			continue
		}
		if !assignable(params[i], t) {
			c.errorf("argument %d of call to %s: cannot use %s as %s", i+1, ast.ExprString(callee), describeType(t), params[i])
			ok = false
		}
	}
	return fnType.Ret(), ok
}
