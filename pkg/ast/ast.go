// Package ast defines the abstract syntax tree for CFlat programs. Types are
// shared with the LIR so that lowering can use them directly.
package ast

import "github.com/raymyers/cflat/pkg/lir"

// Node is the base interface for all AST nodes
type Node interface {
	implNode()
}

// Rhs is the right-hand side of an assignment: an expression or a New.
type Rhs interface {
	Node
	implRhs()
}

// Expr is the interface for all expression nodes
type Expr interface {
	Rhs
	implExpr()
}

// Stmt is the interface for all statement nodes
type Stmt interface {
	Node
	implStmt()
}

// Lval is an assignable location.
type Lval interface {
	Node
	implLval()
}

// Program is a parsed CFlat compilation unit. Each list keeps source order.
type Program struct {
	Typedefs  []Typedef
	Externs   []Decl
	Globals   []Decl
	Functions []*Function
}

// Decl binds a name to a type.
type Decl struct {
	Name string
	Type *lir.Type
}

// Typedef is a struct definition.
type Typedef struct {
	Name   string
	Fields []Decl
}

// Function is a function definition. Ret is nil for `-> _`.
type Function struct {
	Name   string
	Params []Decl
	Ret    *lir.Type
	Body   Body
}

// Body holds a function's local declarations and statements.
type Body struct {
	Locals []Local
	Stmts  []Stmt
}

// Local is a local declaration with an optional initializer.
type Local struct {
	Decl
	Init Expr
}

// --- Statements ---

type Assign struct {
	Lhs Lval
	Rhs Rhs
}

// CallStmt is a call whose result is discarded.
type CallStmt struct {
	Callee Lval
	Args   []Expr
}

type If struct {
	Guard Expr
	Then  []Stmt
	Else  []Stmt
}

type While struct {
	Guard Expr
	Body  []Stmt
}

type Break struct{}

type Continue struct{}

// Return returns Value, which is nil for a bare return.
type Return struct {
	Value Expr
}

func (Assign) implNode()   {}
func (CallStmt) implNode() {}
func (If) implNode()       {}
func (While) implNode()    {}
func (Break) implNode()    {}
func (Continue) implNode() {}
func (Return) implNode()   {}

func (Assign) implStmt()   {}
func (CallStmt) implStmt() {}
func (If) implStmt()       {}
func (While) implStmt()    {}
func (Break) implStmt()    {}
func (Continue) implStmt() {}
func (Return) implStmt()   {}

// New allocates Num elements of Type (one when Num is nil).
type New struct {
	Type *lir.Type
	Num  Expr
}

func (New) implNode() {}
func (New) implRhs()  {}

// --- Lvalues ---

type LvId struct {
	Name string
}

type LvDeref struct {
	Lval Lval
}

type LvIndex struct {
	Ptr   Lval
	Index Expr
}

type LvField struct {
	Ptr   Lval
	Field string
}

func (LvId) implNode()    {}
func (LvDeref) implNode() {}
func (LvIndex) implNode() {}
func (LvField) implNode() {}

func (LvId) implLval()    {}
func (LvDeref) implLval() {}
func (LvIndex) implLval() {}
func (LvField) implLval() {}

// --- Expressions ---

type Num struct {
	Value int32
}

type Id struct {
	Name string
}

type Nil struct{}

type Neg struct {
	X Expr
}

type Not struct {
	X Expr
}

type Deref struct {
	X Expr
}

type Arith struct {
	Op   lir.ArithOp
	L, R Expr
}

type Compare struct {
	Op   lir.CmpOp
	L, R Expr
}

type And struct {
	L, R Expr
}

type Or struct {
	L, R Expr
}

type Index struct {
	Ptr   Expr
	Index Expr
}

type FieldAccess struct {
	Ptr   Expr
	Field string
}

type Call struct {
	Callee Expr
	Args   []Expr
}

func (Num) implNode()         {}
func (Id) implNode()          {}
func (Nil) implNode()         {}
func (Neg) implNode()         {}
func (Not) implNode()         {}
func (Deref) implNode()       {}
func (Arith) implNode()       {}
func (Compare) implNode()     {}
func (And) implNode()         {}
func (Or) implNode()          {}
func (Index) implNode()       {}
func (FieldAccess) implNode() {}
func (Call) implNode()        {}

func (Num) implRhs()         {}
func (Id) implRhs()          {}
func (Nil) implRhs()         {}
func (Neg) implRhs()         {}
func (Not) implRhs()         {}
func (Deref) implRhs()       {}
func (Arith) implRhs()       {}
func (Compare) implRhs()     {}
func (And) implRhs()         {}
func (Or) implRhs()          {}
func (Index) implRhs()       {}
func (FieldAccess) implRhs() {}
func (Call) implRhs()        {}

func (Num) implExpr()         {}
func (Id) implExpr()          {}
func (Nil) implExpr()         {}
func (Neg) implExpr()         {}
func (Not) implExpr()         {}
func (Deref) implExpr()       {}
func (Arith) implExpr()       {}
func (Compare) implExpr()     {}
func (And) implExpr()         {}
func (Or) implExpr()          {}
func (Index) implExpr()       {}
func (FieldAccess) implExpr() {}
func (Call) implExpr()        {}

// Valid wraps a program that satisfies CFlat's static rules. Lowering only
// accepts Valid programs.
type Valid struct {
	prog *Program
}

// Program returns the wrapped program.
func (v *Valid) Program() *Program { return v.prog }

// SkipValidation wraps prog without checking it. The checker uses it once
// its checks pass; other callers take responsibility for prog being valid.
func SkipValidation(prog *Program) *Valid {
	return &Valid{prog: prog}
}

// LvalExpr returns the expression that reads the location lv names.
func LvalExpr(lv Lval) Expr {
	switch lv := lv.(type) {
	case LvId:
		return Id{Name: lv.Name}
	case LvDeref:
		return Deref{X: LvalExpr(lv.Lval)}
	case LvIndex:
		return Index{Ptr: LvalExpr(lv.Ptr), Index: lv.Index}
	case LvField:
		return FieldAccess{Ptr: LvalExpr(lv.Ptr), Field: lv.Field}
	}
	return nil
}
