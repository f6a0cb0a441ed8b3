// Package lir defines the low-level intermediate representation (LIR) that
// CFlat programs are lowered to. LIR is a control flow graph of labeled basic
// blocks over explicitly typed variables. Every block holds straight-line
// instructions followed by exactly one terminal; calls to internal functions
// are terminals so that every call site starts a new block.
package lir

import "sort"

// Names of the designated entry function and entry block.
const (
	MainFunc   FuncID = "main"
	EntryBlock BbID   = "entry"
)

// StructID names a struct type.
type StructID string

// FuncID names an internal or external function.
type FuncID string

// BbID labels a basic block within a function.
type BbID string

// FieldID is a struct field: its name and static type.
type FieldID struct {
	Name string
	Type *Type
}

func (f FieldID) String() string { return f.Name }

// VarID is a variable handle. Globals have an empty Scope; locals and
// parameters are scoped to their function. Two VarIDs denote the same
// variable iff all three components are equal.
type VarID struct {
	Name  string
	Type  *Type
	Scope FuncID
}

// IsGlobal reports whether v has no owning function.
func (v VarID) IsGlobal() bool { return v.Scope == "" }

// Typed renders v as name:type.
func (v VarID) Typed() string { return v.Name + ":" + v.Type.String() }

// Var builds a variable handle.
func Var(name string, typ *Type, scope FuncID) VarID {
	return VarID{Name: name, Type: typ, Scope: scope}
}

// Global builds a global variable handle.
func Global(name string, typ *Type) VarID {
	return VarID{Name: name, Type: typ}
}

// VarSet is an unordered set of variables.
type VarSet map[VarID]struct{}

func (s VarSet) Add(v VarID) { s[v] = struct{}{} }

func (s VarSet) Has(v VarID) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members ordered by name, then type.
func (s VarSet) Sorted() []VarID {
	out := make([]VarID, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sortVars(out)
	return out
}

func sortVars(vs []VarID) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].Name != vs[j].Name {
			return vs[i].Name < vs[j].Name
		}
		return vs[i].Type.String() < vs[j].Type.String()
	})
}

// Program is a whole LIR program.
type Program struct {
	Structs   map[StructID][]FieldID
	Globals   VarSet
	Externs   map[FuncID]*Type
	Functions map[FuncID]*Function
}

// NewProgram returns an empty program.
func NewProgram() *Program {
	return &Program{
		Structs:   make(map[StructID][]FieldID),
		Globals:   make(VarSet),
		Externs:   make(map[FuncID]*Type),
		Functions: make(map[FuncID]*Function),
	}
}

// Field looks up a field of struct s by name.
func (p *Program) Field(s StructID, name string) (FieldID, bool) {
	for _, f := range p.Structs[s] {
		if f.Name == name {
			return f, true
		}
	}
	return FieldID{}, false
}

// StructNames returns the struct names in sorted order.
func (p *Program) StructNames() []StructID {
	out := make([]StructID, 0, len(p.Structs))
	for s := range p.Structs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ExternNames returns the extern names in sorted order.
func (p *Program) ExternNames() []FuncID {
	out := make([]FuncID, 0, len(p.Externs))
	for f := range p.Externs {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FunctionNames returns the function names in sorted order.
func (p *Program) FunctionNames() []FuncID {
	out := make([]FuncID, 0, len(p.Functions))
	for f := range p.Functions {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Function is an LIR function definition.
type Function struct {
	ID     FuncID
	Ret    *Type // nil for no return value
	Params []VarID
	Locals VarSet
	Body   map[BbID]*BasicBlock
}

// Type returns the function's signature.
func (f *Function) Type() *Type {
	params := make([]*Type, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Type
	}
	return FuncType(f.Ret, params...)
}

// Labels returns the block labels in sorted order.
func (f *Function) Labels() []BbID {
	out := make([]BbID, 0, len(f.Body))
	for l := range f.Body {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsParam reports whether v is one of f's parameters.
func (f *Function) IsParam(v VarID) bool {
	for _, p := range f.Params {
		if p == v {
			return true
		}
	}
	return false
}

// BasicBlock is a labeled instruction sequence ending in one terminal.
type BasicBlock struct {
	ID    BbID
	Insts []Instruction
	Term  Terminal
}

// Operand is an integer constant or a variable.
type Operand interface {
	implOperand()
	OperandType() *Type
	String() string
}

// CInt is an integer constant operand.
type CInt int32

func (CInt) implOperand()          {}
func (CInt) OperandType() *Type    { return IntType() }
func (v VarID) implOperand()       {}
func (v VarID) OperandType() *Type { return v.Type }
func (v VarID) String() string     { return v.Name }

// IsZero reports whether op is the constant 0, which doubles as nil.
func IsZero(op Operand) bool {
	c, ok := op.(CInt)
	return ok && c == 0
}

// ArithOp is an arithmetic operator.
type ArithOp int

const (
	Add ArithOp = iota
	Sub
	Mul
	Div
)

var arithOpNames = []string{"add", "sub", "mul", "div"}

func (op ArithOp) String() string { return arithOpNames[op] }

// CmpOp is a comparison operator.
type CmpOp int

const (
	Eq CmpOp = iota
	Neq
	Lt
	Lte
	Gt
	Gte
)

var cmpOpNames = []string{"eq", "neq", "lt", "lte", "gt", "gte"}

func (op CmpOp) String() string { return cmpOpNames[op] }

// Instruction is a non-terminal LIR instruction.
type Instruction interface {
	implInstruction()
}

// AddrOf sets Lhs to the address of Rhs.
type AddrOf struct {
	Lhs, Rhs VarID
}

// Alloc allocates Num zero-initialized elements of Lhs's pointee type. ID is
// the allocation site, unique across the program.
type Alloc struct {
	Lhs VarID
	Num Operand
	ID  VarID
}

type Arith struct {
	Lhs      VarID
	Op       ArithOp
	Op1, Op2 Operand
}

// CallExt calls an external function without splitting the block.
type CallExt struct {
	Lhs    *VarID
	Callee FuncID
	Args   []Operand
}

type Cmp struct {
	Lhs      VarID
	Op       CmpOp
	Op1, Op2 Operand
}

type Copy struct {
	Lhs VarID
	Op  Operand
}

// Gep sets Lhs to Src offset by Idx elements.
type Gep struct {
	Lhs, Src VarID
	Idx      Operand
}

// Gfp sets Lhs to the address of Field in the struct Src points to.
type Gfp struct {
	Lhs, Src VarID
	Field    FieldID
}

type Load struct {
	Lhs, Src VarID
}

type Phi struct {
	Lhs  VarID
	Args []Operand
}

type Store struct {
	Dst VarID
	Op  Operand
}

func (AddrOf) implInstruction()  {}
func (Alloc) implInstruction()   {}
func (Arith) implInstruction()   {}
func (CallExt) implInstruction() {}
func (Cmp) implInstruction()     {}
func (Copy) implInstruction()    {}
func (Gep) implInstruction()     {}
func (Gfp) implInstruction()     {}
func (Load) implInstruction()    {}
func (Phi) implInstruction()     {}
func (Store) implInstruction()   {}

// Terminal ends a basic block.
type Terminal interface {
	implTerminal()
	Successors() []BbID
}

type Branch struct {
	Cond        Operand
	True, False BbID
}

// CallDirect calls an internal function by name and resumes in Next.
type CallDirect struct {
	Lhs    *VarID
	Callee FuncID
	Args   []Operand
	Next   BbID
}

// CallIndirect calls through a function pointer and resumes in Next.
type CallIndirect struct {
	Lhs    *VarID
	Callee VarID
	Args   []Operand
	Next   BbID
}

type Jump struct {
	Target BbID
}

// Ret returns from the function. Value is nil for a bare return.
type Ret struct {
	Value Operand
}

func (Branch) implTerminal()       {}
func (CallDirect) implTerminal()   {}
func (CallIndirect) implTerminal() {}
func (Jump) implTerminal()         {}
func (Ret) implTerminal()          {}

func (t Branch) Successors() []BbID       { return []BbID{t.True, t.False} }
func (t CallDirect) Successors() []BbID   { return []BbID{t.Next} }
func (t CallIndirect) Successors() []BbID { return []BbID{t.Next} }
func (t Jump) Successors() []BbID         { return []BbID{t.Target} }
func (Ret) Successors() []BbID            { return nil }
