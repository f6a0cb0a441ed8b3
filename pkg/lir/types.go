package lir

import (
	"strings"
	"sync"
)

// Kind discriminates the four LIR type constructors.
type Kind int

const (
	KindInt Kind = iota
	KindStruct
	KindFunction
	KindPointer
)

var kindNames = []string{"int", "struct", "function", "pointer"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Type is an interned LIR type. Two *Type values are equal iff the types are
// structurally equal, so types can be compared with == and used as map keys.
// Types must only be built through the constructors below.
type Type struct {
	kind   Kind
	name   StructID // KindStruct
	elem   *Type    // KindPointer
	ret    *Type    // KindFunction; nil means no return value
	params []*Type  // KindFunction
	str    string
}

// typeTable interns every type by its canonical text.
var typeTable = struct {
	sync.Mutex
	m map[string]*Type
}{m: make(map[string]*Type)}

func intern(t *Type) *Type {
	t.str = t.render()
	typeTable.Lock()
	defer typeTable.Unlock()
	if existing, ok := typeTable.m[t.str]; ok {
		return existing
	}
	typeTable.m[t.str] = t
	return t
}

// IntType returns the integer type.
func IntType() *Type {
	return intern(&Type{kind: KindInt})
}

// StructType returns the named struct type.
func StructType(name StructID) *Type {
	return intern(&Type{kind: KindStruct, name: name})
}

// PointerType returns a pointer to elem.
func PointerType(elem *Type) *Type {
	return intern(&Type{kind: KindPointer, elem: elem})
}

// FuncType returns the function type with the given return type (nil for
// none) and parameter types.
func FuncType(ret *Type, params ...*Type) *Type {
	ps := make([]*Type, len(params))
	copy(ps, params)
	return intern(&Type{kind: KindFunction, ret: ret, params: ps})
}

func (t *Type) render() string {
	switch t.kind {
	case KindInt:
		return "int"
	case KindStruct:
		return string(t.name)
	case KindPointer:
		return "&" + t.elem.String()
	case KindFunction:
		var sb strings.Builder
		sb.WriteString("(")
		for i, p := range t.params {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(p.String())
		}
		sb.WriteString(") -> ")
		if t.ret == nil {
			sb.WriteString("_")
		} else {
			sb.WriteString(t.ret.String())
		}
		return sb.String()
	}
	return "?"
}

func (t *Type) String() string {
	if t == nil {
		return "_"
	}
	return t.str
}

func (t *Type) Kind() Kind { return t.kind }

// StructName returns the struct name of a struct type.
func (t *Type) StructName() StructID { return t.name }

// Elem returns the pointee of a pointer type, or nil.
func (t *Type) Elem() *Type { return t.elem }

// Ret returns the return type of a function type, nil for none.
func (t *Type) Ret() *Type { return t.ret }

// Params returns the parameter types of a function type.
func (t *Type) Params() []*Type { return t.params }

func (t *Type) IsInt() bool      { return t != nil && t.kind == KindInt }
func (t *Type) IsStruct() bool   { return t != nil && t.kind == KindStruct }
func (t *Type) IsPointer() bool  { return t != nil && t.kind == KindPointer }
func (t *Type) IsFunction() bool { return t != nil && t.kind == KindFunction }

// IsFuncPointer reports whether t is a pointer to a function type.
func (t *Type) IsFuncPointer() bool {
	return t.IsPointer() && t.elem.IsFunction()
}
