package interp

import (
	"fmt"
	"strings"

	"github.com/raymyers/cflat/pkg/lir"
)

// Value is a runtime value.
type Value interface {
	fmt.Stringer
	implValue()
}

// Int is an integer. Arithmetic wraps around on overflow.
type Int int64

// FnPtr points to an internal function.
type FnPtr lir.FuncID

// Ptr is a data pointer.
type Ptr struct {
	Addr Address
}

// Struct is a struct value. Fields follow the declaration order of the
// struct type. Struct values are copied whenever they move between
// variables and memory, so two live *Struct never alias.
type Struct struct {
	ID     lir.StructID
	Names  []string
	Fields []Value
}

func (Int) implValue()     {}
func (FnPtr) implValue()   {}
func (Ptr) implValue()     {}
func (*Struct) implValue() {}

func (v Int) String() string   { return fmt.Sprintf("%d", int64(v)) }
func (v FnPtr) String() string { return "fn " + string(v) }
func (v Ptr) String() string   { return v.Addr.String() }

func (s *Struct) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = s.Names[i] + ": " + f.String()
	}
	return fmt.Sprintf("%s{%s}", s.ID, strings.Join(parts, ", "))
}

// field returns the slot holding the named field.
func (s *Struct) field(name string) (*Value, bool) {
	for i, n := range s.Names {
		if n == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// clone deep-copies struct values; other values are immutable.
func clone(v Value) Value {
	s, ok := v.(*Struct)
	if !ok {
		return v
	}
	out := &Struct{ID: s.ID, Names: s.Names, Fields: make([]Value, len(s.Fields))}
	for i, f := range s.Fields {
		out.Fields[i] = clone(f)
	}
	return out
}

// zero builds the zero value of typ: 0, nil, or a struct of zero fields.
func zero(prog *lir.Program, typ *lir.Type) Value {
	switch {
	case typ.IsInt():
		return Int(0)
	case typ.IsPointer():
		return Ptr{Addr: NilAddr{}}
	case typ.IsStruct():
		fields := prog.Structs[typ.StructName()]
		s := &Struct{ID: typ.StructName(), Names: make([]string, len(fields)), Fields: make([]Value, len(fields))}
		for i, f := range fields {
			s.Names[i] = f.Name
			s.Fields[i] = zero(prog, f.Type)
		}
		return s
	}
	panic(fmt.Sprintf("interp: no zero value for type %s", typ))
}

// Address is the target of a pointer.
type Address interface {
	fmt.Stringer
	implAddress()
}

// NilAddr is the null address.
type NilAddr struct{}

// HeapAddr is cell Offset of the allocation starting at cell Block.
type HeapAddr struct {
	Block, Offset int
}

// FieldAddr is the address of a field inside the struct stored at Base.
type FieldAddr struct {
	Base  Address
	Field string
}

func (NilAddr) implAddress()   {}
func (HeapAddr) implAddress()  {}
func (FieldAddr) implAddress() {}

func (NilAddr) String() string    { return "nil" }
func (a HeapAddr) String() string { return fmt.Sprintf("heap[%d+%d]", a.Block, a.Offset) }
func (a FieldAddr) String() string {
	return fmt.Sprintf("%s.%s", a.Base, a.Field)
}

func addrRank(a Address) int {
	switch a.(type) {
	case NilAddr:
		return 0
	case HeapAddr:
		return 1
	default:
		return 2
	}
}

// compareAddr orders addresses: nil first, then heap cells by position,
// then field addresses by base and field name.
func compareAddr(a, b Address) int {
	if ra, rb := addrRank(a), addrRank(b); ra != rb {
		return ra - rb
	}
	switch a := a.(type) {
	case HeapAddr:
		b := b.(HeapAddr)
		if a.Block != b.Block {
			return a.Block - b.Block
		}
		return a.Offset - b.Offset
	case FieldAddr:
		b := b.(FieldAddr)
		if c := compareAddr(a.Base, b.Base); c != 0 {
			return c
		}
		return strings.Compare(a.Field, b.Field)
	}
	return 0
}
