package lir

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

func (c CInt) String() string { return strconv.Itoa(int(c)) }

// Printer writes LIR in its textual form. The output is accepted by Parse.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new LIR printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// String renders a whole program.
func String(prog *Program) string {
	var sb strings.Builder
	NewPrinter(&sb).PrintProgram(prog)
	return sb.String()
}

// PrintProgram prints structs, globals and externs, each section followed by
// a blank line when non-empty, then every function in name order.
func (p *Printer) PrintProgram(prog *Program) {
	var sections []string

	var structs []string
	for _, name := range prog.StructNames() {
		fields := sortedFields(prog.Structs[name])
		lines := make([]string, len(fields))
		for i, f := range fields {
			lines[i] = "  " + f.Name + ":" + f.Type.String()
		}
		structs = append(structs, fmt.Sprintf("struct %s {\n%s\n}", name, strings.Join(lines, "\n")))
	}
	if len(structs) > 0 {
		sections = append(sections, strings.Join(structs, "\n\n"))
	}

	var globals []string
	for _, g := range prog.Globals.Sorted() {
		globals = append(globals, g.Typed())
	}
	if len(globals) > 0 {
		sections = append(sections, strings.Join(globals, "\n"))
	}

	var externs []string
	for _, name := range prog.ExternNames() {
		externs = append(externs, fmt.Sprintf("extern %s:%s", name, prog.Externs[name]))
	}
	if len(externs) > 0 {
		sections = append(sections, strings.Join(externs, "\n"))
	}

	for _, s := range sections {
		fmt.Fprint(p.w, s, "\n\n")
	}

	for i, name := range prog.FunctionNames() {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		p.PrintFunction(prog.Functions[name])
	}
}

func sortedFields(fields []FieldID) []FieldID {
	out := make([]FieldID, len(fields))
	copy(out, fields)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Type.String() < out[j].Type.String()
	})
	return out
}

// PrintFunction prints one function definition.
func (p *Printer) PrintFunction(fn *Function) {
	params := make([]string, len(fn.Params))
	for i, v := range fn.Params {
		params[i] = v.Typed()
	}
	fmt.Fprintf(p.w, "fn %s(%s) -> %s {\n", fn.ID, strings.Join(params, ", "), fn.Ret)

	if len(fn.Locals) > 0 {
		locals := fn.Locals.Sorted()
		decls := make([]string, len(locals))
		for i, v := range locals {
			decls[i] = v.Typed()
		}
		fmt.Fprintf(p.w, "let %s\n", strings.Join(decls, ", "))
	}

	for i, label := range fn.Labels() {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		p.printBlock(fn.Body[label])
	}
	fmt.Fprintln(p.w, "}")
}

func (p *Printer) printBlock(bb *BasicBlock) {
	fmt.Fprintf(p.w, "%s:\n", bb.ID)
	for _, inst := range bb.Insts {
		fmt.Fprintf(p.w, "  %s\n", InstructionString(inst))
	}
	fmt.Fprintf(p.w, "  %s\n", TerminalString(bb.Term))
}

func joinOperands(ops []Operand) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.String()
	}
	return strings.Join(parts, ", ")
}

func optLhs(v *VarID) string {
	if v == nil {
		return ""
	}
	return v.Name + " = "
}

// InstructionString renders a single instruction.
func InstructionString(inst Instruction) string {
	switch i := inst.(type) {
	case AddrOf:
		return fmt.Sprintf("%s = $addrof %s", i.Lhs, i.Rhs)
	case Alloc:
		return fmt.Sprintf("%s = $alloc %s [%s]", i.Lhs, i.Num, i.ID)
	case Arith:
		return fmt.Sprintf("%s = $arith %s %s %s", i.Lhs, i.Op, i.Op1, i.Op2)
	case CallExt:
		return fmt.Sprintf("%s$call_ext %s(%s)", optLhs(i.Lhs), i.Callee, joinOperands(i.Args))
	case Cmp:
		return fmt.Sprintf("%s = $cmp %s %s %s", i.Lhs, i.Op, i.Op1, i.Op2)
	case Copy:
		return fmt.Sprintf("%s = $copy %s", i.Lhs, i.Op)
	case Gep:
		return fmt.Sprintf("%s = $gep %s %s", i.Lhs, i.Src, i.Idx)
	case Gfp:
		return fmt.Sprintf("%s = $gfp %s %s", i.Lhs, i.Src, i.Field)
	case Load:
		return fmt.Sprintf("%s = $load %s", i.Lhs, i.Src)
	case Phi:
		return fmt.Sprintf("%s = $phi(%s)", i.Lhs, joinOperands(i.Args))
	case Store:
		return fmt.Sprintf("$store %s %s", i.Dst, i.Op)
	}
	return "???"
}

// TerminalString renders a single terminal.
func TerminalString(term Terminal) string {
	switch t := term.(type) {
	case Branch:
		return fmt.Sprintf("$branch %s %s %s", t.Cond, t.True, t.False)
	case CallDirect:
		return fmt.Sprintf("%s$call_dir %s(%s) then %s", optLhs(t.Lhs), t.Callee, joinOperands(t.Args), t.Next)
	case CallIndirect:
		return fmt.Sprintf("%s$call_idr %s(%s) then %s", optLhs(t.Lhs), t.Callee, joinOperands(t.Args), t.Next)
	case Jump:
		return fmt.Sprintf("$jump %s", t.Target)
	case Ret:
		if t.Value == nil {
			return "$ret"
		}
		return fmt.Sprintf("$ret %s", t.Value)
	}
	return "???"
}
