package ast

import (
	"fmt"
	"io"
	"strings"

	"github.com/raymyers/cflat/pkg/lir"
)

// Printer outputs CFlat source in its canonical layout. Parsing the output
// yields the same tree.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new CFlat printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintProgram prints a complete program
func (p *Printer) PrintProgram(prog *Program) {
	fmt.Fprint(p.w, String(prog))
}

// String renders prog in canonical layout.
func String(prog *Program) string {
	var sb strings.Builder

	if len(prog.Typedefs) > 0 {
		defs := make([]string, len(prog.Typedefs))
		for i, td := range prog.Typedefs {
			defs[i] = typedefString(td)
		}
		sb.WriteString(strings.Join(defs, "\n"))
		sb.WriteString("\n")
	}

	if len(prog.Externs) > 0 {
		lines := make([]string, len(prog.Externs))
		for i, d := range prog.Externs {
			lines[i] = "extern " + declString(d) + ";"
		}
		sb.WriteString(strings.Join(lines, "\n"))
		sb.WriteString("\n\n")
	}

	if len(prog.Globals) > 0 {
		lines := make([]string, len(prog.Globals))
		for i, d := range prog.Globals {
			lines[i] = "let " + declString(d) + ";"
		}
		sb.WriteString(strings.Join(lines, "\n"))
		sb.WriteString("\n\n")
	}

	funcs := make([]string, len(prog.Functions))
	for i, f := range prog.Functions {
		funcs[i] = FunctionString(f)
	}
	sb.WriteString(strings.Join(funcs, "\n"))

	return sb.String()
}

func declString(d Decl) string {
	return d.Name + ": " + d.Type.String()
}

func typedefString(td Typedef) string {
	fields := make([]string, len(td.Fields))
	for i, f := range td.Fields {
		fields[i] = declString(f)
	}
	return fmt.Sprintf("struct %s {\n  %s\n}\n", td.Name, strings.Join(fields, ",\n  "))
}

// FunctionString renders one function definition.
func FunctionString(f *Function) string {
	params := make([]string, len(f.Params))
	for i, d := range f.Params {
		params[i] = declString(d)
	}

	var body strings.Builder
	if len(f.Body.Locals) > 0 {
		locals := make([]string, len(f.Body.Locals))
		for i, l := range f.Body.Locals {
			locals[i] = declString(l.Decl)
			if l.Init != nil {
				locals[i] += " = " + ExprString(l.Init)
			}
		}
		body.WriteString("  let " + strings.Join(locals, ", ") + ";\n")
	}
	body.WriteString(stmtsString(f.Body.Stmts, 2))
	body.WriteString("\n")

	return fmt.Sprintf("fn %s(%s) -> %s {\n%s}\n", f.Name, strings.Join(params, ", "), f.Ret.String(), body.String())
}

func stmtsString(stmts []Stmt, indent int) string {
	lines := make([]string, len(stmts))
	for i, s := range stmts {
		lines[i] = StmtString(s, indent)
	}
	return strings.Join(lines, "\n")
}

// StmtString renders s indented by indent spaces. Compound statements span
// several lines; no trailing newline is added.
func StmtString(s Stmt, indent int) string {
	ind := strings.Repeat(" ", indent)

	switch s := s.(type) {
	case If:
		out := fmt.Sprintf("%sif %s {\n%s\n%s}", ind, ExprString(s.Guard), stmtsString(s.Then, indent+2), ind)
		if len(s.Else) > 0 {
			out += fmt.Sprintf("\n%selse {\n%s\n%s}", ind, stmtsString(s.Else, indent+2), ind)
		}
		return out
	case While:
		return fmt.Sprintf("%swhile %s {\n%s\n%s}", ind, ExprString(s.Guard), stmtsString(s.Body, indent+2), ind)
	case Assign:
		return fmt.Sprintf("%s%s = %s;", ind, LvalString(s.Lhs), RhsString(s.Rhs))
	case CallStmt:
		return fmt.Sprintf("%s%s(%s);", ind, LvalString(s.Callee), argsString(s.Args))
	case Break:
		return ind + "break;"
	case Continue:
		return ind + "continue;"
	case Return:
		if s.Value == nil {
			return ind + "return;"
		}
		return fmt.Sprintf("%sreturn %s;", ind, ExprString(s.Value))
	default:
		return fmt.Sprintf("%s/* unknown stmt %T */", ind, s)
	}
}

// RhsString renders an assignment source.
func RhsString(r Rhs) string {
	if n, ok := r.(New); ok {
		if n.Num == nil {
			return "new " + n.Type.String()
		}
		return fmt.Sprintf("new %s %s", n.Type, ExprString(n.Num))
	}
	return ExprString(r.(Expr))
}

// LvalString renders an assignment target.
func LvalString(lv Lval) string {
	switch lv := lv.(type) {
	case LvId:
		return lv.Name
	case LvDeref:
		return "*" + LvalString(lv.Lval)
	case LvIndex:
		return fmt.Sprintf("%s[%s]", LvalString(lv.Ptr), ExprString(lv.Index))
	case LvField:
		return LvalString(lv.Ptr) + "." + lv.Field
	default:
		return fmt.Sprintf("/* unknown lval %T */", lv)
	}
}

var arithSymbols = map[lir.ArithOp]string{
	lir.Add: "+",
	lir.Sub: "-",
	lir.Mul: "*",
	lir.Div: "/",
}

var cmpSymbols = map[lir.CmpOp]string{
	lir.Eq:  "==",
	lir.Neq: "!=",
	lir.Lt:  "<",
	lir.Lte: "<=",
	lir.Gt:  ">",
	lir.Gte: ">=",
}

// ArithSymbol returns the source spelling of op.
func ArithSymbol(op lir.ArithOp) string { return arithSymbols[op] }

// CmpSymbol returns the source spelling of op.
func CmpSymbol(op lir.CmpOp) string { return cmpSymbols[op] }

// ExprString renders e. Binary subexpressions are parenthesized so the
// output reparses to the same tree.
func ExprString(e Expr) string {
	switch e := e.(type) {
	case Num:
		return fmt.Sprintf("%d", e.Value)
	case Id:
		return e.Name
	case Nil:
		return "nil"
	case Neg:
		return "-" + paren(e.X)
	case Deref:
		return "*" + paren(e.X)
	case Not:
		return "!" + paren(e.X)
	case Arith:
		return fmt.Sprintf("%s %s %s", paren(e.L), arithSymbols[e.Op], paren(e.R))
	case Compare:
		return fmt.Sprintf("%s %s %s", paren(e.L), cmpSymbols[e.Op], paren(e.R))
	case And:
		return paren(e.L) + " and " + paren(e.R)
	case Or:
		return paren(e.L) + " or " + paren(e.R)
	case Index:
		return fmt.Sprintf("%s[%s]", postfixBase(e.Ptr), ExprString(e.Index))
	case FieldAccess:
		return postfixBase(e.Ptr) + "." + e.Field
	case Call:
		return fmt.Sprintf("%s(%s)", postfixBase(e.Callee), argsString(e.Args))
	default:
		return fmt.Sprintf("/* unknown expr %T */", e)
	}
}

func paren(e Expr) string {
	switch e.(type) {
	case Arith, Compare, And, Or:
		return "(" + ExprString(e) + ")"
	}
	return ExprString(e)
}

// postfixBase renders the operand of [], . or a call. Prefix operators bind
// looser than postfix ones and need parentheses there too.
func postfixBase(e Expr) string {
	switch e.(type) {
	case Neg, Deref, Not:
		return "(" + ExprString(e) + ")"
	}
	return paren(e)
}

func argsString(args []Expr) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = ExprString(a)
	}
	return strings.Join(parts, ", ")
}
