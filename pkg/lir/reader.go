package lir

import (
	"fmt"
	"strconv"
	"strings"
)

// SyntaxError reports malformed textual LIR.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Parse reads a program in the textual form produced by Printer. Variable
// references are resolved against the enclosing function's locals, then its
// parameters, then the globals, so globals must be declared before use.
func Parse(src string) (prog *Program, err error) {
	r := &reader{prog: NewProgram()}
	for i, raw := range strings.Split(src, "\n") {
		if idx := strings.Index(raw, "//"); idx >= 0 {
			raw = raw[:idx]
		}
		toks, err := tokenizeLine(raw)
		if err != nil {
			return nil, &SyntaxError{Line: i + 1, Msg: err.Error()}
		}
		if len(toks) > 0 {
			r.lines = append(r.lines, line{num: i + 1, toks: toks})
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			se, ok := rec.(*SyntaxError)
			if !ok {
				panic(rec)
			}
			prog, err = nil, se
		}
	}()
	r.program()
	return r.prog, nil
}

type line struct {
	num  int
	toks []string
}

func isWordByte(c byte) bool {
	return c == '_' || c == '.' || c == '@' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func tokenizeLine(s string) ([]string, error) {
	var toks []string
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '-' && i+1 < len(s) && s[i+1] == '>':
			toks = append(toks, "->")
			i += 2
		case c == '-' || c == '$' || isWordByte(c):
			j := i + 1
			for j < len(s) && isWordByte(s[j]) {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		case strings.IndexByte("{}()[],:=&", c) >= 0:
			toks = append(toks, string(c))
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q", c)
		}
	}
	return toks, nil
}

// reader walks the tokenized lines. Errors are raised as *SyntaxError panics
// and recovered in Parse.
type reader struct {
	prog  *Program
	lines []line
	li    int // current line
	ti    int // current token within the line

	fn *Function
}

func (r *reader) fail(format string, args ...any) {
	num := 0
	if r.li < len(r.lines) {
		num = r.lines[r.li].num
	} else if len(r.lines) > 0 {
		num = r.lines[len(r.lines)-1].num
	}
	panic(&SyntaxError{Line: num, Msg: fmt.Sprintf(format, args...)})
}

func (r *reader) atEOF() bool { return r.li >= len(r.lines) }

func (r *reader) toks() []string { return r.lines[r.li].toks }

func (r *reader) peek() string {
	if r.atEOF() || r.ti >= len(r.toks()) {
		return ""
	}
	return r.toks()[r.ti]
}

func (r *reader) next() string {
	t := r.peek()
	if t == "" {
		r.fail("unexpected end of line")
	}
	r.ti++
	return t
}

func (r *reader) expect(tok string) {
	if got := r.next(); got != tok {
		r.fail("expected %q, got %q", tok, got)
	}
}

// endLine requires the current line to be fully consumed and advances.
func (r *reader) endLine() {
	if r.ti != len(r.toks()) {
		r.fail("unexpected %q", r.toks()[r.ti])
	}
	r.li++
	r.ti = 0
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	switch {
	case c == '_' || c == '@':
		if len(s) < 2 || !isAlnum(s[1]) {
			return false
		}
	case !isAlpha(c):
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isWordByte(s[i]) || s[i] == '@' {
			return false
		}
	}
	return true
}

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isAlnum(c byte) bool { return isAlpha(c) || (c >= '0' && c <= '9') }

func (r *reader) ident() string {
	t := r.next()
	if !isIdent(t) {
		r.fail("expected identifier, got %q", t)
	}
	return t
}

func (r *reader) program() {
	sawFunction := false
	for !r.atEOF() {
		switch first := r.toks()[0]; {
		case first == "struct":
			r.structDef()
		case first == "extern":
			r.externDecl()
		case first == "fn":
			r.function()
			sawFunction = true
		default:
			r.globalDef()
		}
	}
	if !sawFunction {
		r.fail("program has no functions")
	}
}

func (r *reader) structDef() {
	r.expect("struct")
	name := StructID(r.ident())
	r.expect("{")
	r.endLine()
	if _, dup := r.prog.Structs[name]; dup {
		r.fail("struct %s defined twice", name)
	}
	var fields []FieldID
	for !r.atEOF() && r.peek() != "}" {
		fname := r.ident()
		r.expect(":")
		fields = append(fields, FieldID{Name: fname, Type: r.typ()})
		r.endLine()
	}
	if len(fields) == 0 {
		r.fail("struct %s has no fields", name)
	}
	r.expect("}")
	r.endLine()
	r.prog.Structs[name] = fields
}

func (r *reader) globalDef() {
	name := r.ident()
	r.expect(":")
	r.prog.Globals.Add(Global(name, r.typ()))
	r.endLine()
}

func (r *reader) externDecl() {
	r.expect("extern")
	name := FuncID(r.ident())
	r.expect(":")
	t := r.typ()
	if !t.IsFunction() {
		r.fail("extern %s must have a function type", name)
	}
	r.prog.Externs[name] = t
	r.endLine()
}

func (r *reader) typ() *Type {
	switch t := r.next(); t {
	case "int":
		return IntType()
	case "&":
		return PointerType(r.typ())
	case "(":
		var params []*Type
		if r.peek() != ")" {
			params = append(params, r.typ())
			for r.peek() == "," {
				r.next()
				params = append(params, r.typ())
			}
		}
		r.expect(")")
		r.expect("->")
		return FuncType(r.retType(), params...)
	default:
		if !isIdent(t) {
			r.fail("expected type, got %q", t)
		}
		return StructType(StructID(t))
	}
}

func (r *reader) retType() *Type {
	if r.peek() == "_" {
		r.next()
		return nil
	}
	return r.typ()
}

func (r *reader) function() {
	r.expect("fn")
	id := FuncID(r.ident())
	if _, dup := r.prog.Functions[id]; dup {
		r.fail("function %s defined twice", id)
	}
	fn := &Function{ID: id, Locals: make(VarSet), Body: make(map[BbID]*BasicBlock)}
	r.fn = fn
	r.expect("(")
	if r.peek() != ")" {
		for {
			name := r.ident()
			r.expect(":")
			fn.Params = append(fn.Params, Var(name, r.typ(), id))
			if r.peek() != "," {
				break
			}
			r.next()
		}
	}
	r.expect(")")
	r.expect("->")
	fn.Ret = r.retType()
	r.expect("{")
	r.endLine()

	if !r.atEOF() && r.peek() == "let" {
		r.next()
		for {
			name := r.ident()
			r.expect(":")
			fn.Locals.Add(Var(name, r.typ(), id))
			if r.peek() != "," {
				break
			}
			r.next()
		}
		r.endLine()
	}

	for !r.atEOF() && r.peek() != "}" {
		r.block()
	}
	if r.atEOF() {
		r.fail("function %s is missing its closing brace", id)
	}
	if len(fn.Body) == 0 {
		r.fail("function %s has no basic blocks", id)
	}
	r.expect("}")
	r.endLine()
	r.prog.Functions[id] = fn
	r.fn = nil
}

func (r *reader) block() {
	label := BbID(r.ident())
	r.expect(":")
	if r.peek() == "" {
		r.endLine()
	}
	if _, dup := r.fn.Body[label]; dup {
		r.fail("block %s defined twice", label)
	}
	bb := &BasicBlock{ID: label}
	for {
		if r.atEOF() {
			r.fail("block %s has no terminal", label)
		}
		inst, term := r.statement()
		r.endLine()
		if term != nil {
			bb.Term = term
			break
		}
		bb.Insts = append(bb.Insts, inst)
	}
	r.fn.Body[label] = bb
}

// lookup resolves a variable name: locals, then params, then globals.
func (r *reader) lookup(name string) VarID {
	for v := range r.fn.Locals {
		if v.Name == name {
			return v
		}
	}
	for _, v := range r.fn.Params {
		if v.Name == name {
			return v
		}
	}
	for v := range r.prog.Globals {
		if v.Name == name {
			return v
		}
	}
	r.fail("undeclared variable %s in function %s", name, r.fn.ID)
	return VarID{}
}

func (r *reader) variable() VarID { return r.lookup(r.ident()) }

func (r *reader) operand() Operand {
	t := r.peek()
	if t != "" && (t[0] == '-' || (t[0] >= '0' && t[0] <= '9')) {
		r.next()
		n, err := strconv.ParseInt(t, 10, 32)
		if err != nil {
			r.fail("invalid integer %q", t)
		}
		return CInt(n)
	}
	return r.variable()
}

func (r *reader) args() []Operand {
	r.expect("(")
	var ops []Operand
	if r.peek() != ")" {
		ops = append(ops, r.operand())
		for r.peek() == "," {
			r.next()
			ops = append(ops, r.operand())
		}
	}
	r.expect(")")
	return ops
}

var arithOps = map[string]ArithOp{"add": Add, "sub": Sub, "mul": Mul, "div": Div}
var cmpOps = map[string]CmpOp{"eq": Eq, "neq": Neq, "lt": Lt, "lte": Lte, "gt": Gt, "gte": Gte}

// statement reads one instruction or terminal line.
func (r *reader) statement() (Instruction, Terminal) {
	var lhs *VarID
	if r.peek() != "" && r.peek()[0] != '$' {
		v := r.variable()
		lhs = &v
		r.expect("=")
	}
	op := r.next()

	needLhs := func() VarID {
		if lhs == nil {
			r.fail("%s requires a destination", op)
		}
		return *lhs
	}
	noLhs := func() {
		if lhs != nil {
			r.fail("%s does not take a destination", op)
		}
	}

	switch op {
	case "$addrof":
		return AddrOf{Lhs: needLhs(), Rhs: r.variable()}, nil
	case "$alloc":
		dst := needLhs()
		num := r.operand()
		r.expect("[")
		id := r.ident()
		r.expect("]")
		if !dst.Type.IsPointer() {
			r.fail("$alloc destination %s is not a pointer", dst.Name)
		}
		return Alloc{Lhs: dst, Num: num, ID: Global(id, dst.Type.Elem())}, nil
	case "$arith":
		dst := needLhs()
		aop, ok := arithOps[r.next()]
		if !ok {
			r.fail("unknown arithmetic operator")
		}
		return Arith{Lhs: dst, Op: aop, Op1: r.operand(), Op2: r.operand()}, nil
	case "$call_ext":
		callee := FuncID(r.ident())
		return CallExt{Lhs: lhs, Callee: callee, Args: r.args()}, nil
	case "$cmp":
		dst := needLhs()
		cop, ok := cmpOps[r.next()]
		if !ok {
			r.fail("unknown comparison operator")
		}
		return Cmp{Lhs: dst, Op: cop, Op1: r.operand(), Op2: r.operand()}, nil
	case "$copy":
		return Copy{Lhs: needLhs(), Op: r.operand()}, nil
	case "$gep":
		return Gep{Lhs: needLhs(), Src: r.variable(), Idx: r.operand()}, nil
	case "$gfp":
		dst := needLhs()
		src := r.variable()
		field := r.ident()
		if !dst.Type.IsPointer() {
			r.fail("$gfp destination %s is not a pointer", dst.Name)
		}
		return Gfp{Lhs: dst, Src: src, Field: FieldID{Name: field, Type: dst.Type.Elem()}}, nil
	case "$load":
		return Load{Lhs: needLhs(), Src: r.variable()}, nil
	case "$phi":
		dst := needLhs()
		args := r.args()
		if len(args) == 0 {
			r.fail("$phi needs at least one argument")
		}
		return Phi{Lhs: dst, Args: args}, nil
	case "$store":
		noLhs()
		return Store{Dst: r.variable(), Op: r.operand()}, nil
	case "$branch":
		noLhs()
		cond := r.operand()
		return nil, Branch{Cond: cond, True: BbID(r.ident()), False: BbID(r.ident())}
	case "$call_dir":
		callee := FuncID(r.ident())
		args := r.args()
		r.expect("then")
		return nil, CallDirect{Lhs: lhs, Callee: callee, Args: args, Next: BbID(r.ident())}
	case "$call_idr":
		callee := r.variable()
		args := r.args()
		r.expect("then")
		return nil, CallIndirect{Lhs: lhs, Callee: callee, Args: args, Next: BbID(r.ident())}
	case "$jump":
		noLhs()
		return nil, Jump{Target: BbID(r.ident())}
	case "$ret":
		noLhs()
		if r.peek() == "" {
			return nil, Ret{}
		}
		return nil, Ret{Value: r.operand()}
	}
	r.fail("unknown instruction %q", op)
	return nil, nil
}
