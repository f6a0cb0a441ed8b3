package ast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/raymyers/cflat/pkg/lir"
)

// The JSON form encodes every sum type as an externally tagged variant:
// a unit variant is its name ("Break", "Nil", "Int"), any other variant is a
// single-key object {"Name": payload}. Tuple payloads are arrays and record
// payloads are objects.

var arithOpTags = []string{"Add", "Subtract", "Multiply", "Divide"}

var cmpOpTags = []string{"Equal", "NotEq", "Lt", "Lte", "Gt", "Gte"}

// FprintJSON writes prog to w as indented JSON.
func FprintJSON(w io.Writer, prog *Program) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(programJSON(prog))
}

func programJSON(prog *Program) any {
	typedefs := make([]any, len(prog.Typedefs))
	for i, td := range prog.Typedefs {
		typedefs[i] = map[string]any{"name": td.Name, "fields": declsJSON(td.Fields)}
	}
	functions := make([]any, len(prog.Functions))
	for i, f := range prog.Functions {
		functions[i] = functionJSON(f)
	}
	return map[string]any{
		"globals":   declsJSON(prog.Globals),
		"typedefs":  typedefs,
		"externs":   declsJSON(prog.Externs),
		"functions": functions,
	}
}

func declJSON(d Decl) any {
	return map[string]any{"name": d.Name, "typ": typeJSON(d.Type)}
}

func declsJSON(ds []Decl) []any {
	out := make([]any, len(ds))
	for i, d := range ds {
		out[i] = declJSON(d)
	}
	return out
}

func functionJSON(f *Function) any {
	decls := make([]any, len(f.Body.Locals))
	for i, l := range f.Body.Locals {
		decls[i] = []any{declJSON(l.Decl), exprJSON(l.Init)}
	}
	var ret any
	if f.Ret != nil {
		ret = typeJSON(f.Ret)
	}
	return map[string]any{
		"name":   f.Name,
		"params": declsJSON(f.Params),
		"rettyp": ret,
		"body":   map[string]any{"decls": decls, "stmts": stmtsJSON(f.Body.Stmts)},
	}
}

func typeJSON(t *lir.Type) any {
	switch t.Kind() {
	case lir.KindInt:
		return "Int"
	case lir.KindStruct:
		return map[string]any{"Struct": string(t.StructName())}
	case lir.KindPointer:
		return map[string]any{"Pointer": typeJSON(t.Elem())}
	case lir.KindFunction:
		var ret any
		if t.Ret() != nil {
			ret = typeJSON(t.Ret())
		}
		params := make([]any, len(t.Params()))
		for i, p := range t.Params() {
			params[i] = typeJSON(p)
		}
		return map[string]any{"Function": map[string]any{"ret_ty": ret, "param_ty": params}}
	}
	panic(fmt.Sprintf("typeJSON: unexpected type %s", t))
}

func stmtsJSON(ss []Stmt) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = stmtJSON(s)
	}
	return out
}

func stmtJSON(s Stmt) any {
	switch s := s.(type) {
	case Break:
		return "Break"
	case Continue:
		return "Continue"
	case Return:
		return map[string]any{"Return": exprJSON(s.Value)}
	case Assign:
		return map[string]any{"Assign": map[string]any{"lhs": lvalJSON(s.Lhs), "rhs": rhsJSON(s.Rhs)}}
	case CallStmt:
		return map[string]any{"Call": map[string]any{"callee": lvalJSON(s.Callee), "args": exprsJSON(s.Args)}}
	case If:
		return map[string]any{"If": map[string]any{"guard": exprJSON(s.Guard), "tt": stmtsJSON(s.Then), "ff": stmtsJSON(s.Else)}}
	case While:
		return map[string]any{"While": map[string]any{"guard": exprJSON(s.Guard), "body": stmtsJSON(s.Body)}}
	}
	panic(fmt.Sprintf("stmtJSON: unexpected statement %T", s))
}

func rhsJSON(r Rhs) any {
	if n, ok := r.(New); ok {
		return map[string]any{"New": map[string]any{"typ": typeJSON(n.Type), "num": exprJSON(n.Num)}}
	}
	return map[string]any{"Exp": exprJSON(r.(Expr))}
}

func lvalJSON(lv Lval) any {
	switch lv := lv.(type) {
	case LvId:
		return map[string]any{"Id": lv.Name}
	case LvDeref:
		return map[string]any{"Deref": lvalJSON(lv.Lval)}
	case LvIndex:
		return map[string]any{"ArrayAccess": map[string]any{"ptr": lvalJSON(lv.Ptr), "index": exprJSON(lv.Index)}}
	case LvField:
		return map[string]any{"FieldAccess": map[string]any{"ptr": lvalJSON(lv.Ptr), "field": lv.Field}}
	}
	panic(fmt.Sprintf("lvalJSON: unexpected lvalue %T", lv))
}

func exprsJSON(es []Expr) []any {
	out := make([]any, len(es))
	for i, e := range es {
		out[i] = exprJSON(e)
	}
	return out
}

// exprJSON encodes e; a nil expression is JSON null.
func exprJSON(e Expr) any {
	switch e := e.(type) {
	case nil:
		return nil
	case Num:
		return map[string]any{"Num": e.Value}
	case Id:
		return map[string]any{"Id": e.Name}
	case Nil:
		return "Nil"
	case Neg:
		return map[string]any{"Neg": exprJSON(e.X)}
	case Deref:
		return map[string]any{"Deref": exprJSON(e.X)}
	case Not:
		return map[string]any{"Not": exprJSON(e.X)}
	case Arith:
		return map[string]any{"Arith": []any{exprJSON(e.L), arithOpTags[e.Op], exprJSON(e.R)}}
	case Compare:
		return map[string]any{"Compare": []any{exprJSON(e.L), cmpOpTags[e.Op], exprJSON(e.R)}}
	case And:
		return map[string]any{"And": []any{exprJSON(e.L), exprJSON(e.R)}}
	case Or:
		return map[string]any{"Or": []any{exprJSON(e.L), exprJSON(e.R)}}
	case Index:
		return map[string]any{"ArrayAccess": map[string]any{"ptr": exprJSON(e.Ptr), "index": exprJSON(e.Index)}}
	case FieldAccess:
		return map[string]any{"FieldAccess": map[string]any{"ptr": exprJSON(e.Ptr), "field": e.Field}}
	case Call:
		return map[string]any{"Call": map[string]any{"callee": exprJSON(e.Callee), "args": exprsJSON(e.Args)}}
	}
	panic(fmt.Sprintf("exprJSON: unexpected expression %T", e))
}

// ReadJSON decodes a program written by FprintJSON.
func ReadJSON(data []byte) (*Program, error) {
	var raw struct {
		Globals   []json.RawMessage `json:"globals"`
		Externs   []json.RawMessage `json:"externs"`
		Functions []json.RawMessage `json:"functions"`
		Typedefs  []struct {
			Name   string            `json:"name"`
			Fields []json.RawMessage `json:"fields"`
		} `json:"typedefs"`
	}
	if err := strictUnmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}

	prog := &Program{}
	var err error
	if prog.Globals, err = decodeDecls(raw.Globals); err != nil {
		return nil, fmt.Errorf("globals: %w", err)
	}
	if prog.Externs, err = decodeDecls(raw.Externs); err != nil {
		return nil, fmt.Errorf("externs: %w", err)
	}
	for _, td := range raw.Typedefs {
		fields, err := decodeDecls(td.Fields)
		if err != nil {
			return nil, fmt.Errorf("struct %s: %w", td.Name, err)
		}
		prog.Typedefs = append(prog.Typedefs, Typedef{Name: td.Name, Fields: fields})
	}
	for _, rf := range raw.Functions {
		f, err := decodeFunction(rf)
		if err != nil {
			return nil, err
		}
		prog.Functions = append(prog.Functions, f)
	}
	return prog, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// variant splits an externally tagged value into its tag and payload. The
// payload of a unit variant is nil.
func variant(data json.RawMessage) (string, json.RawMessage, error) {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		return tag, nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || len(obj) != 1 {
		return "", nil, fmt.Errorf("expected a variant, got %s", data)
	}
	for tag, body := range obj {
		return tag, body, nil
	}
	return "", nil, nil
}

func isNull(data json.RawMessage) bool {
	return len(data) == 0 || string(bytes.TrimSpace(data)) == "null"
}

func decodeDecl(data json.RawMessage) (Decl, error) {
	var raw struct {
		Name string          `json:"name"`
		Typ  json.RawMessage `json:"typ"`
	}
	if err := strictUnmarshal(data, &raw); err != nil {
		return Decl{}, err
	}
	typ, err := decodeType(raw.Typ)
	if err != nil {
		return Decl{}, fmt.Errorf("%s: %w", raw.Name, err)
	}
	return Decl{Name: raw.Name, Type: typ}, nil
}

func decodeDecls(list []json.RawMessage) ([]Decl, error) {
	var out []Decl
	for _, d := range list {
		decl, err := decodeDecl(d)
		if err != nil {
			return nil, err
		}
		out = append(out, decl)
	}
	return out, nil
}

func decodeType(data json.RawMessage) (*lir.Type, error) {
	tag, body, err := variant(data)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "Int":
		return lir.IntType(), nil
	case "Struct":
		var name string
		if err := json.Unmarshal(body, &name); err != nil {
			return nil, err
		}
		return lir.StructType(lir.StructID(name)), nil
	case "Pointer":
		elem, err := decodeType(body)
		if err != nil {
			return nil, err
		}
		return lir.PointerType(elem), nil
	case "Function":
		var raw struct {
			Ret    json.RawMessage   `json:"ret_ty"`
			Params []json.RawMessage `json:"param_ty"`
		}
		if err := strictUnmarshal(body, &raw); err != nil {
			return nil, err
		}
		var ret *lir.Type
		if !isNull(raw.Ret) {
			if ret, err = decodeType(raw.Ret); err != nil {
				return nil, err
			}
		}
		params := make([]*lir.Type, len(raw.Params))
		for i, p := range raw.Params {
			if params[i], err = decodeType(p); err != nil {
				return nil, err
			}
		}
		return lir.FuncType(ret, params...), nil
	}
	return nil, fmt.Errorf("unknown type %q", tag)
}

func decodeFunction(data json.RawMessage) (*Function, error) {
	var raw struct {
		Name   string            `json:"name"`
		Params []json.RawMessage `json:"params"`
		Rettyp json.RawMessage   `json:"rettyp"`
		Body   struct {
			Decls [][2]json.RawMessage `json:"decls"`
			Stmts []json.RawMessage    `json:"stmts"`
		} `json:"body"`
	}
	if err := strictUnmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("function: %w", err)
	}
	f := &Function{Name: raw.Name}
	wrap := func(err error) error { return fmt.Errorf("function %s: %w", raw.Name, err) }

	var err error
	if f.Params, err = decodeDecls(raw.Params); err != nil {
		return nil, wrap(err)
	}
	if !isNull(raw.Rettyp) {
		if f.Ret, err = decodeType(raw.Rettyp); err != nil {
			return nil, wrap(err)
		}
	}
	for _, pair := range raw.Body.Decls {
		decl, err := decodeDecl(pair[0])
		if err != nil {
			return nil, wrap(err)
		}
		value, err := decodeOptExpr(pair[1])
		if err != nil {
			return nil, wrap(err)
		}
		f.Body.Locals = append(f.Body.Locals, Local{Decl: decl, Init: value})
	}
	if f.Body.Stmts, err = decodeStmts(raw.Body.Stmts); err != nil {
		return nil, wrap(err)
	}
	return f, nil
}

func decodeStmts(list []json.RawMessage) ([]Stmt, error) {
	var out []Stmt
	for _, s := range list {
		stmt, err := decodeStmt(s)
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	return out, nil
}

func decodeStmt(data json.RawMessage) (Stmt, error) {
	tag, body, err := variant(data)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "Break":
		return Break{}, nil
	case "Continue":
		return Continue{}, nil
	case "Return":
		value, err := decodeOptExpr(body)
		if err != nil {
			return nil, err
		}
		return Return{Value: value}, nil
	case "Assign":
		var raw struct {
			Lhs json.RawMessage `json:"lhs"`
			Rhs json.RawMessage `json:"rhs"`
		}
		if err := strictUnmarshal(body, &raw); err != nil {
			return nil, err
		}
		lhs, err := decodeLval(raw.Lhs)
		if err != nil {
			return nil, err
		}
		rhs, err := decodeRhs(raw.Rhs)
		if err != nil {
			return nil, err
		}
		return Assign{Lhs: lhs, Rhs: rhs}, nil
	case "Call":
		var raw struct {
			Callee json.RawMessage   `json:"callee"`
			Args   []json.RawMessage `json:"args"`
		}
		if err := strictUnmarshal(body, &raw); err != nil {
			return nil, err
		}
		callee, err := decodeLval(raw.Callee)
		if err != nil {
			return nil, err
		}
		args, err := decodeExprs(raw.Args)
		if err != nil {
			return nil, err
		}
		return CallStmt{Callee: callee, Args: args}, nil
	case "If":
		var raw struct {
			Guard json.RawMessage   `json:"guard"`
			Tt    []json.RawMessage `json:"tt"`
			Ff    []json.RawMessage `json:"ff"`
		}
		if err := strictUnmarshal(body, &raw); err != nil {
			return nil, err
		}
		guard, err := decodeExpr(raw.Guard)
		if err != nil {
			return nil, err
		}
		then, err := decodeStmts(raw.Tt)
		if err != nil {
			return nil, err
		}
		els, err := decodeStmts(raw.Ff)
		if err != nil {
			return nil, err
		}
		return If{Guard: guard, Then: then, Else: els}, nil
	case "While":
		var raw struct {
			Guard json.RawMessage   `json:"guard"`
			Body  []json.RawMessage `json:"body"`
		}
		if err := strictUnmarshal(body, &raw); err != nil {
			return nil, err
		}
		guard, err := decodeExpr(raw.Guard)
		if err != nil {
			return nil, err
		}
		stmts, err := decodeStmts(raw.Body)
		if err != nil {
			return nil, err
		}
		return While{Guard: guard, Body: stmts}, nil
	}
	return nil, fmt.Errorf("unknown statement %q", tag)
}

func decodeRhs(data json.RawMessage) (Rhs, error) {
	tag, body, err := variant(data)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "Exp":
		return decodeExpr(body)
	case "New":
		var raw struct {
			Typ json.RawMessage `json:"typ"`
			Num json.RawMessage `json:"num"`
		}
		if err := strictUnmarshal(body, &raw); err != nil {
			return nil, err
		}
		typ, err := decodeType(raw.Typ)
		if err != nil {
			return nil, err
		}
		num, err := decodeOptExpr(raw.Num)
		if err != nil {
			return nil, err
		}
		return New{Type: typ, Num: num}, nil
	}
	return nil, fmt.Errorf("unknown right-hand side %q", tag)
}

func decodeLval(data json.RawMessage) (Lval, error) {
	tag, body, err := variant(data)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "Id":
		var name string
		if err := json.Unmarshal(body, &name); err != nil {
			return nil, err
		}
		return LvId{Name: name}, nil
	case "Deref":
		inner, err := decodeLval(body)
		if err != nil {
			return nil, err
		}
		return LvDeref{Lval: inner}, nil
	case "ArrayAccess":
		var raw struct {
			Ptr   json.RawMessage `json:"ptr"`
			Index json.RawMessage `json:"index"`
		}
		if err := strictUnmarshal(body, &raw); err != nil {
			return nil, err
		}
		ptr, err := decodeLval(raw.Ptr)
		if err != nil {
			return nil, err
		}
		index, err := decodeExpr(raw.Index)
		if err != nil {
			return nil, err
		}
		return LvIndex{Ptr: ptr, Index: index}, nil
	case "FieldAccess":
		var raw struct {
			Ptr   json.RawMessage `json:"ptr"`
			Field string          `json:"field"`
		}
		if err := strictUnmarshal(body, &raw); err != nil {
			return nil, err
		}
		ptr, err := decodeLval(raw.Ptr)
		if err != nil {
			return nil, err
		}
		return LvField{Ptr: ptr, Field: raw.Field}, nil
	}
	return nil, fmt.Errorf("unknown lvalue %q", tag)
}

func decodeExprs(list []json.RawMessage) ([]Expr, error) {
	var out []Expr
	for _, e := range list {
		expr, err := decodeExpr(e)
		if err != nil {
			return nil, err
		}
		out = append(out, expr)
	}
	return out, nil
}

func decodeOptExpr(data json.RawMessage) (Expr, error) {
	if isNull(data) {
		return nil, nil
	}
	return decodeExpr(data)
}

func decodeExpr(data json.RawMessage) (Expr, error) {
	tag, body, err := variant(data)
	if err != nil {
		return nil, err
	}
	switch tag {
	case "Num":
		var n int32
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, err
		}
		return Num{Value: n}, nil
	case "Id":
		var name string
		if err := json.Unmarshal(body, &name); err != nil {
			return nil, err
		}
		return Id{Name: name}, nil
	case "Nil":
		return Nil{}, nil
	case "Neg", "Deref", "Not":
		x, err := decodeExpr(body)
		if err != nil {
			return nil, err
		}
		switch tag {
		case "Neg":
			return Neg{X: x}, nil
		case "Deref":
			return Deref{X: x}, nil
		}
		return Not{X: x}, nil
	case "Arith", "Compare":
		var parts [3]json.RawMessage
		if err := json.Unmarshal(body, &parts); err != nil {
			return nil, err
		}
		var op string
		if err := json.Unmarshal(parts[1], &op); err != nil {
			return nil, err
		}
		l, err := decodeExpr(parts[0])
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(parts[2])
		if err != nil {
			return nil, err
		}
		if tag == "Arith" {
			i := indexOf(arithOpTags, op)
			if i < 0 {
				return nil, fmt.Errorf("unknown arithmetic operator %q", op)
			}
			return Arith{Op: lir.ArithOp(i), L: l, R: r}, nil
		}
		i := indexOf(cmpOpTags, op)
		if i < 0 {
			return nil, fmt.Errorf("unknown comparison operator %q", op)
		}
		return Compare{Op: lir.CmpOp(i), L: l, R: r}, nil
	case "And", "Or":
		var parts [2]json.RawMessage
		if err := json.Unmarshal(body, &parts); err != nil {
			return nil, err
		}
		l, err := decodeExpr(parts[0])
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(parts[1])
		if err != nil {
			return nil, err
		}
		if tag == "And" {
			return And{L: l, R: r}, nil
		}
		return Or{L: l, R: r}, nil
	case "ArrayAccess":
		var raw struct {
			Ptr   json.RawMessage `json:"ptr"`
			Index json.RawMessage `json:"index"`
		}
		if err := strictUnmarshal(body, &raw); err != nil {
			return nil, err
		}
		ptr, err := decodeExpr(raw.Ptr)
		if err != nil {
			return nil, err
		}
		index, err := decodeExpr(raw.Index)
		if err != nil {
			return nil, err
		}
		return Index{Ptr: ptr, Index: index}, nil
	case "FieldAccess":
		var raw struct {
			Ptr   json.RawMessage `json:"ptr"`
			Field string          `json:"field"`
		}
		if err := strictUnmarshal(body, &raw); err != nil {
			return nil, err
		}
		ptr, err := decodeExpr(raw.Ptr)
		if err != nil {
			return nil, err
		}
		return FieldAccess{Ptr: ptr, Field: raw.Field}, nil
	case "Call":
		var raw struct {
			Callee json.RawMessage   `json:"callee"`
			Args   []json.RawMessage `json:"args"`
		}
		if err := strictUnmarshal(body, &raw); err != nil {
			return nil, err
		}
		callee, err := decodeExpr(raw.Callee)
		if err != nil {
			return nil, err
		}
		args, err := decodeExprs(raw.Args)
		if err != nil {
			return nil, err
		}
		return Call{Callee: callee, Args: args}, nil
	}
	return nil, fmt.Errorf("unknown expression %q", tag)
}

func indexOf(list []string, s string) int {
	for i, x := range list {
		if x == s {
			return i
		}
	}
	return -1
}
