// Package parser implements a recursive descent parser for CFlat
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/raymyers/cflat/pkg/ast"
	"github.com/raymyers/cflat/pkg/lexer"
	"github.com/raymyers/cflat/pkg/lir"
)

// Parser parses CFlat source code into an AST
type Parser struct {
	l         *lexer.Lexer
	curToken  lexer.Token
	peekToken lexer.Token
	errors    []string
}

// New creates a new Parser for the given lexer
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses src and returns the program, or an error holding every
// syntax error found.
func Parse(src string) (*ast.Program, error) {
	p := New(lexer.New(src))
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		return nil, errors.New(strings.Join(p.Errors(), "\n"))
	}
	return prog, nil
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

// Errors returns the list of parsing errors
func (p *Parser) Errors() []string {
	return p.errors
}

func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, fmt.Sprintf("line %d, col %d: %s",
		p.curToken.Line, p.curToken.Column, msg))
}

// failed reports whether an error has been recorded. Parsing stops at the
// first error, so loops check it to avoid spinning on a bad token.
func (p *Parser) failed() bool {
	return len(p.errors) > 0
}

func (p *Parser) curTokenIs(t lexer.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) expect(t lexer.TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf("expected %s, got %s", t, describe(p.curToken)))
	return false
}

func (p *Parser) expectIdent() (string, bool) {
	if !p.curTokenIs(lexer.TokenIdent) {
		p.addError(fmt.Sprintf("expected identifier, got %s", describe(p.curToken)))
		return "", false
	}
	name := p.curToken.Literal
	p.nextToken()
	return name, true
}

func describe(tok lexer.Token) string {
	switch tok.Type {
	case lexer.TokenEOF:
		return "end of input"
	case lexer.TokenIdent, lexer.TokenNum:
		return fmt.Sprintf("%s %q", tok.Type, tok.Literal)
	case lexer.TokenIllegal:
		return fmt.Sprintf("illegal character %q", tok.Literal)
	}
	return fmt.Sprintf("'%s'", tok.Literal)
}

// ParseProgram parses a complete compilation unit. Top-level items may
// appear in any order; each kind keeps its source order.
func (p *Parser) ParseProgram() *ast.Program {
	prog := &ast.Program{}

	if p.curTokenIs(lexer.TokenEOF) {
		p.addError("empty program")
		return prog
	}

	for !p.curTokenIs(lexer.TokenEOF) && !p.failed() {
		switch p.curToken.Type {
		case lexer.TokenStruct:
			if td, ok := p.parseTypedef(); ok {
				prog.Typedefs = append(prog.Typedefs, td)
			}
		case lexer.TokenLet:
			prog.Globals = append(prog.Globals, p.parseGlobals()...)
		case lexer.TokenExtern:
			if d, ok := p.parseExtern(); ok {
				prog.Externs = append(prog.Externs, d)
			}
		case lexer.TokenFn:
			if f := p.parseFunction(); f != nil {
				prog.Functions = append(prog.Functions, f)
			}
		default:
			p.addError(fmt.Sprintf("expected struct, let, extern or fn, got %s", describe(p.curToken)))
		}
	}

	return prog
}

// --- Types and declarations ---

func (p *Parser) parseType() (*lir.Type, bool) {
	switch p.curToken.Type {
	case lexer.TokenInt:
		p.nextToken()
		return lir.IntType(), true
	case lexer.TokenIdent:
		name := p.curToken.Literal
		p.nextToken()
		return lir.StructType(lir.StructID(name)), true
	case lexer.TokenAmpersand:
		p.nextToken()
		elem, ok := p.parseType()
		if !ok {
			return nil, false
		}
		return lir.PointerType(elem), true
	case lexer.TokenLParen:
		return p.parseParenType()
	}
	p.addError(fmt.Sprintf("expected type, got %s", describe(p.curToken)))
	return nil, false
}

// parseParenType parses `(T, ...) -> R` or a parenthesized `(T)`.
func (p *Parser) parseParenType() (*lir.Type, bool) {
	p.nextToken() // consume '('

	var params []*lir.Type
	if !p.curTokenIs(lexer.TokenRParen) {
		for {
			t, ok := p.parseType()
			if !ok {
				return nil, false
			}
			params = append(params, t)
			if !p.curTokenIs(lexer.TokenComma) {
				break
			}
			p.nextToken()
		}
	}
	if !p.expect(lexer.TokenRParen) {
		return nil, false
	}

	if p.curTokenIs(lexer.TokenArrow) {
		p.nextToken()
		ret, ok := p.parseRetType()
		if !ok {
			return nil, false
		}
		return lir.FuncType(ret, params...), true
	}
	if len(params) == 1 {
		return params[0], true
	}
	p.addError(fmt.Sprintf("expected '->' after parameter types, got %s", describe(p.curToken)))
	return nil, false
}

// parseRetType parses a return type; `_` yields nil.
func (p *Parser) parseRetType() (*lir.Type, bool) {
	if p.curTokenIs(lexer.TokenUnderscore) {
		p.nextToken()
		return nil, true
	}
	return p.parseType()
}

func (p *Parser) parseDecl() (ast.Decl, bool) {
	name, ok := p.expectIdent()
	if !ok || !p.expect(lexer.TokenColon) {
		return ast.Decl{}, false
	}
	typ, ok := p.parseType()
	if !ok {
		return ast.Decl{}, false
	}
	return ast.Decl{Name: name, Type: typ}, true
}

// parseDeclList parses `d (, d)*`.
func (p *Parser) parseDeclList() ([]ast.Decl, bool) {
	var decls []ast.Decl
	for {
		d, ok := p.parseDecl()
		if !ok {
			return nil, false
		}
		decls = append(decls, d)
		if !p.curTokenIs(lexer.TokenComma) {
			return decls, true
		}
		p.nextToken()
	}
}

func (p *Parser) parseTypedef() (ast.Typedef, bool) {
	p.nextToken() // consume 'struct'

	name, ok := p.expectIdent()
	if !ok || !p.expect(lexer.TokenLBrace) {
		return ast.Typedef{}, false
	}
	fields, ok := p.parseDeclList()
	if !ok || !p.expect(lexer.TokenRBrace) {
		return ast.Typedef{}, false
	}
	return ast.Typedef{Name: name, Fields: fields}, true
}

func (p *Parser) parseGlobals() []ast.Decl {
	p.nextToken() // consume 'let'

	decls, ok := p.parseDeclList()
	if !ok || !p.expect(lexer.TokenSemicolon) {
		return nil
	}
	return decls
}

func (p *Parser) parseExtern() (ast.Decl, bool) {
	p.nextToken() // consume 'extern'

	name, ok := p.expectIdent()
	if !ok || !p.expect(lexer.TokenColon) {
		return ast.Decl{}, false
	}
	typeTok := p.curToken
	typ, ok := p.parseType()
	if !ok {
		return ast.Decl{}, false
	}
	if !typ.IsFunction() {
		p.errors = append(p.errors, fmt.Sprintf("line %d, col %d: extern %s must have a function type, got %s",
			typeTok.Line, typeTok.Column, name, typ))
		return ast.Decl{}, false
	}
	if !p.expect(lexer.TokenSemicolon) {
		return ast.Decl{}, false
	}
	return ast.Decl{Name: name, Type: typ}, true
}

func (p *Parser) parseFunction() *ast.Function {
	p.nextToken() // consume 'fn'

	name, ok := p.expectIdent()
	if !ok || !p.expect(lexer.TokenLParen) {
		return nil
	}

	var params []ast.Decl
	if !p.curTokenIs(lexer.TokenRParen) {
		if params, ok = p.parseDeclList(); !ok {
			return nil
		}
	}
	if !p.expect(lexer.TokenRParen) || !p.expect(lexer.TokenArrow) {
		return nil
	}
	ret, ok := p.parseRetType()
	if !ok || !p.expect(lexer.TokenLBrace) {
		return nil
	}

	fn := &ast.Function{Name: name, Params: params, Ret: ret}

	for p.curTokenIs(lexer.TokenLet) && !p.failed() {
		fn.Body.Locals = append(fn.Body.Locals, p.parseLocals()...)
	}
	if p.failed() {
		return nil
	}

	if p.curTokenIs(lexer.TokenRBrace) {
		p.addError(fmt.Sprintf("function %s has no statements", name))
		return nil
	}
	fn.Body.Stmts = p.parseStatements()
	if !p.expect(lexer.TokenRBrace) {
		return nil
	}
	return fn
}

// parseLocals parses one `let x: T [= e], ... ;` line.
func (p *Parser) parseLocals() []ast.Local {
	p.nextToken() // consume 'let'

	var locals []ast.Local
	for {
		d, ok := p.parseDecl()
		if !ok {
			return nil
		}
		local := ast.Local{Decl: d}
		if p.curTokenIs(lexer.TokenAssign) {
			p.nextToken()
			if local.Init = p.parseExpression(); local.Init == nil {
				return nil
			}
		}
		locals = append(locals, local)
		if !p.curTokenIs(lexer.TokenComma) {
			break
		}
		p.nextToken()
	}
	if !p.expect(lexer.TokenSemicolon) {
		return nil
	}
	return locals
}

// --- Statements ---

// parseStatements parses statements up to a closing brace, leaving it
// unconsumed.
func (p *Parser) parseStatements() []ast.Stmt {
	var stmts []ast.Stmt
	for !p.curTokenIs(lexer.TokenRBrace) && !p.curTokenIs(lexer.TokenEOF) && !p.failed() {
		if stmt := p.parseStatement(); stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func (p *Parser) parseBlock() ([]ast.Stmt, bool) {
	if !p.expect(lexer.TokenLBrace) {
		return nil, false
	}
	stmts := p.parseStatements()
	if !p.expect(lexer.TokenRBrace) {
		return nil, false
	}
	return stmts, true
}

func (p *Parser) parseStatement() ast.Stmt {
	switch p.curToken.Type {
	case lexer.TokenIf:
		return p.parseIfStatement()
	case lexer.TokenWhile:
		return p.parseWhileStatement()
	case lexer.TokenBreak:
		p.nextToken()
		if !p.expect(lexer.TokenSemicolon) {
			return nil
		}
		return ast.Break{}
	case lexer.TokenContinue:
		p.nextToken()
		if !p.expect(lexer.TokenSemicolon) {
			return nil
		}
		return ast.Continue{}
	case lexer.TokenReturn:
		return p.parseReturnStatement()
	case lexer.TokenStar, lexer.TokenIdent:
		return p.parseAssignOrCall()
	default:
		p.addError(fmt.Sprintf("expected statement, got %s", describe(p.curToken)))
		return nil
	}
}

func (p *Parser) parseIfStatement() ast.Stmt {
	p.nextToken() // consume 'if'

	guard := p.parseExpression()
	if guard == nil {
		return nil
	}
	then, ok := p.parseBlock()
	if !ok {
		return nil
	}

	var els []ast.Stmt
	if p.curTokenIs(lexer.TokenElse) {
		p.nextToken()
		if els, ok = p.parseBlock(); !ok {
			return nil
		}
	}
	return ast.If{Guard: guard, Then: then, Else: els}
}

func (p *Parser) parseWhileStatement() ast.Stmt {
	p.nextToken() // consume 'while'

	guard := p.parseExpression()
	if guard == nil {
		return nil
	}
	body, ok := p.parseBlock()
	if !ok {
		return nil
	}
	return ast.While{Guard: guard, Body: body}
}

func (p *Parser) parseReturnStatement() ast.Stmt {
	p.nextToken() // consume 'return'

	var expr ast.Expr
	if !p.curTokenIs(lexer.TokenSemicolon) {
		if expr = p.parseExpression(); expr == nil {
			return nil
		}
	}

	if !p.expect(lexer.TokenSemicolon) {
		return nil
	}

	return ast.Return{Value: expr}
}

func (p *Parser) parseAssignOrCall() ast.Stmt {
	lv := p.parseLval()
	if lv == nil {
		return nil
	}

	switch p.curToken.Type {
	case lexer.TokenAssign:
		p.nextToken()
		rhs := p.parseRhs()
		if rhs == nil || !p.expect(lexer.TokenSemicolon) {
			return nil
		}
		return ast.Assign{Lhs: lv, Rhs: rhs}
	case lexer.TokenLParen:
		args, ok := p.parseArgs()
		if !ok || !p.expect(lexer.TokenSemicolon) {
			return nil
		}
		return ast.CallStmt{Callee: lv, Args: args}
	}
	p.addError(fmt.Sprintf("expected '=' or '(' after %s, got %s", ast.LvalString(lv), describe(p.curToken)))
	return nil
}

func (p *Parser) parseRhs() ast.Rhs {
	if !p.curTokenIs(lexer.TokenNew) {
		if e := p.parseExpression(); e != nil {
			return e
		}
		return nil
	}

	p.nextToken() // consume 'new'
	typ, ok := p.parseType()
	if !ok {
		return nil
	}
	n := ast.New{Type: typ}
	if !p.curTokenIs(lexer.TokenSemicolon) {
		if n.Num = p.parseExpression(); n.Num == nil {
			return nil
		}
	}
	return n
}

// parseLval parses `*lval` or an identifier followed by index and field
// accesses.
func (p *Parser) parseLval() ast.Lval {
	if p.curTokenIs(lexer.TokenStar) {
		p.nextToken()
		inner := p.parseLval()
		if inner == nil {
			return nil
		}
		return ast.LvDeref{Lval: inner}
	}

	name, ok := p.expectIdent()
	if !ok {
		return nil
	}
	var lv ast.Lval = ast.LvId{Name: name}
	for {
		switch p.curToken.Type {
		case lexer.TokenLBracket:
			p.nextToken()
			idx := p.parseExpression()
			if idx == nil || !p.expect(lexer.TokenRBracket) {
				return nil
			}
			lv = ast.LvIndex{Ptr: lv, Index: idx}
		case lexer.TokenDot:
			p.nextToken()
			field, ok := p.expectIdent()
			if !ok {
				return nil
			}
			lv = ast.LvField{Ptr: lv, Field: field}
		default:
			return lv
		}
	}
}

func (p *Parser) parseArgs() ([]ast.Expr, bool) {
	p.nextToken() // consume '('

	var args []ast.Expr
	if p.curTokenIs(lexer.TokenRParen) {
		p.nextToken()
		return args, true
	}
	for {
		e := p.parseExpression()
		if e == nil {
			return nil, false
		}
		args = append(args, e)
		if !p.curTokenIs(lexer.TokenComma) {
			break
		}
		p.nextToken()
	}
	if !p.expect(lexer.TokenRParen) {
		return nil, false
	}
	return args, true
}

// --- Expressions ---

// parseExpression parses the loosest level: `and` and `or` share one
// precedence and associate to the right.
func (p *Parser) parseExpression() ast.Expr {
	left := p.parseComparison()
	if left == nil {
		return nil
	}

	switch p.curToken.Type {
	case lexer.TokenAnd:
		p.nextToken()
		right := p.parseExpression()
		if right == nil {
			return nil
		}
		return ast.And{L: left, R: right}
	case lexer.TokenOr:
		p.nextToken()
		right := p.parseExpression()
		if right == nil {
			return nil
		}
		return ast.Or{L: left, R: right}
	}
	return left
}

var cmpOps = map[lexer.TokenType]lir.CmpOp{
	lexer.TokenEq: lir.Eq,
	lexer.TokenNe: lir.Neq,
	lexer.TokenLt: lir.Lt,
	lexer.TokenLe: lir.Lte,
	lexer.TokenGt: lir.Gt,
	lexer.TokenGe: lir.Gte,
}

func (p *Parser) parseComparison() ast.Expr {
	left := p.parseAdditive()
	for left != nil {
		op, ok := cmpOps[p.curToken.Type]
		if !ok {
			break
		}
		p.nextToken()
		right := p.parseAdditive()
		if right == nil {
			return nil
		}
		left = ast.Compare{Op: op, L: left, R: right}
	}
	return left
}

func (p *Parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	for left != nil && (p.curTokenIs(lexer.TokenPlus) || p.curTokenIs(lexer.TokenMinus)) {
		op := lir.Add
		if p.curTokenIs(lexer.TokenMinus) {
			op = lir.Sub
		}
		p.nextToken()
		right := p.parseMultiplicative()
		if right == nil {
			return nil
		}
		left = ast.Arith{Op: op, L: left, R: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expr {
	left := p.parseUnary()
	for left != nil && (p.curTokenIs(lexer.TokenStar) || p.curTokenIs(lexer.TokenSlash)) {
		op := lir.Mul
		if p.curTokenIs(lexer.TokenSlash) {
			op = lir.Div
		}
		p.nextToken()
		right := p.parseUnary()
		if right == nil {
			return nil
		}
		left = ast.Arith{Op: op, L: left, R: right}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	switch p.curToken.Type {
	case lexer.TokenNot, lexer.TokenMinus, lexer.TokenStar:
		op := p.curToken.Type
		p.nextToken()
		x := p.parseUnary()
		if x == nil {
			return nil
		}
		switch op {
		case lexer.TokenNot:
			return ast.Not{X: x}
		case lexer.TokenMinus:
			return ast.Neg{X: x}
		default:
			return ast.Deref{X: x}
		}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expr {
	e := p.parsePrimary()
	for e != nil {
		switch p.curToken.Type {
		case lexer.TokenLBracket:
			p.nextToken()
			idx := p.parseExpression()
			if idx == nil || !p.expect(lexer.TokenRBracket) {
				return nil
			}
			e = ast.Index{Ptr: e, Index: idx}
		case lexer.TokenDot:
			p.nextToken()
			field, ok := p.expectIdent()
			if !ok {
				return nil
			}
			e = ast.FieldAccess{Ptr: e, Field: field}
		case lexer.TokenLParen:
			args, ok := p.parseArgs()
			if !ok {
				return nil
			}
			e = ast.Call{Callee: e, Args: args}
		default:
			return e
		}
	}
	return nil
}

func (p *Parser) parsePrimary() ast.Expr {
	switch p.curToken.Type {
	case lexer.TokenNum:
		lit := p.curToken.Literal
		n, err := strconv.ParseInt(lit, 10, 32)
		if err != nil {
			p.addError(fmt.Sprintf("number %s does not fit in 32 bits", lit))
			return nil
		}
		p.nextToken()
		return ast.Num{Value: int32(n)}
	case lexer.TokenIdent:
		name := p.curToken.Literal
		p.nextToken()
		return ast.Id{Name: name}
	case lexer.TokenNil:
		p.nextToken()
		return ast.Nil{}
	case lexer.TokenLParen:
		p.nextToken()
		e := p.parseExpression()
		if e == nil || !p.expect(lexer.TokenRParen) {
			return nil
		}
		return e
	}
	p.addError(fmt.Sprintf("expected expression, got %s", describe(p.curToken)))
	return nil
}
