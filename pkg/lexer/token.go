package lexer

// TokenType represents the type of a token
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenIllegal

	// Literals
	TokenIdent // main, foo, x1
	TokenNum   // 42

	// Keywords
	TokenInt      // int
	TokenStruct   // struct
	TokenNil      // nil
	TokenBreak    // break
	TokenContinue // continue
	TokenReturn   // return
	TokenIf       // if
	TokenElse     // else
	TokenWhile    // while
	TokenNew      // new
	TokenLet      // let
	TokenExtern   // extern
	TokenFn       // fn
	TokenAnd      // and
	TokenOr       // or

	// Operators
	TokenPlus      // +
	TokenMinus     // -
	TokenStar      // *
	TokenSlash     // /
	TokenAssign    // =
	TokenEq        // ==
	TokenNe        // !=
	TokenLt        // <
	TokenLe        // <=
	TokenGt        // >
	TokenGe        // >=
	TokenNot       // !
	TokenAmpersand // &
	TokenArrow     // ->
	TokenDot       // .

	// Delimiters
	TokenLParen     // (
	TokenRParen     // )
	TokenLBrace     // {
	TokenRBrace     // }
	TokenLBracket   // [
	TokenRBracket   // ]
	TokenSemicolon  // ;
	TokenColon      // :
	TokenComma      // ,
	TokenUnderscore // _
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenIllegal:    "ILLEGAL",
	TokenIdent:      "IDENT",
	TokenNum:        "NUM",
	TokenInt:        "int",
	TokenStruct:     "struct",
	TokenNil:        "nil",
	TokenBreak:      "break",
	TokenContinue:   "continue",
	TokenReturn:     "return",
	TokenIf:         "if",
	TokenElse:       "else",
	TokenWhile:      "while",
	TokenNew:        "new",
	TokenLet:        "let",
	TokenExtern:     "extern",
	TokenFn:         "fn",
	TokenAnd:        "and",
	TokenOr:         "or",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenAssign:     "=",
	TokenEq:         "==",
	TokenNe:         "!=",
	TokenLt:         "<",
	TokenLe:         "<=",
	TokenGt:         ">",
	TokenGe:         ">=",
	TokenNot:        "!",
	TokenAmpersand:  "&",
	TokenArrow:      "->",
	TokenDot:        ".",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenLBrace:     "{",
	TokenRBrace:     "}",
	TokenLBracket:   "[",
	TokenRBracket:   "]",
	TokenSemicolon:  ";",
	TokenColon:      ":",
	TokenComma:      ",",
	TokenUnderscore: "_",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Token represents a lexical token
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

var keywords = map[string]TokenType{
	"int":      TokenInt,
	"struct":   TokenStruct,
	"nil":      TokenNil,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"return":   TokenReturn,
	"if":       TokenIf,
	"else":     TokenElse,
	"while":    TokenWhile,
	"new":      TokenNew,
	"let":      TokenLet,
	"extern":   TokenExtern,
	"fn":       TokenFn,
	"and":      TokenAnd,
	"or":       TokenOr,
}

// LookupIdent returns the token type for an identifier (keyword or IDENT)
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TokenIdent
}
