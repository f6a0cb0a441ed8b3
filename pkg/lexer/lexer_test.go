package lexer

import "testing"

func TestNextToken(t *testing.T) {
	input := `fn main() -> int { return 42; }`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{TokenFn, "fn"},
		{TokenIdent, "main"},
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenArrow, "->"},
		{TokenInt, "int"},
		{TokenLBrace, "{"},
		{TokenReturn, "return"},
		{TokenNum, "42"},
		{TokenSemicolon, ";"},
		{TokenRBrace, "}"},
		{TokenEOF, ""},
	}

	l := New(input)

	for i, tt := range tests {
		tok := l.NextToken()

		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q",
				i, tt.expectedType, tok.Type)
		}

		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestOperators(t *testing.T) {
	input := `+ - * / = == != < <= > >= ! & -> . : ; , _ ( ) [ ] { }`

	tests := []struct {
		expectedType    TokenType
		expectedLiteral string
	}{
		{TokenPlus, "+"},
		{TokenMinus, "-"},
		{TokenStar, "*"},
		{TokenSlash, "/"},
		{TokenAssign, "="},
		{TokenEq, "=="},
		{TokenNe, "!="},
		{TokenLt, "<"},
		{TokenLe, "<="},
		{TokenGt, ">"},
		{TokenGe, ">="},
		{TokenNot, "!"},
		{TokenAmpersand, "&"},
		{TokenArrow, "->"},
		{TokenDot, "."},
		{TokenColon, ":"},
		{TokenSemicolon, ";"},
		{TokenComma, ","},
		{TokenUnderscore, "_"},
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenLBracket, "["},
		{TokenRBracket, "]"},
		{TokenLBrace, "{"},
		{TokenRBrace, "}"},
		{TokenEOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType || tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - got %s %q, want %s %q",
				i, tok.Type, tok.Literal, tt.expectedType, tt.expectedLiteral)
		}
	}
}

func TestKeywords(t *testing.T) {
	input := `int struct nil break continue return if else while new let extern fn and or`
	want := []TokenType{
		TokenInt, TokenStruct, TokenNil, TokenBreak, TokenContinue, TokenReturn,
		TokenIf, TokenElse, TokenWhile, TokenNew, TokenLet, TokenExtern, TokenFn,
		TokenAnd, TokenOr, TokenEOF,
	}

	l := New(input)
	for i, w := range want {
		if tok := l.NextToken(); tok.Type != w {
			t.Errorf("tokens[%d] = %s, want %s", i, tok.Type, w)
		}
	}
}

func TestIdentifiersAndNumbers(t *testing.T) {
	tests := []struct {
		input    string
		expected []Token
	}{
		{"foo1 Bar", []Token{{Type: TokenIdent, Literal: "foo1"}, {Type: TokenIdent, Literal: "Bar"}}},
		{"12ab", []Token{{Type: TokenNum, Literal: "12"}, {Type: TokenIdent, Literal: "ab"}}},
		{"_x", []Token{{Type: TokenUnderscore, Literal: "_"}, {Type: TokenIdent, Literal: "x"}}},
		{"x&&y", []Token{{Type: TokenIdent, Literal: "x"}, {Type: TokenAmpersand, Literal: "&"}, {Type: TokenAmpersand, Literal: "&"}, {Type: TokenIdent, Literal: "y"}}},
		{"a#", []Token{{Type: TokenIdent, Literal: "a"}, {Type: TokenIllegal, Literal: "#"}}},
		{"intx", []Token{{Type: TokenIdent, Literal: "intx"}}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			l := New(tt.input)
			for i, want := range tt.expected {
				tok := l.NextToken()
				if tok.Type != want.Type || tok.Literal != want.Literal {
					t.Errorf("token[%d] = %s %q, want %s %q", i, tok.Type, tok.Literal, want.Type, want.Literal)
				}
			}
			if tok := l.NextToken(); tok.Type != TokenEOF {
				t.Errorf("expected EOF, got %s %q", tok.Type, tok.Literal)
			}
		})
	}
}

func TestComments(t *testing.T) {
	input := `// leading comment
x /* inline */ y // trailing
/* multi
line */ z
/* unterminated`

	l := New(input)
	for _, want := range []string{"x", "y", "z"} {
		tok := l.NextToken()
		if tok.Type != TokenIdent || tok.Literal != want {
			t.Fatalf("got %s %q, want IDENT %q", tok.Type, tok.Literal, want)
		}
	}
	if tok := l.NextToken(); tok.Type != TokenEOF {
		t.Errorf("expected EOF after unterminated comment, got %s", tok.Type)
	}
}

func TestLineAndColumn(t *testing.T) {
	input := "fn\n  main"
	l := New(input)

	tok := l.NextToken()
	if tok.Line != 1 || tok.Column != 1 {
		t.Errorf("fn at %d:%d, want 1:1", tok.Line, tok.Column)
	}
	tok = l.NextToken()
	if tok.Line != 2 || tok.Column != 3 {
		t.Errorf("main at %d:%d, want 2:3", tok.Line, tok.Column)
	}
}
