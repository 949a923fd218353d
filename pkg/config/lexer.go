package config

import (
	"fmt"
	"strings"
)

// TokenType identifies the kind of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError
	TokenIdentifier
	TokenString
	TokenLBrace
	TokenRBrace
	TokenSemicolon
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenError:
		return "error"
	case TokenIdentifier:
		return "identifier"
	case TokenString:
		return "string"
	case TokenLBrace:
		return "'{'"
	case TokenRBrace:
		return "'}'"
	case TokenSemicolon:
		return "';'"
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is one lexical token with its source position.
type Token struct {
	Type   TokenType
	Value  string
	Line   int
	Column int
}

func (t Token) String() string {
	switch t.Type {
	case TokenIdentifier, TokenString, TokenError:
		return fmt.Sprintf("%s %q", t.Type, t.Value)
	}
	return t.Type.String()
}

// Lexer splits configuration text into tokens. It understands '#', '//'
// and '/* */' comments and double-quoted strings.
type Lexer struct {
	input  string
	pos    int
	line   int
	col    int
	peeked *Token
}

// NewLexer returns a Lexer reading input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1, col: 1}
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() Token {
	if l.peeked == nil {
		tok := l.scan()
		l.peeked = &tok
	}
	return *l.peeked
}

// Next consumes and returns the next token.
func (l *Lexer) Next() Token {
	if l.peeked != nil {
		tok := *l.peeked
		l.peeked = nil
		return tok
	}
	return l.scan()
}

func (l *Lexer) advance() byte {
	c := l.input[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *Lexer) skipSpaceAndComments() *Token {
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		rest := l.input[l.pos:]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '#' || strings.HasPrefix(rest, "//"):
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.advance()
			}
		case strings.HasPrefix(rest, "/*"):
			line, col := l.line, l.col
			end := strings.Index(rest[2:], "*/")
			if end < 0 {
				for l.pos < len(l.input) {
					l.advance()
				}
				return &Token{Type: TokenError, Value: "unterminated comment", Line: line, Column: col}
			}
			for n := end + 4; n > 0; n-- {
				l.advance()
			}
		default:
			return nil
		}
	}
	return nil
}

func (l *Lexer) scan() Token {
	if errTok := l.skipSpaceAndComments(); errTok != nil {
		return *errTok
	}
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Line: l.line, Column: l.col}
	}

	line, col := l.line, l.col
	switch c := l.input[l.pos]; c {
	case '{':
		l.advance()
		return Token{Type: TokenLBrace, Value: "{", Line: line, Column: col}
	case '}':
		l.advance()
		return Token{Type: TokenRBrace, Value: "}", Line: line, Column: col}
	case ';':
		l.advance()
		return Token{Type: TokenSemicolon, Value: ";", Line: line, Column: col}
	case '"':
		return l.scanString(line, col)
	}

	start := l.pos
	for l.pos < len(l.input) && !isDelimiter(l.input[l.pos]) {
		l.advance()
	}
	return Token{Type: TokenIdentifier, Value: l.input[start:l.pos], Line: line, Column: col}
}

func (l *Lexer) scanString(line, col int) Token {
	l.advance() // opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		c := l.advance()
		switch c {
		case '"':
			return Token{Type: TokenString, Value: sb.String(), Line: line, Column: col}
		case '\\':
			if l.pos < len(l.input) {
				sb.WriteByte(l.advance())
			}
		default:
			sb.WriteByte(c)
		}
	}
	return Token{Type: TokenError, Value: "unterminated string", Line: line, Column: col}
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '{', '}', ';', '"':
		return true
	}
	return false
}
