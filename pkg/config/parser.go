package config

import "fmt"

// ParseError is a syntax error with the position it was found at.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// Parser builds a ConfigTree from hierarchical configuration text. It
// recovers from errors and keeps going, so one pass reports every problem.
type Parser struct {
	lex  *Lexer
	errs []ParseError
}

// NewParser returns a Parser over input.
func NewParser(input string) *Parser {
	return &Parser{lex: NewLexer(input)}
}

// Parse returns the tree and the syntax errors found. The tree holds
// every statement that parsed cleanly.
func (p *Parser) Parse() (*ConfigTree, []ParseError) {
	var children []*Node
	for {
		children = append(children, p.block()...)
		tok := p.lex.Next()
		if tok.Type == TokenEOF {
			break
		}
		// block only stops early on a '}' with nothing open.
		p.errorf(tok, "unmatched '}'")
	}
	return &ConfigTree{Children: children}, p.errs
}

// block reads statements up to EOF or the '}' closing the enclosing block.
// The '}' is left for the caller.
func (p *Parser) block() []*Node {
	var nodes []*Node
	for {
		tok := p.lex.Peek()
		switch tok.Type {
		case TokenEOF, TokenRBrace:
			return nodes
		case TokenError:
			p.lex.Next()
			p.errorf(tok, "%s", tok.Value)
			continue
		}
		if n := p.statement(); n != nil {
			nodes = append(nodes, n)
		}
	}
}

// statement reads "keys ;" or "keys { ... }".
func (p *Parser) statement() *Node {
	first := p.lex.Peek()
	keys := p.keys()
	if len(keys) == 0 {
		tok := p.lex.Next()
		p.errorf(tok, "unexpected %s", tok)
		return nil
	}
	n := &Node{Keys: keys, Line: first.Line, Column: first.Column}

	tok := p.lex.Peek()
	switch tok.Type {
	case TokenSemicolon:
		p.lex.Next()
		n.IsLeaf = true
	case TokenLBrace:
		p.lex.Next()
		n.Children = p.block()
		if end := p.lex.Peek(); end.Type == TokenRBrace {
			p.lex.Next()
		} else {
			p.errorf(end, "block %q opened at line %d is not closed", keys[0], first.Line)
		}
	case TokenEOF:
		// A final statement may omit its ';'.
		n.IsLeaf = true
	default:
		p.errorf(tok, "expected ';' or '{' after %q, got %s", keys[len(keys)-1], tok)
		n.IsLeaf = true
	}
	return n
}

func (p *Parser) keys() []string {
	var keys []string
	for {
		tok := p.lex.Peek()
		if tok.Type != TokenIdentifier && tok.Type != TokenString {
			return keys
		}
		p.lex.Next()
		keys = append(keys, tok.Value)
	}
}

func (p *Parser) errorf(at Token, format string, args ...any) {
	p.errs = append(p.errs, ParseError{
		Line:    at.Line,
		Column:  at.Column,
		Message: fmt.Sprintf(format, args...),
	})
}

// SplitCommand tokenizes a one-line "set" or "delete" command such as
// `set rules rule 10 match 00:50`. verb is empty when the line starts
// directly with the path.
func SplitCommand(input string) (verb string, path []string, err error) {
	path, err = ParsePath(input)
	if err != nil {
		return "", nil, err
	}
	if path[0] == "set" || path[0] == "delete" {
		verb, path = path[0], path[1:]
	}
	if len(path) == 0 {
		return "", nil, fmt.Errorf("%s: missing path", verb)
	}
	return verb, path, nil
}

// ParsePath splits a configuration path into keys. Quoted keys may contain
// blanks; a trailing ';' is ignored.
func ParsePath(input string) ([]string, error) {
	lex := NewLexer(input)
	var path []string
	for {
		tok := lex.Next()
		switch tok.Type {
		case TokenIdentifier, TokenString:
			path = append(path, tok.Value)
			continue
		case TokenSemicolon:
			if next := lex.Next(); next.Type != TokenEOF {
				return nil, fmt.Errorf("unexpected %s after ';' at column %d", next, next.Column)
			}
		case TokenEOF:
		case TokenError:
			return nil, fmt.Errorf("column %d: %s", tok.Column, tok.Value)
		default:
			return nil, fmt.Errorf("unexpected %s at column %d", tok, tok.Column)
		}
		break
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	return path, nil
}
