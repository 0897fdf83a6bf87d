package query

import (
	"fmt"
	"strings"
)

// Parser builds an AST from a filter expression.
//
//	expr    = and { OR and }
//	and     = not { AND not }
//	not     = NOT not | primary
//	primary = "(" expr ")" | word ( ":" | "!=" ) value | word | string
type Parser struct {
	lexer   *Lexer
	current Token
}

// Parse parses the input string and returns the AST root node.
// A blank input yields a nil node, which matches every record.
func Parse(input string) (Node, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	p := &Parser{lexer: NewLexer(input)}
	p.advance()

	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, p.errorf("unexpected %s", p.current.Type)
	}
	return node, nil
}

func (p *Parser) advance() {
	p.current = p.lexer.NextToken()
}

func (p *Parser) errorf(format string, args ...any) error {
	return fmt.Errorf("filter: offset %d: %s", p.current.Pos, fmt.Sprintf(format, args...))
}

func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.current.Type == TokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.current.Type == TokenAnd {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Node, error) {
	if p.current.Type == TokenNot {
		p.advance()
		expr, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return NotExpr{Expr: expr}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Node, error) {
	switch p.current.Type {
	case TokenLParen:
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.current.Type != TokenRParen {
			return nil, p.errorf("expected ')' but got %s", p.current.Type)
		}
		p.advance()
		return expr, nil

	case TokenString:
		text := p.current.Value
		p.advance()
		return TextExpr{Text: text}, nil

	case TokenWord:
		key := p.current.Value
		p.advance()
		switch p.current.Type {
		case TokenColon:
			p.advance()
			return p.parseValue(key, false)
		case TokenNeq:
			p.advance()
			return p.parseValue(key, true)
		}
		return TextExpr{Text: key}, nil

	default:
		return nil, p.errorf("unexpected %s", p.current.Type)
	}
}

func (p *Parser) parseValue(key string, negate bool) (Node, error) {
	switch p.current.Type {
	case TokenWord, TokenString, TokenAnd, TokenOr, TokenNot:
		// keywords double as plain values after a colon
		value := p.current.Value
		p.advance()
		return FieldExpr{Key: key, Value: value, Negate: negate}, nil
	}
	return nil, p.errorf("expected value after %q but got %s", key, p.current.Type)
}
