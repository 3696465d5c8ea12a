package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse compiles a predicate. Grammar:
//
//	or      = and { "OR" and }
//	and     = unary { "AND" unary }
//	unary   = "NOT" unary | "(" or ")" | compare
//	compare = operand op operand
//	op      = "==" | "!=" | ">" | ">=" | "<" | "<=" | "contains" | "matches"
func Parse(src string) (Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.or()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", t.text, t.pos)
	}
	return e, nil
}

// MustParse is Parse for expressions known at compile time.
func MustParse(src string) Expr {
	e, err := Parse(src)
	if err != nil {
		panic(fmt.Sprintf("expr: %v", err))
	}
	return e
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) advance() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) keyword(word string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, word) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) or() (Expr, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") {
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = &Logical{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) and() (Expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") {
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &Logical{And: true, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) unary() (Expr, error) {
	if p.keyword("not") {
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Not{X: x}, nil
	}
	if p.peek().kind == tokLParen {
		p.advance()
		x, err := p.or()
		if err != nil {
			return nil, err
		}
		if t := p.advance(); t.kind != tokRParen {
			return nil, fmt.Errorf("expected \")\" at position %d, got %q", t.pos, t.text)
		}
		return x, nil
	}
	return p.compare()
}

func (p *parser) compare() (Expr, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	t := p.advance()
	var op Operator
	switch {
	case t.kind == tokOp:
		op = Operator(t.text)
	case t.kind == tokIdent && strings.EqualFold(t.text, string(OpContains)):
		op = OpContains
	case t.kind == tokIdent && strings.EqualFold(t.text, string(OpMatches)):
		op = OpMatches
	default:
		return nil, fmt.Errorf("expected comparison operator at position %d, got %q", t.pos, t.text)
	}
	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	return &Compare{Left: left, Op: op, Right: right}, nil
}

func (p *parser) operand() (Operand, error) {
	t := p.advance()
	switch t.kind {
	case tokString:
		return &Literal{Value: t.text}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", t.text, t.pos)
		}
		return &Literal{Value: f}, nil
	case tokBool:
		return &Literal{Value: t.text == "true"}, nil
	case tokIdent:
		return &Path{Segments: strings.Split(t.text, ".")}, nil
	}
	if t.kind == tokEOF {
		return nil, fmt.Errorf("expected operand at end of expression")
	}
	return nil, fmt.Errorf("expected operand at position %d, got %q", t.pos, t.text)
}
