package expr

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokOp
	tokString
	tokNumber
	tokBool
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	var out []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if t.kind == tokEOF {
			return out, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && unicode.IsSpace(rune(l.src[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	ch := l.src[l.pos]
	switch {
	case ch == '(':
		l.pos++
		return token{tokLParen, "(", start}, nil
	case ch == ')':
		l.pos++
		return token{tokRParen, ")", start}, nil
	case strings.IndexByte("=!<>", ch) >= 0:
		l.pos++
		if l.pos < len(l.src) && l.src[l.pos] == '=' {
			l.pos++
		}
		op := l.src[start:l.pos]
		if op == "=" || op == "!" {
			return token{}, fmt.Errorf("unexpected %q at position %d", op, start)
		}
		return token{tokOp, op, start}, nil
	case ch == '"' || ch == '\'':
		return l.quoted(ch)
	case isDigit(ch) || (ch == '-' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
		l.pos++
		for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
			l.pos++
		}
		return token{tokNumber, l.src[start:l.pos], start}, nil
	case unicode.IsLetter(rune(ch)) || ch == '_':
		for l.pos < len(l.src) && isIdentByte(l.src[l.pos]) {
			l.pos++
		}
		word := l.src[start:l.pos]
		if w := strings.ToLower(word); w == "true" || w == "false" {
			return token{tokBool, w, start}, nil
		}
		return token{tokIdent, word, start}, nil
	}
	return token{}, fmt.Errorf("unexpected character %q at position %d", ch, start)
}

func (l *lexer) quoted(quote byte) (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		switch {
		case ch == '\\' && l.pos+1 < len(l.src):
			b.WriteByte(l.src[l.pos+1])
			l.pos += 2
		case ch == quote:
			l.pos++
			return token{tokString, b.String(), start}, nil
		default:
			b.WriteByte(ch)
			l.pos++
		}
	}
	return token{}, fmt.Errorf("unterminated string starting at position %d", start)
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentByte(ch byte) bool {
	return ch == '_' || ch == '.' || isDigit(ch) || unicode.IsLetter(rune(ch))
}
