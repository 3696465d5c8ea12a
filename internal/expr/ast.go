// Package expr implements the small predicate language used by filter
// transforms, e.g.
//
//	datum.amount > signal.threshold AND NOT datum.category == "misc"
//
// Operands are literals or dotted paths. Paths rooted at "datum" read the
// tuple under test; paths rooted at "signal" read a signal value.
package expr

import "sort"

// Expr is a parsed predicate.
type Expr interface {
	isExpr()
}

// Logical joins two predicates with AND or OR.
type Logical struct {
	And         bool
	Left, Right Expr
}

// Not negates a predicate.
type Not struct {
	X Expr
}

// Compare applies an operator to two operands.
type Compare struct {
	Left  Operand
	Op    Operator
	Right Operand
}

func (*Logical) isExpr() {}
func (*Not) isExpr()     {}
func (*Compare) isExpr() {}

// Operand is a Literal or a Path.
type Operand interface {
	isOperand()
}

// Literal is a constant: float64, string or bool.
type Literal struct {
	Value any
}

// Path is a dotted reference such as datum.amount.
type Path struct {
	Segments []string
}

func (*Literal) isOperand() {}
func (*Path) isOperand()    {}

// Root returns the first segment of the path.
func (p *Path) Root() string {
	if len(p.Segments) == 0 {
		return ""
	}
	return p.Segments[0]
}

// Signals returns the names of the signals an expression reads, sorted.
func Signals(e Expr) []string {
	return collect(e, "signal")
}

// Fields returns the datum fields an expression reads, sorted.
func Fields(e Expr) []string {
	return collect(e, "datum")
}

func collect(e Expr, root string) []string {
	seen := map[string]struct{}{}
	var walk func(Expr)
	visit := func(o Operand) {
		if p, ok := o.(*Path); ok && p.Root() == root && len(p.Segments) > 1 {
			seen[p.Segments[1]] = struct{}{}
		}
	}
	walk = func(e Expr) {
		switch x := e.(type) {
		case *Logical:
			walk(x.Left)
			walk(x.Right)
		case *Not:
			walk(x.X)
		case *Compare:
			visit(x.Left)
			visit(x.Right)
		}
	}
	walk(e)

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
