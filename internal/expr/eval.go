package expr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnresolved is wrapped by evaluation errors caused by a path that does
// not resolve.
var ErrUnresolved = errors.New("unresolved path")

// Resolver supplies values for paths.
type Resolver interface {
	Resolve(path []string) (any, bool)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(path []string) (any, bool)

func (f ResolverFunc) Resolve(path []string) (any, bool) { return f(path) }

// Eval evaluates e against r.
func Eval(e Expr, r Resolver) (bool, error) {
	switch x := e.(type) {
	case *Logical:
		left, err := Eval(x.Left, r)
		if err != nil {
			return false, err
		}
		if x.And != left {
			// false AND _ / true OR _
			return left, nil
		}
		return Eval(x.Right, r)
	case *Not:
		v, err := Eval(x.X, r)
		return !v, err
	case *Compare:
		left, err := value(x.Left, r)
		if err != nil {
			return false, err
		}
		right, err := value(x.Right, r)
		if err != nil {
			return false, err
		}
		return x.Op.apply(left, right)
	}
	return false, fmt.Errorf("unknown expression %T", e)
}

func value(o Operand, r Resolver) (any, error) {
	switch x := o.(type) {
	case *Literal:
		return x.Value, nil
	case *Path:
		v, ok := r.Resolve(x.Segments)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnresolved, strings.Join(x.Segments, "."))
		}
		return v, nil
	}
	return nil, fmt.Errorf("unknown operand %T", o)
}

// Lookup walks nested maps along path.
func Lookup(m map[string]any, path []string) (any, bool) {
	var cur any = m
	for _, seg := range path {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = mm[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}
