package expr

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
)

// Operator is a comparison operator.
type Operator string

const (
	OpEq       Operator = "=="
	OpNeq      Operator = "!="
	OpGt       Operator = ">"
	OpGte      Operator = ">="
	OpLt       Operator = "<"
	OpLte      Operator = "<="
	OpContains Operator = "contains"
	OpMatches  Operator = "matches"
)

func (op Operator) apply(left, right any) (bool, error) {
	switch op {
	case OpEq:
		return equal(left, right), nil
	case OpNeq:
		return !equal(left, right), nil
	case OpGt, OpGte, OpLt, OpLte:
		l, lok := Number(left)
		r, rok := Number(right)
		if !lok || !rok {
			return false, fmt.Errorf("%s needs numbers, got %T and %T", op, left, right)
		}
		switch op {
		case OpGt:
			return l > r, nil
		case OpGte:
			return l >= r, nil
		case OpLt:
			return l < r, nil
		}
		return l <= r, nil
	case OpContains:
		s, ok := left.(string)
		if !ok {
			return false, fmt.Errorf("contains needs a string on the left, got %T", left)
		}
		return strings.Contains(s, fmt.Sprint(right)), nil
	case OpMatches:
		s, ok := left.(string)
		pattern, pok := right.(string)
		if !ok || !pok {
			return false, fmt.Errorf("matches needs strings, got %T and %T", left, right)
		}
		re, err := compile(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	}
	return false, fmt.Errorf("unknown operator %q", op)
}

// Number converts any numeric value to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int16:
		return float64(n), true
	case int8:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint8:
		return float64(n), true
	}
	return 0, false
}

func equal(left, right any) bool {
	if l, ok := Number(left); ok {
		r, ok := Number(right)
		return ok && math.Abs(l-r) < 1e-9
	}
	if l, ok := left.(bool); ok {
		r, ok := right.(bool)
		return ok && l == r
	}
	return fmt.Sprint(left) == fmt.Sprint(right)
}

var patterns sync.Map // string -> *regexp.Regexp

func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("matches: invalid pattern %q: %w", pattern, err)
	}
	patterns.Store(pattern, re)
	return re, nil
}
