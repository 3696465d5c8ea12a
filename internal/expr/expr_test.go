package expr

import (
	"errors"
	"reflect"
	"testing"
)

func env(datum, signal map[string]any) Resolver {
	root := map[string]any{"datum": datum, "signal": signal}
	return ResolverFunc(func(path []string) (any, bool) {
		return Lookup(root, path)
	})
}

func TestEval(t *testing.T) {
	datum := map[string]any{
		"amount":   float64(1500),
		"count":    3,
		"category": "food",
		"name":     "north-east",
		"active":   true,
	}
	signal := map[string]any{"threshold": float64(1000), "region": "north"}

	cases := []struct {
		name    string
		expr    string
		want    bool
		wantErr bool
	}{
		{name: "gt literal", expr: "datum.amount > 1000", want: true},
		{name: "gt signal", expr: "datum.amount > signal.threshold", want: true},
		{name: "lte signal", expr: "datum.amount <= signal.threshold", want: false},
		{name: "int field", expr: "datum.count == 3", want: true},
		{name: "negative literal", expr: "datum.amount > -1", want: true},
		{name: "string eq", expr: `datum.category == "food"`, want: true},
		{name: "string neq single quote", expr: `datum.category != 'food'`, want: false},
		{name: "bool", expr: "datum.active == true", want: true},
		{name: "contains signal", expr: "datum.name contains signal.region", want: true},
		{name: "matches", expr: `datum.name matches "^north-(east|west)$"`, want: true},
		{name: "and", expr: `datum.amount > 1000 AND datum.category == "food"`, want: true},
		{name: "or short circuit", expr: `datum.amount > 1000 OR datum.missing == 1`, want: true},
		{name: "and short circuit", expr: `datum.amount < 1000 and datum.missing == 1`, want: false},
		{name: "not", expr: `NOT datum.category == "misc"`, want: true},
		{name: "parens", expr: `(datum.amount < 10 OR datum.count > 2) AND datum.active == true`, want: true},
		{name: "precedence", expr: `datum.amount < 10 OR datum.count > 2 AND datum.active == false`, want: false},
		{name: "unresolved", expr: "datum.missing > 1", wantErr: true},
		{name: "type mismatch", expr: `datum.category > 1`, wantErr: true},
		{name: "bad pattern", expr: `datum.name matches "("`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := Parse(tc.expr)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.expr, err)
			}
			got, err := Eval(e, env(datum, signal))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEval_UnresolvedIsWrapped(t *testing.T) {
	e := MustParse("signal.nope == 1")
	_, err := Eval(e, env(nil, nil))
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("want ErrUnresolved, got %v", err)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, src := range []string{
		"",
		"datum.a =",
		"datum.a = 1",
		"datum.a > ",
		"(datum.a > 1",
		"datum.a > 1)",
		`datum.a == "open`,
		"datum.a 1",
		"datum.a > 1 AND",
		"1.2.3 > 1",
	} {
		if _, err := Parse(src); err == nil {
			t.Errorf("Parse(%q): expected error", src)
		}
	}
}

func TestSignalsAndFields(t *testing.T) {
	e := MustParse(`datum.b > signal.y AND (datum.a < signal.x OR signal.y == datum.b)`)
	if got, want := Signals(e), []string{"x", "y"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Signals = %v, want %v", got, want)
	}
	if got, want := Fields(e), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Fields = %v, want %v", got, want)
	}
}
