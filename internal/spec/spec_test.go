package spec

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
version: "1"
name: bars
signals:
  - {name: span, value: 300}
data:
  - name: table
    values:
      - {cat: a, v: 1}
    transform:
      - {type: filter, test: "datum.v > 0"}
scales:
  - {name: x, type: ordinal, domain: {data: table, field: cat}, range: {signal: span}}
axes:
  - {scale: x, orient: bottom}
marks:
  - name: bars
    type: rect
    from: {data: table}
    encode:
      x: {scale: x, field: cat}
      width: {scale: x, band: true}
`

func TestParse_Defaults(t *testing.T) {
	s, err := Parse([]byte(minimal))
	require.NoError(t, err)
	assert.Equal(t, "bars", s.Name)
	assert.Equal(t, 1024, s.Engine.QueueDepth)
	assert.Equal(t, 5000, s.Engine.StimulusTimeoutMs)
	assert.Equal(t, "info", s.Engine.LogLevel)
	assert.Equal(t, 500.0, s.Width)
	assert.Equal(t, 5, s.Axes[0].Ticks)
	assert.True(t, s.Marks[0].Encode["width"].Band)
}

func TestParse_JSON(t *testing.T) {
	doc := `{"version": "1", "marks": [{"name": "dot", "type": "symbol", "encode": {"x": {"value": 1}}}]}`
	s, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, s.Marks, 1)
	assert.Equal(t, MarkSymbol, s.Marks[0].Type)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "missing version",
			doc:  `marks: []`,
			want: []string{"version is required"},
		},
		{
			name: "unknown references",
			doc: `
version: "1"
marks:
  - name: m
    type: rect
    from: {data: nope}
    encode:
      x: {scale: sx, signal: nosig}
`,
			want: []string{`unknown data "nope"`, `unknown scale "sx"`, `unknown signal "nosig"`},
		},
		{
			name: "duplicates and types",
			doc: `
version: "1"
signals: [{name: a}, {name: a}]
scales:
  - {name: s, type: log, domain: {values: [0, 1]}, range: {values: [0, 1]}}
marks:
  - {name: m, type: rect}
  - {name: m, type: blob}
`,
			want: []string{`duplicate signal "a"`, `unknown type "log"`, `duplicate mark "m"`, `unknown mark type "blob"`},
		},
		{
			name: "bad filter",
			doc: `
version: "1"
data:
  - name: t
    transform:
      - {type: filter, test: "datum.v >"}
      - {type: filter, test: "datum.v > signal.nope"}
      - {type: fold}
`,
			want: []string{"expected operand", `unknown signal "nope"`, `unknown transform type "fold"`},
		},
		{
			name: "group scope",
			doc: `
version: "1"
marks:
  - name: g
    type: group
    scales:
      - {name: inner, type: linear, domain: {values: [0, 1]}, range: {values: [0, 1]}}
    marks:
      - name: child
        type: rect
        encode:
          x: {scale: inner, value: 1}
  - name: other
    type: rect
    encode:
      x: {scale: inner, value: 1}
    marks:
      - {name: nested, type: rect}
`,
			want: []string{`root/other.encode.x: unknown scale "inner"`, "only group marks"},
		},
		{
			name: "value ref",
			doc: `
version: "1"
marks:
  - name: m
    type: rect
    encode:
      x: {}
      y: {value: 1, field: v}
`,
			want: []string{"one of value/field", "only one of value/field"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			for _, w := range tc.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func writeSpec(t *testing.T, path, doc string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
}

func TestLoader_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viz.yaml")
	writeSpec(t, path, minimal)

	l, err := NewLoader(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "bars", l.Spec().Name)

	var seen atomic.Value
	l.OnChange(func(s *Spec) { seen.Store(s.Name) })

	writeSpec(t, path, strings.Replace(minimal, "name: bars", "name: renamed", 1))
	s, err := l.Reload()
	require.NoError(t, err)
	assert.Equal(t, "renamed", s.Name)
	assert.Equal(t, "renamed", seen.Load())

	writeSpec(t, path, "version: [")
	_, err = l.Reload()
	require.Error(t, err)
	assert.Equal(t, "renamed", l.Spec().Name, "a bad document keeps the previous one")
}

func TestLoader_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viz.yaml")
	writeSpec(t, path, minimal)
	l, err := NewLoader(path, nil)
	require.NoError(t, err)

	changed := make(chan string, 16)
	l.OnChange(func(s *Spec) { changed <- s.Name })
	stop, err := l.Watch()
	require.NoError(t, err)
	defer stop()

	writeSpec(t, path, strings.Replace(minimal, "name: bars", "name: watched", 1))
	select {
	case name := <-changed:
		assert.Equal(t, "watched", name)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestNewLoader_MissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}
