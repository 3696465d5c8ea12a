// Package spec defines the declarative visualization document, loads it from
// YAML or JSON, and validates it before it is compiled into a scene.
package spec

// Spec is the top-level document.
type Spec struct {
	Version string     `yaml:"version" json:"version"`
	Name    string     `yaml:"name" json:"name,omitempty"`
	Width   float64    `yaml:"width" json:"width"`
	Height  float64    `yaml:"height" json:"height"`
	Engine  EngineConf `yaml:"engine" json:"engine"`

	Signals []Signal `yaml:"signals" json:"signals,omitempty"`
	Data    []Data   `yaml:"data" json:"data,omitempty"`

	// The root group's scope.
	Scales []Scale `yaml:"scales" json:"scales,omitempty"`
	Axes   []Axis  `yaml:"axes" json:"axes,omitempty"`
	Marks  []Mark  `yaml:"marks" json:"marks,omitempty"`
}

// EngineConf holds propagation and worker settings.
type EngineConf struct {
	QueueDepth        int    `yaml:"queue_depth" json:"queue_depth"`
	StimulusTimeoutMs int    `yaml:"stimulus_timeout_ms" json:"stimulus_timeout_ms"`
	DisableHardSkips  bool   `yaml:"disable_hard_skips" json:"disable_hard_skips"`
	DisableSoftSkips  bool   `yaml:"disable_soft_skips" json:"disable_soft_skips"`
	LogLevel          string `yaml:"log_level" json:"log_level,omitempty"`
}

// Signal is a named value settable from outside.
type Signal struct {
	Name  string `yaml:"name" json:"name"`
	Value any    `yaml:"value" json:"value"`
}

// Data is a named dataset with inline values and an optional transform
// pipeline.
type Data struct {
	Name      string           `yaml:"name" json:"name"`
	Values    []map[string]any `yaml:"values" json:"values,omitempty"`
	Transform []Transform      `yaml:"transform" json:"transform,omitempty"`
}

// Transform is one pipeline step. Only "filter" is supported.
type Transform struct {
	Type string `yaml:"type" json:"type"`
	Test string `yaml:"test" json:"test,omitempty"`
}

// Scale maps data values to visual values.
type Scale struct {
	Name    string      `yaml:"name" json:"name"`
	Type    string      `yaml:"type" json:"type"` // linear | ordinal
	Domain  ScaleDomain `yaml:"domain" json:"domain"`
	Range   ScaleRange  `yaml:"range" json:"range"`
	Zero    bool        `yaml:"zero" json:"zero,omitempty"`
	Padding float64     `yaml:"padding" json:"padding,omitempty"`
}

// ScaleDomain is either literal values or a field of a dataset.
type ScaleDomain struct {
	Values []any  `yaml:"values" json:"values,omitempty"`
	Data   string `yaml:"data" json:"data,omitempty"`
	Field  string `yaml:"field" json:"field,omitempty"`
}

// ScaleRange is either literal bounds or [0, signal].
type ScaleRange struct {
	Values []float64 `yaml:"values" json:"values,omitempty"`
	Signal string    `yaml:"signal" json:"signal,omitempty"`
}

// Axis draws ticks for a scale.
type Axis struct {
	Scale  string `yaml:"scale" json:"scale"`
	Orient string `yaml:"orient" json:"orient"` // bottom | top | left | right
	Ticks  int    `yaml:"ticks" json:"ticks,omitempty"`
	Title  string `yaml:"title" json:"title,omitempty"`
}

// Mark is one visual element definition. A group mark carries its own
// scales, axes and child marks.
type Mark struct {
	Name   string              `yaml:"name" json:"name"`
	Type   string              `yaml:"type" json:"type"`
	From   *From               `yaml:"from" json:"from,omitempty"`
	Encode map[string]ValueRef `yaml:"encode" json:"encode,omitempty"`

	Scales []Scale `yaml:"scales" json:"scales,omitempty"`
	Axes   []Axis  `yaml:"axes" json:"axes,omitempty"`
	Marks  []Mark  `yaml:"marks" json:"marks,omitempty"`
}

// From binds a mark to a dataset. A mark without one renders a single item
// for its enclosing group's datum.
type From struct {
	Data string `yaml:"data" json:"data"`
}

// ValueRef computes one visual property.
type ValueRef struct {
	Value       any     `yaml:"value" json:"value,omitempty"`
	Field       string  `yaml:"field" json:"field,omitempty"`
	FieldSignal string  `yaml:"field_signal" json:"field_signal,omitempty"`
	Signal      string  `yaml:"signal" json:"signal,omitempty"`
	Scale       string  `yaml:"scale" json:"scale,omitempty"`
	Band        bool    `yaml:"band" json:"band,omitempty"`
	Offset      float64 `yaml:"offset" json:"offset,omitempty"`
}

// Mark types.
const (
	MarkRect   = "rect"
	MarkSymbol = "symbol"
	MarkRule   = "rule"
	MarkText   = "text"
	MarkGroup  = "group"
)

// Scale types.
const (
	ScaleLinear  = "linear"
	ScaleOrdinal = "ordinal"
)

// IsGroup reports whether the mark is a group.
func (m *Mark) IsGroup() bool { return m.Type == MarkGroup }
