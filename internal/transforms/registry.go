package transforms

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/vizflow/internal/dataflow"
	"github.com/gyaneshwarpardhi/vizflow/internal/spec"
)

var ErrUnknownTransform = errors.New("unknown transform type")

// Factory builds one kind of transform into a data source's pipeline.
type Factory interface {
	// Type returns the spec type string this factory is registered under.
	Type() string
	// Build appends the transform to ds and returns its node.
	Build(ds *dataflow.DataSource, def spec.Transform, log *slog.Logger) (*dataflow.Node, error)
}

// Registry maps transform type strings to their factories.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default returns a registry holding the built-in transforms.
func Default() *Registry {
	r := NewRegistry()
	r.Register(filterFactory{})
	return r
}

// Register adds a factory. Panics on duplicate type to surface misconfiguration early.
func (r *Registry) Register(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[f.Type()]; exists {
		panic(fmt.Sprintf("transform registry: duplicate type %q", f.Type()))
	}
	r.factories[f.Type()] = f
}

// Get returns the factory for the given type.
func (r *Registry) Get(typ string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[typ]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTransform, typ)
	}
	return f, nil
}

// Types returns all registered type strings, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build appends every transform in defs to ds, in order.
func (r *Registry) Build(ds *dataflow.DataSource, defs []spec.Transform, log *slog.Logger) error {
	for i, def := range defs {
		f, err := r.Get(def.Type)
		if err != nil {
			return fmt.Errorf("data %s: transform %d: %w", ds.Name(), i, err)
		}
		if _, err := f.Build(ds, def, log); err != nil {
			return fmt.Errorf("data %s: transform %d: %w", ds.Name(), i, err)
		}
	}
	return nil
}

type filterFactory struct{}

func (filterFactory) Type() string { return "filter" }

func (filterFactory) Build(ds *dataflow.DataSource, def spec.Transform, log *slog.Logger) (*dataflow.Node, error) {
	f, err := NewFilter(ds, def.Test, log)
	if err != nil {
		return nil, err
	}
	return f.Node, nil
}
