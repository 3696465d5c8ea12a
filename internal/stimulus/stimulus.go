// Package stimulus models the external changes a view accepts: signal
// updates and data inserts, removals and updates.
package stimulus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/vizflow/internal/dataflow"
)

// Kind selects what a stimulus changes.
type Kind string

const (
	KindSignal  Kind = "signal"  // set Target to Value and fire it
	KindSignals Kind = "signals" // set every entry of Signals and fire them in one pass
	KindInsert  Kind = "insert"  // insert Values into data Target
	KindRemove  Kind = "remove"  // remove IDs from data Target
	KindUpdate  Kind = "update"  // set Fields on tuple TupleID of data Target
)

// Stimulus is the canonical input model for every change.
type Stimulus struct {
	ID         string           `json:"id"`
	Kind       Kind             `json:"kind"`
	Target     string           `json:"target,omitempty"`
	Value      any              `json:"value,omitempty"`
	Signals    map[string]any   `json:"signals,omitempty"`
	Values     []map[string]any `json:"values,omitempty"`
	IDs        []string         `json:"ids,omitempty"`
	TupleID    string           `json:"tuple_id,omitempty"`
	Fields     map[string]any   `json:"fields,omitempty"`
	ReceivedAt time.Time        `json:"-"`
}

var ErrInvalid = errors.New("invalid stimulus")

// New returns a stimulus with a fresh id.
func New(kind Kind, target string) *Stimulus {
	return &Stimulus{ID: uuid.NewString(), Kind: kind, Target: target, ReceivedAt: time.Now()}
}

// Signal is shorthand for a single signal update.
func Signal(name string, value any) *Stimulus {
	s := New(KindSignal, name)
	s.Value = value
	return s
}

// Stamp fills in the id and receive time when missing.
func (s *Stimulus) Stamp() *Stimulus {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.ReceivedAt.IsZero() {
		s.ReceivedAt = time.Now()
	}
	return s
}

// Validate checks that the fields required by Kind are present.
func (s *Stimulus) Validate() error {
	switch s.Kind {
	case KindSignal:
		if s.Target == "" {
			return fmt.Errorf("%w: signal name is required", ErrInvalid)
		}
	case KindSignals:
		if len(s.Signals) == 0 {
			return fmt.Errorf("%w: signals must not be empty", ErrInvalid)
		}
	case KindInsert:
		if s.Target == "" || len(s.Values) == 0 {
			return fmt.Errorf("%w: insert needs a data name and values", ErrInvalid)
		}
	case KindRemove:
		if s.Target == "" || len(s.IDs) == 0 {
			return fmt.Errorf("%w: remove needs a data name and ids", ErrInvalid)
		}
	case KindUpdate:
		if s.Target == "" || s.TupleID == "" || len(s.Fields) == 0 {
			return fmt.Errorf("%w: update needs a data name, tuple_id and fields", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalid, s.Kind)
	}
	return nil
}

// Apply propagates the stimulus through g. It returns once the pass has
// converged.
func (s *Stimulus) Apply(ctx context.Context, g *dataflow.Graph) error {
	if err := s.Validate(); err != nil {
		return err
	}
	switch s.Kind {
	case KindSignal:
		sig, ok := g.Signal(s.Target)
		if !ok {
			return fmt.Errorf("%w: %q", dataflow.ErrUnknownSignal, s.Target)
		}
		return sig.Set(s.Value).Fire(ctx)
	case KindSignals:
		// Resolve every name before setting any value.
		sigs := make(map[string]*dataflow.Signal, len(s.Signals))
		for name := range s.Signals {
			sig, ok := g.Signal(name)
			if !ok {
				return fmt.Errorf("%w: %q", dataflow.ErrUnknownSignal, name)
			}
			sigs[name] = sig
		}
		names := make([]string, 0, len(sigs))
		for name, sig := range sigs {
			sig.Set(s.Signals[name])
			names = append(names, name)
		}
		sort.Strings(names)
		return g.FireSignals(ctx, names...)
	}

	ds, ok := g.Data(s.Target)
	if !ok {
		return fmt.Errorf("%w: unknown data %q", ErrInvalid, s.Target)
	}
	switch s.Kind {
	case KindInsert:
		return ds.Insert(ctx, s.Values...)
	case KindRemove:
		return ds.Remove(ctx, s.IDs...)
	default:
		return ds.Update(ctx, s.TupleID, s.Fields)
	}
}
