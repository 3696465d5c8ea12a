package dataflow

import (
	"fmt"
	"sort"
)

// Evaluator is a node's computation. It returns the pulse to forward to the
// node's listeners, DoNotPropagate to end the branch, or an error which
// aborts the pass.
type Evaluator interface {
	Evaluate(p *Pulse) (*Pulse, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(p *Pulse) (*Pulse, error)

func (f EvaluatorFunc) Evaluate(p *Pulse) (*Pulse, error) { return f(p) }

// Node is the unit of computation in a Graph.
type Node struct {
	id    int64
	name  string
	graph *Graph

	rank      int64
	last      int64
	listeners []*Node

	deps   [numDepKinds]map[string]struct{}
	router bool
	merges bool

	eval Evaluator
}

// NewNode creates a node owned by g. A nil evaluator forwards its input
// unchanged.
func (g *Graph) NewNode(name string, eval Evaluator) *Node {
	g.ids++
	return &Node{
		id:    g.ids,
		name:  name,
		graph: g,
		rank:  g.nextRank(),
		eval:  eval,
	}
}

func (n *Node) ID() int64      { return n.id }
func (n *Node) Name() string   { return n.name }
func (n *Node) Graph() *Graph  { return n.graph }
func (n *Node) Rank() int64    { return n.rank }
func (n *Node) Last() int64    { return n.last }
func (n *Node) Router() bool   { return n.router }
func (n *Node) String() string { return fmt.Sprintf("%s#%d", n.name, n.id) }

// SetEvaluator replaces the node's computation.
func (n *Node) SetEvaluator(eval Evaluator) *Node {
	n.eval = eval
	return n
}

// SetRouter marks the node as one that must run whenever a pulse adds or
// removes items, regardless of its declared dependencies.
func (n *Node) SetRouter(router bool) *Node {
	n.router = router
	return n
}

// SetMerging makes the scheduler fold every pulse reaching the node within
// one pass into a single pending work item.
func (n *Node) SetMerging(merges bool) *Node {
	n.merges = merges
	return n
}

// Listeners returns the node's downstream nodes in registration order.
func (n *Node) Listeners() []*Node {
	return append([]*Node(nil), n.listeners...)
}

// HasListener reports whether l is registered on n.
func (n *Node) HasListener(l *Node) bool {
	return n.indexOf(l) >= 0
}

// AddListener registers l downstream of n. Registering an existing listener
// is a no-op. If l does not rank above n, l and its transitive listeners are
// re-ranked.
func (n *Node) AddListener(l *Node) *Node {
	if l == nil || n.indexOf(l) >= 0 {
		return n
	}
	n.listeners = append(n.listeners, l)
	if l.rank <= n.rank {
		l.rerank()
	}
	return n
}

// RemoveListener drops the edge n -> l. It reports whether the edge existed.
func (n *Node) RemoveListener(l *Node) bool {
	i := n.indexOf(l)
	if i < 0 {
		return false
	}
	n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
	return true
}

// Disconnect removes every outgoing edge.
func (n *Node) Disconnect() {
	n.listeners = nil
}

// Dependency declares names the node's output depends on in the given
// channel. A node with declared dependencies is subject to the soft skip.
func (n *Node) Dependency(kind DepKind, names ...string) *Node {
	if n.deps[kind] == nil {
		n.deps[kind] = make(map[string]struct{}, len(names))
	}
	for _, name := range names {
		n.deps[kind][name] = struct{}{}
	}
	return n
}

// Deps returns the declared dependencies of one channel, sorted.
func (n *Node) Deps(kind DepKind) []string {
	out := make([]string, 0, len(n.deps[kind]))
	for name := range n.deps[kind] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HasDeps reports whether any dependency was declared.
func (n *Node) HasDeps() bool {
	for k := range n.deps {
		if n.deps[k] != nil {
			return true
		}
	}
	return false
}

func (n *Node) evaluate(p *Pulse) (*Pulse, error) {
	if n.eval == nil {
		return p, nil
	}
	out, err := n.eval.Evaluate(p)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return p, nil
	}
	return out, nil
}

func (n *Node) indexOf(l *Node) int {
	for i, x := range n.listeners {
		if x == l {
			return i
		}
	}
	return -1
}

// rerank gives n a fresh rank and pushes every listener that no longer
// ranks above its source. The graph must be acyclic.
func (n *Node) rerank() {
	q := []*Node{n}
	for len(q) > 0 {
		cur := q[0]
		q = q[1:]
		cur.rank = cur.graph.nextRank()
		for _, l := range cur.listeners {
			if l.rank <= cur.rank {
				q = append(q, l)
			}
		}
	}
}
