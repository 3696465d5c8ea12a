// Package dataflow implements the incremental propagation engine that drives
// a visualization's computation graph.
//
// A Graph owns a set of Nodes connected by listener edges. External stimuli
// (a signal firing, a data source changing) build a Pulse and hand it to
// Graph.Propagate at a source node. The scheduler then walks listeners in
// rank order until the pass converges.
//
// # Ranks
//
// Every node gets a rank from a counter owned by its Graph. Adding a listener
// whose rank is not above its source re-ranks the listener and everything
// downstream of it, so rank(listener) > rank(source) holds whenever a node is
// evaluated. Work items capture the rank at enqueue time and are re-queued if
// the node was re-ranked while they waited.
//
// # Skips
//
// Two optimizations cut redundant work. The hard skip drops a reflow pulse
// reaching a node that has already been evaluated in the same pass. The soft
// skip (Graph.Reevaluate) forwards a pulse without evaluating a node whose
// declared dependencies are untouched by it. Neither changes the converged
// output; both can be disabled with WithHardSkips(false) and
// WithSoftSkips(false).
//
// # Structural edits
//
// Nodes may add or remove listeners while a pass is running. Listeners are
// read after a node's evaluation, so a listener attached during evaluation
// receives the node's output in the same pass.
//
// A Graph is not safe for concurrent use. Propagate runs to completion on the
// calling goroutine and rejects reentrant calls.
package dataflow
