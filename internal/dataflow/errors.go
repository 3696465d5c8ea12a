package dataflow

import "errors"

var (
	// ErrAlreadyStamped is returned when a pulse that already carries a stamp
	// is handed to Propagate. Pulses belong to exactly one pass.
	ErrAlreadyStamped = errors.New("pulse already has a non-zero stamp")

	// ErrReentrantPropagate is returned when Propagate is called while a
	// pass on the same graph is still running.
	ErrReentrantPropagate = errors.New("propagate called during an active pass")

	ErrNilPulse  = errors.New("nil pulse")
	ErrNilSource = errors.New("nil source node")

	ErrUnknownSignal = errors.New("unknown signal")
	ErrUnknownTuple  = errors.New("unknown tuple")
)
