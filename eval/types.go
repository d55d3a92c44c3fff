// Package eval is the CU's Evaluation Pipeline (spec.md §4.G): the
// central state machine that resolves a process and module, locates
// starting memory, streams messages from the SU, evaluates each one on
// the worker pool, persists results, and triggers checkpointing.
package eval

import (
	"github.com/permaweb/ao-cu/ordinate"
)

// ModuleOptions mirrors store.ModuleOptions, duplicated here so this
// package does not need to import store's full type graph just to pass
// limits through to a worker.
type ModuleOptions struct {
	MemoryMaxLimit  int64
	ComputeMaxLimit int64
}

// EvalArgs is what a worker receives: the prior memory buffer (moved
// into the worker, never touched by the orchestrator again until it
// comes back), the message to apply, and the module's resource limits.
type EvalArgs struct {
	ProcessID     string
	ModuleID      string
	Memory        []byte
	Options       ModuleOptions
	MessageID     string
	DeepHash      string
	Tags          []Tag
	Data          []byte
	Timestamp     int64
	BlockHeight   int64
	Epoch         int64
	Nonce         int64
	Ordinate      ordinate.Ordinate
	IsAssignment  bool
	Cron          string
}

// Tag is a name/value pair carried on a message.
type Tag struct {
	Name  string
	Value string
}

// Output mirrors store.EvalOutput.
type Output struct {
	Messages    []RawMsg
	Spawns      []RawMsg
	Assignments []string
	OutputData  string
	Error       string
}

// RawMsg is an outbound message or spawn produced by an evaluation.
type RawMsg struct {
	Target string
	Data   []byte
}

// EvalResult is what a worker returns.
type EvalResult struct {
	Memory  []byte
	Output  Output
	GasUsed int64
	Error   error
}

// Evaluator runs one message against a module, producing a new memory
// buffer and an output record. The WASM ABI itself -- how a message is
// marshaled across the linear memory boundary and which export is
// called -- is an out-of-scope collaborator (spec.md §1); Evaluator is
// the seam a concrete implementation plugs into.
type Evaluator interface {
	Evaluate(args EvalArgs) (EvalResult, error)
}
