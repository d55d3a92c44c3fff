package eval

import (
	"context"

	"github.com/permaweb/ao-cu/wpool"
)

// Overlay is an ad-hoc message evaluated against a process's current
// state without being recorded anywhere, spec.md §4.G's dryRun "second
// phase": after the pipeline is brought current up to some persisted
// message, the caller wants to see the effect of a message that never
// actually went through the SU.
type Overlay struct {
	Tags        []Tag
	Data        []byte
	Timestamp   int64
	BlockHeight int64
	Epoch       int64
	Nonce       int64
}

// RunOverlay evaluates overlay against processID's current reachable
// memory on the dry-run pool, persisting nothing and leaving the
// memory cache untouched (spec.md §4.G: "without persisting anything
// and without mutating B"). Callers are expected to have already
// brought the process current via a non-dry-run Run before calling
// this; a DryRun Run leaves the state read here unchanged.
func (p *Pipeline) RunOverlay(ctx context.Context, processID string, overlay Overlay) (*Result, error) {
	proc, err := resolveProcess(p.deps, processID)
	if err != nil {
		return nil, err
	}
	if err := checkAccess(p.deps.Access, proc); err != nil {
		return nil, err
	}
	mod, err := resolveModule(p.deps, proc.ModuleID)
	if err != nil {
		return nil, err
	}

	state, _, err := latestMemory(p.deps, proc.ID, mod.ID)
	if err != nil {
		return nil, err
	}

	out, err := p.deps.Pools.DryRun.Submit(ctx, wpool.Task{
		Prep: func() any {
			cloned := make([]byte, len(state.Memory))
			copy(cloned, state.Memory)
			return cloned
		},
		Execute: func(prepped any) (any, error) {
			return p.deps.Evaluator.Evaluate(EvalArgs{
				ProcessID: proc.ID,
				ModuleID:  mod.ID,
				Memory:    prepped.([]byte),
				Options:   ModuleOptions{MemoryMaxLimit: mod.ModuleOptions.MemoryLimit, ComputeMaxLimit: mod.ModuleOptions.ComputeLimit},
				Tags:      overlay.Tags,
				Data:      overlay.Data,
				Timestamp: overlay.Timestamp, BlockHeight: overlay.BlockHeight, Epoch: overlay.Epoch, Nonce: overlay.Nonce,
			})
		},
	})
	if err != nil {
		return nil, err
	}
	res := out.(EvalResult)

	p.deps.Metrics.GasUsed.Add(float64(res.GasUsed))
	p.deps.Metrics.EvaluationCounter.WithLabelValues("dryrun", "overlay", errorLabel(res.Output.Error)).Inc()

	return &Result{
		ProcessID:       proc.ID,
		ModuleID:        mod.ID,
		Ordinate:        state.Ordinate,
		Timestamp:       state.Timestamp,
		GasUsed:         res.GasUsed,
		MessagesApplied: 1,
		LastOutput:      toStoreOutput(res.Output),
	}, nil
}
