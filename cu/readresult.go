package cu

import (
	"context"

	"github.com/permaweb/ao-cu/eval"
	"github.com/permaweb/ao-cu/ordinate"
	"github.com/permaweb/ao-cu/store"
)

// ReadResult resolves messageID to its ordinate via the SU, brings
// processID current up to that point, and returns the evaluation
// recorded for it.
func (c *CU) ReadResult(ctx context.Context, processID, messageID string) (*store.Evaluation, error) {
	meta, err := c.deps.SU.LoadMessageMeta(messageID)
	if err != nil {
		return nil, err
	}
	if _, err := c.ReadState(ctx, processID, meta.Ordinate); err != nil {
		return nil, err
	}
	return c.deps.Store.FindEvaluation(processID, meta.Ordinate, "")
}

// ReadResults is a pure query over already-persisted evaluations; it
// triggers no evaluation work of its own (spec.md §4.H: "reads what has
// already been computed").
func (c *CU) ReadResults(processID string, from, to ordinate.Ordinate, limit int, sort store.Sort) ([]store.Evaluation, error) {
	return c.deps.Store.FindEvaluations(processID, from, to, false, limit, sort)
}

// ReadCronResults is ReadResults restricted to cron evaluations.
func (c *CU) ReadCronResults(processID string, from, to ordinate.Ordinate, limit int) ([]store.Evaluation, error) {
	return c.deps.Store.FindEvaluations(processID, from, to, true, limit, store.Asc)
}

// DryRun brings processID current up to upTo via ReadState (cheaply,
// reusing whatever is already persisted), then evaluates overlay
// against the process's latest reachable state on the dry-run pool;
// the overlay evaluation itself persists nothing and leaves the memory
// cache untouched.
func (c *CU) DryRun(ctx context.Context, processID string, upTo ordinate.Ordinate, overlay eval.Overlay) (*eval.Result, error) {
	if upTo != "" {
		if _, err := c.ReadState(ctx, processID, upTo); err != nil {
			return nil, err
		}
	}
	return c.deps.Pipeline.RunOverlay(ctx, processID, overlay)
}
