package cu

import (
	"context"
	"sync"

	"github.com/permaweb/ao-cu/cuerr"
	"github.com/permaweb/ao-cu/eval"
	"github.com/permaweb/ao-cu/metrics"
	"github.com/permaweb/ao-cu/ordinate"
	"github.com/permaweb/ao-cu/store"
)

// sharedFuture is one in-flight readState run: every caller whose
// requested bound is reachable from it attaches to the same run
// instead of starting a redundant one (spec.md §5: "a table pending:
// processId -> sharedFuture").
type sharedFuture struct {
	to   ordinate.Ordinate
	done chan struct{}
	res  *eval.Result
	err  error
}

// singleflight is the pending-run table itself, one entry per process.
type singleflight struct {
	mu      sync.Mutex
	pending map[string]*sharedFuture
	metrics *metrics.Registry
}

func newSingleflight(m *metrics.Registry) *singleflight {
	return &singleflight{pending: make(map[string]*sharedFuture), metrics: m}
}

// run executes fn as processID's shared run for "to", publishing it to
// the pending table so concurrent ReadState calls for the same or an
// earlier bound attach instead of duplicating the work. A caller asking
// for a later bound than the in-flight run's target waits for it to
// finish, then starts a new run extending forward from there -- never
// two runs in flight for the same process at once, matching spec.md
// §5's "or extend" wording.
//
// attached reports whether the caller was handed another run's result
// (true) rather than having executed fn itself (false): an attacher's
// own "to" may be behind the shared run's target, so its caller still
// owes it a truncated view rather than the shared result verbatim.
func (s *singleflight) run(processID string, to ordinate.Ordinate, fn func() (*eval.Result, error)) (res *eval.Result, attached bool, err error) {
	for {
		s.mu.Lock()
		existing, ok := s.pending[processID]
		if ok {
			if ordinate.LessEq(to, existing.to) {
				s.mu.Unlock()
				<-existing.done
				return existing.res, true, existing.err
			}
			s.mu.Unlock()
			<-existing.done
			continue
		}

		future := &sharedFuture{to: to, done: make(chan struct{})}
		s.pending[processID] = future
		s.metrics.PendingReads.Set(float64(len(s.pending)))
		s.mu.Unlock()

		future.res, future.err = fn()

		s.mu.Lock()
		delete(s.pending, processID)
		s.metrics.PendingReads.Set(float64(len(s.pending)))
		s.mu.Unlock()

		close(future.done)
		return future.res, false, future.err
	}
}

// PendingCount reports how many processes currently have an in-flight
// readState run, spec.md §4.H's pendingReadStates().
func (s *singleflight) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ReadState brings processID's state up to and including the message
// at "to" and returns the resulting evaluation, coordinating concurrent
// callers through the single-flight table so two requests for the same
// (or an already-covered) bound never run the pipeline twice.
func (c *CU) ReadState(ctx context.Context, processID string, to ordinate.Ordinate) (*eval.Result, error) {
	res, attached, err := c.sf.run(processID, to, func() (*eval.Result, error) {
		return c.deps.Pipeline.Run(ctx, eval.Request{ProcessID: processID, To: to})
	})
	if err != nil {
		return nil, err
	}
	if attached && ordinate.Before(to, res.Ordinate) {
		// The run we attached to went further than this caller asked
		// for; hand back a view trimmed to our own bound instead of the
		// shared run's (possibly further-advanced) result.
		return c.truncatedResult(res, processID, to)
	}
	if ordinate.Before(res.Ordinate, to) {
		log.Warnf("readState for %s reached %s, short of requested %s (store caught up)", processID, res.Ordinate, to)
	}
	return res, nil
}

// truncatedResult re-derives the evaluation result for processID as of
// "to" from the persistence store, reusing moduleID from the shared
// run's result since store.Evaluation rows don't carry one of their own.
func (c *CU) truncatedResult(shared *eval.Result, processID string, to ordinate.Ordinate) (*eval.Result, error) {
	e, err := evaluationAtOrBefore(c.deps.Store, processID, to)
	if err != nil {
		return nil, err
	}
	return &eval.Result{
		ProcessID:  processID,
		ModuleID:   shared.ModuleID,
		Ordinate:   e.Ordinate,
		Timestamp:  e.Timestamp,
		GasUsed:    e.GasUsed,
		LastOutput: e.Output,
	}, nil
}

// evaluationAtOrBefore finds the most recent persisted evaluation for
// processID at or before "to": an exact hit at "to" first, falling back
// to the greatest evaluation strictly below it, since FindEvaluations'
// [from, to) range is upper-exclusive and "to" need not itself be an
// evaluated ordinate.
func evaluationAtOrBefore(st *store.Store, processID string, to ordinate.Ordinate) (*store.Evaluation, error) {
	if e, err := st.FindEvaluation(processID, to, ""); err == nil {
		return e, nil
	} else if !cuerr.Is(err, cuerr.KindNotFound) {
		return nil, err
	}
	found, err := st.FindEvaluations(processID, ordinate.Zero, to, false, 1, store.Desc)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, cuerr.NotFound("no evaluation at or before %s for process %s", to, processID)
	}
	return &found[0], nil
}

// PendingReadStates exposes the count of in-flight readState runs.
func (c *CU) PendingReadStates() int {
	return c.sf.PendingCount()
}
