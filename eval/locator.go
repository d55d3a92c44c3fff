package eval

import (
	"sync"
	"time"

	"github.com/permaweb/ao-cu/cuerr"
)

// BatchResolveFunc resolves a batch of distinct processIds to their
// scheduler unit endpoints in one round trip.
type BatchResolveFunc func(processIDs []string) (map[string]string, error)

// Locator is spec.md §5's locateProcess: a Dataloader-style batched,
// deduped resolver. Concurrent Resolve calls for distinct processIds
// arriving within one batch window are coalesced into a single
// BatchResolveFunc call; the per-window result cache is discarded at
// the end of every window (spec.md §5: "batch-window cache is cleared
// every tick to avoid stale duplication"), so a process that moves to
// a different scheduler unit between runs is picked up promptly rather
// than being pinned to a stale resolution forever.
type Locator struct {
	resolve BatchResolveFunc
	window  time.Duration

	mu      sync.Mutex
	pending map[string][]chan locateResult
	timer   *time.Timer
}

type locateResult struct {
	endpoint string
	err      error
}

// NewLocator builds a Locator that flushes its batch window every
// window (spec.md's "short-lived batch window"; a few milliseconds is
// typical). resolve performs the actual lookup, e.g. against a
// scheduler registry service.
func NewLocator(resolve BatchResolveFunc, window time.Duration) *Locator {
	if window <= 0 {
		window = 2 * time.Millisecond
	}
	return &Locator{resolve: resolve, window: window, pending: make(map[string][]chan locateResult)}
}

// Resolve returns the scheduler unit endpoint for processID, batching
// this call together with any other Resolve calls within the current
// window.
func (l *Locator) Resolve(processID string) (string, error) {
	if l.resolve == nil {
		return "", cuerr.NotFound("no scheduler locator configured")
	}

	ch := make(chan locateResult, 1)
	l.mu.Lock()
	l.pending[processID] = append(l.pending[processID], ch)
	if l.timer == nil {
		l.timer = time.AfterFunc(l.window, l.flush)
	}
	l.mu.Unlock()

	res := <-ch
	return res.endpoint, res.err
}

func (l *Locator) flush() {
	l.mu.Lock()
	batch := l.pending
	l.pending = make(map[string][]chan locateResult)
	l.timer = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	ids := make([]string, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}

	resolved, err := l.resolve(ids)
	for id, chans := range batch {
		var res locateResult
		if err != nil {
			res.err = cuerr.Wrap(cuerr.KindTransient, err, "locating scheduler for %s", id)
		} else if endpoint, ok := resolved[id]; ok {
			res.endpoint = endpoint
		} else {
			res.err = cuerr.NotFound("no scheduler location for process %s", id)
		}
		for _, ch := range chans {
			ch <- res
		}
	}
}
