// Package hk provides a mechanism for registering cleanup and periodic
// callback functions invoked at specified intervals, adapted from the
// teacher's hk package. The CU uses it for the memory cache's TTL
// eviction sweep (§4.B), a "long timer" that may need a duration past
// the platform's native single-timer practical horizon, so
// registrations are driven off one shared ticking loop (cascaded)
// rather than one time.Timer per registration. The per-process
// checkpoint creation throttle (§4.C) does not use it: package ckpt
// compares elapsed time on each save instead.
package hk

import (
	"container/heap"
	"sync"
	"time"
)

// CB is a housekeeping callback. Its return value is the delay until it
// should run again; returning 0 (or negative) means "run again at the
// default interval."
type CB func() time.Duration

const (
	// DefaultInterval is used when a registered callback requests
	// immediate rescheduling with a non-positive duration.
	DefaultInterval = time.Minute

	// NoPriority marks a callback that doesn't need to run before others
	// scheduled at the same tick.
	NoPriority = 0
)

type request struct {
	name     string
	f        CB
	initial  time.Duration
	priority int
}

type entry struct {
	name     string
	f        CB
	due      time.Time
	priority int
	index    int // heap.Interface bookkeeping
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].priority > h[j].priority
	}
	return h[i].due.Before(h[j].due)
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Housekeeper runs registered callbacks on their own schedule, each
// tracked as a min-heap entry ordered by next-due time so the run loop
// never needs more than one pending timer regardless of how many (and
// how long-interval) callbacks are registered -- this is the "cascaded
// shorter timers" technique spec.md §9 asks for: a single tick loop
// ticking at min(untilNextDue, capInterval), re-arming itself each pass
// instead of relying on any one time.Duration exceeding the runtime's
// practical timer horizon.
type Housekeeper struct {
	mu       sync.Mutex
	byName   map[string]*entry
	h        entryHeap
	reqCh    chan request
	unregCh  chan string
	stopCh   chan struct{}
	started  chan struct{}
	startOne sync.Once
	stopOne  sync.Once

	// capInterval bounds how long the run loop ever sleeps in one pass,
	// so registrations with very long periods (days) still get picked up
	// promptly if something reschedules them sooner in the meantime.
	capInterval time.Duration
}

// DefaultHK is the process-wide housekeeper instance, mirroring the
// teacher's package-level default.
var DefaultHK = New(time.Minute)

// New builds a Housekeeper that never sleeps longer than capInterval
// between due-time checks.
func New(capInterval time.Duration) *Housekeeper {
	if capInterval <= 0 {
		capInterval = time.Minute
	}
	return &Housekeeper{
		byName:      make(map[string]*entry),
		reqCh:       make(chan request, 64),
		unregCh:     make(chan string, 64),
		stopCh:      make(chan struct{}),
		started:     make(chan struct{}),
		capInterval: capInterval,
	}
}

// Reg registers f to first run after initial, then again after whatever
// duration f itself returns each time it runs.
func (hk *Housekeeper) Reg(name string, f CB, initial time.Duration) {
	hk.reqCh <- request{name: name, f: f, initial: initial}
}

// RegPriority is like Reg but gives the callback priority among others
// due at the exact same instant (higher runs first). The memory cache
// registers its TTL sweep with plain Reg.
func (hk *Housekeeper) RegPriority(name string, f CB, initial time.Duration, priority int) {
	hk.reqCh <- request{name: name, f: f, initial: initial, priority: priority}
}

// Unreg cancels a previously registered callback.
func (hk *Housekeeper) Unreg(name string) {
	hk.unregCh <- name
}

// Run starts the housekeeper's loop; it blocks until Stop is called.
func (hk *Housekeeper) Run() {
	close(hk.started)
	for {
		sleep := hk.capInterval
		hk.mu.Lock()
		if hk.h.Len() > 0 {
			if d := time.Until(hk.h[0].due); d < sleep {
				if d < 0 {
					d = 0
				}
				sleep = d
			}
		}
		hk.mu.Unlock()

		timer := time.NewTimer(sleep)
		select {
		case <-hk.stopCh:
			timer.Stop()
			return
		case req := <-hk.reqCh:
			timer.Stop()
			hk.apply(req)
		case name := <-hk.unregCh:
			timer.Stop()
			hk.remove(name)
		case <-timer.C:
			hk.fireDue()
		}
	}
}

// Stop terminates the run loop. Safe to call multiple times.
func (hk *Housekeeper) Stop() {
	hk.stopOne.Do(func() { close(hk.stopCh) })
}

func (hk *Housekeeper) apply(req request) {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	if old, ok := hk.byName[req.name]; ok {
		heap.Remove(&hk.h, old.index)
	}
	e := &entry{name: req.name, f: req.f, due: time.Now().Add(req.initial), priority: req.priority}
	hk.byName[req.name] = e
	heap.Push(&hk.h, e)
}

func (hk *Housekeeper) remove(name string) {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	if e, ok := hk.byName[name]; ok {
		heap.Remove(&hk.h, e.index)
		delete(hk.byName, name)
	}
}

func (hk *Housekeeper) fireDue() {
	now := time.Now()
	var due []*entry
	hk.mu.Lock()
	for hk.h.Len() > 0 && !hk.h[0].due.After(now) {
		due = append(due, heap.Pop(&hk.h).(*entry))
	}
	hk.mu.Unlock()

	for _, e := range due {
		next := e.f()
		if next <= 0 {
			next = DefaultInterval
		}
		hk.mu.Lock()
		e.due = time.Now().Add(next)
		heap.Push(&hk.h, e)
		hk.mu.Unlock()
	}
}

// WaitStarted blocks until Run has been called at least once, matching
// the teacher's test helper of the same name.
func (hk *Housekeeper) WaitStarted() { <-hk.started }

// TestInit resets DefaultHK for test isolation, matching the teacher's
// hk.TestInit used by hk/housekeeper_suite_test.go.
func TestInit() { DefaultHK = New(time.Millisecond * 10) }

// package-level convenience mirroring the teacher's exported helpers.
func Reg(name string, f CB, initial time.Duration) { DefaultHK.Reg(name, f, initial) }
func Unreg(name string)                            { DefaultHK.Unreg(name) }
func WaitStarted()                                 { DefaultHK.WaitStarted() }
