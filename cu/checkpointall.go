package cu

import (
	"sync"

	"github.com/permaweb/ao-cu/ckpt"
	"github.com/permaweb/ao-cu/memcache"
)

const checkpointAllConcurrency = 10

// checkpointRun is a module-level latch: concurrent CheckpointAll calls
// share a single sweep rather than each kicking off their own, the
// same singleton-run shape the teacher's xreg/dreg background-job
// registries use to collapse concurrent triggers of the same job.
type checkpointRun struct {
	mu      sync.Mutex
	running bool
	done    chan struct{}
	result  Summary
}

func newCheckpointRun() *checkpointRun {
	return &checkpointRun{}
}

// Summary tallies one CheckpointAll sweep.
type Summary struct {
	Attempted int
	Saved     int
	Failed    int
}

// CheckpointAll walks every process currently resident in the memory
// cache and saves a checkpoint for each, up to checkpointAllConcurrency
// at a time. A call arriving while a sweep is already running waits for
// that sweep and returns its result rather than starting a second one.
func (c *CU) CheckpointAll() Summary {
	c.cp.mu.Lock()
	if c.cp.running {
		done := c.cp.done
		c.cp.mu.Unlock()
		<-done
		c.cp.mu.Lock()
		result := c.cp.result
		c.cp.mu.Unlock()
		return result
	}
	c.cp.running = true
	c.cp.done = make(chan struct{})
	c.cp.mu.Unlock()

	summary := c.runCheckpointSweep()

	c.cp.mu.Lock()
	c.cp.result = summary
	c.cp.running = false
	done := c.cp.done
	c.cp.mu.Unlock()
	close(done)

	return summary
}

func (c *CU) runCheckpointSweep() Summary {
	type target struct {
		processID string
		pm        memcache.ProcessMemory
	}
	var targets []target
	c.deps.Memory.ForEach(func(processID string, pm memcache.ProcessMemory) {
		targets = append(targets, target{processID: processID, pm: pm})
	})

	var summary Summary
	var mu sync.Mutex
	sem := make(chan struct{}, checkpointAllConcurrency)
	var wg sync.WaitGroup

	for _, t := range targets {
		t := t
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			mu.Lock()
			summary.Attempted++
			mu.Unlock()

			memory := t.pm.Memory
			if t.pm.IsFileBacked() {
				rehydrated, rerr := c.deps.Files.ReadProcessMemoryFile(t.pm.File)
				if rerr != nil {
					mu.Lock()
					summary.Failed++
					c.deps.Metrics.CheckpointsFailed.Inc()
					mu.Unlock()
					return
				}
				memory = rehydrated
			}

			err := c.deps.Checkpoints.Save(ckpt.Input{
				ProcessID:   t.processID,
				ModuleID:    t.pm.ModuleID,
				Ordinate:    t.pm.Evaluation.Ordinate,
				Timestamp:   t.pm.Evaluation.Timestamp,
				BlockHeight: t.pm.Evaluation.BlockHeight,
				Epoch:       t.pm.Evaluation.Epoch,
				Nonce:       t.pm.Evaluation.Nonce,
				Memory:      memory,
			})

			mu.Lock()
			if err != nil {
				summary.Failed++
				c.deps.Metrics.CheckpointsFailed.Inc()
			} else {
				summary.Saved++
				c.deps.Metrics.CheckpointsOK.Inc()
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return summary
}
