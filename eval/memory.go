package eval

import (
	"strings"

	"github.com/permaweb/ao-cu/memcache"
	"github.com/permaweb/ao-cu/ordinate"
)

// unbounded stands in for "no upper bound" in a find pipeline that only
// knows how to compare against a concrete ordinate: 80 nines outgrows
// any realistic block height, message sequence number, or timestamp by
// many orders of magnitude.
var unbounded = ordinate.Ordinate(strings.Repeat("9", 80))

// latestMemory is findLatestProcessMemoryBefore with no upper bound,
// used by operations that want a process's current reachable state
// rather than its state as of some historical ordinate (e.g. dryRun's
// overlay evaluation).
func latestMemory(deps Deps, processID, moduleID string) (MemoryState, bool, error) {
	return findLatestProcessMemoryBefore(deps, processID, moduleID, unbounded)
}

// MemoryState is the starting point a message stream resumes from.
type MemoryState struct {
	Memory    []byte
	Ordinate  ordinate.Ordinate
	Timestamp int64
	GasUsed   int64
}

// findLatestProcessMemoryBefore composes the CU's three memory tiers,
// cheapest first (spec.md §4.B/§4.C/§4.A): the in-RAM memory cache, then
// the checkpoint store (which itself tries its own local index before a
// remote gateway), then a cold start at ordinate zero. found is false
// only for the cold-start case, never an error.
func findLatestProcessMemoryBefore(deps Deps, processID, moduleID string, before ordinate.Ordinate) (MemoryState, bool, error) {
	if pm, ok := deps.Memory.Get(processID); ok && ordinate.LessEq(pm.Evaluation.Ordinate, before) {
		memory := pm.Memory
		if pm.IsFileBacked() {
			data, err := deps.Files.ReadProcessMemoryFile(pm.File)
			if err == nil {
				memory = data
			}
		}
		if len(memory) > 0 || pm.Evaluation.Ordinate.IsZero() {
			deps.Metrics.CacheHits.Inc()
			return MemoryState{
				Memory:    memory,
				Ordinate:  pm.Evaluation.Ordinate,
				Timestamp: pm.Evaluation.Timestamp,
				GasUsed:   pm.GasUsed,
			}, true, nil
		}
	}
	deps.Metrics.CacheMisses.Inc()

	memory, o, timestamp, found, err := deps.Checkpoints.Restore(processID, moduleID, before)
	if err != nil {
		return MemoryState{}, false, err
	}
	if found {
		return MemoryState{Memory: memory, Ordinate: o, Timestamp: timestamp}, true, nil
	}

	return MemoryState{Memory: nil, Ordinate: ordinate.Zero, Timestamp: 0}, false, nil
}

// saveToMemoryCache writes the process's latest reachable state back
// into the memory cache, satisfied by *ckpt.FileStore as the Spiller an
// eviction spills through.
func saveToMemoryCache(deps Deps, processID, moduleID string, state MemoryState) {
	deps.Memory.Set(processID, memcache.ProcessMemory{
		Memory:   state.Memory,
		ModuleID: moduleID,
		Evaluation: memcache.EvalRef{
			ProcessID: processID,
			Ordinate:  state.Ordinate,
			Timestamp: state.Timestamp,
		},
		GasUsed: state.GasUsed,
	})
}
