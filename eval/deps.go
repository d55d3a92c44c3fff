package eval

import (
	"github.com/permaweb/ao-cu/ckpt"
	"github.com/permaweb/ao-cu/memcache"
	"github.com/permaweb/ao-cu/metrics"
	"github.com/permaweb/ao-cu/modcache"
	"github.com/permaweb/ao-cu/store"
	"github.com/permaweb/ao-cu/suclient"
	"github.com/permaweb/ao-cu/wpool"
)

// Deps bundles every collaborator the pipeline needs, per spec.md §9's
// explicit-dependency-injection rule: no package-level service locator,
// every orchestrator takes its dependencies as a plain struct.
type Deps struct {
	Store       *store.Store
	Memory      *memcache.Cache
	Files       *ckpt.FileStore
	Checkpoints *ckpt.Store
	Modules     *modcache.Cache
	SU          *suclient.Client
	Pools       *wpool.Pools
	Metrics     *metrics.Registry
	Evaluator   Evaluator

	// Locator resolves a process's scheduler unit location (spec.md §5);
	// nil is valid when the deployment talks to a single, fixed SU.
	Locator *Locator

	// Access gates which processes/owners Run will evaluate at all
	// (spec.md §6's ALLOW_OWNERS/RESTRICT_PROCESSES/ALLOW_PROCESSES).
	// The zero value is fully permissive.
	Access Access

	// EagerCheckpointGasThreshold triggers an out-of-band checkpoint once
	// a process's gas consumed since its last checkpoint attempt reaches
	// this many units, per EAGER_CHECKPOINT_ACCUMULATED_GAS_THRESHOLD.
	EagerCheckpointGasThreshold int64
}
