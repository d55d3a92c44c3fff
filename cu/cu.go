// Package cu is the CU's root orchestrator (spec.md §4.H): it exposes
// the read APIs a caller actually invokes -- readState, readResult,
// readResults, readCronResults, dryRun, pendingReadStates,
// checkpointAll, healthcheck, stats, metrics -- on top of the
// Evaluation Pipeline, wiring single-flight coordination and
// observability around it the way the teacher wires its own xreg/dreg
// singleton-run registries around long-lived background jobs.
package cu

import (
	"os"

	"github.com/permaweb/ao-cu/ckpt"
	"github.com/permaweb/ao-cu/culog"
	"github.com/permaweb/ao-cu/eval"
	"github.com/permaweb/ao-cu/memcache"
	"github.com/permaweb/ao-cu/metrics"
	"github.com/permaweb/ao-cu/store"
	"github.com/permaweb/ao-cu/suclient"
	"github.com/permaweb/ao-cu/wpool"
)

var log = culog.New(os.Stdout, "cu")

// Deps bundles every collaborator CU needs, per spec.md §9's explicit
// dependency-injection rule.
type Deps struct {
	Pipeline    *eval.Pipeline
	Store       *store.Store
	Memory      *memcache.Cache
	Files       *ckpt.FileStore
	Checkpoints *ckpt.Store
	SU          *suclient.Client
	Pools       *wpool.Pools
	Metrics     *metrics.Registry

	// WalletAddress answers healthcheck(); empty when no signer is
	// configured (checkpoint signing disabled).
	WalletAddress string
}

// CU is the process-wide handle the thin HTTP layer (out of scope per
// spec.md §1) calls into.
type CU struct {
	deps Deps

	sf *singleflight
	cp *checkpointRun
}

// New builds a CU over deps.
func New(deps Deps) *CU {
	return &CU{
		deps: deps,
		sf:   newSingleflight(deps.Metrics),
		cp:   newCheckpointRun(),
	}
}
