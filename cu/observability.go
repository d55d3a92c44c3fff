package cu

import "net/http"

// Health is spec.md §4.H's healthcheck() shape.
type Health struct {
	Address string `json:"address"`
}

// Healthcheck reports the wallet address checkpoints are signed with,
// empty when checkpoint signing is disabled.
func (c *CU) Healthcheck() Health {
	return Health{Address: c.deps.WalletAddress}
}

// PoolStats mirrors wpool.Stats for one named pool.
type PoolStats struct {
	Active       int `json:"active"`
	Idle         int `json:"idle"`
	PendingTasks int `json:"pendingTasks"`
}

// Stats is spec.md §4.H's stats() shape: per-pool worker utilization
// plus memory cache usage.
type Stats struct {
	Primary           PoolStats   `json:"primary"`
	DryRun            PoolStats   `json:"dryRun"`
	PendingReadStates int         `json:"pendingReadStates"`
	Memory            memoryUsage `json:"memory"`
}

type memoryUsage struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"totalBytes"`
	FileBacked int   `json:"fileBacked"`
}

// Stats reports a point-in-time snapshot of pool and cache utilization.
func (c *CU) Stats(maxPrimary, maxDryRun int) Stats {
	p := c.deps.Pools.Primary.Stats(maxPrimary)
	d := c.deps.Pools.DryRun.Stats(maxDryRun)
	u := c.deps.Memory.Usage()
	return Stats{
		Primary:           PoolStats{Active: p.Active, Idle: p.Idle, PendingTasks: p.PendingTasks},
		DryRun:            PoolStats{Active: d.Active, Idle: d.Idle, PendingTasks: d.PendingTasks},
		PendingReadStates: c.PendingReadStates(),
		Memory:            memoryUsage{Entries: u.Entries, TotalBytes: u.TotalBytes, FileBacked: u.FileBacked},
	}
}

// Metrics returns the Prometheus text-exposition handler; mounting it
// on a route is the out-of-scope HTTP transport layer (spec.md §1).
func (c *CU) Metrics() http.Handler {
	return c.deps.Metrics.Handler()
}
