package eval

import (
	"github.com/permaweb/ao-cu/cuerr"
	"github.com/permaweb/ao-cu/store"
)

// Access mirrors cucfg.Config.Access (ALLOW_OWNERS / RESTRICT_PROCESSES /
// ALLOW_PROCESSES, spec.md §6's "Access control" row): an allowlist gate
// the pipeline checks before evaluating a process at all. All fields
// empty/false is the default permissive policy.
type Access struct {
	AllowOwners       []string
	RestrictProcesses bool
	AllowProcesses    []string
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// checkAccess rejects proc when it falls outside access's allowlists:
// an owner allowlist restricts which process owners may be evaluated at
// all, independent of RestrictProcesses/AllowProcesses which restricts
// by process id regardless of owner.
func checkAccess(access Access, proc *store.Process) error {
	if len(access.AllowOwners) > 0 && !contains(access.AllowOwners, proc.Owner) {
		return cuerr.Invalid("process %s: owner %s is not in ALLOW_OWNERS", proc.ID, proc.Owner)
	}
	if access.RestrictProcesses && !contains(access.AllowProcesses, proc.ID) {
		return cuerr.Invalid("process %s: not in ALLOW_PROCESSES (RESTRICT_PROCESSES is set)", proc.ID)
	}
	return nil
}
