package cucfg_test

import (
	"os"
	"testing"

	"github.com/permaweb/ao-cu/cucfg"
)

func TestWorkerSplitDefaults(t *testing.T) {
	os.Unsetenv("WASM_EVALUATION_MAX_WORKERS")
	os.Unsetenv("WASM_EVALUATION_PRIMARY_WORKERS_PERCENTAGE")
	c, err := cucfg.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.MaxPrimary() < 1 || c.MaxDryRun() < 1 {
		t.Fatalf("expected both pools to have at least one worker, got primary=%d dryrun=%d", c.MaxPrimary(), c.MaxDryRun())
	}
}

func TestWorkerSplitExplicit(t *testing.T) {
	os.Setenv("WASM_EVALUATION_MAX_WORKERS", "10")
	os.Setenv("WASM_EVALUATION_PRIMARY_WORKERS_PERCENTAGE", "70")
	defer os.Unsetenv("WASM_EVALUATION_MAX_WORKERS")
	defer os.Unsetenv("WASM_EVALUATION_PRIMARY_WORKERS_PERCENTAGE")

	c, err := cucfg.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.MaxPrimary(); got != 7 {
		t.Fatalf("expected maxPrimary=7, got %d", got)
	}
	if got := c.MaxDryRun(); got != 3 {
		t.Fatalf("expected maxDryRun=3, got %d", got)
	}
}

func TestAccessLists(t *testing.T) {
	os.Setenv("ALLOW_OWNERS", "alice, bob ,carol")
	defer os.Unsetenv("ALLOW_OWNERS")
	c, err := cucfg.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Access.AllowOwners) != 3 {
		t.Fatalf("expected 3 allowed owners, got %v", c.Access.AllowOwners)
	}
}
