package modcache_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/permaweb/ao-cu/modcache"
)

func TestLoadFromDisk(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "mod1"), []byte("binary-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := modcache.New(10, dir, "", time.Second)

	cm, err := c.Load("mod1")
	if err != nil {
		t.Fatal(err)
	}
	if string(cm.Bytes) != "binary-bytes" {
		t.Fatalf("unexpected module bytes: %s", cm.Bytes)
	}

	// second load should hit the in-memory cache, not re-read disk; remove
	// the file and confirm the cached copy still answers.
	os.Remove(filepath.Join(dir, "mod1"))
	cm2, err := c.Load("mod1")
	if err != nil {
		t.Fatalf("expected cache hit after disk file removed: %v", err)
	}
	if string(cm2.Bytes) != "binary-bytes" {
		t.Fatalf("unexpected cached module bytes: %s", cm2.Bytes)
	}
}

func TestLoadFromNetworkAndPersist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := modcache.New(10, dir, srv.URL, 2*time.Second)

	cm, err := c.Load("mod2")
	if err != nil {
		t.Fatal(err)
	}
	if string(cm.Bytes) != "remote-bytes" {
		t.Fatalf("unexpected fetched bytes: %s", cm.Bytes)
	}

	persisted, err := os.ReadFile(filepath.Join(dir, "mod2"))
	if err != nil {
		t.Fatalf("expected fetched module to be persisted to disk: %v", err)
	}
	if string(persisted) != "remote-bytes" {
		t.Fatalf("unexpected persisted bytes: %s", persisted)
	}
}

func TestLoadMissingEverywhere(t *testing.T) {
	c := modcache.New(10, t.TempDir(), "", time.Second)
	if _, err := c.Load("missing"); err == nil {
		t.Fatalf("expected error for a module absent from cache, disk, and network")
	}
}

func TestWarmScan(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "warm1"), []byte("warm-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := modcache.New(10, dir, "", time.Second)
	c.WarmScan()
	os.Remove(filepath.Join(dir, "warm1"))

	cm, err := c.Load("warm1")
	if err != nil {
		t.Fatalf("expected warm-scanned module to be cached: %v", err)
	}
	if string(cm.Bytes) != "warm-bytes" {
		t.Fatalf("unexpected warm-scanned bytes: %s", cm.Bytes)
	}
}

func TestEvictionByCount(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"modA", "modB"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	c := modcache.New(1, dir, "", time.Second)

	if _, err := c.Load("modA"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Load("modB"); err != nil {
		t.Fatal(err)
	}

	os.Remove(filepath.Join(dir, "modA"))
	if _, err := c.Load("modA"); err == nil {
		t.Fatalf("expected modA to have been evicted once the single-entry budget was exceeded")
	}
}
