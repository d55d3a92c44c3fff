package memcache_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/permaweb/ao-cu/memcache"
)

type fakeSpiller struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSpiller) WriteProcessMemoryFile(data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return fmt.Sprintf("spill-%d", f.calls), nil
}

func (f *fakeSpiller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestGetSetRoundTrip(t *testing.T) {
	c := memcache.New(1<<20, time.Hour, nil)
	defer c.Stop()

	c.Set("p1", memcache.ProcessMemory{Memory: []byte("hello")})
	pm, ok := c.Get("p1")
	if !ok {
		t.Fatalf("expected hit")
	}
	if string(pm.Memory) != "hello" {
		t.Fatalf("unexpected memory: %s", pm.Memory)
	}

	if _, ok := c.Get("missing"); ok {
		t.Fatalf("expected miss")
	}
}

func TestEvictionSpillsLRU(t *testing.T) {
	spiller := &fakeSpiller{}
	// tiny budget forces eviction on the very next insert into the same shard.
	c := memcache.New(10, time.Hour, spiller)
	defer c.Stop()

	c.Set("proc-a", memcache.ProcessMemory{Memory: make([]byte, 200)})
	c.Set("proc-a", memcache.ProcessMemory{Memory: make([]byte, 200)})

	if spiller.count() == 0 {
		t.Fatalf("expected at least one spill once the shard budget was exceeded")
	}
}

func TestForEachSnapshot(t *testing.T) {
	c := memcache.New(1<<20, time.Hour, nil)
	defer c.Stop()
	c.Set("p1", memcache.ProcessMemory{Memory: []byte("a")})
	c.Set("p2", memcache.ProcessMemory{Memory: []byte("b")})

	seen := map[string]bool{}
	c.ForEach(func(id string, pm memcache.ProcessMemory) {
		seen[id] = true
	})
	if !seen["p1"] || !seen["p2"] {
		t.Fatalf("expected both entries visited, got %v", seen)
	}
}

func TestUsage(t *testing.T) {
	c := memcache.New(1<<20, time.Hour, nil)
	defer c.Stop()
	c.Set("p1", memcache.ProcessMemory{Memory: []byte("abcd")})
	u := c.Usage()
	if u.Entries != 1 || u.TotalBytes != 4 {
		t.Fatalf("unexpected usage: %+v", u)
	}
}
