package ckpt_test

import (
	"testing"
	"time"

	"github.com/permaweb/ao-cu/ckpt"
	"github.com/permaweb/ao-cu/ordinate"
)

func tempFileStore(t *testing.T) *ckpt.FileStore {
	t.Helper()
	dir := t.TempDir()
	fs, err := ckpt.NewFileStore(dir+"/spill", dir+"/ckpt")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return fs
}

func TestFileStoreSpillRoundTrip(t *testing.T) {
	fs := tempFileStore(t)
	name, err := fs.WriteProcessMemoryFile([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := fs.ReadProcessMemoryFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("unexpected spill content: %s", got)
	}
}

func TestFileStoreCheckpointRoundTrip(t *testing.T) {
	fs := tempFileStore(t)
	name, err := fs.WriteCheckpointFile("p1", "5", 100, []byte("state"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := fs.ReadCheckpointFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "state" {
		t.Fatalf("unexpected checkpoint content: %s", got)
	}
}

func TestFindCheckpointFileBefore(t *testing.T) {
	fs := tempFileStore(t)
	for _, o := range []ordinate.Ordinate{"5", "10", "20"} {
		if _, err := fs.WriteCheckpointFile("p1", o, 1, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	name, found, err := fs.FindCheckpointFileBefore("p1", "15")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatalf("expected a match below ordinate 15")
	}
	if !contains(name, "p1__") {
		t.Fatalf("unexpected checkpoint filename: %s", name)
	}

	_, found, err = fs.FindCheckpointFileBefore("p1", "4")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatalf("expected no match below the earliest checkpoint")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}

type recordingIndex struct {
	writes []ckpt.Input
}

func (r *recordingIndex) record(processID string, o ordinate.Ordinate, timestamp int64, file, txID string) error {
	r.writes = append(r.writes, ckpt.Input{ProcessID: processID, Ordinate: o, Timestamp: timestamp})
	return nil
}

func TestStoreSaveLocalOnly(t *testing.T) {
	fs := tempFileStore(t)
	idx := &recordingIndex{}
	store := ckpt.New(ckpt.Deps{
		Files:         fs,
		RecordWrite:   idx.record,
		DisableRemote: true,
	})

	if !store.ShouldCheckpoint("p1") {
		t.Fatalf("expected first checkpoint to be allowed")
	}
	err := store.Save(ckpt.Input{ProcessID: "p1", Ordinate: "1", Timestamp: 1, Memory: []byte("mem")})
	if err != nil {
		t.Fatal(err)
	}
	if len(idx.writes) != 1 {
		t.Fatalf("expected one index write, got %d", len(idx.writes))
	}
}

func TestStoreThrottle(t *testing.T) {
	fs := tempFileStore(t)
	store := ckpt.New(ckpt.Deps{Files: fs, Throttle: time.Hour, DisableRemote: true})
	if !store.ShouldCheckpoint("p1") {
		t.Fatalf("expected first checkpoint to be allowed")
	}
	if err := store.Save(ckpt.Input{ProcessID: "p1", Ordinate: "1", Timestamp: 1, Memory: []byte("m")}); err != nil {
		t.Fatal(err)
	}
	if store.ShouldCheckpoint("p1") {
		t.Fatalf("expected throttle to block an immediate second checkpoint")
	}
}

func TestStoreRestoreLocal(t *testing.T) {
	fs := tempFileStore(t)
	name, err := fs.WriteCheckpointFile("p1", "5", 100, []byte("state5"))
	if err != nil {
		t.Fatal(err)
	}
	find := func(processID string, before ordinate.Ordinate) (string, string, ordinate.Ordinate, int64, bool, error) {
		if processID != "p1" {
			return "", "", "", 0, false, nil
		}
		return name, "", "5", 100, true, nil
	}
	store := ckpt.New(ckpt.Deps{Files: fs, RecordFind: find, DisableRemote: true})

	mem, o, ts, found, err := store.Restore("p1", "m1", "10")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatalf("expected a local restore hit")
	}
	if string(mem) != "state5" || o != "5" || ts != 100 {
		t.Fatalf("unexpected restore result: %s %s %d", mem, o, ts)
	}
}

type fakeGateway struct {
	descriptors []ckpt.CheckpointDescriptor
	payloads    map[string][]byte
	queried     bool
}

func (g *fakeGateway) QueryCheckpoints(processID, moduleID string, trustedOwners []string) ([]ckpt.CheckpointDescriptor, error) {
	g.queried = true
	return g.descriptors, nil
}

func (g *fakeGateway) DownloadPayload(txID string) ([]byte, error) {
	return g.payloads[txID], nil
}

// TestStoreRestorePrefersLocalOverRemote asserts the ordered find
// pipeline (spec.md §4.C: local DB/file before the gateway query): when
// both tiers have a usable hit, the local one wins and the remote
// gateway is never even queried.
func TestStoreRestorePrefersLocalOverRemote(t *testing.T) {
	fs := tempFileStore(t)
	name, err := fs.WriteCheckpointFile("p1", "5", 100, []byte("local-state"))
	if err != nil {
		t.Fatal(err)
	}
	find := func(processID string, before ordinate.Ordinate) (string, string, ordinate.Ordinate, int64, bool, error) {
		return name, "", "5", 100, true, nil
	}
	gw := &fakeGateway{
		descriptors: []ckpt.CheckpointDescriptor{{TxID: "tx1", ProcessID: "p1", ModuleID: "m1", Ordinate: "4", Timestamp: 50}},
		payloads:    map[string][]byte{"tx1": []byte("remote-state")},
	}
	store := ckpt.New(ckpt.Deps{Files: fs, RecordFind: find, Gateway: gw})

	mem, o, ts, found, err := store.Restore("p1", "m1", "10")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatalf("expected a restore hit")
	}
	if string(mem) != "local-state" || o != "5" || ts != 100 {
		t.Fatalf("expected the local checkpoint to win, got %s %s %d", mem, o, ts)
	}
	if gw.queried {
		t.Fatalf("expected the remote gateway never to be queried once local already hit")
	}
}

// TestStoreRestoreFallsBackToRemote asserts the remote tier is still
// reachable as a fallback when nothing local is found.
func TestStoreRestoreFallsBackToRemote(t *testing.T) {
	fs := tempFileStore(t)
	find := func(processID string, before ordinate.Ordinate) (string, string, ordinate.Ordinate, int64, bool, error) {
		return "", "", "", 0, false, nil
	}
	gw := &fakeGateway{
		descriptors: []ckpt.CheckpointDescriptor{{TxID: "tx1", ProcessID: "p1", ModuleID: "m1", Ordinate: "4", Timestamp: 50}},
		payloads:    map[string][]byte{"tx1": []byte("remote-state")},
	}
	store := ckpt.New(ckpt.Deps{Files: fs, RecordFind: find, Gateway: gw})

	mem, o, _, found, err := store.Restore("p1", "m1", "10")
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(mem) != "remote-state" || o != "4" {
		t.Fatalf("expected the remote checkpoint as a fallback, got found=%v mem=%s o=%s", found, mem, o)
	}
}
