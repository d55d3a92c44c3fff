package store_test

import (
	"testing"

	"github.com/permaweb/ao-cu/cuerr"
	"github.com/permaweb/ao-cu/ordinate"
	"github.com/permaweb/ao-cu/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProcessRoundTrip(t *testing.T) {
	s := openTestStore(t)
	p := &store.Process{ID: "p1", Owner: "alice", ModuleID: "m1"}
	if err := s.SaveProcess(p); err != nil {
		t.Fatal(err)
	}
	got, err := s.FindProcess("p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Owner != "alice" {
		t.Fatalf("expected owner alice, got %s", got.Owner)
	}

	if _, err := s.FindProcess("missing"); !cuerr.Is(err, cuerr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestSaveProcessIdempotentReinsert(t *testing.T) {
	s := openTestStore(t)
	p := &store.Process{ID: "p1", Owner: "alice"}
	if err := s.SaveProcess(p); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveProcess(p); err != nil {
		t.Fatalf("identical reinsert should be tolerated: %v", err)
	}
	p2 := &store.Process{ID: "p1", Owner: "bob"}
	if err := s.SaveProcess(p2); err == nil {
		t.Fatalf("expected conflicting reinsert to be rejected")
	}
}

func TestEvaluationOrderingAndDedup(t *testing.T) {
	s := openTestStore(t)
	for i, ord := range []ordinate.Ordinate{"1", "2", "3"} {
		e := &store.Evaluation{
			ProcessID: "p1",
			Ordinate:  ord,
			MessageID: "m" + ord.String(),
			Timestamp: int64(i),
		}
		if err := s.SaveEvaluation(e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.FindEvaluations("p1", "1", "4", false, 0, store.Asc)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 evaluations, got %d", len(got))
	}
	if got[0].Ordinate != "1" || got[2].Ordinate != "3" {
		t.Fatalf("expected ascending order, got %+v", got)
	}

	desc, err := s.FindEvaluations("p1", "1", "4", false, 2, store.Desc)
	if err != nil {
		t.Fatal(err)
	}
	if len(desc) != 2 || desc[0].Ordinate != "3" {
		t.Fatalf("expected desc+limit to return [3,2], got %+v", desc)
	}

	dup := &store.Evaluation{ProcessID: "p1", Ordinate: "2", MessageID: "m2"}
	if err := s.SaveEvaluation(dup); err != nil {
		t.Fatal(err)
	}
	again, err := s.FindEvaluations("p1", "1", "4", false, 0, store.Asc)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 3 {
		t.Fatalf("expected reinsert at same key to be a no-op, got %d rows", len(again))
	}

	hit, err := s.FindMessageBefore(store.FindMessageBeforeArgs{ProcessID: "p1", MessageID: "m2"})
	if err != nil {
		t.Fatal(err)
	}
	if hit.Ordinate != "2" {
		t.Fatalf("expected dedup hit at ordinate 2, got %s", hit.Ordinate)
	}
}

func TestCheckpointRecordBefore(t *testing.T) {
	s := openTestStore(t)
	for _, o := range []ordinate.Ordinate{"5", "10", "20"} {
		if err := s.WriteCheckpointRecord(store.CheckpointRecord{ProcessID: "p1", Ordinate: o, Timestamp: 1, File: "f" + o.String()}); err != nil {
			t.Fatal(err)
		}
	}
	rec, err := s.FindCheckpointRecordBefore(store.FindCheckpointRecordBeforeArgs{ProcessID: "p1", Before: "15"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Ordinate != "10" {
		t.Fatalf("expected greatest checkpoint <= 15 to be at ordinate 10, got %s", rec.Ordinate)
	}

	if _, err := s.FindCheckpointRecordBefore(store.FindCheckpointRecordBeforeArgs{ProcessID: "p1", Before: "4"}); !cuerr.Is(err, cuerr.KindNotFound) {
		t.Fatalf("expected NotFound below the earliest checkpoint, got %v", err)
	}
}

func TestBlocksRange(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveBlocks([]store.BlockRef{{Height: 1, Timestamp: 100}, {Height: 5, Timestamp: 500}, {Height: 9, Timestamp: 900}}); err != nil {
		t.Fatal(err)
	}
	got, err := s.FindBlocks(2, 9)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 blocks in [2,9], got %d", len(got))
	}
}
