package store

import (
	"errors"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"

	"github.com/permaweb/ao-cu/cuerr"
	"github.com/permaweb/ao-cu/ordinate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	idxEvalSort = "eval_sort"
	idxCkptSort = "ckpt_sort"
	idxBlockKey = "block_key"

	sep = "\x00"
)

// Store is the CU's Persistence Store (spec.md §4.A), an embedded
// buntdb database. All "find" operations on composite keys return the
// greatest row whose key is <= the requested target, per spec.md §4.A.
type Store struct {
	db *buntdb.DB
}

// Open opens (creating if absent) the persistence store at path, or
// ":memory:" for a purely in-process instance (used by tests).
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, cuerr.Wrap(cuerr.KindFatal, err, "opening persistence store at %s", path)
	}
	s := &Store{db: db}
	if err := s.createIndexes(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createIndexes() error {
	err := s.db.CreateIndex(idxEvalSort, "eval:*", buntdb.IndexJSON("sortKey"))
	if err != nil && err != buntdb.ErrIndexExists {
		return cuerr.Wrap(cuerr.KindFatal, err, "creating %s index", idxEvalSort)
	}
	err = s.db.CreateIndex(idxCkptSort, "ckpt:*", buntdb.IndexJSON("sortKey"))
	if err != nil && err != buntdb.ErrIndexExists {
		return cuerr.Wrap(cuerr.KindFatal, err, "creating %s index", idxCkptSort)
	}
	err = s.db.CreateIndex(idxBlockKey, "block:*", buntdb.IndexJSON("sortKey"))
	if err != nil && err != buntdb.ErrIndexExists {
		return cuerr.Wrap(cuerr.KindFatal, err, "creating %s index", idxBlockKey)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

//
// processes
//

func procKey(id string) string { return "proc:" + id }

func (s *Store) FindProcess(id string) (*Process, error) {
	var out Process
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(procKey(id))
		if err != nil {
			return err
		}
		return json.UnmarshalFromString(v, &out)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, cuerr.NotFound("process %s", id)
	}
	if err != nil {
		return nil, cuerr.Wrap(cuerr.KindTransient, err, "finding process %s", id)
	}
	return &out, nil
}

// SaveProcess upserts, tolerating reinsert of an identical row (spec.md
// §4.A); processes are immutable once first written, so a differing
// reinsert is rejected rather than silently overwriting history.
func (s *Store) SaveProcess(p *Process) error {
	buf, err := json.MarshalToString(p)
	if err != nil {
		return cuerr.Wrap(cuerr.KindFatal, err, "encoding process %s", p.ID)
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		existing, err := tx.Get(procKey(p.ID))
		if err == nil && existing != buf {
			return cuerr.Invalid("process %s already persisted with different content", p.ID)
		}
		_, _, err = tx.Set(procKey(p.ID), buf, nil)
		return err
	})
}

//
// modules
//

func modKey(id string) string { return "mod:" + id }

func (s *Store) FindModule(id string) (*Module, error) {
	var out Module
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(modKey(id))
		if err != nil {
			return err
		}
		return json.UnmarshalFromString(v, &out)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, cuerr.NotFound("module %s", id)
	}
	if err != nil {
		return nil, cuerr.Wrap(cuerr.KindTransient, err, "finding module %s", id)
	}
	return &out, nil
}

func (s *Store) SaveModule(m *Module) error {
	buf, err := json.MarshalToString(m)
	if err != nil {
		return cuerr.Wrap(cuerr.KindFatal, err, "encoding module %s", m.ID)
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		existing, err := tx.Get(modKey(m.ID))
		if err == nil && existing != buf {
			return cuerr.Invalid("module %s already persisted with different content", m.ID)
		}
		_, _, err = tx.Set(modKey(m.ID), buf, nil)
		return err
	})
}

//
// blocks
//

func blockKey(height int64) string { return "block:" + strconv.FormatInt(height, 10) }

type blockRecord struct {
	Block   BlockRef `json:"block"`
	SortKey string   `json:"sortKey"`
}

func (s *Store) SaveBlocks(blocks []BlockRef) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		for _, b := range blocks {
			rec := blockRecord{Block: b, SortKey: ordinate.SortKey(ordinate.Ordinate(strconv.FormatInt(b.Height, 10)))}
			buf, err := json.MarshalToString(rec)
			if err != nil {
				return err
			}
			if _, _, err := tx.Set(blockKey(b.Height), buf, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) FindBlocks(min, max int64) ([]BlockRef, error) {
	var out []BlockRef
	greaterOrEqual := fmt.Sprintf(`{"sortKey":%q}`, ordinate.SortKey(ordinate.Ordinate(strconv.FormatInt(min, 10))))
	lessThan := fmt.Sprintf(`{"sortKey":%q}`, ordinate.SortKey(ordinate.Ordinate(strconv.FormatInt(max+1, 10))))
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendRange(idxBlockKey, greaterOrEqual, lessThan, func(_, value string) bool {
			var rec blockRecord
			if err := json.UnmarshalFromString(value, &rec); err != nil {
				return true
			}
			out = append(out, rec.Block)
			return true
		})
	})
	if err != nil {
		return nil, cuerr.Wrap(cuerr.KindTransient, err, "finding blocks [%d,%d]", min, max)
	}
	return out, nil
}

//
// evaluations
//

func evalKey(processID string, o ordinate.Ordinate, cron string) string {
	return "eval:" + processID + ":" + string(o) + ":" + cron
}

func evalIdentityKey(processID, identity string) string {
	return "evalid:" + processID + ":" + identity
}

type evalRecord struct {
	Eval    Evaluation `json:"evaluation"`
	SortKey string     `json:"sortKey"`
}

func evalSortKey(processID string, o ordinate.Ordinate) string {
	return processID + sep + ordinate.SortKey(o)
}

func (s *Store) FindEvaluation(processID string, o ordinate.Ordinate, cron string) (*Evaluation, error) {
	var rec evalRecord
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(evalKey(processID, o, cron))
		if err != nil {
			return err
		}
		return json.UnmarshalFromString(v, &rec)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, cuerr.NotFound("evaluation %s@%s cron=%q", processID, o, cron)
	}
	if err != nil {
		return nil, cuerr.Wrap(cuerr.KindTransient, err, "finding evaluation %s@%s", processID, o)
	}
	return &rec.Eval, nil
}

// SaveEvaluation appends an evaluation row. Per spec.md §3's invariant,
// at most one evaluation exists per (processId, ordinate, cron); a
// reinsert at the same key is a silent no-op rather than an overwrite,
// since evaluations are append-only and the pipeline's own dedup check
// (FindMessageBefore) is what's supposed to prevent this case from
// being reached in the first place.
func (s *Store) SaveEvaluation(e *Evaluation) error {
	rec := evalRecord{Eval: *e, SortKey: evalSortKey(e.ProcessID, e.Ordinate)}
	buf, err := json.MarshalToString(rec)
	if err != nil {
		return cuerr.Wrap(cuerr.KindFatal, err, "encoding evaluation %s@%s", e.ProcessID, e.Ordinate)
	}
	key := evalKey(e.ProcessID, e.Ordinate, e.Cron)
	return s.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(key); err == nil {
			return nil // already persisted, append-only no-op
		}
		if _, _, err := tx.Set(key, buf, nil); err != nil {
			return err
		}
		identity := e.DeepHash
		if identity == "" {
			identity = e.MessageID
		}
		if identity != "" {
			if _, _, err := tx.Set(evalIdentityKey(e.ProcessID, identity), buf, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindEvaluations returns evaluations for processID with ordinate in
// [from, to), optionally restricted to cron rows, ordered per sort,
// capped at limit (0 = unbounded).
func (s *Store) FindEvaluations(processID string, from, to ordinate.Ordinate, onlyCron bool, limit int, sort Sort) ([]Evaluation, error) {
	var out []Evaluation
	greaterOrEqual := fmt.Sprintf(`{"sortKey":%q}`, evalSortKey(processID, from))
	lessThan := fmt.Sprintf(`{"sortKey":%q}`, evalSortKey(processID, to))

	// Always gather ascending over the full [from, to) window: buntdb's
	// Descend* helpers take pivot values, not offsets, so there is no
	// generic "one before to" pivot to hand them for an exclusive upper
	// bound. Reversing in-process after the scan is the simplest correct
	// way to honor Desc, at the cost of not short-circuiting a desc+limit
	// query before the whole window is read.
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendRange(idxEvalSort, greaterOrEqual, lessThan, func(_, value string) bool {
			var rec evalRecord
			if err := json.UnmarshalFromString(value, &rec); err != nil {
				return true
			}
			if onlyCron && !rec.Eval.IsCron() {
				return true
			}
			out = append(out, rec.Eval)
			return true
		})
	})
	if err != nil {
		return nil, cuerr.Wrap(cuerr.KindTransient, err, "finding evaluations for %s in [%s,%s)", processID, from, to)
	}

	if sort == Desc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindMessageBeforeArgs carries the identity the pipeline wants to
// dedup on; DeepHash takes priority over MessageID per spec.md §4.A.
type FindMessageBeforeArgs struct {
	ProcessID         string
	MessageID         string
	DeepHash          string
	IsAssignedMessage bool
	Epoch             int64
	Nonce             int64
}

// FindMessageBefore looks up a prior evaluation with the same dedup
// identity for this process, used to short-circuit re-cranking
// duplicate messages.
func (s *Store) FindMessageBefore(args FindMessageBeforeArgs) (*Evaluation, error) {
	identity := args.DeepHash
	if identity == "" {
		identity = args.MessageID
	}
	if identity == "" {
		return nil, cuerr.NotFound("no identity to dedup on for process %s", args.ProcessID)
	}
	var rec evalRecord
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(evalIdentityKey(args.ProcessID, identity))
		if err != nil {
			return err
		}
		return json.UnmarshalFromString(v, &rec)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, cuerr.NotFound("no prior evaluation for identity %s", identity)
	}
	if err != nil {
		return nil, cuerr.Wrap(cuerr.KindTransient, err, "finding message before for %s", identity)
	}
	return &rec.Eval, nil
}

//
// checkpoint index
//

func ckptKey(processID string, o ordinate.Ordinate, timestamp int64) string {
	return fmt.Sprintf("ckpt:%s:%s:%d", processID, o, timestamp)
}

type ckptRecord struct {
	Rec     CheckpointRecord `json:"rec"`
	SortKey string           `json:"sortKey"`
}

func (s *Store) WriteCheckpointRecord(rec CheckpointRecord) error {
	env := ckptRecord{Rec: rec, SortKey: evalSortKey(rec.ProcessID, rec.Ordinate)}
	buf, err := json.MarshalToString(env)
	if err != nil {
		return cuerr.Wrap(cuerr.KindFatal, err, "encoding checkpoint record for %s", rec.ProcessID)
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(ckptKey(rec.ProcessID, rec.Ordinate, rec.Timestamp), buf, nil)
		return err
	})
}

// FindCheckpointRecordBeforeArgs pins the process and the inclusive
// upper bound on ordinate to search at or below.
type FindCheckpointRecordBeforeArgs struct {
	ProcessID string
	Before    ordinate.Ordinate
}

func (s *Store) FindCheckpointRecordBefore(args FindCheckpointRecordBeforeArgs) (*CheckpointRecord, error) {
	greaterOrEqual := fmt.Sprintf(`{"sortKey":%q}`, args.ProcessID+sep)
	lessThan := fmt.Sprintf(`{"sortKey":%q}`, evalSortKey(args.ProcessID, args.Before))

	var best *CheckpointRecord
	keep := func(_, value string) bool {
		var rec ckptRecord
		if err := json.UnmarshalFromString(value, &rec); err != nil {
			return true
		}
		r := rec.Rec
		best = &r // keep overwriting; ascending order means the last hit is the greatest <= target
		return true
	}
	err := s.db.View(func(tx *buntdb.Tx) error {
		if err := tx.AscendRange(idxCkptSort, greaterOrEqual, lessThan, keep); err != nil {
			return err
		}
		// a checkpoint at exactly Before also qualifies
		return tx.AscendEqual(idxCkptSort, lessThan, keep)
	})
	if err != nil {
		return nil, cuerr.Wrap(cuerr.KindTransient, err, "finding checkpoint record for %s before %s", args.ProcessID, args.Before)
	}
	if best == nil {
		return nil, cuerr.NotFound("no checkpoint record for %s before %s", args.ProcessID, args.Before)
	}
	return best, nil
}
