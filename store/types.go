// Package store is the CU's Persistence Store (spec.md §4.A): processes,
// modules, evaluations, block height cache, and checkpoint index records.
// Grounded on the teacher's embedded-metadata layer (core/lom.go's
// on-disk lmeta, cmn/objattrs.go's ObjAttrs) for the shape of
// "small structured records, upserted idempotently, looked up by a
// composite key" -- but backed by github.com/tidwall/buntdb instead of
// the teacher's xattr/file-based metadata store, because spec.md's
// findEvaluations/findMessageBefore/findCheckpointRecordBefore all need
// ordered range scans ("greatest row <= target") that a flat xattr
// store doesn't give for free. The exact sqlite DDL spec.md calls out
// as out of scope is sidestepped entirely by buntdb's schemaless,
// JSON-document model.
package store

import (
	"github.com/permaweb/ao-cu/ordinate"
)

// TagKV is a process/module tag, name/value as spec.md §3 describes.
type TagKV struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// BlockRef identifies a block height + timestamp pair.
type BlockRef struct {
	Height    int64 `json:"height"`
	Timestamp int64 `json:"timestamp"`
}

// Process is immutable after first persistence (spec.md §3).
type Process struct {
	ID        string  `json:"id"`
	Owner     string  `json:"owner"`
	Tags      []TagKV `json:"tags"`
	Signature string  `json:"signature"`
	Block     BlockRef `json:"block"`
	ModuleID  string  `json:"moduleId"`
}

// ModuleOptions bounds what a module is allowed to do at evaluation time.
type ModuleOptions struct {
	MemoryLimit  int64    `json:"memoryLimit"`
	ComputeLimit int64    `json:"computeLimit"`
	Extensions   []string `json:"extensions"`
}

// Module is immutable after first persistence (spec.md §3).
type Module struct {
	ID            string        `json:"id"`
	Owner         string        `json:"owner"`
	Tags          []TagKV       `json:"tags"`
	ModuleFormat  string        `json:"moduleFormat"`
	ModuleOptions ModuleOptions `json:"moduleOptions"`
}

// EvalOutput is the payload of one Evaluation row.
type EvalOutput struct {
	Messages    []RawMsg `json:"messages,omitempty"`
	Spawns      []RawMsg `json:"spawns,omitempty"`
	Assignments []RawMsg `json:"assignments,omitempty"`
	OutputData  string   `json:"outputData,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// RawMsg is an opaque outbound message/spawn/assignment -- its shape is
// the MU/SU wire format, out of scope per spec.md §1.
type RawMsg struct {
	Target string `json:"target"`
	Data   string `json:"data"`
}

// Evaluation is append-only; primary key (ProcessID, Ordinate, Cron) per
// spec.md §3. Cron is "" for ordinary (non-cron) evaluations.
type Evaluation struct {
	ProcessID string           `json:"processId"`
	Ordinate  ordinate.Ordinate `json:"ordinate"`
	Cron      string           `json:"cron,omitempty"`
	Timestamp int64            `json:"timestamp"`
	MessageID string           `json:"messageId,omitempty"`
	DeepHash  string           `json:"deepHash,omitempty"`
	Output    EvalOutput       `json:"output"`
	GasUsed   int64            `json:"gasUsed"`

	// identity fields used by FindMessageBefore's dedup lookup.
	Epoch int64 `json:"epoch"`
	Nonce int64 `json:"nonce"`

	IsAssignedMessage bool `json:"isAssignedMessage,omitempty"`
}

// IsCron reports whether this evaluation row is a cron tick rather than
// a user/cranked message.
func (e *Evaluation) IsCron() bool { return e.Cron != "" }

// CheckpointRecord is a local index row pointing at a checkpoint's file
// or remote transaction id, spec.md §4.A's writeCheckpointRecord.
type CheckpointRecord struct {
	ProcessID string            `json:"processId"`
	Ordinate  ordinate.Ordinate `json:"ordinate"`
	Timestamp int64             `json:"timestamp"`
	File      string            `json:"file,omitempty"`
	TxID      string            `json:"txId,omitempty"`
}

// Sort is the ordering direction for FindEvaluations.
type Sort int

const (
	Asc Sort = iota
	Desc
)
