// Package suclient is the CU's Scheduler Unit client (spec.md §4.E):
// fetches a process's metadata, the network's authoritative timestamp,
// single-message metadata, and paginated ordered message streams.
//
// Built on github.com/valyala/fasthttp, the teacher's own choice for
// high-frequency small-body HTTP calls (aistore's bench/ loader client
// uses fasthttp for exactly this kind of repeated small-request shape),
// decoding pages with github.com/json-iterator/go the way package store
// already does. Pagination retry is hand-rolled bounded backoff -- no
// pack repo carries a dedicated retry library, matching the teacher's
// own habit of hand-rolling retry loops at its own HTTP call sites
// (justified in DESIGN.md as a stdlib-only piece).
package suclient

import (
	"github.com/permaweb/ao-cu/ordinate"
)

// Tag is a name/value pair attached to a process, module, or message.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ProcessMeta is what loadProcess returns: enough to populate a
// store.Process row.
type ProcessMeta struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Tags      []Tag  `json:"tags"`
	Signature string `json:"signature"`
	ModuleID  string `json:"module_id"`
	Block     struct {
		Height    int64 `json:"height"`
		Timestamp int64 `json:"timestamp"`
	} `json:"block"`
}

// ModuleMeta is what the SU/network exposes for a moduleId, enough to
// populate a store.Module row.
type ModuleMeta struct {
	ID            string   `json:"id"`
	Owner         string   `json:"owner"`
	Tags          []Tag    `json:"tags"`
	ModuleFormat  string   `json:"module_format"`
	MemoryLimit   int64    `json:"memory_limit"`
	ComputeLimit  int64    `json:"compute_limit"`
	Extensions    []string `json:"extensions"`
}

// Timestamp is the network's authoritative current position.
type Timestamp struct {
	BlockHeight int64 `json:"block_height"`
	Timestamp   int64 `json:"timestamp"`
}

// MessageMeta is what loadMessageMeta(messageId) returns.
type MessageMeta struct {
	ProcessID string            `json:"process_id"`
	Timestamp int64             `json:"timestamp"`
	Epoch     int64             `json:"epoch"`
	Nonce     int64             `json:"nonce"`
	Ordinate  ordinate.Ordinate `json:"ordinate"`
}

// Message is one entry in a loadMessages stream.
type Message struct {
	Ordinate     ordinate.Ordinate `json:"ordinate"`
	MessageID    string            `json:"message_id,omitempty"`
	DeepHash     string            `json:"deep_hash,omitempty"`
	IsAssignment bool              `json:"is_assignment,omitempty"`
	Cron         string            `json:"cron,omitempty"`
	Tags         []Tag             `json:"tags"`
	Data         []byte            `json:"data"`
	BlockHeight  int64             `json:"block_height"`
	Timestamp    int64             `json:"timestamp"`
	Epoch        int64             `json:"epoch"`
	Nonce        int64             `json:"nonce"`
}
