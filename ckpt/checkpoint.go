package ckpt

import (
	"os"
	"sync"
	"time"

	"github.com/permaweb/ao-cu/culog"
	"github.com/permaweb/ao-cu/cuerr"
	"github.com/permaweb/ao-cu/ordinate"
)

var log = culog.New(os.Stdout, "ckpt")

// Input is what the evaluation pipeline hands the checkpoint store to
// persist one process's current state (spec.md §4.H).
type Input struct {
	ProcessID   string
	ModuleID    string
	Ordinate    ordinate.Ordinate
	Timestamp   int64
	BlockHeight int64
	Epoch       int64
	Nonce       int64
	Memory      []byte
}

// Deps bundles the Store's collaborators as an explicit dependency
// struct (spec.md §9: no global service locator). Gateway, Signer and
// Uploader are nil-able: when DISABLE_PROCESS_CHECKPOINT_CREATION is
// set, Store degrades to local-only checkpointing.
type Deps struct {
	Files         *FileStore
	Gateway       GatewayClient
	Signer        Signer
	Uploader      Uploader
	RecordWrite   RecordCheckpoint
	RecordFind    FindCheckpointRecord
	Throttle      time.Duration
	DisableRemote bool
	TrustedOwners []string

	// IgnoreCheckpointTxIDs blocks specific remote checkpoint
	// transaction ids regardless of process, per IGNORE_ARWEAVE_CHECKPOINTS.
	IgnoreCheckpointTxIDs map[string]bool
	// IgnoreRemoteForProcess blocks the remote tier entirely for the
	// listed processIds, per PROCESS_IGNORE_ARWEAVE_CHECKPOINTS.
	IgnoreRemoteForProcess map[string]bool
}

// Store is the Checkpoint Store (spec.md §4.C): it owns the decision
// of when to actually write a checkpoint (throttled per process) and
// where (local file always, remote upload best-effort) plus the
// lookup path a cold process restore walks.
type Store struct {
	deps Deps

	mu       sync.Mutex
	lastSave map[string]time.Time
}

func New(deps Deps) *Store {
	return &Store{deps: deps, lastSave: make(map[string]time.Time)}
}

// ShouldCheckpoint reports whether enough time has passed since the
// last checkpoint attempt for processID to justify another one,
// per CHECKPOINT_CREATION_THROTTLE.
func (s *Store) ShouldCheckpoint(processID string) bool {
	if s.deps.Throttle <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastSave[processID]
	return !ok || time.Since(last) >= s.deps.Throttle
}

// Save writes a local checkpoint file and, unless remote checkpointing
// is disabled, attempts a best-effort signed upload; a remote failure
// never fails the overall save, since the local file already makes the
// process recoverable (spec.md §4.C).
func (s *Store) Save(in Input) error {
	s.mu.Lock()
	s.lastSave[in.ProcessID] = time.Now()
	s.mu.Unlock()

	file, err := s.deps.Files.WriteCheckpointFile(in.ProcessID, in.Ordinate, in.Timestamp, in.Memory)
	if err != nil {
		return cuerr.Wrap(cuerr.KindTransient, err, "writing local checkpoint for %s", in.ProcessID)
	}

	txID := ""
	if !s.deps.DisableRemote && s.deps.Signer != nil && s.deps.Uploader != nil {
		txID = s.uploadRemote(in)
	}

	if s.deps.RecordWrite != nil {
		if err := s.deps.RecordWrite(in.ProcessID, in.Ordinate, in.Timestamp, file, txID); err != nil {
			return cuerr.Wrap(cuerr.KindTransient, err, "recording checkpoint index for %s", in.ProcessID)
		}
	}
	return nil
}

func (s *Store) uploadRemote(in Input) string {
	tags := []Tag{
		{Name: "Data-Protocol", Value: "ao"},
		{Name: "Type", Value: "Checkpoint"},
		{Name: "Process", Value: in.ProcessID},
		{Name: "Module", Value: in.ModuleID},
		{Name: "Ordinate", Value: string(in.Ordinate)},
		{Name: "Epoch", Value: itoa(in.Epoch)},
		{Name: "Nonce", Value: itoa(in.Nonce)},
	}
	item, err := s.deps.Signer.Sign(in.Memory, tags)
	if err != nil {
		log.Warnf("signing checkpoint for %s failed: %v", in.ProcessID, err)
		return ""
	}
	txID, err := s.deps.Uploader.Upload(item)
	if err != nil {
		log.Warnf("uploading checkpoint for %s failed: %v", in.ProcessID, err)
		return ""
	}
	return txID
}

// Restore resolves the most recent usable checkpoint for processID at
// or below before, trying the local index first (spec.md §4.C's
// ordered find pipeline: local DB/file before the remote gateway
// query) and only falling back to the gateway when nothing local is
// found, mirroring the tier order findLatestProcessMemoryBefore
// already follows one level up (memory cache, then checkpoints).
func (s *Store) Restore(processID, moduleID string, before ordinate.Ordinate) (memory []byte, o ordinate.Ordinate, timestamp int64, found bool, err error) {
	if mem, ord, ts, ok, lerr := s.restoreLocal(processID, before); lerr != nil {
		return nil, "", 0, false, lerr
	} else if ok {
		return mem, ord, ts, true, nil
	}

	remoteAllowed := !s.deps.DisableRemote && s.deps.Gateway != nil && !s.deps.IgnoreRemoteForProcess[processID]
	if remoteAllowed {
		if mem, ord, ts, ok := s.restoreRemote(processID, moduleID, before); ok {
			return mem, ord, ts, true, nil
		}
	}
	return nil, "", 0, false, nil
}

func (s *Store) restoreRemote(processID, moduleID string, before ordinate.Ordinate) ([]byte, ordinate.Ordinate, int64, bool) {
	descriptors, err := s.deps.Gateway.QueryCheckpoints(processID, moduleID, s.deps.TrustedOwners)
	if err != nil {
		log.Warnf("gateway query failed for %s: %v", processID, err)
		return nil, "", 0, false
	}
	var best *CheckpointDescriptor
	for i := range descriptors {
		d := &descriptors[i]
		if s.deps.IgnoreCheckpointTxIDs[d.TxID] {
			continue
		}
		if ordinate.After(d.Ordinate, before) {
			continue
		}
		if best == nil || ordinate.After(d.Ordinate, best.Ordinate) {
			best = d
		}
	}
	if best == nil {
		return nil, "", 0, false
	}
	payload, err := s.deps.Gateway.DownloadPayload(best.TxID)
	if err != nil {
		log.Warnf("downloading checkpoint %s failed: %v", best.TxID, err)
		return nil, "", 0, false
	}
	if best.HashTag != "" && hashMemory(payload) != best.HashTag {
		log.Warnf("checkpoint %s failed hash verification, discarding", best.TxID)
		return nil, "", 0, false
	}
	return payload, best.Ordinate, best.Timestamp, true
}

func (s *Store) restoreLocal(processID string, before ordinate.Ordinate) ([]byte, ordinate.Ordinate, int64, bool, error) {
	if s.deps.RecordFind == nil {
		return nil, "", 0, false, nil
	}
	file, _, o, ts, found, err := s.deps.RecordFind(processID, before)
	if err != nil {
		return nil, "", 0, false, cuerr.Wrap(cuerr.KindTransient, err, "looking up local checkpoint index for %s", processID)
	}
	if !found {
		return nil, "", 0, false, nil
	}
	data, err := s.deps.Files.ReadCheckpointFile(file)
	if err != nil {
		return nil, "", 0, false, err
	}
	return data, o, ts, true, nil
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
