package ckpt

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/teris-io/shortid"
	"golang.org/x/crypto/blake2b"

	"github.com/permaweb/ao-cu/cuerr"
	"github.com/permaweb/ao-cu/ordinate"
)

// FileStore handles local spill and checkpoint files. Checkpoint
// filenames encode processId, ordinate, and timestamp so that a
// lexicographic directory listing corresponds to semantic ordering
// (spec.md §6), using ordinate.SortKey for the ordinate component.
// Spill filenames are derived from the content digest alone
// (spillDedupKey) and carry no processId, ordinate, or timestamp.
type FileStore struct {
	spillDir string
	ckptDir  string
	sidGen   *shortid.Shortid
}

// NewFileStore creates (if absent) the two local directories and
// returns a FileStore rooted on them.
func NewFileStore(spillDir, ckptDir string) (*FileStore, error) {
	for _, d := range []string{spillDir, ckptDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, cuerr.Wrap(cuerr.KindFatal, err, "creating directory %s", d)
		}
	}
	sid, err := shortid.New(1, shortid.DefaultABC, 1)
	if err != nil {
		return nil, cuerr.Wrap(cuerr.KindFatal, err, "initializing filename id generator")
	}
	return &FileStore{spillDir: spillDir, ckptDir: ckptDir, sidGen: sid}, nil
}

// spillDedupKey derives a short, stable key from a memory buffer's
// blake2b digest so that two evictions of byte-identical memory (a
// process that hasn't progressed since its last spill) land on the
// same file instead of growing the spill directory unbounded; separate
// from the sha256 digest used for the remote content address, which
// favors interop with the gateway's tag format over raw speed.
func spillDedupKey(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// WriteProcessMemoryFile spills a memory buffer to the spill directory
// and returns the name a later ReadProcessMemoryFile call can use.
// Satisfies memcache.Spiller.
func (fs *FileStore) WriteProcessMemoryFile(data []byte) (string, error) {
	name := fmt.Sprintf("spill-%s", spillDedupKey(data))
	path := filepath.Join(fs.spillDir, name)
	if _, err := os.Stat(path); err == nil {
		return name, nil // identical content already spilled
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", cuerr.Wrap(cuerr.KindTransient, err, "writing spill file %s", name)
	}
	return name, nil
}

// ReadProcessMemoryFile reads back a spilled memory buffer by name.
func (fs *FileStore) ReadProcessMemoryFile(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(fs.spillDir, name))
	if os.IsNotExist(err) {
		return nil, cuerr.NotFound("spill file %s", name)
	}
	if err != nil {
		return nil, cuerr.Wrap(cuerr.KindTransient, err, "reading spill file %s", name)
	}
	return data, nil
}

// checkpointFilename encodes processId, a sortable ordinate key, and
// timestamp, in that order, so filepath.Glob + sort.Strings on the
// directory gives semantic order per process.
func checkpointFilename(processID string, o ordinate.Ordinate, timestamp int64, suffix string) string {
	return fmt.Sprintf("%s__%s__%020d__%s", processID, ordinate.SortKey(o), timestamp, suffix)
}

// WriteCheckpointFile writes a local checkpoint payload file.
func (fs *FileStore) WriteCheckpointFile(processID string, o ordinate.Ordinate, timestamp int64, data []byte) (string, error) {
	suffix, err := fs.sidGen.Generate()
	if err != nil {
		return "", cuerr.Wrap(cuerr.KindFatal, err, "generating checkpoint filename suffix")
	}
	name := checkpointFilename(processID, o, timestamp, suffix)
	if err := os.WriteFile(filepath.Join(fs.ckptDir, name), data, 0o644); err != nil {
		return "", cuerr.Wrap(cuerr.KindTransient, err, "writing checkpoint file %s", name)
	}
	return name, nil
}

// ReadCheckpointFile reads back a local checkpoint payload by name.
func (fs *FileStore) ReadCheckpointFile(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(fs.ckptDir, name))
	if os.IsNotExist(err) {
		return nil, cuerr.NotFound("checkpoint file %s", name)
	}
	if err != nil {
		return nil, cuerr.Wrap(cuerr.KindTransient, err, "reading checkpoint file %s", name)
	}
	return data, nil
}

// FindCheckpointFileBefore scans the checkpoint directory by glob
// pattern for the greatest ordinate <= before belonging to processID.
func (fs *FileStore) FindCheckpointFileBefore(processID string, before ordinate.Ordinate) (string, bool, error) {
	matches, err := filepath.Glob(filepath.Join(fs.ckptDir, processID+"__*"))
	if err != nil {
		return "", false, cuerr.Wrap(cuerr.KindTransient, err, "globbing checkpoint directory for %s", processID)
	}
	sort.Strings(matches)
	beforeKey := ordinate.SortKey(before)
	var best string
	for _, m := range matches {
		base := filepath.Base(m)
		parts := strings.SplitN(base, "__", 4)
		if len(parts) < 2 {
			continue
		}
		if parts[1] <= beforeKey {
			best = base // matches sorted ascending: last hit wins
		}
	}
	if best == "" {
		return "", false, nil
	}
	return best, true, nil
}
