// Package manifest implements the atomic catalog of live SSTables, the
// last durable sequence, and the index catalog. The manifest is JSON on
// disk and is replaced atomically by write-temp-then-rename.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Fountain-Coach/Fountain-Store/internal/logging"
	"github.com/Fountain-Coach/Fountain-Store/internal/testutil"
)

// FileName is the manifest's on-disk file name within a store directory.
const FileName = "MANIFEST.json"

// ErrCorrupt indicates the on-disk manifest JSON failed to decode. This
// is always fatal, unlike WAL tail corruption, which is truncated and
// ignored.
var ErrCorrupt = errors.New("manifest: corrupt")

// IndexDef describes one secondary index registered on a collection.
// Dim is only meaningful for Kind == "vector".
type IndexDef struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
	Dim   int    `json:"dim,omitempty"`
}

// State is the decoded contents of the manifest: the last durable
// sequence, the live table set, and the per-collection index catalog.
type State struct {
	Sequence     uint64                `json:"sequence"`
	Tables       map[string]string     `json:"tables"`
	IndexCatalog map[string][]IndexDef `json:"indexCatalog"`
}

func newState() *State {
	return &State{
		Tables:       make(map[string]string),
		IndexCatalog: make(map[string][]IndexDef),
	}
}

// Clone returns a deep copy of s, so callers can mutate it before Save
// without racing readers of the previous state.
func (s *State) Clone() *State {
	c := &State{
		Sequence:     s.Sequence,
		Tables:       make(map[string]string, len(s.Tables)),
		IndexCatalog: make(map[string][]IndexDef, len(s.IndexCatalog)),
	}
	for k, v := range s.Tables {
		c.Tables[k] = v
	}
	for k, v := range s.IndexCatalog {
		c.IndexCatalog[k] = append([]IndexDef(nil), v...)
	}
	return c
}

// Store owns the manifest file for one store directory and serializes
// access to the current state.
type Store struct {
	mu     sync.RWMutex
	dir    string
	state  *State
	logger logging.Logger
}

// Open loads the manifest at dir/MANIFEST.json. A missing file yields an
// initial empty state; a present-but-malformed file is fatal.
func Open(dir string, logger logging.Logger) (*Store, error) {
	logger = logging.OrDefault(logger)
	path := filepath.Join(dir, FileName)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Store{dir: dir, state: newState(), logger: logger}, nil
	}
	if err != nil {
		return nil, err
	}

	state := newState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if state.Tables == nil {
		state.Tables = make(map[string]string)
	}
	if state.IndexCatalog == nil {
		state.IndexCatalog = make(map[string][]IndexDef)
	}
	return &Store{dir: dir, state: state, logger: logger}, nil
}

// State returns a deep copy of the current manifest state, safe for the
// caller to mutate and pass back to Save.
func (s *Store) State() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Sequence returns the last durable sequence recorded in the manifest.
func (s *Store) Sequence() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Sequence
}

// Save atomically replaces the on-disk manifest with next: serialize,
// write to MANIFEST.json.tmp, unlink any prior MANIFEST.json, rename the
// temp file into place.
func (s *Store) Save(next *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	testutil.MaybeKill(testutil.KPManifestSave)

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return err
	}

	finalPath := filepath.Join(s.dir, FileName)
	tmpPath := finalPath + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Remove(finalPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return err
	}

	s.state = next.Clone()
	s.logger.Debugf("%ssaved sequence=%d tables=%d", logging.NSManifest, next.Sequence, len(next.Tables))
	return nil
}
