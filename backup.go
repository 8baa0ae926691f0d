package fountainstore

// backup.go implements point-in-time backup and restore. Backup files are
// plain copies; only the manifest rewrite during restore goes through the
// manifest store's atomic rename.

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Fountain-Coach/Fountain-Store/internal/manifest"
	"github.com/Fountain-Coach/Fountain-Store/internal/memtable"
	"github.com/Fountain-Coach/Fountain-Store/internal/wal"
)

// BackupRef describes one backup bundle under storePath/backups/<id>/.
type BackupRef struct {
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt"`
	Note      string `json:"note,omitempty"`
	SizeBytes int64  `json:"sizeBytes"`
}

// CreateBackup quiesces the store, flushes the memtable, and copies the
// manifest, active WAL segment, and every live SSTable into a new
// backups/<id>/ bundle.
func (s *Store) CreateBackup(note string) (BackupRef, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.syncWAL(); err != nil {
		return BackupRef{}, err
	}
	if err := s.flushLocked(); err != nil {
		return BackupRef{}, err
	}
	if err := s.syncWAL(); err != nil {
		return BackupRef{}, err
	}

	id := uuid.New().String()
	backupDir := filepath.Join(s.dir, "backups", id)
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return BackupRef{}, err
	}

	var total int64

	n, err := copyFile(filepath.Join(s.dir, manifest.FileName), filepath.Join(backupDir, manifest.FileName))
	if err != nil {
		return BackupRef{}, err
	}
	total += n

	n, err = copyFile(s.wal.ActivePath(), filepath.Join(backupDir, "wal.log"))
	if err != nil {
		return BackupRef{}, err
	}
	total += n

	state := s.manifestSt.State()
	for tableID, path := range state.Tables {
		n, err := copyFile(path, filepath.Join(backupDir, tableID+".sst"))
		if err != nil {
			return BackupRef{}, err
		}
		total += n
	}

	ref := BackupRef{ID: id, CreatedAt: time.Now().UTC().Format(time.RFC3339), Note: note, SizeBytes: total}
	data, err := json.MarshalIndent(ref, "", "  ")
	if err != nil {
		return BackupRef{}, err
	}
	if err := os.WriteFile(filepath.Join(backupDir, "backup.json"), data, 0o644); err != nil {
		return BackupRef{}, err
	}

	return ref, nil
}

// ListBackups enumerates backups/*/backup.json under the store path.
func (s *Store) ListBackups() ([]BackupRef, error) {
	root := filepath.Join(s.dir, "backups")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var refs []BackupRef
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, entry.Name(), "backup.json"))
		if err != nil {
			continue
		}
		var ref BackupRef
		if err := json.Unmarshal(data, &ref); err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].CreatedAt < refs[j].CreatedAt })
	return refs, nil
}

// RestoreBackup replaces the store's current SSTables, manifest, and
// active WAL segment with those from backup id, then reloads state from
// disk. Any collections opened before the restore keep stale in-memory
// state; callers should reopen the store afterward.
func (s *Store) RestoreBackup(id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	backupDir := filepath.Join(s.dir, "backups", id)
	if _, err := os.Stat(backupDir); err != nil {
		return fmt.Errorf("fountainstore: backup %q not found: %w", id, err)
	}

	current := s.manifestSt.State()
	for _, path := range current.Tables {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	backupManifestData, err := os.ReadFile(filepath.Join(backupDir, manifest.FileName))
	if err != nil {
		return err
	}
	var backupState manifest.State
	if err := json.Unmarshal(backupManifestData, &backupState); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	next := backupState.Clone()
	next.Tables = make(map[string]string, len(backupState.Tables))
	for tableID := range backupState.Tables {
		src := filepath.Join(backupDir, tableID+".sst")
		dst := filepath.Join(s.dir, tableID+".sst")
		if _, err := copyFile(src, dst); err != nil {
			return err
		}
		next.Tables[tableID] = dst
	}
	if err := s.manifestSt.Save(next); err != nil {
		return err
	}

	activePath := s.wal.ActivePath()
	if err := s.wal.Close(); err != nil {
		return err
	}
	rotated, err := filepath.Glob(filepath.Join(s.dir, "wal.*.log"))
	if err != nil {
		return err
	}
	for _, path := range rotated {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	if _, err := copyFile(filepath.Join(backupDir, "wal.log"), activePath); err != nil {
		return err
	}
	newWAL, err := wal.Open(s.dir, "wal", s.opts.WALSegmentBytes, s.logger)
	if err != nil {
		return err
	}
	s.wal = newWAL

	s.collMu.Lock()
	s.collections = make(map[string]collectionHandle)
	s.bootstrap = make(map[string][]bootstrapEntry)
	s.collMu.Unlock()

	s.sequence.Store(next.Sequence)
	s.mt = memtable.New(s.opts.MemtableLimit)
	if err := s.loadSSTables(next); err != nil {
		return err
	}
	return s.replayWAL(next.Sequence)
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return 0, err
	}
	return n, out.Sync()
}
