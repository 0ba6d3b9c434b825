package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"IntelHarvest/internal/conf"
	"IntelHarvest/internal/model"
	pkglog "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultSnapshotPath = "data/intel_snapshot.json"
	snapshotFileMode    = 0o644
)

// SnapshotFileStore keeps the snapshot as a JSON document with a sibling
// backup of the previous version (intel_snapshot.json ->
// intel_snapshot.backup.json).
type SnapshotFileStore struct {
	path   string
	backup string
	logger *pkglog.LogHelper
}

// NewSnapshotFileStore creates a store at the configured snapshot path.
func NewSnapshotFileStore(c *conf.Harvest, logger log.Logger) *SnapshotFileStore {
	path := defaultSnapshotPath
	if c != nil && c.SnapshotPath != "" {
		path = c.SnapshotPath
	}
	return &SnapshotFileStore{
		path:   path,
		backup: BackupPath(path),
		logger: pkglog.NewLogHelper(logger),
	}
}

// BackupPath returns the backup location of a snapshot document.
func BackupPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".backup" + ext
}

// Path returns the snapshot document location.
func (s *SnapshotFileStore) Path() string {
	return s.path
}

// BackupFile returns the backup document location.
func (s *SnapshotFileStore) BackupFile() string {
	return s.backup
}

// Load reads the snapshot document. A missing file is ErrSnapshotNotFound.
func (s *SnapshotFileStore) Load(_ context.Context) (*model.DashboardSnapshot, error) {
	return readSnapshot(s.path)
}

// LoadBackup reads the backup document.
func (s *SnapshotFileStore) LoadBackup(_ context.Context) (*model.DashboardSnapshot, error) {
	return readSnapshot(s.backup)
}

func readSnapshot(path string) (*model.DashboardSnapshot, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path comes from configuration
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	snapshot := &model.DashboardSnapshot{}
	if err := json.Unmarshal(raw, snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return snapshot, nil
}

// Save copies the current document to the backup path, then replaces it
// atomically.
func (s *SnapshotFileStore) Save(_ context.Context, snapshot *model.DashboardSnapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	current, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if err := writeFileAtomic(s.backup, current, snapshotFileMode); err != nil {
			return fmt.Errorf("create backup: %w", err)
		}
		s.logger.Snapshot("Created backup", "path", s.backup)
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("read current snapshot: %w", err)
	}

	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := writeFileAtomic(s.path, raw, snapshotFileMode); err != nil {
		return err
	}
	return nil
}

// writeFileAtomic writes content to a temp file in the destination
// directory, syncs it and renames it over path.
func writeFileAtomic(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	tmp, err := os.CreateTemp(parent, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	cleanup = false
	return nil
}
