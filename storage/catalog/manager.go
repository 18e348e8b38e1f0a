package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"storagecore/storage/errs"
	"storagecore/types"
)

var log = logrus.WithField("component", "catalog")

// NewManager opens (or initializes) the db.meta document under dbDir.
// dbDir must already exist; NewManager does not create the database
// directory itself (see CreateDatabase for that).
func NewManager(dbDir string) (*Manager, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, types.TableSchema]{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: new schema cache: %w", err)
	}

	m := &Manager{
		path:  filepath.Join(dbDir, "db.meta"),
		meta:  dbMeta{NextFileID: 1, Tables: make(map[string]tableMeta)},
		cache: cache,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// CreateDatabase makes a fresh database directory and an empty
// db.meta inside it. Mirrors the teacher's per-database directory
// layout (dbRoot/currDb/...), collapsed to one db.meta file per
// spec.md §6 instead of the teacher's tables/ + metadata/ split.
func CreateDatabase(dbDir string) (*Manager, error) {
	if _, err := os.Stat(dbDir); err == nil {
		return nil, fmt.Errorf("catalog: create database %s: %w", dbDir, errs.ErrDatabaseExists)
	}
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("catalog: create database dir: %w", err)
	}
	return NewManager(dbDir)
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("catalog: read db.meta: %w", err)
	}

	var loaded dbMeta
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("catalog: parse db.meta: %w", err)
	}
	if loaded.Tables == nil {
		loaded.Tables = make(map[string]tableMeta)
	}
	m.meta = loaded
	return nil
}

// persist writes db.meta via write-temp, fsync, rename, matching the
// durability pattern storage/wal.CheckpointManager.Save uses.
func (m *Manager) persist() error {
	data, err := json.MarshalIndent(m.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog: marshal db.meta: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("catalog: write temp db.meta: %w", err)
	}
	tmpFile, err := os.OpenFile(tmpPath, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("catalog: reopen temp db.meta: %w", err)
	}
	syncErr := unix.Fsync(int(tmpFile.Fd()))
	tmpFile.Close()
	if syncErr != nil {
		return fmt.Errorf("catalog: fsync temp db.meta: %w", syncErr)
	}

	if err := os.Rename(tmpPath, m.path); err != nil {
		return fmt.Errorf("catalog: rename db.meta: %w", err)
	}
	if dir, err := os.Open(filepath.Dir(m.path)); err == nil {
		unix.Fsync(int(dir.Fd()))
		dir.Close()
	}
	return nil
}

func (m *Manager) nextFileID() uint32 {
	id := m.meta.NextFileID
	m.meta.NextFileID++
	return id
}
