package wal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Checkpoint is a durable recovery-point marker: the LSN as of which
// every dirty page is known to have been flushed.
type Checkpoint struct {
	LSN       uint64 `json:"lsn"`
	Timestamp int64  `json:"timestamp"`
	Database  string `json:"database"`
}

// CheckpointManager persists Checkpoint via the write-fsync-rename
// pattern so a crash mid-write never leaves a torn checkpoint file.
type CheckpointManager struct {
	path string
	mu   sync.RWMutex
}

func NewCheckpointManager(dbPath string) *CheckpointManager {
	return &CheckpointManager{path: filepath.Join(dbPath, "checkpoint.json")}
}

func (cm *CheckpointManager) Save(lsn uint64, database string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cp := Checkpoint{LSN: lsn, Timestamp: time.Now().Unix(), Database: database}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("wal: marshal checkpoint: %w", err)
	}

	tmpPath := cm.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("wal: write temp checkpoint: %w", err)
	}
	tmpFile, err := os.OpenFile(tmpPath, os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("wal: reopen temp checkpoint: %w", err)
	}
	syncErr := unix.Fsync(int(tmpFile.Fd()))
	tmpFile.Close()
	if syncErr != nil {
		return fmt.Errorf("wal: fsync temp checkpoint: %w", syncErr)
	}

	if err := os.Rename(tmpPath, cm.path); err != nil {
		return fmt.Errorf("wal: rename checkpoint: %w", err)
	}
	if dir, err := os.Open(filepath.Dir(cm.path)); err == nil {
		unix.Fsync(int(dir.Fd()))
		dir.Close()
	}
	return nil
}

func (cm *CheckpointManager) Load() (*Checkpoint, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if _, err := os.Stat(cm.path); os.IsNotExist(err) {
		return &Checkpoint{}, nil
	}
	data, err := os.ReadFile(cm.path)
	if err != nil {
		return nil, fmt.Errorf("wal: read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return &Checkpoint{}, nil
	}
	return &cp, nil
}

func (cm *CheckpointManager) Delete() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := os.Remove(cm.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("wal: delete checkpoint: %w", err)
	}
	return nil
}
