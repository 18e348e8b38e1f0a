package record

import (
	"fmt"
	"os"
	"path/filepath"

	"storagecore/storage/bufferpool"
	"storagecore/storage/diskmanager"
	"storagecore/types"
)

func NewManager(baseDir string, bp *bufferpool.BufferPool, dm *diskmanager.DiskManager) *Manager {
	return &Manager{
		baseDir:     baseDir,
		files:       make(map[uint32]*HeapFile),
		tableIndex:  make(map[string]uint32),
		bufferPool:  bp,
		diskManager: dm,
	}
}

// CreateHeapfile opens a brand-new heap file for tableName under the
// catalog-assigned fileID and initializes its first page.
func (m *Manager) CreateHeapfile(tableName string, fileID uint32) (*HeapFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("record: create heap directory for %s: %w", tableName, err)
	}
	filePath := filepath.Join(m.baseDir, fmt.Sprintf("%s.heap", tableName))
	if _, err := m.diskManager.OpenFileWithID(filePath, fileID); err != nil {
		return nil, fmt.Errorf("record: create heap file for %s: %w", tableName, err)
	}

	hf := &HeapFile{fileID: fileID, tableName: tableName, filePath: filePath, diskManager: m.diskManager, bufferPool: m.bufferPool}

	pg, err := m.bufferPool.NewPage(fileID, types.PageTypeHeapData)
	if err != nil {
		return nil, fmt.Errorf("record: allocate first page for %s: %w", tableName, err)
	}
	pg.Lock()
	InitHeapPage(pg, 0)
	pg.Unlock()
	if err := m.diskManager.RegisterPage(fileID, int64(pg.ID.LocalPageNo())); err != nil {
		return nil, err
	}
	m.bufferPool.UnpinPage(pg.ID, true)

	m.files[fileID] = hf
	m.tableIndex[tableName] = fileID
	return hf, nil
}

// LoadHeapFile reopens an existing heap file (used when reattaching to
// a database already on disk) and re-registers its pages.
func (m *Manager) LoadHeapFile(tableName string, fileID uint32) (*HeapFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	filePath := filepath.Join(m.baseDir, fmt.Sprintf("%s.heap", tableName))
	if _, err := m.diskManager.OpenFileWithID(filePath, fileID); err != nil {
		return nil, fmt.Errorf("record: load heap file for %s: %w", tableName, err)
	}

	totalPages, err := m.diskManager.GetTotalPages(filePath)
	if err != nil {
		return nil, err
	}
	for localPageNum := int64(0); localPageNum < totalPages; localPageNum++ {
		if err := m.diskManager.RegisterPage(fileID, localPageNum); err != nil {
			return nil, err
		}
	}

	hf := &HeapFile{fileID: fileID, tableName: tableName, filePath: filePath, diskManager: m.diskManager, bufferPool: m.bufferPool}
	m.files[fileID] = hf
	m.tableIndex[tableName] = fileID
	return hf, nil
}
