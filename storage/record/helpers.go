package record

import (
	"fmt"

	"storagecore/storage/errs"
	"storagecore/storage/page"
	"storagecore/types"
)

func (m *Manager) GetHeapFileByTable(tableName string) (*HeapFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fileID, exists := m.tableIndex[tableName]
	if !exists {
		return nil, fmt.Errorf("record: %w: %s", errs.ErrTableNotFound, tableName)
	}
	hf, exists := m.files[fileID]
	if !exists {
		return nil, fmt.Errorf("record: table index inconsistency for %s", tableName)
	}
	return hf, nil
}

func (m *Manager) GetHeapFileByID(fileID uint32) (*HeapFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hf, exists := m.files[fileID]
	if !exists {
		return nil, fmt.Errorf("record: heap file %d not found", fileID)
	}
	return hf, nil
}

func (m *Manager) GetPageLSN(fileID uint32, localPageNo uint32) (uint64, error) {
	m.mu.RLock()
	hf, exists := m.files[fileID]
	m.mu.RUnlock()
	if !exists {
		return 0, fmt.Errorf("record: heap file %d not found", fileID)
	}

	pageID := types.NewPageID(fileID, localPageNo)
	pg, err := hf.bufferPool.FetchPage(pageID)
	if err != nil {
		return 0, err
	}
	defer hf.bufferPool.UnpinPage(pageID, false)
	return GetLastAppliedLSN(pg), nil
}

// findSuitablePage scans existing pages for enough free space,
// allocating a fresh page if none has room.
func (hf *HeapFile) findSuitablePage(requiredSpace uint16) (*page.Page, uint32, error) {
	requiredWithSlot := int(requiredSpace) + SlotSize

	totalPages := hf.diskManager.TotalPagesForFile(hf.fileID)
	for localPageNum := int64(0); localPageNum < totalPages; localPageNum++ {
		pageID := types.NewPageID(hf.fileID, uint32(localPageNum))
		pg, err := hf.bufferPool.FetchPage(pageID)
		if err != nil {
			continue
		}
		if FreeSpace(pg) >= requiredWithSlot {
			return pg, uint32(localPageNum), nil
		}
		hf.bufferPool.UnpinPage(pageID, false)
	}

	pg, err := hf.bufferPool.NewPage(hf.fileID, types.PageTypeHeapData)
	if err != nil {
		return nil, 0, err
	}
	localPageNum := pg.ID.LocalPageNo()
	pg.Lock()
	InitHeapPage(pg, localPageNum)
	pg.Unlock()
	if err := hf.diskManager.RegisterPage(hf.fileID, int64(localPageNum)); err != nil {
		hf.bufferPool.UnpinPage(pg.ID, false)
		return nil, 0, fmt.Errorf("record: register new page: %w", err)
	}

	return pg, localPageNum, nil
}

func (hf *HeapFile) Flush() error {
	return hf.bufferPool.FlushAllPages()
}

// FileID returns the file ID this heap file's rows live under, the ID
// callers pass to Manager.InsertRecordRow/GetRecordRow/etc.
func (hf *HeapFile) FileID() uint32 { return hf.fileID }

// TableName returns the table name this heap file was opened for.
func (hf *HeapFile) TableName() string { return hf.tableName }
