package record

import (
	"fmt"

	"storagecore/types"
)

// External row operations take the heap file's lock before delegating
// to the internal, lock-free implementation: internal functions must
// stay lock-free, otherwise a compound operation like update (which
// internally deletes then inserts) would deadlock against itself.

func (m *Manager) InsertRecordRow(fileID uint32, rowData []byte, opLSN uint64) (types.Rid, error) {
	m.mu.RLock()
	hf, exists := m.files[fileID]
	m.mu.RUnlock()
	if !exists {
		return types.Rid{}, fmt.Errorf("record: heap file %d not found", fileID)
	}

	hf.mu.Lock()
	defer hf.mu.Unlock()
	return hf.insertRow(rowData, opLSN)
}

// InsertRecordAt re-inserts a record at an exact Rid, used by undo
// replay to restore a row deleted earlier in the same transaction.
func (m *Manager) InsertRecordAt(rid types.Rid, rowData []byte, opLSN uint64) error {
	fileID := rid.PageID.FileID()
	m.mu.RLock()
	hf, exists := m.files[fileID]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("record: heap file %d not found", fileID)
	}

	pg, err := hf.bufferPool.FetchPage(rid.PageID)
	if err != nil {
		return fmt.Errorf("record: fetch page for undo insert: %w", err)
	}

	pg.Lock()
	if err := InsertRecordAtSlot(pg, uint16(rid.Slot), rowData); err != nil {
		pg.Unlock()
		hf.bufferPool.UnpinPage(pg.ID, false)
		return fmt.Errorf("record: insert at slot %d: %w", rid.Slot, err)
	}
	SetLastAppliedLSN(pg, opLSN)
	pg.Unlock()
	hf.bufferPool.UnpinPage(pg.ID, true)
	return nil
}

func (m *Manager) GetRecordRow(rid types.Rid) ([]byte, error) {
	fileID := rid.PageID.FileID()
	m.mu.RLock()
	hf, exists := m.files[fileID]
	m.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("record: heap file %d not found", fileID)
	}

	hf.mu.RLock()
	defer hf.mu.RUnlock()
	return hf.getRow(rid)
}

func (m *Manager) UpdateRecordRow(rid types.Rid, newRowData []byte, opLSN uint64) (types.Rid, error) {
	fileID := rid.PageID.FileID()
	m.mu.RLock()
	hf, exists := m.files[fileID]
	m.mu.RUnlock()
	if !exists {
		return types.Rid{}, fmt.Errorf("record: heap file %d not found", fileID)
	}

	hf.mu.Lock()
	defer hf.mu.Unlock()
	return hf.updateRow(rid, newRowData, opLSN)
}

func (m *Manager) DeleteRecordRow(rid types.Rid, opLSN uint64) error {
	fileID := rid.PageID.FileID()
	m.mu.RLock()
	hf, exists := m.files[fileID]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("record: heap file %d not found", fileID)
	}

	hf.mu.Lock()
	defer hf.mu.Unlock()
	return hf.deleteRow(rid, opLSN)
}

// Scan returns every live Rid in fileID, in physical page order.
func (m *Manager) Scan(fileID uint32) ([]types.Rid, error) {
	hf, err := m.GetHeapFileByID(fileID)
	if err != nil {
		return nil, err
	}
	hf.mu.RLock()
	defer hf.mu.RUnlock()
	return hf.scanAll(), nil
}
