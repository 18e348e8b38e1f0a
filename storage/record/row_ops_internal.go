package record

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"storagecore/storage/page"
	"storagecore/types"
)

var log = logrus.WithField("component", "record")

// insertRow finds room for rowData and writes it, retrying if a
// concurrent writer filled the chosen page first.
func (hf *HeapFile) insertRow(rowData []byte, opLSN uint64) (types.Rid, error) {
	rowLen := uint16(len(rowData))
	maxRowSize := uint16(page.Size - HeaderSize - SlotSize - 1)
	if rowLen > maxRowSize {
		return types.Rid{}, fmt.Errorf("record: row too large: %d bytes (max %d)", rowLen, maxRowSize)
	}

	for {
		pg, localPageNum, err := hf.findSuitablePage(rowLen)
		if err != nil {
			return types.Rid{}, fmt.Errorf("record: find suitable page: %w", err)
		}

		pg.Lock()
		if FreeSpace(pg) < int(rowLen) {
			pg.Unlock()
			hf.bufferPool.UnpinPage(pg.ID, false)
			continue
		}

		slotIdx, err := InsertRecord(pg, rowData)
		if err != nil {
			pg.Unlock()
			hf.bufferPool.UnpinPage(pg.ID, false)
			return types.Rid{}, fmt.Errorf("record: insert into page: %w", err)
		}
		SetLastAppliedLSN(pg, opLSN)
		pg.Unlock()
		hf.bufferPool.UnpinPage(pg.ID, true)

		log.WithFields(logrus.Fields{"file_id": hf.fileID, "page": localPageNum, "slot": slotIdx}).Debug("insert")

		return types.Rid{PageID: types.NewPageID(hf.fileID, localPageNum), Slot: uint32(slotIdx)}, nil
	}
}

func (hf *HeapFile) getRow(rid types.Rid) ([]byte, error) {
	pg, err := hf.bufferPool.FetchPage(rid.PageID)
	if err != nil {
		return nil, fmt.Errorf("record: fetch page %d: %w", rid.PageID, err)
	}
	defer hf.bufferPool.UnpinPage(pg.ID, false)

	pg.RLock()
	defer pg.RUnlock()
	return GetRecord(pg, uint16(rid.Slot))
}

// scanAll returns every live Rid in physical page order.
func (hf *HeapFile) scanAll() []types.Rid {
	var result []types.Rid
	totalPages := hf.diskManager.TotalPagesForFile(hf.fileID)

	for localPageNum := int64(0); localPageNum < totalPages; localPageNum++ {
		pageID := types.NewPageID(hf.fileID, uint32(localPageNum))
		pg, err := hf.bufferPool.FetchPage(pageID)
		if err != nil {
			continue
		}
		pg.RLock()
		if pg.PageType == types.PageTypeHeapData {
			slotCount := GetSlotCount(pg)
			for slotIdx := uint16(0); slotIdx < slotCount; slotIdx++ {
				if IsSlotLive(pg, slotIdx) {
					result = append(result, types.Rid{PageID: pageID, Slot: uint32(slotIdx)})
				}
			}
		}
		pg.RUnlock()
		hf.bufferPool.UnpinPage(pageID, false)
	}
	return result
}

func (hf *HeapFile) deleteRow(rid types.Rid, opLSN uint64) error {
	pg, err := hf.bufferPool.FetchPage(rid.PageID)
	if err != nil {
		return fmt.Errorf("record: fetch page %d: %w", rid.PageID, err)
	}
	defer hf.bufferPool.UnpinPage(pg.ID, true)

	pg.Lock()
	defer pg.Unlock()
	if err := DeleteRecord(pg, uint16(rid.Slot)); err != nil {
		return err
	}
	SetLastAppliedLSN(pg, opLSN)
	log.WithFields(logrus.Fields{"rid": rid, "lsn": opLSN}).Debug("delete")
	return nil
}

// updateRow overwrites rid in place when the new value fits; otherwise
// it tombstones the old slot and re-inserts newRowData elsewhere,
// returning the (possibly different) Rid the caller must remember.
func (hf *HeapFile) updateRow(rid types.Rid, newRowData []byte, opLSN uint64) (types.Rid, error) {
	pg, err := hf.bufferPool.FetchPage(rid.PageID)
	if err != nil {
		return types.Rid{}, fmt.Errorf("record: fetch page %d: %w", rid.PageID, err)
	}

	pg.Lock()
	updated, err := UpdateRecord(pg, uint16(rid.Slot), newRowData)
	if err != nil {
		pg.Unlock()
		hf.bufferPool.UnpinPage(pg.ID, false)
		return types.Rid{}, fmt.Errorf("record: update record: %w", err)
	}
	SetLastAppliedLSN(pg, opLSN)
	pg.Unlock()
	hf.bufferPool.UnpinPage(pg.ID, true)

	if updated {
		return rid, nil
	}

	newRid, err := hf.insertRow(newRowData, opLSN)
	if err != nil {
		return types.Rid{}, fmt.Errorf("record: re-insert moved row: %w", err)
	}
	log.WithFields(logrus.Fields{"old_rid": rid, "new_rid": newRid}).Debug("update moved row")
	return newRid, nil
}
