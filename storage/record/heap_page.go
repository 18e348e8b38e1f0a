// Package record is the heap file / record manager: fixed-size
// slotted pages holding variable-length tuples, addressed by Rid
// (PageID + slot index). Records grow forward from a fixed header;
// the slot directory grows backward from the end of the page.
package record

import (
	"encoding/binary"
	"fmt"

	"storagecore/storage/page"
	"storagecore/storage/errs"
)

// Heap page binary layout (little-endian):
//
//	Offset  Size  Field
//	0       8     LastAppliedLSN  — shared LSN convention across page types
//	8       1     PageType        — stamped by the disk manager on write
//	9       4     PageNo          — local page number, for diagnostics
//	13      2     RecordEndPtr    — first free byte after the last record
//	15      2     SlotRegionStart — first byte of the slot directory
//	17      2     NumRows         — live records
//	19      2     NumRowsFree     — tombstoned slots
//	21      2     IsPageFull      — 1 when no usable space remains
//	23      2     SlotCount       — total slot entries (live + tombstone)
//	25            HeaderSize
//
//	[ header ][ records -> ][ free space ][ <- slot directory ]
//
// A slot is 4 bytes: [Offset uint16][Length uint16]; slot i lives at
// PageSize-(i+1)*SlotSize, so slot 0 is nearest the end of the page.
const (
	offLSN             = 0
	offPageType        = 8
	offPageNo          = 9
	offRecordEndPtr    = 13
	offSlotRegionStart = 15
	offNumRows         = 17
	offNumRowsFree     = 19
	offIsPageFull      = 21
	offSlotCount       = 23

	HeaderSize = 25
	SlotSize   = 4
)

// InitHeapPage stamps a fresh heap-page header onto pg.Data.
func InitHeapPage(pg *page.Page, localPageNo uint32) {
	for i := 1; i < page.Size; i++ {
		pg.Data[i] = 0
	}
	binary.LittleEndian.PutUint64(pg.Data[offLSN:], 0)
	binary.LittleEndian.PutUint32(pg.Data[offPageNo:], localPageNo)
	binary.LittleEndian.PutUint16(pg.Data[offRecordEndPtr:], HeaderSize)
	binary.LittleEndian.PutUint16(pg.Data[offSlotRegionStart:], page.Size)
	binary.LittleEndian.PutUint16(pg.Data[offNumRows:], 0)
	binary.LittleEndian.PutUint16(pg.Data[offNumRowsFree:], 0)
	binary.LittleEndian.PutUint16(pg.Data[offIsPageFull:], 0)
	binary.LittleEndian.PutUint16(pg.Data[offSlotCount:], 0)
	pg.LSN = 0
	pg.IsDirty = true
}

// InsertRecord writes data into the page and returns its slot index.
func InsertRecord(pg *page.Page, data []byte) (uint16, error) {
	recordLen := uint16(len(data))
	if recordLen == 0 {
		return 0, fmt.Errorf("record: cannot insert empty record")
	}
	if FreeSpace(pg) < int(recordLen) {
		return 0, fmt.Errorf("record: %w: need %d bytes, have %d", errs.ErrPageFull, recordLen, FreeSpace(pg))
	}

	slotIdx := GetSlotCount(pg)
	for i := uint16(0); i < GetSlotCount(pg); i++ {
		if _, l := readSlot(pg, i); l == 0 {
			slotIdx = i
			break
		}
	}

	recordOffset := GetRecordEndPtr(pg)
	copy(pg.Data[recordOffset:], data)
	setRecordEndPtr(pg, recordOffset+recordLen)
	writeSlot(pg, slotIdx, recordOffset, recordLen)

	if slotIdx == GetSlotCount(pg) {
		setSlotRegionStart(pg, GetSlotRegionStart(pg)-SlotSize)
		setSlotCount(pg, GetSlotCount(pg)+1)
	} else {
		setNumRowsFree(pg, GetNumRowsFree(pg)-1)
	}
	setNumRows(pg, GetNumRows(pg)+1)
	if FreeSpace(pg) <= 0 {
		setIsPageFull(pg, true)
	}
	pg.IsDirty = true
	return slotIdx, nil
}

// GetRecord returns a copy of the record at slotIdx.
func GetRecord(pg *page.Page, slotIdx uint16) ([]byte, error) {
	if slotIdx >= GetSlotCount(pg) {
		return nil, fmt.Errorf("record: slot %d out of range (count=%d): %w", slotIdx, GetSlotCount(pg), errs.ErrRecordNotFound)
	}
	offset, length := readSlot(pg, slotIdx)
	if length == 0 {
		return nil, fmt.Errorf("record: slot %d is a tombstone: %w", slotIdx, errs.ErrRecordNotFound)
	}
	out := make([]byte, length)
	copy(out, pg.Data[offset:offset+length])
	return out, nil
}

// DeleteRecord tombstones slotIdx. The slot entry itself is retained
// so existing Rids stay valid and a later insert may reuse it; the
// record's bytes are not reclaimed, since inserts always append at the
// record end pointer.
func DeleteRecord(pg *page.Page, slotIdx uint16) error {
	if slotIdx >= GetSlotCount(pg) {
		return fmt.Errorf("record: slot %d out of range (count=%d): %w", slotIdx, GetSlotCount(pg), errs.ErrRecordNotFound)
	}
	if _, length := readSlot(pg, slotIdx); length == 0 {
		return fmt.Errorf("record: slot %d already deleted: %w", slotIdx, errs.ErrRecordNotFound)
	}
	writeSlot(pg, slotIdx, 0, 0)
	setNumRows(pg, GetNumRows(pg)-1)
	setNumRowsFree(pg, GetNumRowsFree(pg)+1)
	setIsPageFull(pg, false)
	pg.IsDirty = true
	return nil
}

// UpdateRecord replaces slotIdx's data. Returns true if the update
// fit in the original allocation; false means the original slot was
// tombstoned and the caller must re-insert newData elsewhere.
func UpdateRecord(pg *page.Page, slotIdx uint16, newData []byte) (bool, error) {
	if slotIdx >= GetSlotCount(pg) {
		return false, fmt.Errorf("record: slot %d out of range (count=%d): %w", slotIdx, GetSlotCount(pg), errs.ErrRecordNotFound)
	}
	offset, length := readSlot(pg, slotIdx)
	if length == 0 {
		return false, fmt.Errorf("record: slot %d is a tombstone: %w", slotIdx, errs.ErrRecordNotFound)
	}

	newLen := uint16(len(newData))
	if newLen <= length {
		copy(pg.Data[offset:], newData)
		writeSlot(pg, slotIdx, offset, newLen)
		pg.IsDirty = true
		return true, nil
	}

	if err := DeleteRecord(pg, slotIdx); err != nil {
		return false, err
	}
	return false, nil
}

// InsertRecordAtSlot writes data at an exact slot index, used by undo
// replay to restore a deleted record at its original Rid. Idempotent:
// a slot that already holds live data is left untouched.
func InsertRecordAtSlot(pg *page.Page, slotIdx uint16, data []byte) error {
	recordLen := uint16(len(data))

	if slotIdx < GetSlotCount(pg) {
		offset, length := readSlot(pg, slotIdx)
		if length > 0 && offset > 0 {
			return nil
		}
	}
	if FreeSpace(pg) < int(recordLen) {
		return fmt.Errorf("record: %w: insufficient space for undo insert", errs.ErrPageFull)
	}

	recordOffset := GetRecordEndPtr(pg)
	copy(pg.Data[recordOffset:], data)
	setRecordEndPtr(pg, recordOffset+recordLen)
	writeSlot(pg, slotIdx, recordOffset, recordLen)

	if slotIdx >= GetSlotCount(pg) {
		setSlotCount(pg, slotIdx+1)
		setSlotRegionStart(pg, GetSlotRegionStart(pg)-SlotSize)
	}
	setNumRows(pg, GetNumRows(pg)+1)
	pg.IsDirty = true
	return nil
}
