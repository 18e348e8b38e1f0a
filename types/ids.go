package types

import "fmt"

// Rid identifies a tuple's physical slot within a heap file page.
type Rid struct {
	PageID PageID
	Slot   uint32
}

func (r Rid) String() string {
	return fmt.Sprintf("Rid(%d,%d)", r.PageID, r.Slot)
}

// Iid identifies a logical position inside a B+ tree: the leaf page
// that holds the entry and the entry's slot within that leaf.
type Iid struct {
	PageID PageID
	Slot   int
}

// LeafEnd is the sentinel Iid one-past the final leaf entry, used as
// the exclusive end of a range scan.
var LeafEnd = Iid{PageID: InvalidPageID, Slot: -1}

func (i Iid) IsEnd() bool {
	return i.PageID == InvalidPageID && i.Slot == -1
}

// TxnID identifies a transaction for the lifetime of the process.
type TxnID uint64

const InvalidTxnID TxnID = 0

// Key is an opaque, comparable index key: a fixed-width byte encoding
// of one or more column values. A tree compares keys with raw
// bytes.Compare semantics unless it was built with column type/length
// information, in which case it decodes each column and compares it
// numerically or as a trimmed string instead.
type Key []byte

func (k Key) Clone() Key {
	out := make(Key, len(k))
	copy(out, k)
	return out
}

// LockTarget distinguishes table-level from row-level lock targets.
type LockTarget uint8

const (
	LockTargetTable LockTarget = iota
	LockTargetRecord
)

// LockDataId names the object a lock request applies to: either an
// entire file (table-level lock) or a single Rid within it
// (row-level lock).
type LockDataId struct {
	FileID uint32
	Rid    Rid
	Target LockTarget
}

func NewTableLockID(fileID uint32) LockDataId {
	return LockDataId{FileID: fileID, Target: LockTargetTable}
}

func NewRecordLockID(fileID uint32, rid Rid) LockDataId {
	return LockDataId{FileID: fileID, Rid: rid, Target: LockTargetRecord}
}
