// Package txn is the transaction manager: it owns transaction
// lifecycle (begin/commit/abort) and undoes a transaction's physical
// writes on abort by replaying each write's inverse in reverse order.
package txn

import (
	"sync"
	"sync/atomic"

	"storagecore/storage/lock"
	"storagecore/storage/wal"
	"storagecore/types"
)

// WriteKind names which physical operation a WriteRecord undoes.
type WriteKind int

const (
	WriteInsert WriteKind = iota
	WriteDelete
	WriteUpdate
	WriteIndexInsert
	WriteIndexDelete
)

func (k WriteKind) String() string {
	switch k {
	case WriteInsert:
		return "insert"
	case WriteDelete:
		return "delete"
	case WriteUpdate:
		return "update"
	case WriteIndexInsert:
		return "index-insert"
	case WriteIndexDelete:
		return "index-delete"
	default:
		return "?"
	}
}

// WriteRecord is one entry in a transaction's write log: the physical
// operation performed plus whatever pre-image undo needs to reverse
// it. A single ordered log (rather than one list per kind) is what
// lets undo walk the transaction's writes in true reverse-chronological
// order, matching how row and index writes interleave as they actually
// happened — undoing an update-then-delete on the same row out of
// chronological order would replay the update against a still-deleted
// (tombstoned) slot.
type WriteRecord struct {
	Kind     WriteKind
	FileID   uint32
	Rid      types.Rid
	PreImage []byte    // Delete: the deleted row's bytes. Update: the row's bytes before the update.
	Key      types.Key // IndexInsert/IndexDelete only.
}

// Transaction is one unit of work. It satisfies storage/lock.TxnHandle
// so the lock manager can record acquisitions against it directly.
type Transaction struct {
	id    types.TxnID
	state types.TxnState

	locks []types.LockDataId

	writeLog []WriteRecord

	mu sync.Mutex
}

func (t *Transaction) TxnID() types.TxnID    { return t.id }
func (t *Transaction) State() types.TxnState { return t.state }

func (t *Transaction) SetState(s types.TxnState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *Transaction) RecordLock(id types.LockDataId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locks = append(t.locks, id)
}

// RecordInsert logs a heap insert for undo-by-delete on abort. Called
// by the code that performed the insert, right after the record
// manager returned the new row's Rid.
func (t *Transaction) RecordInsert(fileID uint32, rid types.Rid) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeLog = append(t.writeLog, WriteRecord{Kind: WriteInsert, FileID: fileID, Rid: rid})
}

// RecordDelete logs a heap delete for undo-by-reinsert on abort,
// keeping the deleted bytes so they can be physically restored.
func (t *Transaction) RecordDelete(fileID uint32, rid types.Rid, rowData []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeLog = append(t.writeLog, WriteRecord{Kind: WriteDelete, FileID: fileID, Rid: rid, PreImage: rowData})
}

// RecordUpdate logs an update for undo-by-restore on abort. rid is
// where the row lives after the update (it may have moved if the new
// data didn't fit in the old slot); oldRowData is written back there.
func (t *Transaction) RecordUpdate(fileID uint32, rid types.Rid, oldRowData []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeLog = append(t.writeLog, WriteRecord{Kind: WriteUpdate, FileID: fileID, Rid: rid, PreImage: oldRowData})
}

// RecordIndexInsert logs an index entry insertion for undo-by-delete.
func (t *Transaction) RecordIndexInsert(fileID uint32, key types.Key, rid types.Rid) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeLog = append(t.writeLog, WriteRecord{Kind: WriteIndexInsert, FileID: fileID, Key: key, Rid: rid})
}

// RecordIndexDelete logs an index entry deletion for undo-by-reinsert.
func (t *Transaction) RecordIndexDelete(fileID uint32, key types.Key, rid types.Rid) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeLog = append(t.writeLog, WriteRecord{Kind: WriteIndexDelete, FileID: fileID, Key: key, Rid: rid})
}

// RecordManager is the slice of storage/record.Manager the txn
// manager undoes writes through.
type RecordManager interface {
	InsertRecordAt(rid types.Rid, rowData []byte, opLSN uint64) error
	DeleteRecordRow(rid types.Rid, opLSN uint64) error
	UpdateRecordRow(rid types.Rid, newRowData []byte, opLSN uint64) (types.Rid, error)
}

// IndexHandle is the slice of storage/index/bplus.Tree a single
// index's undo goes through.
type IndexHandle interface {
	InsertEntry(key types.Key, rid types.Rid) error
	DeleteEntry(key types.Key) error
}

// IndexRegistry resolves the fileID an index write targeted to the
// IndexHandle that owns it, since a transaction may maintain entries
// across several indexes over its lifetime.
type IndexRegistry struct {
	mu      sync.RWMutex
	indexes map[uint32]IndexHandle
}

func NewIndexRegistry() *IndexRegistry {
	return &IndexRegistry{indexes: make(map[uint32]IndexHandle)}
}

func (r *IndexRegistry) Register(fileID uint32, handle IndexHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexes[fileID] = handle
}

func (r *IndexRegistry) Lookup(fileID uint32) (IndexHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.indexes[fileID]
	return h, ok
}

// Manager owns the set of active transactions and drives begin,
// commit, and abort.
type Manager struct {
	nextID     uint64
	activeTxns map[types.TxnID]*Transaction
	records    RecordManager
	indexes    *IndexRegistry
	locks      *lock.Manager
	log        wal.LogManager
	mu         sync.RWMutex
}

func NewManager(records RecordManager, indexes *IndexRegistry, locks *lock.Manager, log wal.LogManager) *Manager {
	return &Manager{
		nextID:     1,
		activeTxns: make(map[types.TxnID]*Transaction),
		records:    records,
		indexes:    indexes,
		locks:      locks,
		log:        log,
	}
}

func (m *Manager) nextTxnID() types.TxnID {
	return types.TxnID(atomic.AddUint64(&m.nextID, 1) - 1)
}
