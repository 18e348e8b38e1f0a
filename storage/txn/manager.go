package txn

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"storagecore/types"
)

var log = logrus.WithField("component", "txnmanager")

// Begin starts a new transaction in the GROWING-eligible DEFAULT
// state and registers it as active.
func (m *Manager) Begin() *Transaction {
	t := &Transaction{id: m.nextTxnID(), state: types.TxnDefault}

	m.mu.Lock()
	m.activeTxns[t.id] = t
	m.mu.Unlock()
	log.WithField("txn", t.id).Debug("transaction begin")
	return t
}

// Commit releases every lock the transaction holds, flushes the WAL
// up to its last write, and marks it COMMITTED. Idempotent: committing
// an already-finished transaction is a no-op.
func (m *Manager) Commit(t *Transaction, commitLSN uint64) error {
	m.mu.Lock()
	_, active := m.activeTxns[t.id]
	m.mu.Unlock()
	if !active {
		return nil
	}
	if t.State() == types.TxnAborted {
		return fmt.Errorf("txn: transaction %d already aborted", t.id)
	}

	if m.log != nil {
		if err := m.log.FlushToLSN(commitLSN); err != nil {
			return fmt.Errorf("txn: flush wal before commit %d: %w", t.id, err)
		}
	}
	m.releaseLocks(t)
	t.SetState(types.TxnCommitted)

	m.mu.Lock()
	delete(m.activeTxns, t.id)
	m.mu.Unlock()
	log.WithField("txn", t.id).Debug("transaction commit")
	return nil
}

// Abort undoes every physical write the transaction made, in reverse
// order, releases its locks, and marks it ABORTED. Idempotent.
func (m *Manager) Abort(t *Transaction) error {
	m.mu.Lock()
	_, active := m.activeTxns[t.id]
	m.mu.Unlock()
	if !active {
		return nil
	}
	if t.State() == types.TxnCommitted {
		return fmt.Errorf("txn: transaction %d already committed", t.id)
	}

	if err := m.undo(t); err != nil {
		return fmt.Errorf("txn: undo transaction %d: %w", t.id, err)
	}
	m.releaseLocks(t)
	t.SetState(types.TxnAborted)

	m.mu.Lock()
	delete(m.activeTxns, t.id)
	m.mu.Unlock()
	log.WithField("txn", t.id).Debug("transaction abort")
	return nil
}

// undo replays the inverse of every recorded write in true reverse
// chronological order — the write log is a single list in call order,
// so undoing it back to front never reverses an update or index write
// against a row a later-recorded, earlier-undone step hasn't restored
// yet.
func (m *Manager) undo(t *Transaction) error {
	for i := len(t.writeLog) - 1; i >= 0; i-- {
		w := t.writeLog[i]
		var err error
		switch w.Kind {
		case WriteInsert:
			err = m.records.DeleteRecordRow(w.Rid, 0)
		case WriteDelete:
			err = m.records.InsertRecordAt(w.Rid, w.PreImage, 0)
		case WriteUpdate:
			_, err = m.records.UpdateRecordRow(w.Rid, w.PreImage, 0)
		case WriteIndexInsert:
			if handle, ok := m.indexes.Lookup(w.FileID); ok {
				err = handle.DeleteEntry(w.Key)
			}
		case WriteIndexDelete:
			if handle, ok := m.indexes.Lookup(w.FileID); ok {
				err = handle.InsertEntry(w.Key, w.Rid)
			}
		}
		if err != nil {
			return fmt.Errorf("undo %s write %d at %v: %w", w.Kind, i, w.Rid, err)
		}
	}
	return nil
}

func (m *Manager) releaseLocks(t *Transaction) {
	t.SetState(types.TxnShrinking)
	for _, id := range t.locks {
		m.locks.Unlock(t, id)
	}
}

// GetTransaction returns the active transaction with id, or nil.
func (m *Manager) GetTransaction(id types.TxnID) *Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeTxns[id]
}

// IsActive reports whether id names a currently active transaction.
func (m *Manager) IsActive(id types.TxnID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.activeTxns[id]
	return ok
}
