// Package lock implements a multi-granularity two-phase-locking lock
// manager: intention locks (IS/IX) at table granularity, shared/
// exclusive locks at table or record granularity, and no-wait
// deadlock prevention (an incompatible request aborts the requesting
// transaction immediately rather than blocking).
package lock

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"storagecore/storage/errs"
	"storagecore/types"
)

var log = logrus.WithField("component", "lockmanager")

// checkGrowing refuses any new lock request once a transaction has
// entered its SHRINKING phase.
func checkGrowing(txn TxnHandle) error {
	if txn.State() == types.TxnShrinking {
		return fmt.Errorf("lock: txn %d: %w", txn.TxnID(), errs.ErrLockOnShrinking)
	}
	return nil
}

func beginGrowingIfDefault(txn TxnHandle) {
	if txn.State() == types.TxnDefault {
		txn.SetState(types.TxnGrowing)
	}
}

// alreadyGranted reports whether txn already holds a granted request
// on this queue, matching the idempotent re-acquisition rule: this
// engine never performs a true lock upgrade, so a transaction that
// already holds any granted mode on an object simply succeeds again.
func alreadyGranted(q *RequestQueue, txnID types.TxnID) bool {
	for _, r := range q.Requests {
		if r.TxnID == txnID && r.Granted {
			return true
		}
	}
	return false
}

func (m *Manager) queueFor(id types.LockDataId) *RequestQueue {
	q, ok := m.table[id]
	if !ok {
		q = &RequestQueue{}
		m.table[id] = q
	}
	return q
}

func (m *Manager) grant(txn TxnHandle, id types.LockDataId, q *RequestQueue, mode Mode, newGroup GroupMode) {
	q.Requests = append(q.Requests, Request{TxnID: txn.TxnID(), Mode: mode, Granted: true})
	q.GroupMode = newGroup
	txn.RecordLock(id)
	beginGrowingIfDefault(txn)
	log.WithFields(logrus.Fields{"txn": txn.TxnID(), "lock": id, "mode": mode}).Debug("lock granted")
}

func abortIncompatible(txn TxnHandle, id types.LockDataId, requested Mode) error {
	log.WithFields(logrus.Fields{"txn": txn.TxnID(), "lock": id, "mode": requested}).Debug("lock denied: incompatible, aborting (no-wait)")
	return fmt.Errorf("lock: txn %d requesting %s on %v: %w", txn.TxnID(), requested, id, errs.ErrDeadlockPrevention)
}

// LockSharedOnRecord acquires a row-level S lock. Incompatible with a
// row-level X lock on the same Rid.
func (m *Manager) LockSharedOnRecord(txn TxnHandle, fileID uint32, rid types.Rid) error {
	if err := checkGrowing(txn); err != nil {
		return err
	}
	id := types.NewRecordLockID(fileID, rid)

	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queueFor(id)
	if alreadyGranted(q, txn.TxnID()) {
		return nil
	}
	if q.GroupMode == GroupX {
		return abortIncompatible(txn, id, Shared)
	}
	newGroup := q.GroupMode
	if newGroup == NonLock || newGroup == GroupIS {
		newGroup = GroupS
	}
	m.grant(txn, id, q, Shared, newGroup)
	return nil
}

// LockExclusiveOnRecord acquires a row-level X lock. Incompatible
// with any other granted lock on the same Rid.
func (m *Manager) LockExclusiveOnRecord(txn TxnHandle, fileID uint32, rid types.Rid) error {
	if err := checkGrowing(txn); err != nil {
		return err
	}
	id := types.NewRecordLockID(fileID, rid)

	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queueFor(id)
	if alreadyGranted(q, txn.TxnID()) {
		return nil
	}
	if q.GroupMode != NonLock {
		return abortIncompatible(txn, id, Exclusive)
	}
	m.grant(txn, id, q, Exclusive, GroupX)
	return nil
}

// LockSharedOnTable acquires a table-level S lock. Incompatible with
// IX, SIX or X held on the table.
func (m *Manager) LockSharedOnTable(txn TxnHandle, fileID uint32) error {
	if err := checkGrowing(txn); err != nil {
		return err
	}
	id := types.NewTableLockID(fileID)

	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queueFor(id)
	if alreadyGranted(q, txn.TxnID()) {
		return nil
	}
	if q.GroupMode == GroupIX || q.GroupMode == GroupSIX || q.GroupMode == GroupX {
		return abortIncompatible(txn, id, Shared)
	}
	newGroup := q.GroupMode
	if newGroup == NonLock || newGroup == GroupIS {
		newGroup = GroupS
	}
	m.grant(txn, id, q, Shared, newGroup)
	return nil
}

// LockExclusiveOnTable acquires a table-level X lock. Incompatible
// with any other granted lock on the table.
func (m *Manager) LockExclusiveOnTable(txn TxnHandle, fileID uint32) error {
	if err := checkGrowing(txn); err != nil {
		return err
	}
	id := types.NewTableLockID(fileID)

	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queueFor(id)
	if alreadyGranted(q, txn.TxnID()) {
		return nil
	}
	if q.GroupMode != NonLock {
		return abortIncompatible(txn, id, Exclusive)
	}
	m.grant(txn, id, q, Exclusive, GroupX)
	return nil
}

// LockISOnTable acquires a table-level intention-shared lock, taken
// before locking individual rows for reading. Incompatible only with
// a table-level X lock.
func (m *Manager) LockISOnTable(txn TxnHandle, fileID uint32) error {
	if err := checkGrowing(txn); err != nil {
		return err
	}
	id := types.NewTableLockID(fileID)

	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queueFor(id)
	if alreadyGranted(q, txn.TxnID()) {
		return nil
	}
	if q.GroupMode == GroupX {
		return abortIncompatible(txn, id, IntentionShared)
	}
	newGroup := q.GroupMode
	if newGroup == NonLock {
		newGroup = GroupIS
	}
	m.grant(txn, id, q, IntentionShared, newGroup)
	return nil
}

// LockIXOnTable acquires a table-level intention-exclusive lock,
// taken before locking individual rows for writing. Incompatible with
// S, SIX or X.
func (m *Manager) LockIXOnTable(txn TxnHandle, fileID uint32) error {
	if err := checkGrowing(txn); err != nil {
		return err
	}
	id := types.NewTableLockID(fileID)

	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queueFor(id)
	if alreadyGranted(q, txn.TxnID()) {
		return nil
	}
	if q.GroupMode == GroupS || q.GroupMode == GroupSIX || q.GroupMode == GroupX {
		return abortIncompatible(txn, id, IntentionExclusive)
	}
	newGroup := q.GroupMode
	if newGroup == NonLock || newGroup == GroupIS {
		newGroup = GroupIX
	}
	m.grant(txn, id, q, IntentionExclusive, newGroup)
	return nil
}

// Unlock releases a single lock-table entry held by txn and moves a
// GROWING transaction into SHRINKING. The caller (storage/txn's
// Manager) calls Unlock once per entry in the transaction's lock set
// when it commits or aborts.
func (m *Manager) Unlock(txn TxnHandle, id types.LockDataId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.table[id]
	if !ok {
		return fmt.Errorf("lock: %w: %v", errs.ErrLockNotHeld, id)
	}

	for i, r := range q.Requests {
		if r.TxnID == txn.TxnID() {
			q.Requests = append(q.Requests[:i], q.Requests[i+1:]...)
			break
		}
	}

	q.GroupMode = NonLock
	for _, r := range q.Requests {
		if !r.Granted {
			continue
		}
		mode := groupModeOf(r.Mode)
		if mode > q.GroupMode {
			q.GroupMode = mode
		}
	}

	if txn.State() == types.TxnGrowing {
		txn.SetState(types.TxnShrinking)
	}
	return nil
}

// Snapshot returns a point-in-time copy of the lock table, keyed by
// LockDataId, for introspection tooling (cmd/inspect). The copy is
// safe to read without holding the manager's mutex.
func (m *Manager) Snapshot() map[types.LockDataId]RequestQueue {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[types.LockDataId]RequestQueue, len(m.table))
	for id, q := range m.table {
		requests := make([]Request, len(q.Requests))
		copy(requests, q.Requests)
		out[id] = RequestQueue{Requests: requests, GroupMode: q.GroupMode}
	}
	return out
}

func groupModeOf(m Mode) GroupMode {
	switch m {
	case IntentionShared:
		return GroupIS
	case IntentionExclusive:
		return GroupIX
	case Shared:
		return GroupS
	case SharedIntentionExclusive:
		return GroupSIX
	case Exclusive:
		return GroupX
	default:
		return NonLock
	}
}
