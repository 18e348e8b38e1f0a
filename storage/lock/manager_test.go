package lock

import (
	"errors"
	"testing"

	"storagecore/storage/errs"
	"storagecore/types"
)

type fakeTxn struct {
	id    types.TxnID
	state types.TxnState
	locks []types.LockDataId
}

func newFakeTxn(id types.TxnID) *fakeTxn { return &fakeTxn{id: id, state: types.TxnDefault} }

func (f *fakeTxn) TxnID() types.TxnID            { return f.id }
func (f *fakeTxn) State() types.TxnState         { return f.state }
func (f *fakeTxn) SetState(s types.TxnState)     { f.state = s }
func (f *fakeTxn) RecordLock(id types.LockDataId) { f.locks = append(f.locks, id) }

func TestLockSharedCompatibleAcrossTransactions(t *testing.T) {
	m := NewManager()
	t1, t2 := newFakeTxn(1), newFakeTxn(2)
	rid := types.Rid{PageID: 10, Slot: 0}

	if err := m.LockSharedOnRecord(t1, 5, rid); err != nil {
		t.Fatalf("t1 lock shared: %v", err)
	}
	if err := m.LockSharedOnRecord(t2, 5, rid); err != nil {
		t.Fatalf("t2 lock shared: %v", err)
	}
	if t1.state != types.TxnGrowing || t2.state != types.TxnGrowing {
		t.Fatalf("expected both txns GROWING, got %v %v", t1.state, t2.state)
	}
}

func TestLockExclusiveConflictAborts(t *testing.T) {
	m := NewManager()
	t1, t2 := newFakeTxn(1), newFakeTxn(2)
	rid := types.Rid{PageID: 10, Slot: 0}

	if err := m.LockSharedOnRecord(t1, 5, rid); err != nil {
		t.Fatalf("t1 lock shared: %v", err)
	}
	err := m.LockExclusiveOnRecord(t2, 5, rid)
	if err == nil {
		t.Fatal("expected deadlock-prevention abort")
	}
	if !errors.Is(err, errs.ErrDeadlockPrevention) {
		t.Fatalf("err = %v, want ErrDeadlockPrevention", err)
	}
}

func TestLockOnShrinkingRefused(t *testing.T) {
	m := NewManager()
	t1 := newFakeTxn(1)
	rid := types.Rid{PageID: 1, Slot: 0}

	if err := m.LockSharedOnRecord(t1, 5, rid); err != nil {
		t.Fatalf("lock shared: %v", err)
	}
	if err := m.Unlock(t1, types.NewRecordLockID(5, rid)); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if t1.state != types.TxnShrinking {
		t.Fatalf("state = %v, want SHRINKING", t1.state)
	}

	err := m.LockSharedOnRecord(t1, 5, types.Rid{PageID: 2, Slot: 0})
	if !errors.Is(err, errs.ErrLockOnShrinking) {
		t.Fatalf("err = %v, want ErrLockOnShrinking", err)
	}
}

func TestIdempotentReacquisition(t *testing.T) {
	m := NewManager()
	t1 := newFakeTxn(1)
	rid := types.Rid{PageID: 1, Slot: 0}

	if err := m.LockExclusiveOnRecord(t1, 5, rid); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if err := m.LockExclusiveOnRecord(t1, 5, rid); err != nil {
		t.Fatalf("re-acquisition should succeed idempotently: %v", err)
	}
}

func TestIntentionLocksCompatible(t *testing.T) {
	m := NewManager()
	t1, t2 := newFakeTxn(1), newFakeTxn(2)

	if err := m.LockISOnTable(t1, 7); err != nil {
		t.Fatalf("t1 IS: %v", err)
	}
	if err := m.LockIXOnTable(t2, 7); err != nil {
		t.Fatalf("t2 IX: %v", err)
	}
}

func TestIXConflictsWithS(t *testing.T) {
	m := NewManager()
	t1, t2 := newFakeTxn(1), newFakeTxn(2)

	if err := m.LockSharedOnTable(t1, 7); err != nil {
		t.Fatalf("t1 S: %v", err)
	}
	if err := m.LockIXOnTable(t2, 7); !errors.Is(err, errs.ErrDeadlockPrevention) {
		t.Fatalf("err = %v, want ErrDeadlockPrevention", err)
	}
}
