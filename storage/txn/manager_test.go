package txn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"storagecore/storage/bufferpool"
	"storagecore/storage/diskmanager"
	"storagecore/storage/index/bplus"
	"storagecore/storage/lock"
	"storagecore/storage/record"
	"storagecore/storage/wal"
	"storagecore/types"
)

type testFixture struct {
	txnMgr  *Manager
	recMgr  *record.Manager
	tree    *bplus.Tree
	lockMgr *lock.Manager
	log     *wal.SegmentLog
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	dir := t.TempDir()
	dm := diskmanager.NewDiskManager()
	bp := bufferpool.NewBufferPool(64, dm)

	recMgr := record.NewManager(filepath.Join(dir, "data"), bp, dm)
	_, err := recMgr.CreateHeapfile("t", 1)
	require.NoError(t, err)

	tree, err := bplus.Open(filepath.Join(dir, "idx.db"), 2, bp, dm, nil)
	require.NoError(t, err)

	indexes := NewIndexRegistry()
	indexes.Register(2, tree)

	logMgr, err := wal.Open(filepath.Join(dir, "wal"))
	require.NoError(t, err)

	lockMgr := lock.NewManager()
	txnMgr := NewManager(recMgr, indexes, lockMgr, logMgr)

	return &testFixture{txnMgr: txnMgr, recMgr: recMgr, tree: tree, lockMgr: lockMgr, log: logMgr}
}

func TestCommitKeepsWrites(t *testing.T) {
	f := newFixture(t)
	tx := f.txnMgr.Begin()

	rid, err := f.recMgr.InsertRecordRow(1, []byte("alice"), 0)
	require.NoError(t, err)
	tx.RecordInsert(1, rid)

	lsn, err := f.log.Append([]byte("insert alice"))
	require.NoError(t, err)

	require.NoError(t, f.txnMgr.Commit(tx, lsn))
	require.Equal(t, types.TxnCommitted, tx.State())

	data, err := f.recMgr.GetRecordRow(rid)
	require.NoError(t, err)
	require.Equal(t, "alice", string(data))
}

func TestAbortUndoesInsert(t *testing.T) {
	f := newFixture(t)
	tx := f.txnMgr.Begin()

	rid, err := f.recMgr.InsertRecordRow(1, []byte("bob"), 0)
	require.NoError(t, err)
	tx.RecordInsert(1, rid)

	require.NoError(t, f.txnMgr.Abort(tx))
	require.Equal(t, types.TxnAborted, tx.State())

	_, err = f.recMgr.GetRecordRow(rid)
	require.Error(t, err)
}

func TestAbortUndoesDeleteByReinserting(t *testing.T) {
	f := newFixture(t)

	setup := f.txnMgr.Begin()
	rid, err := f.recMgr.InsertRecordRow(1, []byte("carol"), 0)
	require.NoError(t, err)
	setup.RecordInsert(1, rid)
	require.NoError(t, f.txnMgr.Commit(setup, 0))

	tx := f.txnMgr.Begin()
	oldData, err := f.recMgr.GetRecordRow(rid)
	require.NoError(t, err)
	require.NoError(t, f.recMgr.DeleteRecordRow(rid, 0))
	tx.RecordDelete(1, rid, oldData)

	require.NoError(t, f.txnMgr.Abort(tx))

	data, err := f.recMgr.GetRecordRow(rid)
	require.NoError(t, err)
	require.Equal(t, "carol", string(data))
}

func TestAbortUndoesIndexInsert(t *testing.T) {
	f := newFixture(t)
	tx := f.txnMgr.Begin()

	key := types.Key("k1")
	rid := types.Rid{PageID: types.NewPageID(1, 0), Slot: 0}
	require.NoError(t, f.tree.InsertEntry(key, rid))
	tx.RecordIndexInsert(2, key, rid)

	require.NoError(t, f.txnMgr.Abort(tx))

	_, err := f.tree.GetValue(key)
	require.Error(t, err)
}

func TestCommitIsIdempotent(t *testing.T) {
	f := newFixture(t)
	tx := f.txnMgr.Begin()
	require.NoError(t, f.txnMgr.Commit(tx, 0))
	require.NoError(t, f.txnMgr.Commit(tx, 0))
}

func TestAbortUndoesUpdateThenDeleteOnSameRow(t *testing.T) {
	f := newFixture(t)

	setup := f.txnMgr.Begin()
	rid, err := f.recMgr.InsertRecordRow(1, []byte("dave"), 0)
	require.NoError(t, err)
	setup.RecordInsert(1, rid)
	require.NoError(t, f.txnMgr.Commit(setup, 0))

	tx := f.txnMgr.Begin()
	oldData, err := f.recMgr.GetRecordRow(rid)
	require.NoError(t, err)
	newRid, err := f.recMgr.UpdateRecordRow(rid, []byte("dave-updated"), 0)
	require.NoError(t, err)
	tx.RecordUpdate(1, newRid, oldData)

	deletedData, err := f.recMgr.GetRecordRow(newRid)
	require.NoError(t, err)
	require.NoError(t, f.recMgr.DeleteRecordRow(newRid, 0))
	tx.RecordDelete(1, newRid, deletedData)

	require.NoError(t, f.txnMgr.Abort(tx))

	data, err := f.recMgr.GetRecordRow(newRid)
	require.NoError(t, err)
	require.Equal(t, "dave", string(data))
}

func TestAbortAfterCommitErrors(t *testing.T) {
	f := newFixture(t)
	tx := f.txnMgr.Begin()
	require.NoError(t, f.txnMgr.Commit(tx, 0))

	tx.SetState(types.TxnCommitted)
	f.txnMgr.mu.Lock()
	f.txnMgr.activeTxns[tx.TxnID()] = tx
	f.txnMgr.mu.Unlock()

	err := f.txnMgr.Abort(tx)
	require.Error(t, err)
}
