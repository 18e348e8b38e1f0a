package record

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storagecore/storage/bufferpool"
	"storagecore/storage/diskmanager"
	"storagecore/types"
)

func newTestManager(t *testing.T) (*Manager, *bufferpool.BufferPool) {
	t.Helper()
	dir := t.TempDir()
	dm := diskmanager.NewDiskManager()
	bp := bufferpool.NewBufferPool(16, dm)
	return NewManager(filepath.Join(dir, "data"), bp, dm), bp
}

func TestHeapFileInsertAndGet(t *testing.T) {
	mgr, _ := newTestManager(t)

	hf, err := mgr.CreateHeapfile("students", 1)
	require.NoError(t, err)
	require.NotNil(t, hf)

	rows := [][]byte{
		[]byte("Alice|20|A"),
		[]byte("Bob|21|B"),
		[]byte("Charlie|22|A"),
	}

	var rids []types.Rid
	for _, row := range rows {
		rid, err := mgr.InsertRecordRow(1, row, 1)
		require.NoError(t, err)
		rids = append(rids, rid)
	}

	for i, rid := range rids {
		got, err := mgr.GetRecordRow(rid)
		require.NoError(t, err)
		assert.Equal(t, rows[i], got)
	}
}

func TestHeapFileMultiplePages(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.CreateHeapfile("large_table", 1)
	require.NoError(t, err)

	pages := make(map[int64]int)
	for i := 0; i < 300; i++ {
		rowData := []byte(fmt.Sprintf("Student_%03d|Age_%d|Grade_%c", i, 20+i%5, 'A'+byte(i%3)))
		rid, err := mgr.InsertRecordRow(1, rowData, 1)
		require.NoError(t, err)
		pages[int64(rid.PageID.LocalPageNo())]++
	}

	assert.Greater(t, len(pages), 1, "expected rows to spill across multiple pages")
}

func TestHeapFileDeleteAndScan(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.CreateHeapfile("t", 1)
	require.NoError(t, err)

	rid1, err := mgr.InsertRecordRow(1, []byte("row1"), 1)
	require.NoError(t, err)
	_, err = mgr.InsertRecordRow(1, []byte("row2"), 1)
	require.NoError(t, err)

	require.NoError(t, mgr.DeleteRecordRow(rid1, 2))

	_, err = mgr.GetRecordRow(rid1)
	assert.Error(t, err, "reading a deleted slot should fail")

	rids, err := mgr.Scan(1)
	require.NoError(t, err)
	assert.Len(t, rids, 1)
}

func TestHeapFileUpdateInPlaceAndMoved(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.CreateHeapfile("t", 1)
	require.NoError(t, err)

	rid, err := mgr.InsertRecordRow(1, []byte("short1"), 1)
	require.NoError(t, err)

	newRid, err := mgr.UpdateRecordRow(rid, []byte("short2"), 2)
	require.NoError(t, err)
	assert.Equal(t, rid, newRid, "update that still fits should stay in place")

	got, err := mgr.GetRecordRow(newRid)
	require.NoError(t, err)
	assert.Equal(t, []byte("short2"), got)

	// A longer value no longer fits the old slot's bytes, so the row is
	// deleted and re-inserted; read it back through the returned Rid.
	movedRid, err := mgr.UpdateRecordRow(newRid, []byte("a much longer row"), 3)
	require.NoError(t, err)

	got, err = mgr.GetRecordRow(movedRid)
	require.NoError(t, err)
	assert.Equal(t, []byte("a much longer row"), got)
}
