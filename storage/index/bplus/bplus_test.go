package bplus

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"storagecore/storage/bufferpool"
	"storagecore/storage/diskmanager"
	"storagecore/types"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	dir := t.TempDir()
	dm := diskmanager.NewDiskManager()
	bp := bufferpool.NewBufferPool(64, dm)
	tree, err := Open(filepath.Join(dir, "idx.db"), 1, bp, dm, nil)
	require.NoError(t, err)
	return tree
}

func keyOf(i int) types.Key {
	return types.Key(fmt.Sprintf("%08d", i))
}

func TestInsertAndGetValue(t *testing.T) {
	tree := newTestTree(t)

	for i := 0; i < 50; i++ {
		rid := types.Rid{PageID: types.NewPageID(2, uint32(i)), Slot: uint32(i)}
		require.NoError(t, tree.InsertEntry(keyOf(i), rid))
	}

	for i := 0; i < 50; i++ {
		rids, err := tree.GetValue(keyOf(i))
		require.NoError(t, err)
		require.Len(t, rids, 1)
		require.Equal(t, uint32(i), rids[0].Slot)
	}
}

func TestInsertDuplicateRejected(t *testing.T) {
	tree := newTestTree(t)

	rid := types.Rid{PageID: types.NewPageID(2, 0), Slot: 0}
	require.NoError(t, tree.InsertEntry(keyOf(1), rid))
	err := tree.InsertEntry(keyOf(1), rid)
	require.Error(t, err)
}

func TestInsertCausesSplit(t *testing.T) {
	tree := newTestTree(t)

	for i := 0; i < MaxKeys*3; i++ {
		rid := types.Rid{PageID: types.NewPageID(2, uint32(i)), Slot: uint32(i)}
		require.NoError(t, tree.InsertEntry(keyOf(i), rid))
	}
	require.NotEqual(t, types.InvalidPageID, tree.root)

	root, err := tree.fetchNode(tree.root)
	require.NoError(t, err)
	require.False(t, root.isLeaf(), "root should have been promoted to an internal node after enough splits")
	tree.bufferPool.UnpinPage(tree.root, false)

	for i := 0; i < MaxKeys*3; i++ {
		rids, err := tree.GetValue(keyOf(i))
		require.NoError(t, err)
		require.Equal(t, uint32(i), rids[0].Slot)
	}
}

func TestRangeScanOrdered(t *testing.T) {
	tree := newTestTree(t)

	order := rand.New(rand.NewSource(1)).Perm(200)
	for _, i := range order {
		rid := types.Rid{PageID: types.NewPageID(2, uint32(i)), Slot: uint32(i)}
		require.NoError(t, tree.InsertEntry(keyOf(i), rid))
	}

	start, err := tree.LeafBegin()
	require.NoError(t, err)

	it := tree.Seek(start)
	count := 0
	var prev types.Key
	for it.Valid() {
		k, err := it.Key()
		require.NoError(t, err)
		if prev != nil {
			require.Less(t, string(prev), string(k))
		}
		prev = k
		count++
		require.NoError(t, it.Next())
	}
	require.Equal(t, 200, count)
}

func TestDeleteThenLookupFails(t *testing.T) {
	tree := newTestTree(t)

	for i := 0; i < 30; i++ {
		rid := types.Rid{PageID: types.NewPageID(2, uint32(i)), Slot: uint32(i)}
		require.NoError(t, tree.InsertEntry(keyOf(i), rid))
	}

	require.NoError(t, tree.DeleteEntry(keyOf(15)))
	_, err := tree.GetValue(keyOf(15))
	require.Error(t, err)

	for i := 0; i < 30; i++ {
		if i == 15 {
			continue
		}
		_, err := tree.GetValue(keyOf(i))
		require.NoError(t, err)
	}
}

func TestDeleteAllCollapsesToEmptyRoot(t *testing.T) {
	tree := newTestTree(t)

	const n = 1000
	order := rand.New(rand.NewSource(42)).Perm(n)
	for _, i := range order {
		rid := types.Rid{PageID: types.NewPageID(2, uint32(i)), Slot: uint32(i)}
		require.NoError(t, tree.InsertEntry(keyOf(i), rid))
	}

	for i := n - 1; i >= 0; i-- {
		require.NoError(t, tree.DeleteEntry(keyOf(i)), "delete %d", i)
	}

	root, err := tree.fetchNode(tree.root)
	require.NoError(t, err)
	require.True(t, root.isLeaf(), "tree should have collapsed back to a single leaf root")
	require.Empty(t, root.keys)
	tree.bufferPool.UnpinPage(tree.root, false)
}

func TestReopenPersistsColumnTypesAndComparator(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idx.db")
	dm := diskmanager.NewDiskManager()
	bp := bufferpool.NewBufferPool(64, dm)

	columns := []ColumnSpec{{Type: ColumnInt, Length: 8}}
	tree, err := Open(path, 1, bp, dm, columns)
	require.NoError(t, err)

	values := []int64{5, -3, 0, 100, -100, 42}
	for _, v := range values {
		key, err := EncodeKey(columns, []interface{}{v})
		require.NoError(t, err)
		rid := types.Rid{PageID: types.NewPageID(2, uint32(v+1000)), Slot: 0}
		require.NoError(t, tree.InsertEntry(key, rid))
	}
	require.NoError(t, tree.Close())

	dm2 := diskmanager.NewDiskManager()
	bp2 := bufferpool.NewBufferPool(64, dm2)
	reopened, err := Open(path, 1, bp2, dm2, nil)
	require.NoError(t, err)
	require.Equal(t, columns, reopened.columns)

	start, err := reopened.LeafBegin()
	require.NoError(t, err)
	it := reopened.Seek(start)
	var got []int64
	for it.Valid() {
		k, err := it.Key()
		require.NoError(t, err)
		got = append(got, decodeInt64(k))
		require.NoError(t, it.Next())
	}
	require.Equal(t, []int64{-100, -3, 0, 5, 42, 100}, got, "numeric order must survive reopen, not two's-complement byte order")
}

func TestDeleteTriggersRedistributeAndCoalesce(t *testing.T) {
	tree := newTestTree(t)

	const n = 500
	for i := 0; i < n; i++ {
		rid := types.Rid{PageID: types.NewPageID(2, uint32(i)), Slot: uint32(i)}
		require.NoError(t, tree.InsertEntry(keyOf(i), rid))
	}

	for i := 0; i < n; i += 2 {
		require.NoError(t, tree.DeleteEntry(keyOf(i)))
	}

	for i := 0; i < n; i++ {
		rids, err := tree.GetValue(keyOf(i))
		if i%2 == 0 {
			require.Error(t, err)
		} else {
			require.NoError(t, err)
			require.Equal(t, uint32(i), rids[0].Slot)
		}
	}
}
