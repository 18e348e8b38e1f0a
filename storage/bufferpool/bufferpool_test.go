package bufferpool

import (
	"path/filepath"
	"testing"

	"storagecore/storage/diskmanager"
	"storagecore/types"
)

func newTestPool(t *testing.T, capacity int) (*BufferPool, uint32) {
	t.Helper()
	dir := t.TempDir()
	dm := diskmanager.NewDiskManager()
	fileID, err := dm.OpenFileWithID(filepath.Join(dir, "test.heap"), 1)
	if err != nil {
		t.Fatalf("OpenFileWithID: %v", err)
	}
	return NewBufferPool(capacity, dm), fileID
}

func TestBufferPoolNewAndFetch(t *testing.T) {
	bp, fileID := newTestPool(t, 4)

	pg, err := bp.NewPage(fileID, types.PageTypeHeapData)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	copy(pg.Data, []byte("hello"))
	if err := bp.UnpinPage(pg.ID, true); err != nil {
		t.Fatalf("UnpinPage: %v", err)
	}

	fetched, err := bp.FetchPage(pg.ID)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if string(fetched.Data[:5]) != "hello" {
		t.Fatalf("FetchPage data = %q, want %q", fetched.Data[:5], "hello")
	}
	bp.UnpinPage(fetched.ID, false)
}

func TestBufferPoolEvictsWhenFull(t *testing.T) {
	bp, fileID := newTestPool(t, 2)

	var ids []types.PageID
	for i := 0; i < 2; i++ {
		pg, err := bp.NewPage(fileID, types.PageTypeHeapData)
		if err != nil {
			t.Fatalf("NewPage: %v", err)
		}
		ids = append(ids, pg.ID)
		bp.UnpinPage(pg.ID, true)
	}

	// Pool is now full but both pages are unpinned, so a third
	// NewPage must evict one via CLOCK rather than failing.
	pg3, err := bp.NewPage(fileID, types.PageTypeHeapData)
	if err != nil {
		t.Fatalf("NewPage (triggering eviction): %v", err)
	}
	bp.UnpinPage(pg3.ID, true)

	if got := bp.Size(); got != 2 {
		t.Fatalf("Size() = %d, want 2 (capacity)", got)
	}
}

func TestBufferPoolRefusesToDeletePinnedPage(t *testing.T) {
	bp, fileID := newTestPool(t, 2)

	pg, err := bp.NewPage(fileID, types.PageTypeHeapData)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}

	if err := bp.DeletePage(pg.ID); err == nil {
		t.Fatal("expected DeletePage to refuse a pinned page")
	}

	bp.UnpinPage(pg.ID, false)
	if err := bp.DeletePage(pg.ID); err != nil {
		t.Fatalf("DeletePage after unpin: %v", err)
	}
}

func TestBufferPoolFlushAllPages(t *testing.T) {
	bp, fileID := newTestPool(t, 4)

	pg, err := bp.NewPage(fileID, types.PageTypeHeapData)
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	copy(pg.Data, []byte("persisted"))
	bp.UnpinPage(pg.ID, true)

	if err := bp.FlushAllPages(); err != nil {
		t.Fatalf("FlushAllPages: %v", err)
	}

	stats := bp.GetStats()
	if stats.DirtyPages != 0 {
		t.Fatalf("DirtyPages after flush = %d, want 0", stats.DirtyPages)
	}
}
