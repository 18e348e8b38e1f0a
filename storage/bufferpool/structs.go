package bufferpool

import (
	"sync"

	"storagecore/storage/diskmanager"
	"storagecore/storage/page"
	"storagecore/storage/replacer"
	"storagecore/types"
)

// WALFlushedLSNGetter is the small slice of the log manager the
// buffer pool needs: the write-ahead rule requires that a dirty
// page's LSN never be written to disk ahead of the WAL record that
// produced it.
type WALFlushedLSNGetter interface {
	GetFlushedLSN() uint64
}

// BufferPool is a fixed-size cache of disk pages backed by the CLOCK
// replacement policy. It works uniformly over heap pages and B+ tree
// index pages; both are addressed by the same global PageID space.
type BufferPool struct {
	frames    []*page.Page              // fixed-size frame array
	pageTable map[types.PageID]replacer.FrameID
	freeList  []replacer.FrameID
	replacer  *replacer.ClockReplacer

	capacity    int
	diskManager *diskmanager.DiskManager
	walManager  WALFlushedLSNGetter

	mu sync.Mutex
}

type Stats struct {
	TotalPages  int
	PinnedPages int
	DirtyPages  int
	Capacity    int
}
