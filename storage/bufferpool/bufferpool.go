// Package bufferpool caches disk pages in a fixed set of frames,
// using the CLOCK algorithm (storage/replacer) to choose a victim
// frame when a miss occurs with no free frame available. Heap pages
// and B+ tree index pages share one pool, addressed by the global
// PageID space the disk manager hands out.
package bufferpool

import (
	"encoding/binary"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"storagecore/storage/diskmanager"
	"storagecore/storage/errs"
	"storagecore/storage/page"
	"storagecore/storage/replacer"
	"storagecore/types"
)

var log = logrus.WithField("component", "bufferpool")

func NewBufferPool(capacity int, dm *diskmanager.DiskManager) *BufferPool {
	free := make([]replacer.FrameID, capacity)
	for i := range free {
		free[i] = replacer.FrameID(i)
	}
	return &BufferPool{
		frames:      make([]*page.Page, capacity),
		pageTable:   make(map[types.PageID]replacer.FrameID, capacity),
		freeList:    free,
		replacer:    replacer.NewClockReplacer(capacity),
		capacity:    capacity,
		diskManager: dm,
	}
}

func (bp *BufferPool) SetWALManager(wal WALFlushedLSNGetter) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.walManager = wal
}

// FetchPage returns a page, pinned, loading it from disk on a miss.
func (bp *BufferPool) FetchPage(pageID types.PageID) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if frameID, ok := bp.pageTable[pageID]; ok {
		pg := bp.frames[frameID]
		bp.replacer.Pin(frameID)
		pg.Lock()
		pg.PinCount++
		pg.Unlock()
		log.WithField("page_id", pageID).Debug("buffer pool hit")
		return pg, nil
	}

	if bp.diskManager == nil {
		return nil, fmt.Errorf("bufferpool: disk manager not set")
	}

	pg, err := bp.diskManager.ReadPage(pageID)
	if err != nil {
		return nil, fmt.Errorf("bufferpool: read page %d from disk: %w", pageID, err)
	}
	if pg.PageType == types.PageTypeHeapData && len(pg.Data) >= 8 {
		pg.LSN = binary.LittleEndian.Uint64(pg.Data[page.LSNOffset:])
	}

	frameID, err := bp.acquireFrame()
	if err != nil {
		return nil, err
	}
	bp.installFrame(frameID, pg)
	bp.replacer.Pin(frameID)
	pg.PinCount++

	log.WithField("page_id", pageID).Debug("buffer pool miss, loaded from disk")
	return pg, nil
}

// NewPage allocates a fresh page ID from the disk manager and
// installs a blank, dirty, pinned in-memory page for it.
func (bp *BufferPool) NewPage(fileID uint32, pageType types.PageType) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.diskManager == nil {
		return nil, fmt.Errorf("bufferpool: disk manager not set")
	}

	pageID, err := bp.diskManager.AllocatePage(fileID, pageType)
	if err != nil {
		return nil, fmt.Errorf("bufferpool: allocate page: %w", err)
	}

	pg := page.New(pageID, pageType)
	pg.IsDirty = true
	pg.PinCount = 1

	frameID, err := bp.acquireFrame()
	if err != nil {
		return nil, err
	}
	bp.installFrame(frameID, pg)
	bp.replacer.Pin(frameID)

	return pg, nil
}

// UnpinPage decrements a page's pin count; once it reaches zero the
// frame becomes eligible for CLOCK eviction.
func (bp *BufferPool) UnpinPage(pageID types.PageID, isDirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, exists := bp.pageTable[pageID]
	if !exists {
		return fmt.Errorf("bufferpool: %w: page %d", errs.ErrPageNotFound, pageID)
	}
	pg := bp.frames[frameID]

	pg.Lock()
	if pg.PinCount > 0 {
		pg.PinCount--
	}
	if isDirty {
		pg.IsDirty = true
	}
	pinCount := pg.PinCount
	pg.Unlock()

	if pinCount == 0 {
		bp.replacer.Unpin(frameID)
	}
	return nil
}

// FlushPage writes one dirty page to disk, honoring the write-ahead
// rule: a page's LSN must already be covered by the WAL's flushed LSN.
func (bp *BufferPool) FlushPage(pageID types.PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, exists := bp.pageTable[pageID]
	if !exists {
		return fmt.Errorf("bufferpool: %w: page %d", errs.ErrPageNotFound, pageID)
	}
	pg := bp.frames[frameID]

	pg.Lock()
	defer pg.Unlock()
	return bp.flushLocked(pg)
}

// flushLocked writes pg to disk if dirty. Caller holds bp.mu and
// pg's latch.
func (bp *BufferPool) flushLocked(pg *page.Page) error {
	if !pg.IsDirty {
		return nil
	}
	if bp.walManager != nil {
		flushed := bp.walManager.GetFlushedLSN()
		if pg.LSN > flushed {
			return fmt.Errorf("bufferpool: page %d LSN %d not yet covered by WAL flushed LSN %d", pg.ID, pg.LSN, flushed)
		}
	}
	if err := bp.diskManager.WritePage(pg); err != nil {
		return fmt.Errorf("bufferpool: flush page %d: %w", pg.ID, err)
	}
	pg.IsDirty = false
	return nil
}

// FlushAllPages writes every dirty page whose LSN is covered by the
// WAL; pages that are not yet durable are skipped rather than erroring.
func (bp *BufferPool) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.diskManager == nil {
		return fmt.Errorf("bufferpool: disk manager not set")
	}

	flushedCount := 0
	for pageID, frameID := range bp.pageTable {
		pg := bp.frames[frameID]
		pg.Lock()
		if pg.IsDirty {
			if bp.walManager != nil && pg.LSN > bp.walManager.GetFlushedLSN() {
				pg.Unlock()
				continue
			}
			if err := bp.diskManager.WritePage(pg); err != nil {
				pg.Unlock()
				return fmt.Errorf("bufferpool: flush page %d: %w", pageID, err)
			}
			pg.IsDirty = false
			flushedCount++
		}
		pg.Unlock()
	}
	log.WithFields(logrus.Fields{"flushed": flushedCount, "resident": len(bp.pageTable)}).Debug("flush all pages")
	return nil
}

// acquireFrame returns a free frame, evicting a CLOCK victim if the
// pool is at capacity. Caller holds bp.mu.
func (bp *BufferPool) acquireFrame() (replacer.FrameID, error) {
	if len(bp.freeList) > 0 {
		id := bp.freeList[len(bp.freeList)-1]
		bp.freeList = bp.freeList[:len(bp.freeList)-1]
		return id, nil
	}
	return bp.evict()
}

// evict asks the replacer for a victim, flushing it if dirty. Caller
// holds bp.mu.
func (bp *BufferPool) evict() (replacer.FrameID, error) {
	for attempts := 0; attempts < bp.capacity; attempts++ {
		frameID, ok := bp.replacer.Victim()
		if !ok {
			return 0, errs.ErrAllPagesPinned
		}
		victim := bp.frames[frameID]
		if victim == nil {
			return frameID, nil
		}

		victim.Lock()
		if victim.PinCount > 0 {
			// Raced with a pinner between Victim() and the latch; put it
			// back into the replacer and try again.
			victim.Unlock()
			bp.replacer.Unpin(frameID)
			continue
		}
		if err := bp.flushLocked(victim); err != nil {
			// Not yet durable under the WAL: re-admit and try the next
			// candidate instead of failing the whole acquisition.
			victim.Unlock()
			bp.replacer.Unpin(frameID)
			continue
		}
		victim.Unlock()

		delete(bp.pageTable, victim.ID)
		log.WithField("page_id", victim.ID).Debug("evicted page")
		return frameID, nil
	}
	return 0, errs.ErrAllPagesPinned
}

func (bp *BufferPool) installFrame(frameID replacer.FrameID, pg *page.Page) {
	bp.frames[frameID] = pg
	bp.pageTable[pg.ID] = frameID
}

// DeletePage removes an unpinned page from the pool without flushing it.
func (bp *BufferPool) DeletePage(pageID types.PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, exists := bp.pageTable[pageID]
	if !exists {
		return nil
	}
	pg := bp.frames[frameID]

	pg.Lock()
	pinned := pg.PinCount > 0
	pg.Unlock()
	if pinned {
		return fmt.Errorf("bufferpool: %w: page %d", errs.ErrPageIsPinned, pageID)
	}

	bp.replacer.Pin(frameID) // ensure it's not left dangling in the replacer
	delete(bp.pageTable, pageID)
	bp.frames[frameID] = nil
	bp.freeList = append(bp.freeList, frameID)
	return nil
}

// humanizedStats renders the pool's footprint for diagnostic logging.
func (bp *BufferPool) humanizedStats() string {
	s := bp.statsLocked()
	return fmt.Sprintf("%s/%s pages, %d pinned, %d dirty",
		humanize.Comma(int64(s.TotalPages)), humanize.Comma(int64(s.Capacity)), s.PinnedPages, s.DirtyPages)
}
