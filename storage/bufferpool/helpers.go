package bufferpool

import (
	"fmt"

	"storagecore/storage/errs"
	"storagecore/storage/page"
	"storagecore/storage/replacer"
	"storagecore/types"
)

func (bp *BufferPool) statsLocked() Stats {
	s := Stats{TotalPages: len(bp.pageTable), Capacity: bp.capacity}
	for _, frameID := range bp.pageTable {
		pg := bp.frames[frameID]
		pg.RLock()
		if pg.PinCount > 0 {
			s.PinnedPages++
		}
		if pg.IsDirty {
			s.DirtyPages++
		}
		pg.RUnlock()
	}
	return s
}

// GetStats returns a snapshot of pool occupancy.
func (bp *BufferPool) GetStats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.statsLocked()
}

// LogStats emits the pool's current occupancy at debug level, with
// human-readable page counts.
func (bp *BufferPool) LogStats() {
	bp.mu.Lock()
	msg := bp.humanizedStats()
	bp.mu.Unlock()
	log.Debug(msg)
}

// Reset flushes every dirty page and empties the pool. Used by tests
// and by a clean shutdown path.
func (bp *BufferPool) Reset() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for _, frameID := range bp.pageTable {
		pg := bp.frames[frameID]
		pg.Lock()
		err := bp.flushLocked(pg)
		pg.Unlock()
		if err != nil {
			return fmt.Errorf("bufferpool: reset: %w", err)
		}
	}

	bp.frames = make([]*page.Page, bp.capacity)
	bp.pageTable = make(map[types.PageID]replacer.FrameID, bp.capacity)
	bp.replacer = replacer.NewClockReplacer(bp.capacity)
	bp.freeList = bp.freeList[:0]
	for i := 0; i < bp.capacity; i++ {
		bp.freeList = append(bp.freeList, replacer.FrameID(i))
	}
	return nil
}

func (bp *BufferPool) Size() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.pageTable)
}

func (bp *BufferPool) Capacity() int { return bp.capacity }

// FrameInfo is one frame's occupancy for introspection tooling
// (cmd/inspect).
type FrameInfo struct {
	Frame    int
	Occupied bool
	PageID   types.PageID
	PinCount int
	Dirty    bool
}

// Frames returns a point-in-time snapshot of every frame's occupancy,
// in frame-index order.
func (bp *BufferPool) Frames() []FrameInfo {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	byFrame := make(map[replacer.FrameID]types.PageID, len(bp.pageTable))
	for pid, fid := range bp.pageTable {
		byFrame[fid] = pid
	}

	out := make([]FrameInfo, len(bp.frames))
	for i := range bp.frames {
		info := FrameInfo{Frame: i}
		if pid, ok := byFrame[replacer.FrameID(i)]; ok {
			pg := bp.frames[i]
			pg.RLock()
			info.Occupied = true
			info.PageID = pid
			info.PinCount = int(pg.PinCount)
			info.Dirty = pg.IsDirty
			pg.RUnlock()
		}
		out[i] = info
	}
	return out
}

// GetPage returns a resident page without touching disk or pin state,
// or nil if it is not currently cached.
func (bp *BufferPool) GetPage(pageID types.PageID) *page.Page {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if frameID, ok := bp.pageTable[pageID]; ok {
		return bp.frames[frameID]
	}
	return nil
}

func (bp *BufferPool) MarkDirty(pageID types.PageID) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameID, exists := bp.pageTable[pageID]
	if !exists {
		return fmt.Errorf("bufferpool: %w: page %d", errs.ErrPageNotFound, pageID)
	}
	pg := bp.frames[frameID]
	pg.Lock()
	pg.IsDirty = true
	pg.Unlock()
	return nil
}
