// Package page defines the in-memory page buffer shared by the heap
// file manager and the B+ tree index: both hand a fixed-size byte
// slice to the buffer pool and let it own eviction, pinning and
// dirty tracking. The page's own latch only protects concurrent
// readers/writers of Data; it says nothing about pin/eviction, which
// is the buffer pool's job.
package page

import (
	"sync"

	"storagecore/types"
)

const (
	Size          = types.PageSize
	LSNOffset     = 0 // first 8 bytes of every page: page LSN
)

type Page struct {
	ID       types.PageID
	Data     []byte
	IsDirty  bool
	PinCount int32
	PageType types.PageType
	LSN      uint64
	mu       sync.RWMutex
}

func New(id types.PageID, pageType types.PageType) *Page {
	return &Page{
		ID:       id,
		Data:     make([]byte, Size),
		PageType: pageType,
	}
}

func (p *Page) Lock()    { p.mu.Lock() }
func (p *Page) Unlock()  { p.mu.Unlock() }
func (p *Page) RLock()   { p.mu.RLock() }
func (p *Page) RUnlock() { p.mu.RUnlock() }
