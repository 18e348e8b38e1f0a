package bplus

import (
	"encoding/binary"
	"fmt"
	"os"

	"storagecore/storage/bufferpool"
	"storagecore/storage/diskmanager"
	"storagecore/types"
)

// Open creates or reopens the B+ tree index stored in indexPath under
// fileID. Local page 0 is reserved for the IxFileHdr file header; tree
// nodes start at local page 1. columns describes the composite key's
// per-column types and widths and is only consulted when creating a
// brand new index file — a reopened tree rebuilds its comparator from
// the column list already persisted in its own header, since that's
// the whole point of persisting it.
func Open(indexPath string, fileID uint32, bp *bufferpool.BufferPool, dm *diskmanager.DiskManager, columns []ColumnSpec) (*Tree, error) {
	_, statErr := os.Stat(indexPath)
	isNew := os.IsNotExist(statErr)

	if _, err := dm.OpenFileWithID(indexPath, fileID); err != nil {
		return nil, fmt.Errorf("bplus: open index file %s: %w", indexPath, err)
	}

	t := &Tree{
		fileID:      fileID,
		root:        types.InvalidPageID,
		firstLeaf:   types.InvalidPageID,
		lastLeaf:    types.InvalidPageID,
		bufferPool:  bp,
		diskManager: dm,
	}

	if isNew {
		t.columns = columns
		t.cmp = NewComparator(columns)

		if _, err := dm.AllocatePage(fileID, types.PageTypeMetadata); err != nil {
			return nil, fmt.Errorf("bplus: reserve header page: %w", err)
		}

		root, err := t.allocNode(nodeLeaf)
		if err != nil {
			return nil, err
		}
		t.root = root.pageID
		t.firstLeaf = root.pageID
		t.lastLeaf = root.pageID
		if err := t.writeNode(root); err != nil {
			t.bufferPool.UnpinPage(root.pageID, false)
			return nil, err
		}
		t.bufferPool.UnpinPage(root.pageID, true)

		if err := t.saveHeader(); err != nil {
			return nil, err
		}
		return t, nil
	}

	totalPages := dm.TotalPagesForFile(fileID)
	for local := int64(0); local < totalPages; local++ {
		if err := dm.RegisterPage(fileID, local); err != nil {
			return nil, err
		}
	}
	if err := t.loadHeader(); err != nil {
		return nil, err
	}
	t.cmp = NewComparator(t.columns)
	return t, nil
}

// IxFileHdr layout inside the metadata page:
//
//	root local id        8 bytes
//	page count            8 bytes (informational; diskManager's own page table is authoritative)
//	first-leaf local id   8 bytes
//	last-leaf local id    8 bytes
//	total key length      4 bytes
//	column count           4 bytes
//	per column: type (4 bytes) + length (4 bytes)
func (t *Tree) saveHeader() error {
	buf := make([]byte, 40+8*len(t.columns))
	binary.LittleEndian.PutUint64(buf[0:], uint64(localOf(t.fileID, t.root)))
	binary.LittleEndian.PutUint64(buf[8:], uint64(t.diskManager.TotalPagesForFile(t.fileID)))
	binary.LittleEndian.PutUint64(buf[16:], uint64(localOf(t.fileID, t.firstLeaf)))
	binary.LittleEndian.PutUint64(buf[24:], uint64(localOf(t.fileID, t.lastLeaf)))

	totalKeyLen := 0
	for _, c := range t.columns {
		totalKeyLen += c.Length
	}
	binary.LittleEndian.PutUint32(buf[32:], uint32(totalKeyLen))
	binary.LittleEndian.PutUint32(buf[36:], uint32(len(t.columns)))

	off := 40
	for _, c := range t.columns {
		binary.LittleEndian.PutUint32(buf[off:], uint32(c.Type))
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(c.Length))
		off += 8
	}
	return t.diskManager.WriteMetadata(t.fileID, buf)
}

func (t *Tree) loadHeader() error {
	buf, err := t.diskManager.ReadMetadata(t.fileID)
	if err != nil {
		return fmt.Errorf("bplus: read header: %w", err)
	}
	if len(buf) < 40 {
		return fmt.Errorf("bplus: truncated header")
	}
	t.root = globalOf(t.fileID, int64(binary.LittleEndian.Uint64(buf[0:])))
	t.firstLeaf = globalOf(t.fileID, int64(binary.LittleEndian.Uint64(buf[16:])))
	t.lastLeaf = globalOf(t.fileID, int64(binary.LittleEndian.Uint64(buf[24:])))

	numColumns := int(binary.LittleEndian.Uint32(buf[36:]))
	if len(buf) < 40+8*numColumns {
		return fmt.Errorf("bplus: truncated header column list")
	}
	columns := make([]ColumnSpec, numColumns)
	off := 40
	for i := 0; i < numColumns; i++ {
		columns[i] = ColumnSpec{
			Type:   ColumnType(binary.LittleEndian.Uint32(buf[off:])),
			Length: int(binary.LittleEndian.Uint32(buf[off+4:])),
		}
		off += 8
	}
	t.columns = columns
	return nil
}

// allocNode allocates a fresh page for a new node and returns it
// pinned; caller must unpin (and writeNode first if keeping it).
func (t *Tree) allocNode(kind nodeType) (*node, error) {
	pg, err := t.bufferPool.NewPage(t.fileID, types.PageTypeBPlusNode)
	if err != nil {
		return nil, fmt.Errorf("bplus: allocate node page: %w", err)
	}
	n := &node{
		pageID:   pg.ID,
		kind:     kind,
		parent:   types.InvalidPageID,
		prevLeaf: types.InvalidPageID,
		nextLeaf: types.InvalidPageID,
		dirty:    true,
	}
	if err := encodeNode(n, t.fileID, pg.Data); err != nil {
		t.bufferPool.UnpinPage(pg.ID, false)
		return nil, err
	}
	return n, nil
}

// fetchNode loads a node from the buffer pool; caller must unpin when done.
func (t *Tree) fetchNode(pageID types.PageID) (*node, error) {
	if pageID == types.InvalidPageID {
		return nil, fmt.Errorf("bplus: invalid node page id")
	}
	pg, err := t.bufferPool.FetchPage(pageID)
	if err != nil {
		return nil, fmt.Errorf("bplus: fetch node %d: %w", pageID, err)
	}
	n, err := decodeNode(pg.Data, t.fileID, pageID)
	if err != nil {
		t.bufferPool.UnpinPage(pageID, false)
		return nil, fmt.Errorf("bplus: decode node %d: %w", pageID, err)
	}
	return n, nil
}

// writeNode re-encodes n into its buffer pool frame and marks it
// dirty. Does not unpin.
func (t *Tree) writeNode(n *node) error {
	pg, err := t.bufferPool.FetchPage(n.pageID)
	if err != nil {
		return fmt.Errorf("bplus: fetch for write %d: %w", n.pageID, err)
	}
	defer t.bufferPool.UnpinPage(n.pageID, false)

	if err := encodeNode(n, t.fileID, pg.Data); err != nil {
		return fmt.Errorf("bplus: encode node %d: %w", n.pageID, err)
	}
	if err := t.bufferPool.MarkDirty(n.pageID); err != nil {
		return fmt.Errorf("bplus: mark node %d dirty: %w", n.pageID, err)
	}
	n.dirty = false
	return nil
}

// Close flushes every dirty page in the shared buffer pool (not only
// this tree's) and fsyncs the underlying disk manager.
func (t *Tree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.bufferPool.FlushAllPages(); err != nil {
		return fmt.Errorf("bplus: flush on close: %w", err)
	}
	return t.diskManager.Sync()
}
