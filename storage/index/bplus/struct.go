// Package bplus is a disk-resident B+ tree secondary index: an ordered
// map from a fixed-width composite Key to a Rid, with nodes addressed
// as pages through the shared buffer pool.
//
// Every node, leaf or internal, carries num_keys keys and num_keys
// values: for an internal node, value[i] is a child page number whose
// subtree's first key equals key[i]. This duplicates the leftmost key
// of every child at its parent, unlike the classic N-keys/N+1-children
// layout — it keeps lower_bound/upper_bound and maintain_parent
// uniform across node types at the cost of one duplicated key per
// child.
package bplus

import (
	"sync"

	"storagecore/storage/bufferpool"
	"storagecore/storage/diskmanager"
	"storagecore/types"
)

type nodeType int

const (
	nodeInternal nodeType = iota
	nodeLeaf
)

const (
	// MaxKeys bounds how many (key, value) pairs a node holds before
	// it must split; MinKeys is the occupancy floor that triggers
	// redistribute/coalesce on delete.
	MaxKeys = 64
	MinKeys = MaxKeys / 2

	headerPageNo = 0 // local page 0 holds the file header (root, page count, first/last leaf, key layout), never a tree node
)

// node is the decoded in-memory form of one B+ tree page. Internal
// nodes use children; leaves use values. Both arrays are kept equal
// in length to keys, per the duplicated-first-key convention.
type node struct {
	pageID   types.PageID
	kind     nodeType
	keys     []types.Key
	children []types.PageID // internal only, len(children) == len(keys)
	values   []types.Rid    // leaf only, len(values) == len(keys)
	parent   types.PageID
	prevLeaf types.PageID // leaf only
	nextLeaf types.PageID // leaf only
	dirty    bool
}

func (n *node) isLeaf() bool { return n.kind == nodeLeaf }

// Tree is one B+ tree index, backed by its own file in the buffer
// pool / disk manager. The file header (local page 0, IxFileHdr) holds
// the root page number, page count, first/last leaf pointers, and the
// per-column type/length list the composite key is packed from; tree
// nodes start at local page 1.
type Tree struct {
	fileID      uint32
	root        types.PageID
	firstLeaf   types.PageID
	lastLeaf    types.PageID
	columns     []ColumnSpec
	bufferPool  *bufferpool.BufferPool
	diskManager *diskmanager.DiskManager
	cmp         func(a, b types.Key) int
	mu          sync.RWMutex
}

