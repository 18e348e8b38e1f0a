package bplus

import (
	"fmt"

	"storagecore/types"
)

// Iterator walks the leaf chain in key order starting from a given
// Iid, following nextLeaf at leaf boundaries and stopping at LeafEnd.
type Iterator struct {
	tree *Tree
	cur  types.Iid
	done bool
}

// Seek returns an Iterator positioned at start. start is typically the
// result of LowerBound, UpperBound, or LeafBegin.
func (t *Tree) Seek(start types.Iid) *Iterator {
	return &Iterator{tree: t, cur: start, done: start.IsEnd()}
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool { return !it.done }

// Key returns the key at the iterator's current position.
func (it *Iterator) Key() (types.Key, error) {
	if it.done {
		return nil, fmt.Errorf("bplus: iterator not positioned on an entry")
	}
	it.tree.mu.RLock()
	defer it.tree.mu.RUnlock()

	n, err := it.tree.fetchNode(it.cur.PageID)
	if err != nil {
		return nil, err
	}
	defer it.tree.bufferPool.UnpinPage(it.cur.PageID, false)

	if it.cur.Slot < 0 || it.cur.Slot >= len(n.keys) {
		return nil, fmt.Errorf("bplus: iterator slot %d out of range", it.cur.Slot)
	}
	return n.keys[it.cur.Slot], nil
}

// Value returns the Rid at the iterator's current position.
func (it *Iterator) Value() (types.Rid, error) {
	if it.done {
		return types.Rid{}, fmt.Errorf("bplus: iterator not positioned on an entry")
	}
	return it.tree.GetRid(it.cur)
}

// Next advances the iterator to the following entry, crossing into
// the next leaf via its nextLeaf pointer when the current leaf is
// exhausted. Sets Valid() to false once past the last entry.
func (it *Iterator) Next() error {
	if it.done {
		return nil
	}
	it.tree.mu.RLock()
	n, err := it.tree.fetchNode(it.cur.PageID)
	if err != nil {
		it.tree.mu.RUnlock()
		return err
	}
	nextLeaf := n.nextLeaf
	numKeys := len(n.keys)
	it.tree.bufferPool.UnpinPage(it.cur.PageID, false)
	it.tree.mu.RUnlock()

	if it.cur.Slot+1 < numKeys {
		it.cur.Slot++
		return nil
	}
	if nextLeaf == types.InvalidPageID {
		it.done = true
		it.cur = types.LeafEnd
		return nil
	}
	it.cur = types.Iid{PageID: nextLeaf, Slot: 0}

	it.tree.mu.RLock()
	next, err := it.tree.fetchNode(nextLeaf)
	if err != nil {
		it.tree.mu.RUnlock()
		return err
	}
	empty := len(next.keys) == 0
	it.tree.bufferPool.UnpinPage(nextLeaf, false)
	it.tree.mu.RUnlock()
	if empty {
		it.done = true
		it.cur = types.LeafEnd
	}
	return nil
}

// Close releases any resources held by the iterator. No-op: Iterator
// never holds a page pinned between calls.
func (it *Iterator) Close() error { return nil }
