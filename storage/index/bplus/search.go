package bplus

import (
	"fmt"

	"storagecore/storage/errs"
	"storagecore/types"
)

// lowerBound returns the first index i in [0, len(keys)] with
// keys[i] >= target, or len(keys) if none.
func lowerBound(keys []types.Key, target types.Key, cmp func(a, b types.Key) int) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if cmp(keys[mid], target) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// upperBound returns the first index i in [0, len(keys)] with
// keys[i] > target, or len(keys) if none.
func upperBound(keys []types.Key, target types.Key, cmp func(a, b types.Key) int) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := lo + (hi-lo)/2
		if cmp(keys[mid], target) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// internalLookup returns the child index to descend into for key,
// honoring the duplicated-first-key separator convention: the target
// child is the last one whose first key is <= key.
func internalLookup(n *node, key types.Key, cmp func(a, b types.Key) int) int {
	idx := upperBound(n.keys, key, cmp) - 1
	if idx < 0 {
		idx = 0
	}
	return idx
}

// findLeaf descends from root to the leaf that would contain key.
// Returns the leaf pinned; caller must unpin.
func (t *Tree) findLeaf(key types.Key) (*node, error) {
	pageID := t.root
	for {
		n, err := t.fetchNode(pageID)
		if err != nil {
			return nil, err
		}
		if n.isLeaf() {
			return n, nil
		}
		childIdx := internalLookup(n, key, t.cmp)
		nextID := n.children[childIdx]
		t.bufferPool.UnpinPage(pageID, false)
		pageID = nextID
	}
}

// leafLookup finds key's exact slot in leaf, if present.
func leafLookup(leaf *node, key types.Key, cmp func(a, b types.Key) int) (int, bool) {
	idx := lowerBound(leaf.keys, key, cmp)
	if idx < len(leaf.keys) && cmp(leaf.keys[idx], key) == 0 {
		return idx, true
	}
	return -1, false
}

// GetValue returns every Rid stored under key (the duplicate-forbidding
// insert means this is at most one, but the interface returns a slice
// per the spec's get_value(key, *out_rids) shape).
func (t *Tree) GetValue(key types.Key) ([]types.Rid, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	leaf, err := t.findLeaf(key)
	if err != nil {
		return nil, err
	}
	defer t.bufferPool.UnpinPage(leaf.pageID, false)

	if idx, ok := leafLookup(leaf, key, t.cmp); ok {
		return []types.Rid{leaf.values[idx]}, nil
	}
	return nil, fmt.Errorf("bplus: key not found: %w", errs.ErrIndexEntryNotFound)
}

// LowerBound returns the Iid of the first entry with key >= target.
func (t *Tree) LowerBound(key types.Key) (types.Iid, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	leaf, err := t.findLeaf(key)
	if err != nil {
		return types.Iid{}, err
	}
	defer t.bufferPool.UnpinPage(leaf.pageID, false)

	slot := lowerBound(leaf.keys, key, t.cmp)
	if slot == len(leaf.keys) {
		if leaf.nextLeaf == types.InvalidPageID {
			return types.LeafEnd, nil
		}
		return types.Iid{PageID: leaf.nextLeaf, Slot: 0}, nil
	}
	return types.Iid{PageID: leaf.pageID, Slot: slot}, nil
}

// UpperBound returns the Iid of the first entry with key > target.
func (t *Tree) UpperBound(key types.Key) (types.Iid, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	leaf, err := t.findLeaf(key)
	if err != nil {
		return types.Iid{}, err
	}
	defer t.bufferPool.UnpinPage(leaf.pageID, false)

	slot := upperBound(leaf.keys, key, t.cmp)
	if slot == len(leaf.keys) {
		if leaf.nextLeaf == types.InvalidPageID {
			return types.LeafEnd, nil
		}
		return types.Iid{PageID: leaf.nextLeaf, Slot: 0}, nil
	}
	return types.Iid{PageID: leaf.pageID, Slot: slot}, nil
}

// LeafBegin returns the Iid of the first entry in the tree.
func (t *Tree) LeafBegin() (types.Iid, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pageID := t.root
	for {
		n, err := t.fetchNode(pageID)
		if err != nil {
			return types.Iid{}, err
		}
		if n.isLeaf() {
			t.bufferPool.UnpinPage(pageID, false)
			if len(n.keys) == 0 {
				return types.LeafEnd, nil
			}
			return types.Iid{PageID: pageID, Slot: 0}, nil
		}
		next := n.children[0]
		t.bufferPool.UnpinPage(pageID, false)
		pageID = next
	}
}

// LeafEnd is the exclusive sentinel one past the last entry of the tree.
func (t *Tree) LeafEnd() types.Iid { return types.LeafEnd }

// GetRid resolves an Iid to its Rid.
func (t *Tree) GetRid(iid types.Iid) (types.Rid, error) {
	if iid.IsEnd() {
		return types.Rid{}, fmt.Errorf("bplus: cannot resolve leaf-end iid")
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, err := t.fetchNode(iid.PageID)
	if err != nil {
		return types.Rid{}, err
	}
	defer t.bufferPool.UnpinPage(iid.PageID, false)

	if iid.Slot < 0 || iid.Slot >= len(n.values) {
		return types.Rid{}, fmt.Errorf("bplus: slot %d out of range: %w", iid.Slot, errs.ErrIndexEntryNotFound)
	}
	return n.values[iid.Slot], nil
}
