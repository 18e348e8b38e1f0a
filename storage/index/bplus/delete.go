package bplus

import (
	"fmt"

	"storagecore/storage/errs"
	"storagecore/types"
)

// DeleteEntry removes key from the tree, rebalancing via redistribute
// or coalesce as needed, propagating separator changes and parent
// reassignment all the way to the root.
func (t *Tree) DeleteEntry(key types.Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	leaf, err := t.findLeaf(key)
	if err != nil {
		return err
	}

	idx, ok := leafLookup(leaf, key, t.cmp)
	if !ok {
		t.bufferPool.UnpinPage(leaf.pageID, false)
		return fmt.Errorf("bplus: key not found: %w", errs.ErrIndexEntryNotFound)
	}
	leaf.keys = removeKey(leaf.keys, idx)
	leaf.values = removeRid(leaf.values, idx)
	if err := t.writeNode(leaf); err != nil {
		t.bufferPool.UnpinPage(leaf.pageID, false)
		return err
	}

	err = t.coalesceOrRedistribute(leaf)
	t.bufferPool.UnpinPage(leaf.pageID, true)
	return err
}

// coalesceOrRedistribute restores n's occupancy invariant after a
// deletion removed one of its entries.
func (t *Tree) coalesceOrRedistribute(n *node) error {
	if n.pageID == t.root {
		return t.adjustRoot(n)
	}
	if len(n.keys) >= MinKeys {
		return t.maintainParent(n)
	}

	parent, err := t.fetchNode(n.parent)
	if err != nil {
		return fmt.Errorf("bplus: fetch parent of underflowed node %d: %w", n.pageID, err)
	}
	defer t.bufferPool.UnpinPage(parent.pageID, true)

	idx := indexOfChild(parent, n.pageID)
	if idx < 0 {
		return fmt.Errorf("bplus: node %d missing from parent %d", n.pageID, parent.pageID)
	}
	neighborIsLeft := idx > 0
	neighborIdx := idx + 1
	if neighborIsLeft {
		neighborIdx = idx - 1
	}

	neighbor, err := t.fetchNode(parent.children[neighborIdx])
	if err != nil {
		return fmt.Errorf("bplus: fetch sibling of node %d: %w", n.pageID, err)
	}
	defer t.bufferPool.UnpinPage(neighbor.pageID, true)

	if len(n.keys)+len(neighbor.keys) >= MinKeys*2 {
		return t.redistribute(neighbor, n, neighborIsLeft)
	}

	if err := t.coalesce(neighbor, n, parent, idx, neighborIdx, neighborIsLeft); err != nil {
		return err
	}
	return t.coalesceOrRedistribute(parent)
}

// redistribute moves one entry across from neighbor to n, whichever
// side neighbor sits on, then repairs whichever side's first key
// changed.
func (t *Tree) redistribute(neighbor, n *node, neighborIsLeft bool) error {
	if neighborIsLeft {
		last := len(neighbor.keys) - 1
		movedKey := neighbor.keys[last]
		if n.isLeaf() {
			movedVal := neighbor.values[last]
			neighbor.keys = neighbor.keys[:last]
			neighbor.values = neighbor.values[:last]
			n.keys = insertKey(n.keys, 0, movedKey)
			n.values = insertRid(n.values, 0, movedVal)
		} else {
			movedChild := neighbor.children[last]
			neighbor.keys = neighbor.keys[:last]
			neighbor.children = neighbor.children[:last]
			n.keys = insertKey(n.keys, 0, movedKey)
			n.children = insertPageID(n.children, 0, movedChild)
			if err := t.reparentChild(movedChild, n.pageID); err != nil {
				return err
			}
		}
		if err := t.writeNode(neighbor); err != nil {
			return err
		}
		if err := t.writeNode(n); err != nil {
			return err
		}
		return t.maintainParent(n)
	}

	movedKey := neighbor.keys[0]
	if n.isLeaf() {
		movedVal := neighbor.values[0]
		neighbor.keys = neighbor.keys[1:]
		neighbor.values = neighbor.values[1:]
		n.keys = append(n.keys, movedKey)
		n.values = append(n.values, movedVal)
	} else {
		movedChild := neighbor.children[0]
		neighbor.keys = neighbor.keys[1:]
		neighbor.children = neighbor.children[1:]
		n.keys = append(n.keys, movedKey)
		n.children = append(n.children, movedChild)
		if err := t.reparentChild(movedChild, n.pageID); err != nil {
			return err
		}
	}
	if err := t.writeNode(neighbor); err != nil {
		return err
	}
	if err := t.writeNode(n); err != nil {
		return err
	}
	if err := t.maintainParent(n); err != nil {
		return err
	}
	return t.maintainParent(neighbor)
}

// coalesce merges the right of {n, neighbor} into the left, removes
// the right's slot from parent, and best-effort frees its page.
func (t *Tree) coalesce(neighbor, n, parent *node, idx, neighborIdx int, neighborIsLeft bool) error {
	left, right := n, neighbor
	rightParentIdx := neighborIdx
	if neighborIsLeft {
		left, right = neighbor, n
		rightParentIdx = idx
	}

	left.keys = append(left.keys, right.keys...)
	if left.isLeaf() {
		left.values = append(left.values, right.values...)
		left.nextLeaf = right.nextLeaf
		if right.nextLeaf != types.InvalidPageID {
			if err := t.reparentLeafPrev(right.nextLeaf, left.pageID); err != nil {
				return err
			}
		} else if t.lastLeaf == right.pageID {
			t.lastLeaf = left.pageID
			if err := t.saveHeader(); err != nil {
				return err
			}
		}
	} else {
		left.children = append(left.children, right.children...)
		for _, childID := range right.children {
			if err := t.reparentChild(childID, left.pageID); err != nil {
				return err
			}
		}
	}
	if err := t.writeNode(left); err != nil {
		return err
	}

	parent.keys = removeKey(parent.keys, rightParentIdx)
	parent.children = removePageID(parent.children, rightParentIdx)
	leftParentIdx := idx
	if neighborIsLeft {
		leftParentIdx = neighborIdx
	}
	parent.keys[leftParentIdx] = left.keys[0]
	if err := t.writeNode(parent); err != nil {
		return err
	}

	t.bufferPool.DeletePage(right.pageID)
	return nil
}

// adjustRoot collapses the root after it has shrunk: an internal root
// with a single child is replaced by that child; an empty leaf root is
// left in place (an empty tree is an empty root leaf).
func (t *Tree) adjustRoot(root *node) error {
	if !root.isLeaf() && len(root.children) == 1 {
		child, err := t.fetchNode(root.children[0])
		if err != nil {
			return err
		}
		child.parent = types.InvalidPageID
		if err := t.writeNode(child); err != nil {
			t.bufferPool.UnpinPage(child.pageID, false)
			return err
		}
		t.bufferPool.UnpinPage(child.pageID, true)

		t.root = child.pageID
		if err := t.saveHeader(); err != nil {
			return err
		}
		t.bufferPool.DeletePage(root.pageID)
		return nil
	}
	return nil
}

// maintainParent rewrites node's slot in its ancestors whenever its
// first key has changed, stopping as soon as an ancestor's slot
// already matches (the propagation is then guaranteed to be done).
func (t *Tree) maintainParent(n *node) error {
	if len(n.keys) == 0 {
		return nil
	}
	curr := n
	for curr.parent != types.InvalidPageID {
		parent, err := t.fetchNode(curr.parent)
		if err != nil {
			return fmt.Errorf("bplus: fetch ancestor of %d: %w", curr.pageID, err)
		}
		idx := indexOfChild(parent, curr.pageID)
		if idx < 0 {
			t.bufferPool.UnpinPage(parent.pageID, false)
			return fmt.Errorf("bplus: node %d missing from ancestor %d", curr.pageID, parent.pageID)
		}
		if t.cmp(parent.keys[idx], curr.keys[0]) == 0 {
			t.bufferPool.UnpinPage(parent.pageID, false)
			return nil
		}
		parent.keys[idx] = curr.keys[0]
		if err := t.writeNode(parent); err != nil {
			t.bufferPool.UnpinPage(parent.pageID, false)
			return err
		}
		t.bufferPool.UnpinPage(parent.pageID, true)
		curr = parent
	}
	return nil
}

func (t *Tree) reparentChild(childID, newParent types.PageID) error {
	child, err := t.fetchNode(childID)
	if err != nil {
		return err
	}
	child.parent = newParent
	if err := t.writeNode(child); err != nil {
		t.bufferPool.UnpinPage(childID, false)
		return err
	}
	t.bufferPool.UnpinPage(childID, true)
	return nil
}

func (t *Tree) reparentLeafPrev(leafID, newPrev types.PageID) error {
	leaf, err := t.fetchNode(leafID)
	if err != nil {
		return err
	}
	leaf.prevLeaf = newPrev
	if err := t.writeNode(leaf); err != nil {
		t.bufferPool.UnpinPage(leafID, false)
		return err
	}
	t.bufferPool.UnpinPage(leafID, true)
	return nil
}

func indexOfChild(parent *node, childID types.PageID) int {
	for i, c := range parent.children {
		if c == childID {
			return i
		}
	}
	return -1
}

func removeKey(keys []types.Key, idx int) []types.Key {
	return append(keys[:idx], keys[idx+1:]...)
}

func removeRid(values []types.Rid, idx int) []types.Rid {
	return append(values[:idx], values[idx+1:]...)
}

func removePageID(ids []types.PageID, idx int) []types.PageID {
	return append(ids[:idx], ids[idx+1:]...)
}
