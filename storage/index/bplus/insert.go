package bplus

import (
	"fmt"

	"storagecore/storage/errs"
	"storagecore/types"
)

// InsertEntry inserts (key, rid) into the tree. Returns
// errs.ErrDuplicateKey if key is already present; duplicates are
// forbidden by the index.
func (t *Tree) InsertEntry(key types.Key, rid types.Rid) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	leaf, err := t.findLeaf(key)
	if err != nil {
		return err
	}

	if _, exists := leafLookup(leaf, key, t.cmp); exists {
		t.bufferPool.UnpinPage(leaf.pageID, false)
		return fmt.Errorf("bplus: key already present: %w", errs.ErrDuplicateKey)
	}

	pos := lowerBound(leaf.keys, key, t.cmp)
	leaf.keys = insertKey(leaf.keys, pos, key)
	leaf.values = insertRid(leaf.values, pos, rid)

	if err := t.writeNode(leaf); err != nil {
		t.bufferPool.UnpinPage(leaf.pageID, false)
		return err
	}

	if len(leaf.keys) > MaxKeys {
		err := t.splitLeaf(leaf)
		t.bufferPool.UnpinPage(leaf.pageID, true)
		return err
	}
	t.bufferPool.UnpinPage(leaf.pageID, true)
	return nil
}

// splitLeaf splits an overflowing leaf in half and relinks the leaf
// chain, then pushes the new sibling's first key up to the parent.
func (t *Tree) splitLeaf(leaf *node) error {
	mid := len(leaf.keys) / 2

	right, err := t.allocNode(nodeLeaf)
	if err != nil {
		return err
	}
	right.keys = append(right.keys, leaf.keys[mid:]...)
	right.values = append(right.values, leaf.values[mid:]...)
	right.parent = leaf.parent
	right.prevLeaf = leaf.pageID
	right.nextLeaf = leaf.nextLeaf

	oldNext := leaf.nextLeaf
	leaf.keys = leaf.keys[:mid]
	leaf.values = leaf.values[:mid]
	leaf.nextLeaf = right.pageID

	if oldNext != types.InvalidPageID {
		next, err := t.fetchNode(oldNext)
		if err == nil {
			next.prevLeaf = right.pageID
			t.writeNode(next)
			t.bufferPool.UnpinPage(oldNext, true)
		}
	} else if t.lastLeaf == leaf.pageID {
		t.lastLeaf = right.pageID
		if err := t.saveHeader(); err != nil {
			t.bufferPool.UnpinPage(right.pageID, false)
			return err
		}
	}

	if err := t.writeNode(leaf); err != nil {
		t.bufferPool.UnpinPage(right.pageID, false)
		return err
	}
	if err := t.writeNode(right); err != nil {
		t.bufferPool.UnpinPage(right.pageID, false)
		return err
	}

	sepKey := right.keys[0]
	if leaf.pageID == t.root {
		err := t.createNewRoot(leaf.pageID, leaf.keys[0], right.pageID, sepKey)
		t.bufferPool.UnpinPage(right.pageID, true)
		return err
	}
	parentID := leaf.parent
	t.bufferPool.UnpinPage(right.pageID, true)
	return t.insertIntoParent(parentID, leaf.pageID, sepKey, right.pageID)
}

// splitInternal splits an overflowing internal node, reassigning the
// parent pointer of every child that moves to the new right sibling.
func (t *Tree) splitInternal(node *node) error {
	mid := len(node.keys) / 2

	right, err := t.allocNode(nodeInternal)
	if err != nil {
		return err
	}
	right.keys = append(right.keys, node.keys[mid:]...)
	right.children = append(right.children, node.children[mid:]...)
	right.parent = node.parent

	for _, childID := range right.children {
		child, err := t.fetchNode(childID)
		if err != nil {
			t.bufferPool.UnpinPage(right.pageID, false)
			return fmt.Errorf("bplus: fetch moved child %d: %w", childID, err)
		}
		child.parent = right.pageID
		t.writeNode(child)
		t.bufferPool.UnpinPage(childID, true)
	}

	leftFirstKey := node.keys[0]
	rightFirstKey := right.keys[0]
	node.keys = node.keys[:mid]
	node.children = node.children[:mid]

	if err := t.writeNode(node); err != nil {
		t.bufferPool.UnpinPage(right.pageID, false)
		return err
	}
	if err := t.writeNode(right); err != nil {
		t.bufferPool.UnpinPage(right.pageID, false)
		return err
	}

	if node.pageID == t.root {
		err := t.createNewRoot(node.pageID, leftFirstKey, right.pageID, rightFirstKey)
		t.bufferPool.UnpinPage(right.pageID, true)
		return err
	}
	parentID := node.parent
	t.bufferPool.UnpinPage(right.pageID, true)
	return t.insertIntoParent(parentID, node.pageID, rightFirstKey, right.pageID)
}

// insertIntoParent inserts (sepKey, rightID) into parentID, splitting
// it (and recursing upward) if it overflows.
func (t *Tree) insertIntoParent(parentID types.PageID, leftID types.PageID, sepKey types.Key, rightID types.PageID) error {
	parent, err := t.fetchNode(parentID)
	if err != nil {
		return fmt.Errorf("bplus: fetch parent %d: %w", parentID, err)
	}

	idx := 0
	for idx < len(parent.children) && parent.children[idx] != leftID {
		idx++
	}
	insertPos := idx + 1

	parent.keys = insertKey(parent.keys, insertPos, sepKey)
	parent.children = insertPageID(parent.children, insertPos, rightID)

	right, err := t.fetchNode(rightID)
	if err == nil {
		right.parent = parentID
		t.writeNode(right)
		t.bufferPool.UnpinPage(rightID, true)
	}

	if err := t.writeNode(parent); err != nil {
		t.bufferPool.UnpinPage(parentID, false)
		return err
	}

	if len(parent.keys) > MaxKeys {
		err := t.splitInternal(parent)
		t.bufferPool.UnpinPage(parentID, true)
		return err
	}
	t.bufferPool.UnpinPage(parentID, true)
	return nil
}

// createNewRoot allocates a new root over leftID/rightID, using each
// side's own first key as its separator (the duplicated-first-key
// convention applies at the root exactly as everywhere else).
func (t *Tree) createNewRoot(leftID types.PageID, leftKey types.Key, rightID types.PageID, rightKey types.Key) error {
	root, err := t.allocNode(nodeInternal)
	if err != nil {
		return err
	}
	root.keys = []types.Key{leftKey, rightKey}
	root.children = []types.PageID{leftID, rightID}

	if err := t.writeNode(root); err != nil {
		t.bufferPool.UnpinPage(root.pageID, false)
		return err
	}

	for _, childID := range []types.PageID{leftID, rightID} {
		child, err := t.fetchNode(childID)
		if err != nil {
			continue
		}
		child.parent = root.pageID
		t.writeNode(child)
		t.bufferPool.UnpinPage(childID, true)
	}

	t.root = root.pageID
	t.bufferPool.UnpinPage(root.pageID, true)
	return t.saveHeader()
}

func insertKey(keys []types.Key, pos int, key types.Key) []types.Key {
	keys = append(keys, nil)
	copy(keys[pos+1:], keys[pos:])
	keys[pos] = key
	return keys
}

func insertRid(values []types.Rid, pos int, rid types.Rid) []types.Rid {
	values = append(values, types.Rid{})
	copy(values[pos+1:], values[pos:])
	values[pos] = rid
	return values
}

func insertPageID(ids []types.PageID, pos int, id types.PageID) []types.PageID {
	ids = append(ids, types.InvalidPageID)
	copy(ids[pos+1:], ids[pos:])
	ids[pos] = id
	return ids
}
