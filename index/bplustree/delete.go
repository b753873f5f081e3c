package bplustree

import (
	"diskcore/buffer"
	"diskcore/common"
	"diskcore/storage/page"
)

// Remove deletes key. Returns false if key was not present.
//
// The whole path from header to leaf is write-latched (helindb's locker
// package showed the value of tracking a node's position within its parent
// so a sibling can be located without a second descent; here that position
// is recorded alongside each write guard as childPos). A node is "safe" for
// deletion once it holds strictly more than its minimum entry count, since
// removing one entry from it can never force a merge or redistribution that
// its own parent would need to know about; every ancestor proven safe is
// dropped before continuing down, exactly mirroring insertPessimistic's
// safe-for-insertion rule.
func (t *BTree) Remove(key common.Key) bool {
	headerBasic, ok := t.pool.FetchPage(t.headerPageID)
	if !ok {
		panic("bplustree: header page missing")
	}
	headerGuard := headerBasic.UpgradeWrite()

	rootID := page.NewHeaderView(headerGuard.Data()).RootPageID()
	rootBasic, ok := t.pool.FetchPage(rootID)
	if !ok {
		headerGuard.Drop()
		panic("bplustree: root page missing")
	}
	rootGuard := rootBasic.UpgradeWrite()

	writeSet := []buffer.WritePageGuard{headerGuard, rootGuard}
	childPos := []int{-1, -1} // childPos[i] unused for i<2

	for page.PeekType(writeSet[len(writeSet)-1].Data()) == page.InternalType {
		iv := page.NewInternalView(writeSet[len(writeSet)-1].Data(), t.keyWidth)

		// Root is safe as long as it has at least 2 keys, so it keeps a key
		// (and cannot collapse) after a child merge; any other internal node
		// is safe once it holds strictly more than the minimum entry count,
		// since deleting from a child can shrink it by at most one entry.
		safe := iv.Size() > t.internalMinSize()
		if len(writeSet) == 2 {
			safe = iv.Size() >= 2
		}
		if safe {
			kept := writeSet[len(writeSet)-1]
			keptPos := childPos[len(childPos)-1]
			for _, g := range writeSet[:len(writeSet)-1] {
				g.Drop()
			}
			// Slot 0 keeps an empty guard in the header's place (dropping it
			// is a no-op), so kept stays at slot 1 where fixUnderflow looks.
			writeSet = append(writeSet[:0], buffer.WritePageGuard{}, kept)
			childPos = append(childPos[:0], -1, keptPos)
			iv = page.NewInternalView(writeSet[1].Data(), t.keyWidth)
		}

		pos := iv.UpperBound(key) - 1
		childID := iv.ChildAt(pos)
		childBasic, ok := t.pool.FetchPage(childID)
		if !ok {
			for _, g := range writeSet {
				g.Drop()
			}
			panic("bplustree: child page missing")
		}
		writeSet = append(writeSet, childBasic.UpgradeWrite())
		childPos = append(childPos, pos)
	}

	leafIdx := len(writeSet) - 1
	lv := page.NewLeafView(writeSet[leafIdx].Data(), t.keyWidth)
	i, found := lv.Find(key)
	if !found {
		for _, g := range writeSet {
			g.Drop()
		}
		return false
	}
	lv.DeleteAt(i)

	if lv.Size() >= t.leafMinSize() || leafIdx == 1 {
		// Root-as-leaf never underflows below the structural minimum; an
		// empty root leaf is a valid empty tree.
		for _, g := range writeSet {
			g.Drop()
		}
		return true
	}

	t.fixUnderflow(writeSet, childPos, leafIdx)
	return true
}

// fixUnderflow repairs writeSet[idx], which has just underflowed, by
// redistributing from a sibling when one has spare entries, else merging
// into a sibling, then propagates the effect (a shrunk parent, possibly
// itself underflowing) upward until the path is safe or the root collapses.
func (t *BTree) fixUnderflow(writeSet []buffer.WritePageGuard, childPos []int, idx int) {
	for idx > 1 {
		parentIdx := idx - 1
		pos := childPos[idx]
		piv := page.NewInternalView(writeSet[parentIdx].Data(), t.keyWidth)

		isLeaf := page.PeekType(writeSet[idx].Data()) == page.LeafType

		if pos > 0 {
			leftID := piv.ChildAt(pos - 1)
			leftBasic, ok := t.pool.FetchPage(leftID)
			if ok {
				left := leftBasic.UpgradeWrite()
				merged := t.borrowOrMergeLeft(left, writeSet[idx], piv, pos, isLeaf)
				left.Drop()
				if !merged {
					dropRemaining(writeSet)
					return
				}
				// left absorbed node's entries and kept its own page; node's
				// page is now empty and the parent's pointer to it (slot pos)
				// is dangling.
				nodePageID := writeSet[idx].PageID()
				writeSet[idx].Drop()
				t.pool.DeletePage(nodePageID)
				piv.DeleteAt(pos)
				idx = parentIdx
				if t.parentSafe(writeSet, idx) {
					dropRemaining(writeSet[:idx+1])
					return
				}
				continue
			}
		}

		if pos < piv.Size() {
			rightID := piv.ChildAt(pos + 1)
			rightBasic, ok := t.pool.FetchPage(rightID)
			if ok {
				right := rightBasic.UpgradeWrite()
				merged := t.borrowOrMergeRight(writeSet[idx], right, piv, pos, isLeaf)
				rightPageID := right.PageID()
				right.Drop()
				if !merged {
					dropRemaining(writeSet)
					return
				}
				// node absorbed right's entries and kept its own page; the
				// parent's pointer to right (slot pos+1) is now dangling.
				t.pool.DeletePage(rightPageID)
				piv.DeleteAt(pos + 1)
				writeSet[idx].Drop()
				idx = parentIdx
				if t.parentSafe(writeSet, idx) {
					dropRemaining(writeSet[:idx+1])
					return
				}
				continue
			}
		}

		// No sibling reachable (shouldn't happen in a well-formed tree with
		// internalMax >= 3); give up repairing further, structure remains
		// merely under min_size which the design notes permit transiently.
		dropRemaining(writeSet)
		return
	}

	// idx == 1: the top of the write set, either the root (header held at
	// slot 0) or a node Remove proved safe, which always keeps a key. If it's
	// an internal page with a single remaining child, it is the root:
	// collapse it.
	root := writeSet[1]
	if page.PeekType(root.Data()) == page.InternalType {
		riv := page.NewInternalView(root.Data(), t.keyWidth)
		if riv.Size() == 0 {
			onlyChild := riv.ChildAt(0)
			hv := page.NewHeaderView(writeSet[0].Data())
			hv.SetRootPageID(onlyChild)
			hv.DecrDepth()
			rootPageID := root.PageID()
			root.Drop()
			t.pool.DeletePage(rootPageID)
			writeSet[0].Drop()
			return
		}
	}
	dropRemaining(writeSet)
}

// parentSafe reports whether writeSet[idx] no longer needs repair: the top
// of the write set (idx==1) is always left as-is here (root collapse is
// handled by the caller's idx==1 branch after the loop), any other node is
// safe once it meets its minimum.
func (t *BTree) parentSafe(writeSet []buffer.WritePageGuard, idx int) bool {
	if idx == 1 {
		return false
	}
	iv := page.NewInternalView(writeSet[idx].Data(), t.keyWidth)
	return iv.Size() >= t.internalMinSize()
}

func dropRemaining(writeSet []buffer.WritePageGuard) {
	for _, g := range writeSet {
		g.Drop()
	}
}

// borrowOrMergeLeft repairs `node` (which has just underflowed, at parent
// slot `pos`) using its left sibling `left` (parent slot pos-1). Returns
// true if it merged node fully into left (left is kept, parent must drop
// slot pos and node's page must be freed), false if it redistributed (no
// parent slot changes beyond the separator key, which this updates in
// place).
func (t *BTree) borrowOrMergeLeft(left, node buffer.WritePageGuard, piv page.InternalView, pos int, isLeaf bool) bool {
	if isLeaf {
		lv := page.NewLeafView(left.Data(), t.keyWidth)
		nv := page.NewLeafView(node.Data(), t.keyWidth)
		if lv.Size() > t.leafMinSize() {
			lv.MoveRangeTo(nv, lv.Size()-1, lv.Size(), 0)
			piv.SetKeyAt(pos, nv.KeyAt(0))
			return false
		}
		nv.MoveRangeTo(lv, 0, nv.Size(), lv.Size())
		lv.SetNextPageID(nv.NextPageID())
		// left absorbs node's entries and keeps its own page id; the caller
		// deallocates node's page once its guard is released.
		return true
	}

	liv := page.NewInternalView(left.Data(), t.keyWidth)
	niv := page.NewInternalView(node.Data(), t.keyWidth)
	if liv.Size() > t.internalMinSize() {
		sep := piv.KeyAt(pos)
		oldChild0 := niv.ChildAt(0)
		newChild0 := liv.ChildAt(liv.Size())
		niv.InsertAt(1, sep, oldChild0)
		niv.SetChildAt(0, newChild0)
		newSep := liv.KeyAt(liv.Size())
		liv.DeleteAt(liv.Size())
		piv.SetKeyAt(pos, newSep)
		return false
	}

	sep := piv.KeyAt(pos)
	liv.InsertAt(liv.Size()+1, sep, niv.ChildAt(0))
	niv.MoveRangeTo(liv, 1, niv.Size()+1, liv.Size()+1)
	return true
}

// borrowOrMergeRight is borrowOrMergeLeft's mirror using the right sibling.
func (t *BTree) borrowOrMergeRight(node, right buffer.WritePageGuard, piv page.InternalView, pos int, isLeaf bool) bool {
	if isLeaf {
		nv := page.NewLeafView(node.Data(), t.keyWidth)
		rv := page.NewLeafView(right.Data(), t.keyWidth)
		if rv.Size() > t.leafMinSize() {
			rv.MoveRangeTo(nv, 0, 1, nv.Size())
			piv.SetKeyAt(pos+1, rv.KeyAt(0))
			return false
		}
		rv.MoveRangeTo(nv, 0, rv.Size(), nv.Size())
		nv.SetNextPageID(rv.NextPageID())
		return true
	}

	niv := page.NewInternalView(node.Data(), t.keyWidth)
	riv := page.NewInternalView(right.Data(), t.keyWidth)
	if riv.Size() > t.internalMinSize() {
		sep := piv.KeyAt(pos + 1)
		niv.InsertAt(niv.Size()+1, sep, riv.ChildAt(0))
		newSep := riv.KeyAt(1)
		newChild0 := riv.ChildAt(1)
		riv.DeleteAt(1)
		riv.SetChildAt(0, newChild0)
		piv.SetKeyAt(pos+1, newSep)
		return false
	}
	sep := piv.KeyAt(pos + 1)
	niv.InsertAt(niv.Size()+1, sep, riv.ChildAt(0))
	riv.MoveRangeTo(niv, 1, riv.Size()+1, niv.Size()+1)
	return true
}
