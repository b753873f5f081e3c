package bplustree

import (
	"diskcore/buffer"
	"diskcore/common"
	"diskcore/storage/page"
)

// Insert adds (key, rid). Returns false if key already exists (unique-key
// tree; the caller decides whether that is an error).
//
// Two phases, per the teacher's BPager-driven latch-crabbing insert: an
// optimistic descent taking only read latches down to the leaf and a single
// write latch there, falling back to a pessimistic descent that write-latches
// every node on the path (discarding ancestors proven safe along the way)
// only when the optimistic leaf turns out to be full.
func (t *BTree) Insert(key common.Key, rid common.Rid) bool {
	if ok, inserted := t.insertOptimistic(key, rid); ok {
		return inserted
	}
	return t.insertPessimistic(key, rid)
}

// insertOptimistic returns (handled, inserted). handled is false when the
// leaf was full and the caller must retry pessimistically.
func (t *BTree) insertOptimistic(key common.Key, rid common.Rid) (handled bool, inserted bool) {
	headerBasic, ok := t.pool.FetchPage(t.headerPageID)
	if !ok {
		panic("bplustree: header page missing")
	}
	headerRead := headerBasic.UpgradeRead()
	rootID := page.NewHeaderView(headerRead.Data()).RootPageID()

	curBasic, ok := t.pool.FetchPage(rootID)
	if !ok {
		headerRead.Drop()
		panic("bplustree: root page missing")
	}
	cur := curBasic.UpgradeRead()
	// parent (the header while cur is the root) stays read-latched until the
	// leaf's write latch is held.
	parent := headerRead

	for page.PeekType(cur.Data()) == page.InternalType {
		iv := page.NewInternalView(cur.Data(), t.keyWidth)
		childID := iv.ChildFor(key)

		childBasic, ok := t.pool.FetchPage(childID)
		if !ok {
			cur.Drop()
			parent.Drop()
			panic("bplustree: child page missing")
		}
		child := childBasic.UpgradeRead()
		parent.Drop()
		parent = cur
		cur = child
	}

	// cur holds a read latch on the target leaf; upgrade requires dropping it
	// and reacquiring a write latch. Because there is no atomic upgrade, a
	// concurrent writer may have changed the leaf's contents in between; the
	// checks below (duplicate, room) are re-validated against fresh bytes
	// after the write latch is held. The leaf cannot be split, merged or
	// freed in between, since that needs a write latch on parent, which is
	// still read-latched here.
	leafID := cur.PageID()
	cur.Drop()

	leafBasic, ok := t.pool.FetchPage(leafID)
	if !ok {
		parent.Drop()
		panic("bplustree: leaf page vanished between read and write latch")
	}
	leaf := leafBasic.UpgradeWrite()
	parent.Drop()
	lv := page.NewLeafView(leaf.Data(), t.keyWidth)

	if _, found := lv.Find(key); found {
		leaf.Drop()
		return true, false
	}

	if lv.Size()+1 < lv.MaxSize() {
		i := lv.LowerBound(key)
		lv.InsertAt(i, key, rid)
		leaf.Drop()
		return true, true
	}

	leaf.Drop()
	return false, false
}

// insertPessimistic write-latches the whole path from the header down to the
// leaf, discarding proven-safe ancestors as it descends, then splits nodes
// bottom-up while inserting overflows a node.
func (t *BTree) insertPessimistic(key common.Key, rid common.Rid) bool {
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
		cur := &writeSet[len(writeSet)-1]
		iv := page.NewInternalView(cur.Data(), t.keyWidth)

		// cur is safe (won't split when a child is inserted into it) if it
		// has room for one more entry; discard every strictly-older ancestor
		// once that's known, since they can no longer be touched by this
		// insert.
		if iv.Size()+1 < iv.MaxSize() {
			kept := writeSet[len(writeSet)-1]
			keptPos := childPos[len(childPos)-1]
			for _, g := range writeSet[:len(writeSet)-1] {
				g.Drop()
			}
			writeSet = append(writeSet[:0], kept)
			childPos = append(childPos[:0], keptPos)
			cur = &writeSet[0]
			iv = page.NewInternalView(cur.Data(), t.keyWidth)
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

	if _, found := lv.Find(key); found {
		for _, g := range writeSet {
			g.Drop()
		}
		return false
	}

	i := lv.LowerBound(key)
	lv.InsertAt(i, key, rid)

	var promotedKey common.Key
	var promotedChild common.PageID
	overflowed := lv.Size() >= lv.MaxSize()

	if overflowed && t.tryRedistributeOverflowLeaf(writeSet, childPos, leafIdx) {
		overflowed = false
	}

	if overflowed {
		promotedKey, promotedChild = t.splitLeaf(writeSet[leafIdx])
	}
	writeSet[leafIdx].Drop()
	idx := leafIdx - 1

	for promotedKey != nil && idx >= 0 {
		if idx == 0 && writeSet[0].PageID() == t.headerPageID {
			// header: the root just split, grow the tree by one level.
			oldRoot := page.NewHeaderView(writeSet[0].Data()).RootPageID()

			newRootBasic, ok := t.pool.NewPage()
			if !ok {
				writeSet[0].Drop()
				panic("bplustree: cannot allocate new root page")
			}
			newRoot := newRootBasic.UpgradeWrite()
			niv := page.InitInternal(newRoot.Data(), t.keyWidth, t.internalMax, oldRoot)
			niv.InsertAt(1, promotedKey, promotedChild)
			newRootID := newRoot.PageID()
			newRoot.Drop()

			hv := page.NewHeaderView(writeSet[0].Data())
			hv.SetRootPageID(newRootID)
			hv.IncrDepth()
			writeSet[0].Drop()
			return true
		}

		piv := page.NewInternalView(writeSet[idx].Data(), t.keyWidth)
		pos := piv.UpperBound(promotedKey)
		piv.InsertAt(pos, promotedKey, promotedChild)

		if piv.Size() >= piv.MaxSize() {
			promotedKey, promotedChild = t.splitInternal(writeSet[idx])
		} else {
			promotedKey = nil
		}
		writeSet[idx].Drop()
		idx--
	}

	// Any remaining guards above idx (ancestors proven safe during descent,
	// or the header if no split reached it) are still held; release them.
	for i := idx; i >= 0; i-- {
		writeSet[i].Drop()
	}
	return true
}

// tryRedistributeOverflowLeaf offloads one entry from an overflowing leaf
// into a sibling that has spare room, updating the shared parent separator
// in place, so an insert that would otherwise force a split can instead
// leave the tree's node count unchanged. Only leaf-level overflow is
// redistributed this way (see the design notes on internal-node overflow);
// returns false, leaving the leaf untouched, when the leaf is the root or
// neither sibling has room.
func (t *BTree) tryRedistributeOverflowLeaf(writeSet []buffer.WritePageGuard, childPos []int, leafIdx int) bool {
	if leafIdx == 1 && writeSet[0].PageID() == t.headerPageID {
		return false // leaf is the root: no parent, no siblings
	}
	parentIdx := leafIdx - 1
	piv := page.NewInternalView(writeSet[parentIdx].Data(), t.keyWidth)
	pos := childPos[leafIdx]
	lv := page.NewLeafView(writeSet[leafIdx].Data(), t.keyWidth)

	if pos > 0 {
		if leftBasic, ok := t.pool.FetchPage(piv.ChildAt(pos - 1)); ok {
			left := leftBasic.UpgradeWrite()
			lsv := page.NewLeafView(left.Data(), t.keyWidth)
			if lsv.Size()+1 < lsv.MaxSize() {
				lv.MoveRangeTo(lsv, 0, 1, lsv.Size())
				piv.SetKeyAt(pos, lv.KeyAt(0))
				left.Drop()
				return true
			}
			left.Drop()
		}
	}

	if pos < piv.Size() {
		if rightBasic, ok := t.pool.FetchPage(piv.ChildAt(pos + 1)); ok {
			right := rightBasic.UpgradeWrite()
			rsv := page.NewLeafView(right.Data(), t.keyWidth)
			if rsv.Size()+1 < rsv.MaxSize() {
				lv.MoveRangeTo(rsv, lv.Size()-1, lv.Size(), 0)
				piv.SetKeyAt(pos+1, rsv.KeyAt(0))
				right.Drop()
				return true
			}
			right.Drop()
		}
	}

	return false
}

// splitLeaf moves the upper half of an overflowing leaf into a new sibling,
// returning the key to promote to the parent and the new sibling's page id.
func (t *BTree) splitLeaf(leaf buffer.WritePageGuard) (common.Key, common.PageID) {
	lv := page.NewLeafView(leaf.Data(), t.keyWidth)
	mid := lv.Size() / 2

	newBasic, ok := t.pool.NewPage()
	if !ok {
		panic("bplustree: cannot allocate page for leaf split")
	}
	newLeaf := newBasic.UpgradeWrite()
	nlv := page.InitLeaf(newLeaf.Data(), t.keyWidth, t.leafMax)

	lv.MoveRangeTo(nlv, mid, lv.Size(), 0)

	nlv.SetNextPageID(lv.NextPageID())
	lv.SetNextPageID(newLeaf.PageID())

	promoted := nlv.KeyAt(0)
	newLeaf.Drop()
	return promoted, newLeaf.PageID()
}

// splitInternal moves the upper half of an overflowing internal page into a
// new sibling. Inserting the overflowing entry before splitting (rather than
// branching on its position relative to the split point) means the ordinary
// post-insert split below reproduces the pos<mid / pos==mid / pos>mid cases
// as an emergent property of where the entry landed in the array.
func (t *BTree) splitInternal(parent buffer.WritePageGuard) (common.Key, common.PageID) {
	piv := page.NewInternalView(parent.Data(), t.keyWidth)
	mid := t.internalMinSize()

	promoted := piv.KeyAt(mid + 1)
	rightFirstChild := piv.ChildAt(mid + 1)

	newBasic, ok := t.pool.NewPage()
	if !ok {
		panic("bplustree: cannot allocate page for internal split")
	}
	newInternal := newBasic.UpgradeWrite()
	niv := page.InitInternal(newInternal.Data(), t.keyWidth, t.internalMax, rightFirstChild)

	piv.MoveRangeTo(niv, mid+2, piv.Size()+1, 1)
	piv.DeleteAt(mid + 1)

	newInternal.Drop()
	return promoted, newInternal.PageID()
}
