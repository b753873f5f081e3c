package bplustree

import (
	"diskcore/buffer"
	"diskcore/common"
	"diskcore/storage/page"
)

// Iterator walks leaves left-to-right starting at a key (or the first key,
// for a full scan). It holds a single leaf's read guard at a time, released
// as it advances via next_page_id; a writer racing ahead of the iterator can
// freely modify leaves the iterator has already passed or has not yet
// reached, but the tree offers no isolation guarantee across the values an
// iterator returns for concurrent writers touching the leaf it is currently
// on (matching the teacher's non-snapshotting scan iterators).
type Iterator struct {
	tree  *BTree
	leaf  buffer.ReadPageGuard
	index int
	valid bool
}

// Seek returns an iterator positioned at the first entry with key >= from.
func (t *BTree) Seek(from common.Key) *Iterator {
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
	headerRead.Drop()

	for page.PeekType(cur.Data()) == page.InternalType {
		iv := page.NewInternalView(cur.Data(), t.keyWidth)
		childID := iv.ChildFor(from)

		childBasic, ok := t.pool.FetchPage(childID)
		if !ok {
			cur.Drop()
			panic("bplustree: child page missing")
		}
		child := childBasic.UpgradeRead()
		cur.Drop()
		cur = child
	}

	lv := page.NewLeafView(cur.Data(), t.keyWidth)
	idx := lv.LowerBound(from)

	it := &Iterator{tree: t, leaf: cur, index: idx, valid: idx < lv.Size()}
	if !it.valid {
		it.advanceLeaf()
	}
	return it
}

// First returns an iterator positioned at the tree's smallest key.
func (t *BTree) First() *Iterator {
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
	headerRead.Drop()

	for page.PeekType(cur.Data()) == page.InternalType {
		iv := page.NewInternalView(cur.Data(), t.keyWidth)
		childID := iv.ChildAt(0)

		childBasic, ok := t.pool.FetchPage(childID)
		if !ok {
			cur.Drop()
			panic("bplustree: child page missing")
		}
		child := childBasic.UpgradeRead()
		cur.Drop()
		cur = child
	}

	lv := page.NewLeafView(cur.Data(), t.keyWidth)
	it := &Iterator{tree: t, leaf: cur, index: 0, valid: lv.Size() > 0}
	if !it.valid {
		it.advanceLeaf()
	}
	return it
}

// Valid reports whether the iterator currently points at an entry.
func (it *Iterator) Valid() bool { return it.valid }

func (it *Iterator) Key() common.Key {
	lv := page.NewLeafView(it.leaf.Data(), it.tree.keyWidth)
	return lv.KeyAt(it.index)
}

func (it *Iterator) Rid() common.Rid {
	lv := page.NewLeafView(it.leaf.Data(), it.tree.keyWidth)
	return lv.RidAt(it.index)
}

// Next advances the iterator by one entry, crossing into the next leaf via
// next_page_id when the current leaf is exhausted.
func (it *Iterator) Next() {
	if !it.valid {
		return
	}
	it.index++
	lv := page.NewLeafView(it.leaf.Data(), it.tree.keyWidth)
	if it.index < lv.Size() {
		return
	}
	it.advanceLeaf()
}

// advanceLeaf follows next_page_id until it finds a non-empty leaf or runs
// off the end of the tree.
func (it *Iterator) advanceLeaf() {
	for {
		lv := page.NewLeafView(it.leaf.Data(), it.tree.keyWidth)
		next := lv.NextPageID()
		it.leaf.Drop()

		if next == common.InvalidPageID {
			it.valid = false
			it.leaf = buffer.ReadPageGuard{}
			return
		}

		nextBasic, ok := it.tree.pool.FetchPage(next)
		if !ok {
			it.valid = false
			it.leaf = buffer.ReadPageGuard{}
			return
		}
		it.leaf = nextBasic.UpgradeRead()
		it.index = 0

		nlv := page.NewLeafView(it.leaf.Data(), it.tree.keyWidth)
		if nlv.Size() > 0 {
			it.valid = true
			return
		}
	}
}

// Close releases the iterator's held leaf guard. Safe to call on an
// exhausted or already-closed iterator.
func (it *Iterator) Close() {
	it.leaf.Drop()
	it.valid = false
}
