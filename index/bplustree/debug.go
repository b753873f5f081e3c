package bplustree

import (
	"fmt"

	"diskcore/common"
	"diskcore/storage/page"
)

// Height returns the tree's current depth as recorded in the header page.
// Grounded on the teacher's Debug traverse mode, which likewise walks the
// tree read-only to report structural facts rather than looking anything up.
func (t *BTree) Height() int {
	g, ok := t.pool.FetchPage(t.headerPageID)
	if !ok {
		panic("bplustree: header page missing")
	}
	rg := g.UpgradeRead()
	defer rg.Drop()
	return page.NewHeaderView(rg.Data()).TreeDepth()
}

// Check walks the whole tree read-latch by read-latch and returns the first
// invariant violation it finds, or nil if the structure is sound: keys
// within every page strictly ascending, internal max_size/min_size
// respected, and every leaf's max key strictly less than the separator that
// routes to its right sibling.
func (t *BTree) Check() error {
	rootID := t.rootID()
	_, err := t.checkNode(rootID, nil, nil, true)
	return err
}

func (t *BTree) checkNode(id common.PageID, lo, hi common.Key, isRoot bool) (common.Key, error) {
	g, ok := t.pool.FetchPage(id)
	if !ok {
		return nil, fmt.Errorf("bplustree: page %d missing during check", id)
	}
	rg := g.UpgradeRead()
	defer rg.Drop()

	switch page.PeekType(rg.Data()) {
	case page.LeafType:
		lv := page.NewLeafView(rg.Data(), t.keyWidth)
		var prev common.Key
		for i := 0; i < lv.Size(); i++ {
			k := lv.KeyAt(i)
			if prev != nil && prev.Compare(k) >= 0 {
				return nil, fmt.Errorf("bplustree: leaf %d keys out of order at slot %d", id, i)
			}
			if lo != nil && k.Compare(lo) < 0 {
				return nil, fmt.Errorf("bplustree: leaf %d key below lower bound", id)
			}
			if hi != nil && k.Compare(hi) >= 0 {
				return nil, fmt.Errorf("bplustree: leaf %d key at or above upper bound", id)
			}
			prev = k
		}
		if !isRoot && lv.Size() < t.leafMinSize() {
			return nil, fmt.Errorf("bplustree: leaf %d underflowed (%d < %d)", id, lv.Size(), t.leafMinSize())
		}
		if lv.Size() > 0 {
			return lv.KeyAt(lv.Size() - 1), nil
		}
		return nil, nil

	case page.InternalType:
		iv := page.NewInternalView(rg.Data(), t.keyWidth)
		if !isRoot && iv.Size() < t.internalMinSize() {
			return nil, fmt.Errorf("bplustree: internal %d underflowed (%d < %d)", id, iv.Size(), t.internalMinSize())
		}
		if iv.Size() >= iv.MaxSize() {
			return nil, fmt.Errorf("bplustree: internal %d overflowed (%d >= %d)", id, iv.Size(), iv.MaxSize())
		}

		var maxSeen common.Key
		for i := 0; i <= iv.Size(); i++ {
			childLo, childHi := lo, hi
			if i > 0 {
				childLo = iv.KeyAt(i)
			}
			if i < iv.Size() {
				childHi = iv.KeyAt(i + 1)
			}
			last, err := t.checkNode(iv.ChildAt(i), childLo, childHi, false)
			if err != nil {
				return nil, err
			}
			if last != nil {
				maxSeen = last
			}
		}
		return maxSeen, nil

	default:
		return nil, fmt.Errorf("bplustree: page %d has invalid type tag", id)
	}
}
