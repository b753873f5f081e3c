// Package bplustree implements a concurrent B+ tree index atop a buffer
// pool, under fine-grained latch-crabbing. Grounded on helin's btree/btree
// package (BPager interface, nodeReleaser/guard-driven traversal, the
// two-phase optimistic-then-pessimistic insert shape) but rebuilt against
// the fixed-width binary page layouts storage/page defines instead of the
// teacher's variable-length slotted pages. Remove has no optimistic phase:
// it always write-latches the path from the header down.
package bplustree

import (
	"diskcore/buffer"
	"diskcore/common"
	"diskcore/storage/page"
)

// BTree is a unique-key B+ tree index. leafMax/internalMax are slot-count
// parameters (max_size in spec terms); min_size is derived per §4.3.
type BTree struct {
	pool         *buffer.BufferPool
	headerPageID common.PageID
	keyWidth     int
	leafMax      int
	internalMax  int
}

// New creates a brand-new tree: a header page plus a single empty leaf as
// the initial root.
func New(pool *buffer.BufferPool, keyWidth, leafMax, internalMax int) *BTree {
	if leafMax < 3 {
		panic("bplustree: leafMax must be at least 3")
	}
	if internalMax < 3 {
		panic("bplustree: internalMax must be at least 3")
	}

	rootGuard, ok := pool.NewPage()
	if !ok {
		panic("bplustree: cannot allocate initial root page")
	}
	rootWrite := rootGuard.UpgradeWrite()
	page.InitLeaf(rootWrite.Data(), keyWidth, leafMax)
	rootID := rootWrite.PageID()
	rootWrite.Drop()

	headerGuard, ok := pool.NewPage()
	if !ok {
		panic("bplustree: cannot allocate header page")
	}
	headerWrite := headerGuard.UpgradeWrite()
	page.InitHeader(headerWrite.Data(), rootID)
	headerID := headerWrite.PageID()
	headerWrite.Drop()

	return &BTree{
		pool:         pool,
		headerPageID: headerID,
		keyWidth:     keyWidth,
		leafMax:      leafMax,
		internalMax:  internalMax,
	}
}

// Open reconstructs a BTree handle for an existing header page (e.g. after
// reopening the database file). It does not validate the page's contents.
func Open(pool *buffer.BufferPool, headerPageID common.PageID, keyWidth, leafMax, internalMax int) *BTree {
	return &BTree{
		pool:         pool,
		headerPageID: headerPageID,
		keyWidth:     keyWidth,
		leafMax:      leafMax,
		internalMax:  internalMax,
	}
}

func (t *BTree) HeaderPageID() common.PageID { return t.headerPageID }

// internalMinSize counts keys (an internal page holds one more child than
// keys): at least ceil(internalMax/2) children.
func (t *BTree) internalMinSize() int { return ceilDiv(t.internalMax, 2) - 1 }
func (t *BTree) leafMinSize() int     { return ceilDiv(t.leafMax-1, 2) }

func ceilDiv(a, b int) int { return (a + b - 1) / b }

func (t *BTree) rootID() common.PageID {
	g, ok := t.pool.FetchPage(t.headerPageID)
	if !ok {
		panic("bplustree: header page missing")
	}
	rg := g.UpgradeRead()
	defer rg.Drop()
	return page.NewHeaderView(rg.Data()).RootPageID()
}

// Get returns the rid associated with key, or ok=false if absent.
func (t *BTree) Get(key common.Key) (common.Rid, bool) {
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
		childID := iv.ChildFor(key)

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
	idx, found := lv.Find(key)
	if !found {
		cur.Drop()
		return common.Rid{}, false
	}
	rid := lv.RidAt(idx)
	cur.Drop()
	return rid, true
}
