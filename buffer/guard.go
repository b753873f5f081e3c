package buffer

import (
	"sync"

	"diskcore/common"
)

// Page guards are the scoped-resource-acquisition primitive: a guard
// acquires its pin (and, for Read/Write guards, a frame latch) at
// construction and must release both via Drop on every exit path. Go has no
// destructors, so callers must call Drop on every exit path (defer it right
// after obtaining the guard), the discipline the design notes call out for
// garbage-collected targets. Drop is idempotent so a second, stray call from
// an early-return path is harmless rather than a double-unpin panic.
//
// Grounded on disk/pages.IPage's WLatch/RLatch/pin-count accessors and
// buffer.BufferPool's pin/unpin bookkeeping, reshaped into the three guard
// flavors §4.2 specifies.

// BasicPageGuard holds a pin on a page but no content latch. It is the guard
// FetchPage/NewPage return; callers upgrade it to Read or Write before
// touching page bytes under concurrency, or use it bare in single-threaded
// contexts (tests, recovery-style scans) where latching would be inert.
type BasicPageGuard struct {
	pool    *BufferPool
	frameID common.FrameID
	pageID  common.PageID
	dropped bool
}

func (g *BasicPageGuard) Valid() bool { return g.pool != nil && !g.dropped }

func (g *BasicPageGuard) PageID() common.PageID { return g.pageID }

// Data returns the frame's raw bytes. Safe to call without a content latch
// only when the caller has independently established exclusivity (e.g. it
// just created the page and no other guard on it exists yet).
func (g *BasicPageGuard) Data() []byte {
	return g.pool.dataOf(g.frameID)
}

// Drop unpins the page, marking it dirty if markDirty is true.
func (g *BasicPageGuard) Drop(markDirty bool) {
	if g.dropped || g.pool == nil {
		return
	}
	g.dropped = true
	g.pool.Unpin(g.pageID, markDirty)
}

// UpgradeRead consumes the basic guard's pin and returns a ReadPageGuard
// holding the frame's read latch. The basic guard must not be used after
// this call.
func (g *BasicPageGuard) UpgradeRead() ReadPageGuard {
	latch := g.pool.latchOf(g.frameID)
	latch.RLock()
	rg := ReadPageGuard{pool: g.pool, frameID: g.frameID, pageID: g.pageID, latch: latch}
	g.dropped = true // ownership transferred; the basic guard's pin lives on inside rg
	return rg
}

// UpgradeWrite consumes the basic guard's pin and returns a WritePageGuard
// holding the frame's write latch.
func (g *BasicPageGuard) UpgradeWrite() WritePageGuard {
	latch := g.pool.latchOf(g.frameID)
	latch.Lock()
	wg := WritePageGuard{pool: g.pool, frameID: g.frameID, pageID: g.pageID, latch: latch}
	g.dropped = true
	return wg
}

// ReadPageGuard additionally holds the frame's reader latch, released on
// Drop before the pin is released.
type ReadPageGuard struct {
	pool    *BufferPool
	frameID common.FrameID
	pageID  common.PageID
	latch   *sync.RWMutex
	dropped bool
}

func (g *ReadPageGuard) Valid() bool           { return g.pool != nil && !g.dropped }
func (g *ReadPageGuard) PageID() common.PageID { return g.pageID }
func (g *ReadPageGuard) Data() []byte          { return g.pool.dataOf(g.frameID) }

func (g *ReadPageGuard) Drop() {
	if g.dropped || g.pool == nil {
		return
	}
	g.dropped = true
	g.latch.RUnlock()
	g.pool.Unpin(g.pageID, false)
}

// WritePageGuard additionally holds the frame's writer latch. Drop always
// marks the page dirty: a write latch is only ever taken to mutate.
type WritePageGuard struct {
	pool    *BufferPool
	frameID common.FrameID
	pageID  common.PageID
	latch   *sync.RWMutex
	dropped bool
}

func (g *WritePageGuard) Valid() bool           { return g.pool != nil && !g.dropped }
func (g *WritePageGuard) PageID() common.PageID { return g.pageID }
func (g *WritePageGuard) Data() []byte          { return g.pool.dataOf(g.frameID) }

func (g *WritePageGuard) Drop() {
	if g.dropped || g.pool == nil {
		return
	}
	g.dropped = true
	g.latch.Unlock()
	g.pool.Unpin(g.pageID, true)
}
