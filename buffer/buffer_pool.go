package buffer

import (
	"fmt"
	"log"
	"sync"

	"diskcore/common"
	"diskcore/disk"
)

// BufferPool caches fixed-size disk pages in a bounded frame array. One
// coarse pool latch (mu) protects the page table, free list, pin counts, and
// the replacer; it is never held across disk I/O and never held while
// acquiring a frame's content latch — see the guard types in guard.go.
//
// Grounded on buffer.BufferPool (teacher): NewPage/GetPage/Unpin/FlushAll
// shape, the free-list-then-evict frame acquisition order, and the pattern
// of releasing the pool latch before doing I/O and briefly re-acquiring it
// to finalize page-table bookkeeping.
type BufferPool struct {
	mu sync.Mutex

	poolSize int
	frames   []*frame
	pageIdx  map[common.PageID]common.FrameID
	freeList []common.FrameID

	replacer *LRUKReplacer
	disk     disk.Manager
	log      *log.Logger

	// fetchLock serializes concurrent NewPage/FetchPage calls that could
	// otherwise race to install the same not-yet-resident page id into two
	// different frames. Grounded on BufferPool.opLocks (common.KeyMutex).
	fetchLock *common.StripedLock

	stats *common.Stats
}

const defaultFetchStripes = 64

func NewBufferPool(poolSize int, k int, diskManager disk.Manager, logger *log.Logger) *BufferPool {
	if poolSize <= 0 {
		panic("buffer: pool size must be positive")
	}

	frames := make([]*frame, poolSize)
	freeList := make([]common.FrameID, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = newFrame()
		freeList[i] = common.FrameID(i)
	}

	return &BufferPool{
		poolSize:  poolSize,
		frames:    frames,
		pageIdx:   map[common.PageID]common.FrameID{},
		freeList:  freeList,
		replacer:  NewLRUKReplacer(k),
		disk:      diskManager,
		log:       logger,
		fetchLock: common.NewStripedLock(defaultFetchStripes),
		stats:     common.NewStats(),
	}
}

// NewPage allocates a fresh page id, obtains a frame for it (from the free
// list else by evicting), zeroes the frame, and returns a BasicPageGuard
// pinning it. Returns ok=false if the pool is full and nothing is evictable.
func (bp *BufferPool) NewPage() (guard BasicPageGuard, ok bool) {
	id := bp.disk.AllocatePageID()

	release := bp.fetchLock.Lock(uint64(id))
	defer release()

	frameID, evictedDirty, victimID, gotFrame := bp.reserveFrame()
	if !gotFrame {
		bp.disk.DeallocatePageID(id)
		return BasicPageGuard{}, false
	}

	if evictedDirty {
		if err := bp.writeBack(frameID, victimID); err != nil {
			bp.logf("buffer: write-back of evicted page %d failed: %v", victimID, err)
		}
	}

	bp.mu.Lock()
	f := bp.frames[frameID]
	f.reset()
	f.pageID = id
	f.pinCount = 1
	f.dirty = false
	bp.pageIdx[id] = frameID
	bp.mu.Unlock()

	bp.replacer.RecordAccess(frameID)
	bp.replacer.SetEvictable(frameID, false)

	return BasicPageGuard{pool: bp, frameID: frameID, pageID: id}, true
}

// FetchPage returns a BasicPageGuard for id, reading it from disk if it is
// not already resident. Returns ok=false if id is not on disk and not
// resident, or the pool is full and nothing is evictable.
func (bp *BufferPool) FetchPage(id common.PageID) (guard BasicPageGuard, ok bool) {
	release := bp.fetchLock.Lock(uint64(id))
	defer release()

	bp.mu.Lock()
	if frameID, resident := bp.pageIdx[id]; resident {
		f := bp.frames[frameID]
		wasUnpinned := f.pinCount == 0
		f.pinCount++
		bp.mu.Unlock()

		bp.replacer.RecordAccess(frameID)
		if wasUnpinned {
			bp.replacer.SetEvictable(frameID, false)
		}
		bp.stats.Avg("buffer_pool_hit", 1)
		return BasicPageGuard{pool: bp, frameID: frameID, pageID: id}, true
	}
	bp.mu.Unlock()

	bp.stats.Avg("buffer_pool_hit", 0)

	frameID, evictedDirty, victimID, gotFrame := bp.reserveFrame()
	if !gotFrame {
		return BasicPageGuard{}, false
	}

	if evictedDirty {
		if err := bp.writeBack(frameID, victimID); err != nil {
			bp.logf("buffer: write-back of evicted page %d failed: %v", victimID, err)
		}
	}

	f := bp.frames[frameID]
	if err := bp.disk.ReadPage(id, f.data[:]); err != nil {
		bp.mu.Lock()
		bp.freeList = append(bp.freeList, frameID)
		bp.mu.Unlock()
		bp.logf("buffer: fetch page %d failed: %v", id, err)
		return BasicPageGuard{}, false
	}

	bp.mu.Lock()
	f.pageID = id
	f.pinCount = 1
	f.dirty = false
	bp.pageIdx[id] = frameID
	bp.mu.Unlock()

	bp.replacer.RecordAccess(frameID)
	bp.replacer.SetEvictable(frameID, false)

	return BasicPageGuard{pool: bp, frameID: frameID, pageID: id}, true
}

// reserveFrame returns a frame id ready to receive a page: from the free
// list if one exists, else by asking the replacer to evict. When eviction
// is required and the victim is dirty, evictedDirty is true and victimID
// names the page whose bytes the caller must write back with writeBack
// before reusing the frame's page id slot (writeBack reads victim bytes
// which are still resident in the frame at that point).
func (bp *BufferPool) reserveFrame() (frameID common.FrameID, evictedDirty bool, victimID common.PageID, ok bool) {
	bp.mu.Lock()
	if n := len(bp.freeList); n > 0 {
		id := bp.freeList[n-1]
		bp.freeList = bp.freeList[:n-1]
		bp.mu.Unlock()
		return id, false, 0, true
	}
	bp.mu.Unlock()

	victim, evicted := bp.replacer.Evict()
	if !evicted {
		return 0, false, 0, false
	}

	bp.mu.Lock()
	f := bp.frames[victim]
	if f.pinCount != 0 {
		bp.mu.Unlock()
		panic(fmt.Sprintf("buffer: replacer chose pinned frame %d as victim", victim))
	}
	dirty := f.dirty
	oldPageID := f.pageID
	delete(bp.pageIdx, oldPageID)
	bp.mu.Unlock()

	return victim, dirty, oldPageID, true
}

// writeBack flushes frameID's current bytes to disk under pageID, the page
// id the frame held before reserveFrame evicted it. reserveFrame has already
// removed pageID from pageIdx by the time this runs, so the frame must be
// named directly rather than looked back up by page id.
func (bp *BufferPool) writeBack(frameID common.FrameID, pageID common.PageID) error {
	bp.mu.Lock()
	f := bp.frames[frameID]
	data := f.data
	bp.mu.Unlock()
	return bp.disk.WritePage(pageID, data[:])
}

// Unpin decrements id's pin count and ORs mark_dirty into its dirty flag,
// and returns true. Unpinning a page that is not resident, or whose pin
// count is already zero, is a caller-bug contract violation and panics.
func (bp *BufferPool) Unpin(id common.PageID, markDirty bool) bool {
	bp.mu.Lock()
	frameID, ok := bp.pageIdx[id]
	if !ok {
		bp.mu.Unlock()
		panic(fmt.Sprintf("buffer: Unpin called on non-resident page %d", id))
	}

	f := bp.frames[frameID]
	if markDirty {
		f.dirty = true
	}

	if f.pinCount <= 0 {
		bp.mu.Unlock()
		panic(fmt.Sprintf("buffer: Unpin called while pin count is %d on page %d", f.pinCount, id))
	}

	f.pinCount--
	becameEvictable := f.pinCount == 0
	bp.mu.Unlock()

	if becameEvictable {
		bp.replacer.SetEvictable(frameID, true)
	}
	return true
}

// Flush writes id's bytes to disk unconditionally and clears its dirty bit.
func (bp *BufferPool) Flush(id common.PageID) error {
	bp.mu.Lock()
	frameID, ok := bp.pageIdx[id]
	if !ok {
		bp.mu.Unlock()
		return fmt.Errorf("buffer: Flush called on non-resident page %d", id)
	}
	f := bp.frames[frameID]
	data := f.data
	bp.mu.Unlock()

	if err := bp.disk.WritePage(id, data[:]); err != nil {
		return err
	}

	bp.mu.Lock()
	f.dirty = false
	bp.mu.Unlock()
	return nil
}

// FlushAll flushes every resident page.
func (bp *BufferPool) FlushAll() error {
	bp.mu.Lock()
	ids := make([]common.PageID, 0, len(bp.pageIdx))
	for id := range bp.pageIdx {
		ids = append(ids, id)
	}
	bp.mu.Unlock()

	for _, id := range ids {
		if err := bp.Flush(id); err != nil {
			return err
		}
	}
	return nil
}

// DeletePage removes id from the pool. If id is not resident it succeeds
// and only deallocates id on disk. If resident with pin count > 0 it fails.
// Otherwise the frame returns to the free list and id is deallocated on disk.
func (bp *BufferPool) DeletePage(id common.PageID) bool {
	bp.mu.Lock()
	frameID, ok := bp.pageIdx[id]
	if !ok {
		bp.mu.Unlock()
		bp.disk.DeallocatePageID(id)
		return true
	}

	f := bp.frames[frameID]
	if f.pinCount > 0 {
		bp.mu.Unlock()
		return false
	}

	delete(bp.pageIdx, id)
	f.reset()
	bp.freeList = append(bp.freeList, frameID)
	bp.mu.Unlock()

	bp.replacer.Remove(frameID)
	bp.disk.DeallocatePageID(id)
	return true
}

func (bp *BufferPool) logf(format string, args ...interface{}) {
	if bp.log != nil {
		bp.log.Printf(format, args...)
	}
}

// Stats exposes the pool's hit-rate counters, an ambient observability
// nicety grounded on common.Stats.
func (bp *BufferPool) Stats() *common.Stats { return bp.stats }

// dataOf and latchOf are the seams the guard types use to reach frame
// internals without exposing the frame type itself outside the package.
func (bp *BufferPool) dataOf(frameID common.FrameID) []byte {
	return bp.frames[frameID].data[:]
}

func (bp *BufferPool) latchOf(frameID common.FrameID) *sync.RWMutex {
	return &bp.frames[frameID].latch
}
