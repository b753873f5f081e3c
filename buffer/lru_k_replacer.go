package buffer

import (
	"container/list"
	"fmt"
	"sync"

	"diskcore/common"
)

// LRUKReplacer answers "which evictable frame next?" using the LRU-K policy:
// frames with fewer than K recorded accesses are cold and evicted FIFO by
// first access; frames with K or more accesses are hot and evicted by the
// largest backward K-distance (the oldest K-th-most-recent access wins).
//
// Grounded on buffer.IReplacer / buffer.LruReplacer's Pin/Unpin/ChooseVictim
// shape, generalized to the K-history bookkeeping the LRU policy alone does
// not need.
type LRUKReplacer struct {
	mu sync.Mutex

	k        int
	currTime int64 // logical clock, bumped on every RecordAccess

	nodes map[common.FrameID]*lruKNode

	// cold is a FIFO queue of frame ids with history length < k, ordered by
	// first access. hot is unordered; eviction scans it for the largest
	// backward k-distance, which keeps the data structure simple at the
	// (small, bounded-by-pool-size) cost of a linear scan on evict.
	cold *list.List
	hot  map[common.FrameID]struct{}

	evictableCount int
}

type lruKNode struct {
	history    []int64 // ascending timestamps, length capped at k
	evictable  bool
	coldElem   *list.Element // position in cold list while history len < k
}

func NewLRUKReplacer(k int) *LRUKReplacer {
	if k <= 0 {
		panic("buffer: LRU-K replacer requires k >= 1")
	}
	return &LRUKReplacer{
		k:     k,
		nodes: map[common.FrameID]*lruKNode{},
		cold:  list.New(),
		hot:   map[common.FrameID]struct{}{},
	}
}

// RecordAccess advances the logical clock and appends a timestamp to frame's
// history, dropping the oldest entry once history exceeds k. A frame that
// just reached k accesses migrates from the cold cohort to the hot cohort.
func (r *LRUKReplacer) RecordAccess(frame common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.currTime++

	n, ok := r.nodes[frame]
	if !ok {
		n = &lruKNode{}
		n.coldElem = r.cold.PushBack(frame)
		r.nodes[frame] = n
	}

	n.history = append(n.history, r.currTime)
	if len(n.history) > r.k {
		n.history = n.history[len(n.history)-r.k:]
	}

	if len(n.history) == r.k && n.coldElem != nil {
		r.cold.Remove(n.coldElem)
		n.coldElem = nil
		r.hot[frame] = struct{}{}
	}
}

// SetEvictable toggles whether frame may be chosen by Evict, adjusting the
// count Size() reports. Calling it on an untracked frame is a no-op the way
// Unpin already implied non-existence should not happen.
func (r *LRUKReplacer) SetEvictable(frame common.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[frame]
	if !ok {
		return
	}

	if n.evictable == evictable {
		return
	}

	n.evictable = evictable
	if evictable {
		r.evictableCount++
	} else {
		r.evictableCount--
	}
}

// Evict picks the cold FIFO head if any evictable cold frame exists,
// otherwise the hot frame with the largest backward k-distance. It removes
// the winning frame's tracking entry entirely.
func (r *LRUKReplacer) Evict() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for e := r.cold.Front(); e != nil; e = e.Next() {
		frame := e.Value.(common.FrameID)
		if r.nodes[frame].evictable {
			r.removeLocked(frame)
			return frame, true
		}
	}

	var (
		victim   common.FrameID
		found    bool
		worstDist int64 = -1
	)
	for frame := range r.hot {
		n := r.nodes[frame]
		if !n.evictable {
			continue
		}
		// backward k-distance: currTime - (k-th-most-recent access) i.e. the
		// oldest entry in a length-k history. Larger distance evicts first.
		dist := r.currTime - n.history[0]
		if dist > worstDist {
			worstDist = dist
			victim = frame
			found = true
		}
	}

	if found {
		r.removeLocked(victim)
	}
	return victim, found
}

// Remove erases frame's tracking entry. The frame must currently be
// evictable; removing a pinned (non-evictable) frame indicates a caller bug
// and panics loudly, per spec.
func (r *LRUKReplacer) Remove(frame common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[frame]
	if !ok {
		return
	}
	if !n.evictable {
		panic(fmt.Sprintf("buffer: Remove called on non-evictable frame %d", frame))
	}

	r.removeLocked(frame)
}

// removeLocked assumes r.mu is held.
func (r *LRUKReplacer) removeLocked(frame common.FrameID) {
	n := r.nodes[frame]
	if n.coldElem != nil {
		r.cold.Remove(n.coldElem)
	}
	delete(r.hot, frame)
	if n.evictable {
		r.evictableCount--
	}
	delete(r.nodes, frame)
}

// Size returns the count of currently-evictable tracked frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictableCount
}
