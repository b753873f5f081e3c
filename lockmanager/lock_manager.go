// Package lockmanager implements a record-level, wound-wait two-phase lock
// manager. Grounded on helindb's locker.LockManager (per-key LockRequestQueue,
// upgrading-txn tracking, granted/waiting request bookkeeping) but rebuilt
// around wound-wait instead of a background deadlock-detection goroutine:
// an older transaction never waits behind a younger one, it wounds it.
package lockmanager

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"diskcore/common"
	"diskcore/txn"
)

// ErrShutdown is returned to any call in progress or newly arriving once
// Shutdown has been invoked.
var ErrShutdown = errors.New("lockmanager: shut down")

type LockMode int

const (
	Shared LockMode = iota
	Exclusive
)

func (m LockMode) String() string {
	if m == Exclusive {
		return "EXCLUSIVE"
	}
	return "SHARED"
}

// LockRequest is one transaction's ask for a mode on a record. Granted
// becomes true once the request is compatible with every other granted
// request on the same queue.
type LockRequest struct {
	Txn     *txn.Transaction
	Mode    LockMode
	Granted bool
}

func conflicts(a, b LockMode) bool { return a == Exclusive || b == Exclusive }

// LockRequestQueue serializes all lock activity on a single Rid. Its own
// mutex doubles as the Event's lock, so a waiter never misses a wakeup that
// lands between its compatibility check and the call to Wait.
type LockRequestQueue struct {
	mu        sync.Mutex
	cond      *common.Event
	requests  []*LockRequest
	upgrading int64 // txn id currently upgrading on this queue, or -1
}

func newQueue() *LockRequestQueue {
	q := &LockRequestQueue{upgrading: -1}
	q.cond = common.NewEvent(&q.mu)
	return q
}

func (q *LockRequestQueue) findLocked(txnID txn.ID) *LockRequest {
	for _, r := range q.requests {
		if r.Txn.ID() == txnID {
			return r
		}
	}
	return nil
}

func (q *LockRequestQueue) removeLocked(txnID txn.ID) {
	for i, r := range q.requests {
		if r.Txn.ID() == txnID {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return
		}
	}
}

// canGrantLocked reports whether req is compatible with every other granted
// request currently on the queue.
func canGrantLocked(q *LockRequestQueue, req *LockRequest) bool {
	for _, r := range q.requests {
		if r == req || !r.Granted {
			continue
		}
		if conflicts(r.Mode, req.Mode) {
			return false
		}
	}
	return true
}

// LockManager grants and releases record locks under wound-wait.
type LockManager struct {
	tableMu sync.Mutex
	table   map[common.Rid]*LockRequestQueue
	waiting map[txn.ID]*LockRequestQueue // txn -> queue it is currently parked on, if any
	log     *log.Logger
	down    bool
}

func New(logger *log.Logger) *LockManager {
	return &LockManager{
		table:   map[common.Rid]*LockRequestQueue{},
		waiting: map[txn.ID]*LockRequestQueue{},
		log:     logger,
	}
}

func (lm *LockManager) logf(format string, args ...interface{}) {
	if lm.log != nil {
		lm.log.Printf(format, args...)
	}
}

func (lm *LockManager) queueFor(rid common.Rid) *LockRequestQueue {
	lm.tableMu.Lock()
	defer lm.tableMu.Unlock()
	q, ok := lm.table[rid]
	if !ok {
		q = newQueue()
		lm.table[rid] = q
	}
	return q
}

func (lm *LockManager) isDown() bool {
	lm.tableMu.Lock()
	defer lm.tableMu.Unlock()
	return lm.down
}

// setWaiting records that t's request loop is parked on q, so a wound
// against a different queue can find and wake it. clearWaiting removes that
// record once the loop returns by any path (granted, aborted, shut down).
func (lm *LockManager) setWaiting(id txn.ID, q *LockRequestQueue) {
	lm.tableMu.Lock()
	lm.waiting[id] = q
	lm.tableMu.Unlock()
}

func (lm *LockManager) clearWaiting(id txn.ID) {
	lm.tableMu.Lock()
	delete(lm.waiting, id)
	lm.tableMu.Unlock()
}

func (lm *LockManager) waitingQueue(id txn.ID) *LockRequestQueue {
	lm.tableMu.Lock()
	defer lm.tableMu.Unlock()
	return lm.waiting[id]
}

// LockShared acquires a shared lock on rid for t, blocking until granted.
func (lm *LockManager) LockShared(t *txn.Transaction, rid common.Rid) error {
	if t.IsolationLevel() == txn.ReadUncommitted {
		t.SetState(txn.Aborted)
		return common.NewAbortedError(int64(t.ID()), common.LockSharedOnReadUncommitted)
	}
	return lm.acquire(t, rid, Shared)
}

// LockExclusive acquires an exclusive lock on rid for t, blocking until
// granted. A transaction already holding S on rid delegates to LockUpgrade
// instead of queueing a fresh X request, which would otherwise deadlock
// behind its own granted S.
func (lm *LockManager) LockExclusive(t *txn.Transaction, rid common.Rid) error {
	if t.HasSharedLock(rid) {
		return lm.LockUpgrade(t, rid)
	}
	return lm.acquire(t, rid, Exclusive)
}

func (lm *LockManager) acquire(t *txn.Transaction, rid common.Rid, mode LockMode) error {
	if t.State() == txn.Shrinking {
		t.SetState(txn.Aborted)
		return common.NewAbortedError(int64(t.ID()), common.LockOnShrinking)
	}
	// X subsumes S: already holding X satisfies either request. Already
	// holding S satisfies a Shared request outright.
	if t.HasExclusiveLock(rid) || (mode == Shared && t.HasSharedLock(rid)) {
		return nil
	}

	q := lm.queueFor(rid)
	q.mu.Lock()

	pending := make([]int64, 0, len(q.requests))
	for _, r := range q.requests {
		pending = append(pending, int64(r.Txn.ID()))
	}
	if common.ContainsTxn(pending, int64(t.ID())) {
		q.mu.Unlock()
		return fmt.Errorf("lockmanager: txn %d already has a request pending on %v", t.ID(), rid)
	}

	req := &LockRequest{Txn: t, Mode: mode}
	q.requests = append(q.requests, req)

	lm.setWaiting(t.ID(), q)
	defer lm.clearWaiting(t.ID())

	for {
		if t.IsAborted() {
			q.removeLocked(t.ID())
			q.cond.Broadcast()
			q.mu.Unlock()
			return common.NewAbortedError(int64(t.ID()), common.Deadlock)
		}
		if lm.isDown() {
			q.removeLocked(t.ID())
			q.mu.Unlock()
			return ErrShutdown
		}

		lm.woundYoungerLocked(t, q, req)

		if canGrantLocked(q, req) {
			req.Granted = true
			if mode == Shared {
				t.AddSharedLock(rid)
			} else {
				t.AddExclusiveLock(rid)
			}
			q.mu.Unlock()
			return nil
		}

		q.cond.Wait()
	}
}

// woundYoungerLocked aborts every granted holder younger than t that
// conflicts with req, removing it from the queue and broadcasting so its own
// wait loop observes the abort on its next iteration. Holders older than t
// are left alone; t keeps waiting behind them.
//
// A wounded holder is granted on q but may be blocked in its own request
// loop on a different rid's queue entirely (it holds this lock while
// waiting on another one). Broadcasting only q's cond would leave it parked
// there forever, so any victim's actual wait queue, if different from q, is
// also woken. That requires locking a second queue's mutex; q's own lock is
// dropped first so two wounds racing in opposite queue order can never
// deadlock against each other.
func (lm *LockManager) woundYoungerLocked(t *txn.Transaction, q *LockRequestQueue, req *LockRequest) {
	var victims []*txn.Transaction
	// range over a copy: removeLocked shifts q.requests in place.
	for _, r := range append([]*LockRequest(nil), q.requests...) {
		if r == req || !r.Granted || !conflicts(r.Mode, req.Mode) {
			continue
		}
		if r.Txn.ID() > t.ID() {
			r.Txn.SetState(txn.Aborted)
			q.removeLocked(r.Txn.ID())
			victims = append(victims, r.Txn)
			lm.logf("lockmanager: txn %d wounded by older txn %d", r.Txn.ID(), t.ID())
		}
	}
	if len(victims) == 0 {
		return
	}
	q.cond.Broadcast()

	var elsewhere []*LockRequestQueue
	for _, v := range victims {
		if wq := lm.waitingQueue(v.ID()); wq != nil && wq != q {
			elsewhere = append(elsewhere, wq)
		}
	}
	if len(elsewhere) == 0 {
		return
	}

	q.mu.Unlock()
	for _, wq := range elsewhere {
		wq.mu.Lock()
		wq.cond.Broadcast()
		wq.mu.Unlock()
	}
	q.mu.Lock()
}

// LockUpgrade converts t's shared lock on rid into an exclusive one. Only
// one transaction may upgrade on a given queue at a time; a second upgrader
// aborts with an upgrade-conflict rather than queueing behind the first.
func (lm *LockManager) LockUpgrade(t *txn.Transaction, rid common.Rid) error {
	if t.State() == txn.Shrinking {
		t.SetState(txn.Aborted)
		return common.NewAbortedError(int64(t.ID()), common.LockOnShrinking)
	}
	if t.HasExclusiveLock(rid) {
		return nil
	}
	if !t.HasSharedLock(rid) {
		return fmt.Errorf("lockmanager: txn %d upgrading a lock it does not hold on %v", t.ID(), rid)
	}

	q := lm.queueFor(rid)
	q.mu.Lock()

	if q.upgrading != -1 && q.upgrading != int64(t.ID()) {
		q.mu.Unlock()
		t.SetState(txn.Aborted)
		return common.NewAbortedError(int64(t.ID()), common.UpgradeConflict)
	}
	q.upgrading = int64(t.ID())

	req := q.findLocked(t.ID())
	if req == nil {
		q.upgrading = -1
		q.mu.Unlock()
		return fmt.Errorf("lockmanager: txn %d has no request on %v to upgrade", t.ID(), rid)
	}
	req.Mode = Exclusive
	req.Granted = false

	lm.setWaiting(t.ID(), q)
	defer lm.clearWaiting(t.ID())

	for {
		if t.IsAborted() {
			q.removeLocked(t.ID())
			q.upgrading = -1
			q.cond.Broadcast()
			q.mu.Unlock()
			return common.NewAbortedError(int64(t.ID()), common.Deadlock)
		}
		if lm.isDown() {
			q.upgrading = -1
			q.mu.Unlock()
			return ErrShutdown
		}

		lm.woundYoungerLocked(t, q, req)

		if canGrantLocked(q, req) {
			req.Granted = true
			q.upgrading = -1
			t.RemoveSharedLock(rid)
			t.AddExclusiveLock(rid)
			q.mu.Unlock()
			return nil
		}

		q.cond.Wait()
	}
}

// Unlock releases t's lock on rid. Releasing any lock while still growing
// moves t to the shrinking phase, except a shared lock released under
// READ_COMMITTED, which that isolation level allows to happen eagerly
// without ending the growing phase.
func (lm *LockManager) Unlock(t *txn.Transaction, rid common.Rid) error {
	q := lm.queueFor(rid)
	q.mu.Lock()

	req := q.findLocked(t.ID())
	if req == nil {
		q.mu.Unlock()
		return fmt.Errorf("lockmanager: txn %d does not hold a lock on %v", t.ID(), rid)
	}
	mode := req.Mode
	q.removeLocked(t.ID())
	q.cond.Broadcast()
	q.mu.Unlock()

	if mode == Shared {
		t.RemoveSharedLock(rid)
	} else {
		t.RemoveExclusiveLock(rid)
	}

	if t.State() == txn.Growing && !(mode == Shared && t.IsolationLevel() == txn.ReadCommitted) {
		t.SetState(txn.Shrinking)
	}
	return nil
}

// Shutdown wakes every blocked waiter across all queues with ErrShutdown.
// Grounded on locker.LockManager.Stop, which the teacher uses to unblock a
// deadlock-detection goroutine on close; here it unblocks lock waiters
// directly instead.
func (lm *LockManager) Shutdown() {
	lm.tableMu.Lock()
	lm.down = true
	queues := make([]*LockRequestQueue, 0, len(lm.table))
	for _, q := range lm.table {
		queues = append(queues, q)
	}
	lm.tableMu.Unlock()

	for _, q := range queues {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}
