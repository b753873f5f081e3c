// Package txn stands in for the external transaction-lifecycle collaborator
// the storage core is built against. Query executors, the catalog, and the
// commit/abort protocol that actually drives a Transaction's state machine
// are out of scope; this package only carries the fields the lock manager
// needs to read from and write to it.
package txn

import (
	"sync"

	"github.com/google/uuid"
)

// IsolationLevel controls which lock requests the lock manager refuses and
// whether releasing a shared lock ends the growing phase.
type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

// State is a transaction's position in the two-phase locking protocol.
type State int

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// ID is the transaction identifier compared by the lock manager's wound-wait
// policy: lower is older.
type ID int64

// Transaction is the minimal external interface the storage core consumes.
// It is not a general-purpose transaction manager: no commit/abort protocol,
// no write-ahead logging, no undo/redo. It exists so the lock manager has
// something concrete to mutate; the B+ tree does not use it, and it carries
// no write-set.
type Transaction struct {
	mu sync.Mutex

	id        ID
	sessionID uuid.UUID // human-debuggable correlation tag, unrelated to wound-wait ordering
	isolation IsolationLevel
	state     State

	sharedLockSet    map[interface{}]struct{}
	exclusiveLockSet map[interface{}]struct{}
}

func New(id ID, isolation IsolationLevel) *Transaction {
	return &Transaction{
		id:               id,
		sessionID:        uuid.New(),
		isolation:        isolation,
		state:            Growing,
		sharedLockSet:    map[interface{}]struct{}{},
		exclusiveLockSet: map[interface{}]struct{}{},
	}
}

func (t *Transaction) ID() ID                       { return t.id }
func (t *Transaction) SessionID() uuid.UUID         { return t.sessionID }
func (t *Transaction) IsolationLevel() IsolationLevel { return t.isolation }

func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// IsAborted is a convenience check the lock manager uses on every wake.
func (t *Transaction) IsAborted() bool {
	return t.State() == Aborted
}

func (t *Transaction) AddSharedLock(rid interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sharedLockSet[rid] = struct{}{}
}

func (t *Transaction) RemoveSharedLock(rid interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sharedLockSet, rid)
}

func (t *Transaction) HasSharedLock(rid interface{}) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sharedLockSet[rid]
	return ok
}

func (t *Transaction) AddExclusiveLock(rid interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exclusiveLockSet[rid] = struct{}{}
}

func (t *Transaction) RemoveExclusiveLock(rid interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.exclusiveLockSet, rid)
}

func (t *Transaction) HasExclusiveLock(rid interface{}) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.exclusiveLockSet[rid]
	return ok
}
