package common

import "sync"

// Event is a sync.Cond bound to a caller-supplied lock. The lock manager
// uses one per lock request queue so a waiting transaction parks on the
// queue's own mutex instead of a private one, avoiding the lost-wakeup
// window a separately-locked condition variable would open between checking
// the queue and waiting on it.
type Event struct {
	c *sync.Cond
}

func NewEvent(l sync.Locker) *Event {
	return &Event{c: sync.NewCond(l)}
}

// Wait blocks until Broadcast is called. The caller must hold the queue's
// lock before calling Wait, per sync.Cond's contract; Wait releases it while
// parked and reacquires it before returning.
func (e *Event) Wait() { e.c.Wait() }

func (e *Event) Broadcast() { e.c.Broadcast() }
