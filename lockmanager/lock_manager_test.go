package lockmanager

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"diskcore/common"
	"diskcore/txn"
)

func newTxn(id int64) *txn.Transaction {
	return txn.New(txn.ID(id), txn.RepeatableRead)
}

func TestLockManager_SharedLocksAreCompatible(t *testing.T) {
	lm := New(nil)
	rid := common.NewRid(1, 0)
	t1, t2 := newTxn(1), newTxn(2)

	require.NoError(t, lm.LockShared(t1, rid))
	require.NoError(t, lm.LockShared(t2, rid))
	require.True(t, t1.HasSharedLock(rid))
	require.True(t, t2.HasSharedLock(rid))
}

func TestLockManager_ExclusiveExcludesShared(t *testing.T) {
	lm := New(nil)
	rid := common.NewRid(1, 0)
	older, younger := newTxn(1), newTxn(2)

	require.NoError(t, lm.LockExclusive(older, rid))

	done := make(chan error, 1)
	go func() { done <- lm.LockShared(younger, rid) }()

	select {
	case <-done:
		t.Fatal("younger transaction must block behind an older transaction's exclusive lock")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, lm.Unlock(older, rid))
	require.NoError(t, <-done)
}

func TestLockManager_LockSharedOnReadUncommittedRejected(t *testing.T) {
	lm := New(nil)
	rid := common.NewRid(1, 0)
	tr := txn.New(1, txn.ReadUncommitted)

	err := lm.LockShared(tr, rid)
	require.Error(t, err)
	var aborted *common.TransactionAbortedError
	require.True(t, errors.As(err, &aborted))
	require.Equal(t, common.LockSharedOnReadUncommitted, aborted.Reason)
	require.Equal(t, txn.Aborted, tr.State())
}

func TestLockManager_LockOnShrinkingRejected(t *testing.T) {
	lm := New(nil)
	rid := common.NewRid(1, 0)
	tr := newTxn(1)
	tr.SetState(txn.Shrinking)

	err := lm.LockExclusive(tr, rid)
	require.Error(t, err)
	var aborted *common.TransactionAbortedError
	require.True(t, errors.As(err, &aborted))
	require.Equal(t, common.LockOnShrinking, aborted.Reason)
}

func TestLockManager_UnlockMovesGrowingToShrinking(t *testing.T) {
	lm := New(nil)
	rid := common.NewRid(1, 0)
	tr := newTxn(1)

	require.NoError(t, lm.LockExclusive(tr, rid))
	require.Equal(t, txn.Growing, tr.State())

	require.NoError(t, lm.Unlock(tr, rid))
	require.Equal(t, txn.Shrinking, tr.State())
}

func TestLockManager_ReadCommittedSharedUnlockStaysGrowing(t *testing.T) {
	lm := New(nil)
	rid := common.NewRid(1, 0)
	tr := txn.New(1, txn.ReadCommitted)

	require.NoError(t, lm.LockShared(tr, rid))
	require.NoError(t, lm.Unlock(tr, rid))
	require.Equal(t, txn.Growing, tr.State())
}

func TestLockManager_UpgradeConvertsSharedToExclusive(t *testing.T) {
	lm := New(nil)
	rid := common.NewRid(1, 0)
	tr := newTxn(1)

	require.NoError(t, lm.LockShared(tr, rid))
	require.NoError(t, lm.LockUpgrade(tr, rid))
	require.True(t, tr.HasExclusiveLock(rid))
	require.False(t, tr.HasSharedLock(rid))
}

func TestLockManager_ConcurrentUpgradeConflictAborts(t *testing.T) {
	lm := New(nil)
	rid := common.NewRid(1, 0)
	// old holds a shared lock it never upgrades, so a's upgrade attempt is
	// guaranteed to block (old is too old to wound) rather than resolve
	// immediately, giving b's upgrade attempt a stable window to observe
	// a's in-progress upgrade.
	old, a, b := newTxn(1), newTxn(2), newTxn(3)

	require.NoError(t, lm.LockShared(old, rid))
	require.NoError(t, lm.LockShared(a, rid))
	require.NoError(t, lm.LockShared(b, rid))

	aDone := make(chan error, 1)
	go func() { aDone <- lm.LockUpgrade(a, rid) }()

	time.Sleep(50 * time.Millisecond) // let a register as the queue's upgrader and start waiting

	err := lm.LockUpgrade(b, rid)
	require.Error(t, err, "b must not be allowed to upgrade while a is mid-upgrade on the same queue")

	require.NoError(t, lm.Unlock(old, rid))
	select {
	case err := <-aDone:
		require.NoError(t, err, "a's upgrade must complete once the older holder releases")
	case <-time.After(2 * time.Second):
		t.Fatal("a's upgrade never completed")
	}
}

// TestLockManager_WoundWait exercises the three-transaction scenario: an
// older transaction requesting a conflicting lock wounds a younger granted
// holder instead of waiting behind it, while a younger requester waits
// behind an older holder rather than wounding it.
func TestLockManager_WoundWait(t *testing.T) {
	lm := New(nil)
	rid := common.NewRid(1, 0)
	old, mid, young := newTxn(1), newTxn(2), newTxn(3)

	require.NoError(t, lm.LockExclusive(mid, rid))

	done := make(chan error, 1)
	go func() { done <- lm.LockExclusive(old, rid) }()

	select {
	case err := <-done:
		require.NoError(t, err, "older txn must be granted after wounding the younger holder")
	case <-time.After(2 * time.Second):
		t.Fatal("older transaction never wounded the younger holder")
	}
	require.Equal(t, txn.Aborted, mid.State())

	// young now tries against old (older, granted): young must wait, not
	// wound.
	waitDone := make(chan error, 1)
	go func() { waitDone <- lm.LockExclusive(young, rid) }()

	select {
	case <-waitDone:
		t.Fatal("younger transaction must not be granted while an older transaction holds a conflicting lock")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, lm.Unlock(old, rid))
	require.NoError(t, <-waitDone)
}

func TestLockManager_ShutdownUnblocksWaiters(t *testing.T) {
	lm := New(nil)
	rid := common.NewRid(1, 0)
	holder, waiter := newTxn(1), newTxn(5)

	require.NoError(t, lm.LockExclusive(holder, rid))

	done := make(chan error, 1)
	go func() { done <- lm.LockExclusive(waiter, rid) }()

	select {
	case <-done:
		t.Fatal("waiter must still be blocked before shutdown")
	case <-time.After(50 * time.Millisecond):
	}

	lm.Shutdown()
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrShutdown)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown must unblock every waiter")
	}
}

func TestLockManager_DoubleSharedLockIsNoOp(t *testing.T) {
	lm := New(nil)
	rid := common.NewRid(1, 0)
	tr := newTxn(1)

	require.NoError(t, lm.LockShared(tr, rid))
	// second shared request for the same txn on the same rid while the first
	// is already granted is a short-circuit no-op, not a duplicate-pending
	// rejection, since acquire checks HasSharedLock first and only guards
	// pending requests, not granted ones.
	err := lm.LockShared(tr, rid)
	require.NoError(t, err)
}
