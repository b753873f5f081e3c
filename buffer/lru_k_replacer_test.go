package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"diskcore/common"
)

func TestLRUKReplacer_ColdEvictsFIFO(t *testing.T) {
	r := NewLRUKReplacer(2)

	r.RecordAccess(1)
	r.RecordAccess(2)
	r.RecordAccess(3)
	r.SetEvictable(1, true)
	r.SetEvictable(2, true)
	r.SetEvictable(3, true)

	// all three have a single access (< k=2): cold, FIFO order 1,2,3.
	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, common.FrameID(1), victim)

	victim, ok = r.Evict()
	require.True(t, ok)
	require.Equal(t, common.FrameID(2), victim)
}

func TestLRUKReplacer_HotPrefersColdOverHot(t *testing.T) {
	r := NewLRUKReplacer(2)

	r.RecordAccess(1)
	r.RecordAccess(1) // frame 1 reaches k=2 accesses, becomes hot
	r.RecordAccess(2) // frame 2 stays cold
	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, common.FrameID(2), victim, "cold frame must be evicted before any hot frame")
}

func TestLRUKReplacer_HotEvictsLargestBackwardDistance(t *testing.T) {
	r := NewLRUKReplacer(2)

	// frame 1: accesses at t=1,2 -> backward distance measured from its
	// oldest retained access (t=1).
	r.RecordAccess(1)
	r.RecordAccess(1)
	// frame 2: accesses at t=3,4 -> oldest retained access t=3, more recent
	// than frame 1's, so frame 2 has the smaller backward distance.
	r.RecordAccess(2)
	r.RecordAccess(2)

	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, common.FrameID(1), victim)
}

func TestLRUKReplacer_NonEvictableFramesAreSkipped(t *testing.T) {
	r := NewLRUKReplacer(2)
	r.RecordAccess(1)
	r.SetEvictable(1, false)

	_, ok := r.Evict()
	require.False(t, ok)
}

func TestLRUKReplacer_RemovePanicsOnNonEvictable(t *testing.T) {
	r := NewLRUKReplacer(2)
	r.RecordAccess(1)
	r.SetEvictable(1, false)

	require.Panics(t, func() { r.Remove(1) })
}

func TestLRUKReplacer_SizeTracksEvictableCount(t *testing.T) {
	r := NewLRUKReplacer(2)
	r.RecordAccess(1)
	r.RecordAccess(2)
	require.Equal(t, 0, r.Size())

	r.SetEvictable(1, true)
	require.Equal(t, 1, r.Size())

	r.SetEvictable(2, true)
	require.Equal(t, 2, r.Size())

	r.SetEvictable(1, false)
	require.Equal(t, 1, r.Size())
}
