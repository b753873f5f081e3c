package bplustree

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"diskcore/buffer"
	"diskcore/common"
	"diskcore/disk"
)

const testKeyWidth = 4

func newTestTree(t *testing.T, poolSize, leafMax, internalMax int) *BTree {
	t.Helper()
	dm := disk.NewMemoryManager()
	pool := buffer.NewBufferPool(poolSize, 2, dm, nil)
	return New(pool, testKeyWidth, leafMax, internalMax)
}

func k(n uint32) common.Key {
	b := make(common.Key, testKeyWidth)
	binary.BigEndian.PutUint32(b, n)
	return b
}

func TestBTree_InsertGetRoundTrip(t *testing.T) {
	tree := newTestTree(t, 32, 4, 4)

	for i := uint32(0); i < 20; i++ {
		ok := tree.Insert(k(i), common.Rid{PageID: common.PageID(i), Slot: i})
		require.True(t, ok, "insert of key %d should succeed", i)
	}

	for i := uint32(0); i < 20; i++ {
		rid, found := tree.Get(k(i))
		require.True(t, found, "key %d should be found", i)
		require.Equal(t, common.PageID(i), rid.PageID)
	}

	_, found := tree.Get(k(999))
	require.False(t, found)
}

func TestBTree_InsertDuplicateRejected(t *testing.T) {
	tree := newTestTree(t, 32, 4, 4)
	require.True(t, tree.Insert(k(1), common.Rid{PageID: 1}))
	require.False(t, tree.Insert(k(1), common.Rid{PageID: 2}))

	rid, found := tree.Get(k(1))
	require.True(t, found)
	require.Equal(t, common.PageID(1), rid.PageID)
}

func TestBTree_InsertCausesMultilevelSplit(t *testing.T) {
	tree := newTestTree(t, 64, 3, 3)

	const n = 100
	for i := uint32(0); i < n; i++ {
		require.True(t, tree.Insert(k(i), common.Rid{PageID: common.PageID(i)}))
	}
	require.Greater(t, tree.Height(), 1, "enough inserts with a tiny fanout must grow the tree beyond one level")
	require.NoError(t, tree.Check())

	for i := uint32(0); i < n; i++ {
		_, found := tree.Get(k(i))
		require.True(t, found, "key %d must survive the splits", i)
	}
}

func TestBTree_IteratorScansInOrder(t *testing.T) {
	tree := newTestTree(t, 32, 4, 4)

	inserted := []uint32{5, 1, 9, 3, 7, 2, 8, 4, 6, 0}
	for _, v := range inserted {
		require.True(t, tree.Insert(k(v), common.Rid{PageID: common.PageID(v)}))
	}

	it := tree.First()
	defer it.Close()

	var got []uint32
	for it.Valid() {
		got = append(got, binary.BigEndian.Uint32(it.Key()))
		it.Next()
	}
	require.Equal(t, []uint32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestBTree_SeekStartsAtOrAfterKey(t *testing.T) {
	tree := newTestTree(t, 32, 4, 4)
	for _, v := range []uint32{0, 2, 4, 6, 8} {
		require.True(t, tree.Insert(k(v), common.Rid{PageID: common.PageID(v)}))
	}

	it := tree.Seek(k(3))
	defer it.Close()
	require.True(t, it.Valid())
	require.Equal(t, uint32(4), binary.BigEndian.Uint32(it.Key()))
}

func TestBTree_RemoveThenGetFails(t *testing.T) {
	tree := newTestTree(t, 32, 4, 4)
	for i := uint32(0); i < 10; i++ {
		require.True(t, tree.Insert(k(i), common.Rid{PageID: common.PageID(i)}))
	}

	require.True(t, tree.Remove(k(5)))
	_, found := tree.Get(k(5))
	require.False(t, found)

	for i := uint32(0); i < 10; i++ {
		if i == 5 {
			continue
		}
		_, found := tree.Get(k(i))
		require.True(t, found)
	}
}

func TestBTree_RemoveMissingKeyReturnsFalse(t *testing.T) {
	tree := newTestTree(t, 32, 4, 4)
	require.True(t, tree.Insert(k(1), common.Rid{PageID: 1}))
	require.False(t, tree.Remove(k(2)))
}

func TestBTree_RemoveAllKeysLeavesEmptyTree(t *testing.T) {
	tree := newTestTree(t, 64, 3, 3)
	const n = 40
	for i := uint32(0); i < n; i++ {
		require.True(t, tree.Insert(k(i), common.Rid{PageID: common.PageID(i)}))
	}
	for i := uint32(0); i < n; i++ {
		require.True(t, tree.Remove(k(i)), "remove of key %d should succeed", i)
	}
	for i := uint32(0); i < n; i++ {
		_, found := tree.Get(k(i))
		require.False(t, found)
	}
}
