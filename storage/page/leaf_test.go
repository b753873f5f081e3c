package page

import (
	"testing"

	"github.com/stretchr/testify/require"

	"diskcore/common"
)

func key(w int, b byte) common.Key {
	k := make(common.Key, w)
	k[w-1] = b
	return k
}

func TestLeafView_InsertMaintainsOrder(t *testing.T) {
	data := make([]byte, common.PageSize)
	lv := InitLeaf(data, 4, 10)

	lv.InsertAt(lv.LowerBound(key(4, 5)), key(4, 5), common.Rid{PageID: 1, Slot: 0})
	lv.InsertAt(lv.LowerBound(key(4, 1)), key(4, 1), common.Rid{PageID: 1, Slot: 1})
	lv.InsertAt(lv.LowerBound(key(4, 3)), key(4, 3), common.Rid{PageID: 1, Slot: 2})

	require.Equal(t, 3, lv.Size())
	require.Equal(t, key(4, 1), lv.KeyAt(0))
	require.Equal(t, key(4, 3), lv.KeyAt(1))
	require.Equal(t, key(4, 5), lv.KeyAt(2))
}

func TestLeafView_FindAndDelete(t *testing.T) {
	data := make([]byte, common.PageSize)
	lv := InitLeaf(data, 4, 10)
	lv.InsertAt(0, key(4, 1), common.Rid{PageID: 9, Slot: 0})
	lv.InsertAt(1, key(4, 2), common.Rid{PageID: 9, Slot: 1})

	idx, found := lv.Find(key(4, 2))
	require.True(t, found)
	require.Equal(t, 1, idx)

	_, found = lv.Find(key(4, 3))
	require.False(t, found)

	lv.DeleteAt(0)
	require.Equal(t, 1, lv.Size())
	require.Equal(t, key(4, 2), lv.KeyAt(0))
}

func TestLeafView_MoveRangeToSplitsCorrectly(t *testing.T) {
	src := make([]byte, common.PageSize)
	dst := make([]byte, common.PageSize)
	lv := InitLeaf(src, 4, 10)
	dv := InitLeaf(dst, 4, 10)

	for i := byte(0); i < 6; i++ {
		lv.InsertAt(int(i), key(4, i), common.Rid{PageID: 1, Slot: uint32(i)})
	}

	lv.MoveRangeTo(dv, 3, 6, 0)

	require.Equal(t, 3, lv.Size())
	require.Equal(t, 3, dv.Size())
	require.Equal(t, key(4, 0), lv.KeyAt(0))
	require.Equal(t, key(4, 2), lv.KeyAt(2))
	require.Equal(t, key(4, 3), dv.KeyAt(0))
	require.Equal(t, key(4, 5), dv.KeyAt(2))
}

func TestLeafView_NextPageIDRoundTrips(t *testing.T) {
	data := make([]byte, common.PageSize)
	lv := InitLeaf(data, 4, 10)
	require.Equal(t, common.InvalidPageID, lv.NextPageID())

	lv.SetNextPageID(common.PageID(7))
	require.Equal(t, common.PageID(7), lv.NextPageID())
}
