package page

import (
	"testing"

	"github.com/stretchr/testify/require"

	"diskcore/common"
)

func TestInternalView_ChildForRoutesByKey(t *testing.T) {
	data := make([]byte, common.PageSize)
	iv := InitInternal(data, 4, 10, common.PageID(100))

	iv.InsertAt(1, key(4, 10), common.PageID(101))
	iv.InsertAt(2, key(4, 20), common.PageID(102))

	require.Equal(t, common.PageID(100), iv.ChildFor(key(4, 5)))
	require.Equal(t, common.PageID(101), iv.ChildFor(key(4, 10)))
	require.Equal(t, common.PageID(101), iv.ChildFor(key(4, 15)))
	require.Equal(t, common.PageID(102), iv.ChildFor(key(4, 20)))
	require.Equal(t, common.PageID(102), iv.ChildFor(key(4, 99)))
}

func TestInternalView_KeyAtZeroPanics(t *testing.T) {
	data := make([]byte, common.PageSize)
	iv := InitInternal(data, 4, 10, common.PageID(1))
	require.Panics(t, func() { iv.KeyAt(0) })
}

func TestInternalView_DeleteAtShiftsTail(t *testing.T) {
	data := make([]byte, common.PageSize)
	iv := InitInternal(data, 4, 10, common.PageID(0))
	iv.InsertAt(1, key(4, 10), common.PageID(1))
	iv.InsertAt(2, key(4, 20), common.PageID(2))
	iv.InsertAt(3, key(4, 30), common.PageID(3))

	iv.DeleteAt(2)

	require.Equal(t, 2, iv.Size())
	require.Equal(t, key(4, 10), iv.KeyAt(1))
	require.Equal(t, key(4, 30), iv.KeyAt(2))
	require.Equal(t, common.PageID(3), iv.ChildAt(2))
}

func TestInternalView_MoveRangeToPreservesChildren(t *testing.T) {
	src := make([]byte, common.PageSize)
	dst := make([]byte, common.PageSize)
	iv := InitInternal(src, 4, 10, common.PageID(0))
	dv := InitInternal(dst, 4, 10, common.PageID(0))

	for i := 1; i <= 4; i++ {
		iv.InsertAt(i, key(4, byte(i*10)), common.PageID(i))
	}

	// relocate slots [3,5) i.e. key3/child3 and key4/child4 to dv starting at 1
	iv.MoveRangeTo(dv, 3, 5, 1)

	require.Equal(t, 2, iv.Size())
	require.Equal(t, 2, dv.Size())
	require.Equal(t, common.PageID(3), dv.ChildAt(1))
	require.Equal(t, common.PageID(4), dv.ChildAt(2))
	require.Equal(t, key(4, 30), dv.KeyAt(1))
	require.Equal(t, key(4, 40), dv.KeyAt(2))
}
