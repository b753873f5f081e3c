package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"diskcore/common"
)

func newTestFileManager(t *testing.T) *FileManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	fm, err := NewFileManager(path)
	require.NoError(t, err)
	t.Cleanup(func() { fm.Shutdown() })
	return fm
}

func TestFileManager_AllocateIsMonotonicPastHeader(t *testing.T) {
	fm := newTestFileManager(t)

	id1 := fm.AllocatePageID()
	id2 := fm.AllocatePageID()
	require.Greater(t, int64(id1), int64(headerPageID))
	require.Equal(t, id1+1, id2)
}

func TestFileManager_ReadWriteRoundTrip(t *testing.T) {
	fm := newTestFileManager(t)
	id := fm.AllocatePageID()

	buf := make([]byte, common.PageSize)
	buf[0], buf[common.PageSize-1] = 0xAB, 0xCD
	require.NoError(t, fm.WritePage(id, buf))

	out := make([]byte, common.PageSize)
	require.NoError(t, fm.ReadPage(id, out))
	require.Equal(t, buf, out)
}

func TestFileManager_ReadPageWrongSizePanics(t *testing.T) {
	fm := newTestFileManager(t)
	require.Panics(t, func() { fm.ReadPage(1, make([]byte, 4)) })
}

func TestFileManager_DeallocateThenAllocateReusesPage(t *testing.T) {
	fm := newTestFileManager(t)
	id := fm.AllocatePageID()
	fm.DeallocatePageID(id)

	reused := fm.AllocatePageID()
	require.Equal(t, id, reused, "a freed page id must be handed back out before growing the file")
}

func TestFileManager_FreeListFIFOAcrossMultiplePages(t *testing.T) {
	fm := newTestFileManager(t)
	a := fm.AllocatePageID()
	b := fm.AllocatePageID()
	fm.DeallocatePageID(a)
	fm.DeallocatePageID(b)

	require.Equal(t, a, fm.AllocatePageID())
	require.Equal(t, b, fm.AllocatePageID())
}

func TestFileManager_HeaderSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	fm1, err := NewFileManager(path)
	require.NoError(t, err)
	id := fm1.AllocatePageID()
	dbID := fm1.DBID()
	require.NoError(t, fm1.Shutdown())

	fm2, err := NewFileManager(path)
	require.NoError(t, err)
	defer fm2.Shutdown()

	require.Equal(t, dbID, fm2.DBID())
	next := fm2.AllocatePageID()
	require.Greater(t, int64(next), int64(id), "allocator high-water mark must persist across reopen")
}
