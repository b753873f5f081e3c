package disk

import (
	"testing"

	"github.com/stretchr/testify/require"

	"diskcore/common"
)

func TestMemoryManager_ReadUnwrittenPageErrors(t *testing.T) {
	m := NewMemoryManager()
	buf := make([]byte, common.PageSize)
	require.Error(t, m.ReadPage(common.PageID(42), buf))
}

func TestMemoryManager_AllocateReusesDeallocated(t *testing.T) {
	m := NewMemoryManager()
	id := m.AllocatePageID()
	m.DeallocatePageID(id)
	require.Equal(t, id, m.AllocatePageID())
}

func TestMemoryManager_WriteReadRoundTrip(t *testing.T) {
	m := NewMemoryManager()
	id := m.AllocatePageID()

	buf := make([]byte, common.PageSize)
	buf[10] = 0x7F
	require.NoError(t, m.WritePage(id, buf))

	out := make([]byte, common.PageSize)
	require.NoError(t, m.ReadPage(id, out))
	require.Equal(t, buf, out)
}
