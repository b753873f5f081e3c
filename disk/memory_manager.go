package disk

import (
	"fmt"
	"sync"

	"diskcore/common"
)

// MemoryManager is an in-memory disk.Manager used by tests that need a fast,
// deterministic disk without touching the filesystem. It has no free list
// compaction beyond a plain slice of reusable ids, since tests do not care
// about fragmentation.
type MemoryManager struct {
	mu    sync.Mutex
	pages map[common.PageID][]byte
	free  []common.PageID
	next  common.PageID
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{pages: map[common.PageID][]byte{}}
}

func (m *MemoryManager) ReadPage(id common.PageID, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(buf) != common.PageSize {
		panic(fmt.Sprintf("disk: ReadPage buffer must be %d bytes, got %d", common.PageSize, len(buf)))
	}

	data, ok := m.pages[id]
	if !ok {
		return fmt.Errorf("disk: page %d was never written", id)
	}
	copy(buf, data)
	return nil
}

func (m *MemoryManager) WritePage(id common.PageID, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(buf) != common.PageSize {
		panic(fmt.Sprintf("disk: WritePage buffer must be %d bytes, got %d", common.PageSize, len(buf)))
	}

	dst := make([]byte, common.PageSize)
	copy(dst, buf)
	m.pages[id] = dst
	return nil
}

func (m *MemoryManager) AllocatePageID() common.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.free); n > 0 {
		id := m.free[n-1]
		m.free = m.free[:n-1]
		return id
	}

	id := m.next
	m.next++
	return id
}

func (m *MemoryManager) DeallocatePageID(id common.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pages, id)
	m.free = append(m.free, id)
}

func (m *MemoryManager) Shutdown() error { return nil }

var _ Manager = (*MemoryManager)(nil)
var _ Manager = (*FileManager)(nil)
