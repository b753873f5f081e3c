// Package disk is the external disk I/O collaborator the buffer pool fronts.
// It is deliberately thin: byte-addressable page storage keyed by PageID,
// nothing else. File handling details (fsync policy, free-page bookkeeping)
// live here because the spec assumes them provided, not because they are
// part of the buffer pool / B+ tree / lock manager core.
package disk

import "diskcore/common"

// Manager is the interface the buffer pool depends on. Implementations must
// be safe for concurrent use; callers coordinate pin/latch discipline above
// this layer, not here.
type Manager interface {
	// ReadPage fills buf (len(buf) == common.PageSize) with the persisted
	// bytes of id. Returns an error if id was never written or the
	// underlying storage errs; disk.Manager never retries.
	ReadPage(id common.PageID, buf []byte) error

	// WritePage persists buf (len(buf) == common.PageSize) at id,
	// unconditionally overwriting whatever was there.
	WritePage(id common.PageID, buf []byte) error

	// AllocatePageID hands out a fresh page id. It does not write any bytes;
	// the caller is responsible for the first WritePage.
	AllocatePageID() common.PageID

	// DeallocatePageID returns id to the allocator's free list so a later
	// AllocatePageID may reuse it. Deallocating an id that was never
	// allocated, or twice, is a caller bug.
	DeallocatePageID(id common.PageID)

	// Shutdown flushes any buffered metadata and releases the underlying
	// file handle(s). Safe to call once.
	Shutdown() error
}
