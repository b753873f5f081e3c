package disk

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"diskcore/common"
)

// headerPageID is reserved: it never holds tree/table data, only the free
// list head/tail, the allocator's high-water mark and the database id. This
// mirrors the teacher's disk.Manager, which reserves page 0 the same way.
const headerPageID common.PageID = 0

// FileManager is a file-backed disk.Manager. One coarse mutex protects the
// header and the allocator. ReadPage/WritePage additionally take a per-page
// stripe from pageLocks: the buffer pool's frame latches already keep two
// callers from touching the same resident page concurrently, but a
// write-back racing an explicit Flush of the same evicted page id (or a
// free-list link write racing a reader of that same now-freed page) is not
// covered by any frame latch, since neither side holds a frame guard at that
// point. Grounded on common.KeyMutex, the teacher's own tool for exactly
// this "serialize by key, not globally" shape.
type FileManager struct {
	mu         sync.Mutex
	pageLocks  common.KeyMutex[common.PageID]
	file       *os.File
	dbID       uuid.UUID
	lastPageID common.PageID
	header     fileHeader
}

type fileHeader struct {
	freeListHead common.PageID
	freeListTail common.PageID
	lastPageID   common.PageID
	dbID         uuid.UUID
}

func NewFileManager(path string) (*FileManager, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", path, err)
	}

	m := &FileManager{file: f}

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("disk: stat %s: %w", path, err)
	}

	if stat.Size() == 0 {
		m.dbID = uuid.New()
		m.header = fileHeader{
			freeListHead: common.InvalidPageID,
			freeListTail: common.InvalidPageID,
			lastPageID:   headerPageID,
			dbID:         m.dbID,
		}
		if err := m.writeHeader(); err != nil {
			return nil, err
		}
	} else {
		if err := m.readHeader(); err != nil {
			return nil, err
		}
		m.dbID = m.header.dbID
	}

	m.lastPageID = m.header.lastPageID
	return m, nil
}

func (m *FileManager) ReadPage(id common.PageID, buf []byte) error {
	if len(buf) != common.PageSize {
		panic(fmt.Sprintf("disk: ReadPage buffer must be %d bytes, got %d", common.PageSize, len(buf)))
	}

	release := m.pageLocks.Lock(id)
	defer release()

	_, err := m.file.ReadAt(buf, int64(id)*int64(common.PageSize))
	if err != nil {
		return fmt.Errorf("disk: read page %d: %w", id, err)
	}
	return nil
}

func (m *FileManager) WritePage(id common.PageID, buf []byte) error {
	if len(buf) != common.PageSize {
		panic(fmt.Sprintf("disk: WritePage buffer must be %d bytes, got %d", common.PageSize, len(buf)))
	}

	release := m.pageLocks.Lock(id)
	defer release()

	if _, err := m.file.WriteAt(buf, int64(id)*int64(common.PageSize)); err != nil {
		return fmt.Errorf("disk: write page %d: %w", id, err)
	}
	return syncFile(m.file)
}

func (m *FileManager) AllocatePageID() common.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.popFreeList(); ok {
		return id
	}

	m.lastPageID++
	m.header.lastPageID = m.lastPageID
	common.PanicIfErr(m.writeHeader())
	return m.lastPageID
}

// DeallocatePageID appends id to the on-disk free list, encoded snappy-
// compressed the way the write-ahead segments elsewhere in this codebase's
// lineage frame their records. The encoded record fills only the first few
// bytes of the freed page, but the whole page is still written.
func (m *FileManager) DeallocatePageID(id common.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.header.freeListHead == common.InvalidPageID {
		m.header.freeListHead = id
		m.header.freeListTail = id
		common.PanicIfErr(m.writeFreeListLink(id, common.InvalidPageID))
		common.PanicIfErr(m.writeHeader())
		return
	}

	common.PanicIfErr(m.writeFreeListLink(m.header.freeListTail, id))
	common.PanicIfErr(m.writeFreeListLink(id, common.InvalidPageID))
	m.header.freeListTail = id
	common.PanicIfErr(m.writeHeader())
}

func (m *FileManager) popFreeList() (common.PageID, bool) {
	if m.header.freeListHead == common.InvalidPageID {
		return 0, false
	}

	id := m.header.freeListHead
	next, err := m.readFreeListLink(id)
	common.PanicIfErr(err)

	m.header.freeListHead = next
	if m.header.freeListHead == common.InvalidPageID {
		m.header.freeListTail = common.InvalidPageID
	}
	common.PanicIfErr(m.writeHeader())
	return id, true
}

func (m *FileManager) writeFreeListLink(id, next common.PageID) error {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, uint64(next))
	compressed := snappy.Encode(nil, raw)

	page := make([]byte, common.PageSize)
	binary.BigEndian.PutUint32(page, uint32(len(compressed)))
	copy(page[4:], compressed)
	return m.WritePage(id, page)
}

func (m *FileManager) readFreeListLink(id common.PageID) (common.PageID, error) {
	page := make([]byte, common.PageSize)
	if err := m.ReadPage(id, page); err != nil {
		return 0, err
	}

	n := binary.BigEndian.Uint32(page)
	raw, err := snappy.Decode(nil, page[4:4+n])
	if err != nil {
		return 0, fmt.Errorf("disk: corrupt free-list link on page %d: %w", id, err)
	}
	return common.PageID(binary.BigEndian.Uint64(raw)), nil
}

func (m *FileManager) writeHeader() error {
	buf := make([]byte, common.PageSize)
	binary.BigEndian.PutUint64(buf[0:], uint64(m.header.freeListHead))
	binary.BigEndian.PutUint64(buf[8:], uint64(m.header.freeListTail))
	binary.BigEndian.PutUint64(buf[16:], uint64(m.header.lastPageID))
	idBytes, _ := m.header.dbID.MarshalBinary()
	copy(buf[24:], idBytes)

	if _, err := m.file.WriteAt(buf, int64(headerPageID)*int64(common.PageSize)); err != nil {
		return fmt.Errorf("disk: write header: %w", err)
	}
	return syncFile(m.file)
}

func (m *FileManager) readHeader() error {
	buf := make([]byte, common.PageSize)
	if _, err := m.file.ReadAt(buf, int64(headerPageID)*int64(common.PageSize)); err != nil && err != io.EOF {
		return fmt.Errorf("disk: read header: %w", err)
	}

	m.header.freeListHead = common.PageID(binary.BigEndian.Uint64(buf[0:]))
	m.header.freeListTail = common.PageID(binary.BigEndian.Uint64(buf[8:]))
	m.header.lastPageID = common.PageID(binary.BigEndian.Uint64(buf[16:]))
	id, err := uuid.FromBytes(buf[24 : 24+16])
	if err != nil {
		return fmt.Errorf("disk: read header db id: %w", err)
	}
	m.header.dbID = id
	return nil
}

func (m *FileManager) DBID() uuid.UUID { return m.dbID }

func (m *FileManager) Shutdown() error {
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("disk: shutdown sync: %w", err)
	}
	return m.file.Close()
}
