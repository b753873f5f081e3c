package page

import (
	"encoding/binary"

	"diskcore/common"
)

const leafHeaderSize = commonHeaderSize + 4 // + next_page_id
const ridSize = 8                            // packed as 4-byte PageID + 4-byte slot

// LeafView is the accessor for a leaf page: (page_type, size, max_size,
// next_page_id) header followed by a packed array of (key[W], rid) entries
// in strictly ascending key order.
type LeafView struct {
	data     []byte
	keyWidth int
}

func NewLeafView(data []byte, keyWidth int) LeafView {
	return LeafView{data: data, keyWidth: keyWidth}
}

func InitLeaf(data []byte, keyWidth int, maxSize int) LeafView {
	l := LeafView{data: data, keyWidth: keyWidth}
	writeType(data, LeafType)
	writeSize(data, 0)
	writeMaxSize(data, maxSize)
	l.SetNextPageID(common.InvalidPageID)
	return l
}

func (l LeafView) entrySize() int { return l.keyWidth + ridSize }

// Capacity returns how many entries physically fit given the page size and
// key width; MaxSize (a configured slot-count parameter) is normally <=
// Capacity.
func (l LeafView) Capacity() int {
	return (common.PageSize - leafHeaderSize) / l.entrySize()
}

func (l LeafView) Type() Type       { return readType(l.data) }
func (l LeafView) Size() int        { return readSize(l.data) }
func (l LeafView) setSize(n int)    { writeSize(l.data, n) }
func (l LeafView) MaxSize() int     { return readMaxSize(l.data) }
func (l LeafView) SetMaxSize(n int) { writeMaxSize(l.data, n) }

func (l LeafView) NextPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(l.data[12:16])))
}

func (l LeafView) SetNextPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(l.data[12:16], uint32(int32(id)))
}

func (l LeafView) offsetOf(i int) int { return leafHeaderSize + i*l.entrySize() }

func (l LeafView) KeyAt(i int) common.Key {
	off := l.offsetOf(i)
	k := make(common.Key, l.keyWidth)
	copy(k, l.data[off:off+l.keyWidth])
	return k
}

func (l LeafView) RidAt(i int) common.Rid {
	off := l.offsetOf(i) + l.keyWidth
	pid := common.PageID(int32(binary.LittleEndian.Uint32(l.data[off : off+4])))
	slot := binary.LittleEndian.Uint32(l.data[off+4 : off+8])
	return common.Rid{PageID: pid, Slot: slot}
}

func (l LeafView) setEntryAt(i int, key common.Key, rid common.Rid) {
	off := l.offsetOf(i)
	copy(l.data[off:off+l.keyWidth], key)
	binary.LittleEndian.PutUint32(l.data[off+l.keyWidth:off+l.keyWidth+4], uint32(int32(rid.PageID)))
	binary.LittleEndian.PutUint32(l.data[off+l.keyWidth+4:off+l.keyWidth+8], rid.Slot)
}

// LowerBound returns the first index i with KeyAt(i) >= key (binary search).
func (l LeafView) LowerBound(key common.Key) int {
	lo, hi := 0, l.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if l.KeyAt(mid).Compare(key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Find returns the index of key and true, or (-1, false) if absent.
func (l LeafView) Find(key common.Key) (int, bool) {
	i := l.LowerBound(key)
	if i < l.Size() && l.KeyAt(i).Equal(key) {
		return i, true
	}
	return -1, false
}

// InsertAt shifts entries [i, size) right by one slot and writes (key, rid)
// at i. Caller must ensure Size() < MaxSize() (or Capacity()) beforehand.
func (l LeafView) InsertAt(i int, key common.Key, rid common.Rid) {
	n := l.Size()
	for j := n; j > i; j-- {
		l.copyEntry(j-1, j)
	}
	l.setEntryAt(i, key, rid)
	l.setSize(n + 1)
}

func (l LeafView) copyEntry(src, dst int) {
	so, do := l.offsetOf(src), l.offsetOf(dst)
	copy(l.data[do:do+l.entrySize()], l.data[so:so+l.entrySize()])
}

// DeleteAt removes the entry at i, shifting the tail left.
func (l LeafView) DeleteAt(i int) {
	n := l.Size()
	for j := i; j < n-1; j++ {
		l.copyEntry(j+1, j)
	}
	l.setSize(n - 1)
}

// MoveRangeTo is the sole primitive splits, merges, and redistribution use to
// relocate slots between two leaf pages, shifting dest's tail as needed and
// updating both pages' sizes.
func (l LeafView) MoveRangeTo(dest LeafView, start, end, destStart int) {
	count := end - start
	if count <= 0 {
		return
	}

	destSize := dest.Size()
	// make room in dest for `count` entries starting at destStart
	for j := destSize - 1; j >= destStart; j-- {
		dest.copyEntry(j, j+count)
	}
	for k := 0; k < count; k++ {
		key := l.KeyAt(start + k)
		rid := l.RidAt(start + k)
		dest.setEntryAt(destStart+k, key, rid)
	}
	dest.setSize(destSize + count)

	// compact source: remove [start, end)
	n := l.Size()
	for j := end; j < n; j++ {
		l.copyEntry(j, j-count)
	}
	l.setSize(n - count)
}
