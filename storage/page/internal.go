package page

import (
	"encoding/binary"

	"diskcore/common"
)

const childSize = 4 // page ids fit in int32 on the wire

// InternalView is the accessor for an internal page: a 12-byte common
// header followed by a packed array where slot 0 holds only a child
// pointer (its key field is reserved/unused) and slots 1..size hold
// (key, child) pairs with keys strictly ascending. The child to follow for
// key k is slot UpperBound(k)-1.
type InternalView struct {
	data     []byte
	keyWidth int
}

func NewInternalView(data []byte, keyWidth int) InternalView {
	return InternalView{data: data, keyWidth: keyWidth}
}

// InitInternal creates a fresh internal page with a single child pointer
// (slot 0) and no keys.
func InitInternal(data []byte, keyWidth int, maxSize int, firstChild common.PageID) InternalView {
	iv := InternalView{data: data, keyWidth: keyWidth}
	writeType(data, InternalType)
	writeSize(data, 0)
	writeMaxSize(data, maxSize)
	iv.SetChildAt(0, firstChild)
	return iv
}

func (iv InternalView) entrySize() int { return iv.keyWidth + childSize }

func (iv InternalView) Capacity() int {
	return (common.PageSize-commonHeaderSize)/iv.entrySize() - 1
}

func (iv InternalView) Type() Type       { return readType(iv.data) }
func (iv InternalView) Size() int        { return readSize(iv.data) }
func (iv InternalView) setSize(n int)    { writeSize(iv.data, n) }
func (iv InternalView) MaxSize() int     { return readMaxSize(iv.data) }
func (iv InternalView) SetMaxSize(n int) { writeMaxSize(iv.data, n) }

func (iv InternalView) offsetOf(i int) int { return commonHeaderSize + i*iv.entrySize() }

func (iv InternalView) KeyAt(i int) common.Key {
	if i == 0 {
		panic("page: internal slot 0 has no key")
	}
	off := iv.offsetOf(i)
	k := make(common.Key, iv.keyWidth)
	copy(k, iv.data[off:off+iv.keyWidth])
	return k
}

func (iv InternalView) setKeyAt(i int, key common.Key) {
	off := iv.offsetOf(i)
	copy(iv.data[off:off+iv.keyWidth], key)
}

// SetKeyAt overwrites the separator key at slot i (1 <= i <= size) in place,
// used to repair a parent's separator after borrowing an entry from a
// sibling during deletion, without touching the child array.
func (iv InternalView) SetKeyAt(i int, key common.Key) {
	iv.setKeyAt(i, key)
}

func (iv InternalView) ChildAt(i int) common.PageID {
	off := iv.offsetOf(i) + iv.keyWidth
	return common.PageID(int32(binary.LittleEndian.Uint32(iv.data[off : off+4])))
}

func (iv InternalView) SetChildAt(i int, child common.PageID) {
	off := iv.offsetOf(i) + iv.keyWidth
	binary.LittleEndian.PutUint32(iv.data[off:off+4], uint32(int32(child)))
}

// UpperBound returns the first index i in [1, size] with KeyAt(i) > key, or
// size+1 if none. The child to descend into for key is ChildAt(UpperBound(key)-1).
func (iv InternalView) UpperBound(key common.Key) int {
	lo, hi := 1, iv.Size()+1
	for lo < hi {
		mid := (lo + hi) / 2
		if iv.KeyAt(mid).Compare(key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// ChildFor is the traversal helper: which child pointer to follow for key.
func (iv InternalView) ChildFor(key common.Key) common.PageID {
	return iv.ChildAt(iv.UpperBound(key) - 1)
}

func (iv InternalView) copyEntry(src, dst int) {
	so, do := iv.offsetOf(src), iv.offsetOf(dst)
	copy(iv.data[do:do+iv.entrySize()], iv.data[so:so+iv.entrySize()])
}

// InsertAt inserts (key, child) at slot i (1 <= i <= size+1), shifting the
// tail right. Caller must ensure room beforehand.
func (iv InternalView) InsertAt(i int, key common.Key, child common.PageID) {
	n := iv.Size()
	for j := n; j >= i; j-- {
		iv.copyEntry(j, j+1)
	}
	iv.setKeyAt(i, key)
	iv.SetChildAt(i, child)
	iv.setSize(n + 1)
}

// DeleteAt removes slot i (1 <= i <= size), shifting the tail left.
func (iv InternalView) DeleteAt(i int) {
	n := iv.Size()
	for j := i; j < n; j++ {
		iv.copyEntry(j+1, j)
	}
	iv.setSize(n - 1)
}

// MoveRangeTo relocates slots [start, end) (1-indexed within the key range,
// start may be 0 to also move the lone child-only slot when collapsing a
// page entirely) into dest starting at destStart, shifting dest's tail and
// updating both pages' sizes. It is the sole primitive splits, merges, and
// redistribution use on internal pages.
func (iv InternalView) MoveRangeTo(dest InternalView, start, end, destStart int) {
	count := end - start
	if count <= 0 {
		return
	}

	destSize := dest.Size()
	for j := destSize; j >= destStart; j-- {
		dest.copyEntry(j, j+count)
	}
	for k := 0; k < count; k++ {
		child := iv.ChildAt(start + k)
		dest.SetChildAt(destStart+k, child)
		if destStart+k != 0 {
			dest.setKeyAt(destStart+k, iv.rawKeyAt(start+k))
		}
	}
	dest.setSize(destSize + count)

	n := iv.Size()
	for j := end; j <= n; j++ {
		iv.copyEntry(j, j-count)
	}
	iv.setSize(n - count)
}

// rawKeyAt reads slot i's key bytes even for i==0 (unused/reserved), needed
// internally by MoveRangeTo when relocating a run that starts at slot 0.
func (iv InternalView) rawKeyAt(i int) common.Key {
	off := iv.offsetOf(i)
	k := make(common.Key, iv.keyWidth)
	copy(k, iv.data[off:off+iv.keyWidth])
	return k
}
