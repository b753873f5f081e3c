// Package page holds pure byte-level accessors for the B+ tree's on-disk
// page layouts. Every accessor operates directly on the byte slice a buffer
// pool guard's Data() exposes; nothing in this package touches the buffer
// pool, latches, or pins. Grounded on disk/pages' "view over a byte buffer"
// style (RawPage.GetData / PersistentNodeHeader read/write helpers), adapted
// to the fixed-width key layouts §6 of the spec mandates instead of the
// teacher's variable-length slotted pages.
package page

import "encoding/binary"

// Type tags the common 12-byte header so a reader can dispatch to the right
// typed view without a separate out-of-band record.
type Type int32

const (
	InvalidType Type = 0
	LeafType    Type = 1
	InternalType Type = 2
)

// commonHeaderSize is the (page_type, size, max_size) prefix shared by leaf
// and internal pages.
const commonHeaderSize = 12

func readType(data []byte) Type {
	return Type(int32(binary.LittleEndian.Uint32(data[0:4])))
}

func writeType(data []byte, t Type) {
	binary.LittleEndian.PutUint32(data[0:4], uint32(int32(t)))
}

func readSize(data []byte) int {
	return int(int32(binary.LittleEndian.Uint32(data[4:8])))
}

func writeSize(data []byte, n int) {
	binary.LittleEndian.PutUint32(data[4:8], uint32(int32(n)))
}

func readMaxSize(data []byte) int {
	return int(int32(binary.LittleEndian.Uint32(data[8:12])))
}

func writeMaxSize(data []byte, n int) {
	binary.LittleEndian.PutUint32(data[8:12], uint32(int32(n)))
}

// PeekType reads just the type tag, letting a caller holding a bare guard
// decide whether to build a LeafView or an InternalView over it.
func PeekType(data []byte) Type {
	return readType(data)
}
