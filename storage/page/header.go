package page

import (
	"encoding/binary"

	"diskcore/common"
)

// HeaderView is the accessor for the B+ tree's header page: root_page_id and
// tree_depth only, no common 12-byte prefix (the header page is never
// dispatched by type tag — the tree always knows its own header's page id).
type HeaderView struct {
	data []byte
}

func NewHeaderView(data []byte) HeaderView { return HeaderView{data: data} }

func InitHeader(data []byte, root common.PageID) {
	h := HeaderView{data: data}
	h.SetRootPageID(root)
	h.SetTreeDepth(1)
}

func (h HeaderView) RootPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(h.data[0:4])))
}

func (h HeaderView) SetRootPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(h.data[0:4], uint32(int32(id)))
}

func (h HeaderView) TreeDepth() int {
	return int(int32(binary.LittleEndian.Uint32(h.data[4:8])))
}

func (h HeaderView) SetTreeDepth(d int) {
	binary.LittleEndian.PutUint32(h.data[4:8], uint32(int32(d)))
}

func (h HeaderView) IncrDepth() { h.SetTreeDepth(h.TreeDepth() + 1) }
func (h HeaderView) DecrDepth() { h.SetTreeDepth(h.TreeDepth() - 1) }
