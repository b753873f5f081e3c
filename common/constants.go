package common

// PageSize is the fixed size, in bytes, of every page the disk manager reads
// and writes and every frame the buffer pool holds. It is a build-time
// constant; variable-length pages are out of scope.
const PageSize = 4096

// InvalidPageID is the sentinel PageID meaning "no page" (an empty child
// pointer slot, an unset next-leaf link, an unset root).
const InvalidPageID PageID = -1

// InvalidFrameID is the sentinel meaning "no frame currently holds this page".
const InvalidFrameID = -1
