package common

// PanicIfErr converts an unexpected error from an operation this codebase
// treats as infallible (header writes, free-list bookkeeping) into a panic
// rather than threading it through call sites that have no meaningful
// recovery to offer.
func PanicIfErr(err error) {
	if err != nil {
		panic(err)
	}
}

// ContainsTxn tells whether ids contains id, used by the lock manager to
// check whether a txn already has a request (granted or waiting) on a lock
// request queue without pulling in a map for what is usually a handful of
// entries.
func ContainsTxn(ids []int64, id int64) bool {
	for _, n := range ids {
		if n == id {
			return true
		}
	}
	return false
}
