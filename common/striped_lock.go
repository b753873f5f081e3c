package common

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// StripedLock is a fixed-size array of mutexes, one of which a given key
// hashes to. Unlike KeyMutex, which grows a sync.Map entry per distinct key
// and garbage collects it later, StripedLock uses constant memory: callers
// pick a stripe count once and live with the (bounded, tunable) chance that
// two different keys share a stripe. It is meant for hot, short critical
// sections keyed by an ever-growing id space (page ids), where KeyMutex's
// per-key bookkeeping would be pure overhead.
type StripedLock struct {
	stripes []sync.Mutex
}

func NewStripedLock(stripeCount int) *StripedLock {
	if stripeCount <= 0 {
		panic("common: StripedLock requires a positive stripe count")
	}
	return &StripedLock{stripes: make([]sync.Mutex, stripeCount)}
}

func (s *StripedLock) stripeFor(key uint64) *sync.Mutex {
	h := xxhash.Sum64(uint64Bytes(key))
	return &s.stripes[h%uint64(len(s.stripes))]
}

// Lock acquires the stripe for key and returns a releaser. The caller must
// call it exactly once.
func (s *StripedLock) Lock(key uint64) func() {
	m := s.stripeFor(key)
	m.Lock()
	return m.Unlock
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
	return b
}
