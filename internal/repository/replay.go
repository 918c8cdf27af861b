package repository

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	// Sized for a year of traffic at modest volume. The filter only saves a
	// SELECT, so the false positive rate just needs to be small.
	replayFilterCapacity = 1_000_000
	replayFilterFPRate   = 0.01
)

// requestFilter is a concurrency-safe bloom filter over client request ids.
// A negative answer means the id was never added through this process; a
// positive answer must be confirmed against the ledger table.
type requestFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

func newRequestFilter() *requestFilter {
	return &requestFilter{
		filter: bloom.NewWithEstimates(replayFilterCapacity, replayFilterFPRate),
	}
}

func (f *requestFilter) Add(clientRequestID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.AddString(clientRequestID)
}

func (f *requestFilter) MayContain(clientRequestID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(clientRequestID)
}
