package filter

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomFilter guards the resolution path against lookups for codes that
// were never issued. A negative answer is authoritative; a positive answer
// may be a false positive and falls through to cache and store.
type BloomFilter struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
}

// New creates a Bloom filter sized for the given capacity and false
// positive rate.
func New(capacity uint, fpRate float64) *BloomFilter {
	return &BloomFilter{
		filter: bloom.NewWithEstimates(capacity, fpRate),
	}
}

// Add registers a short code
func (bf *BloomFilter) Add(code string) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	bf.filter.AddString(code)
}

// AddBatch registers multiple short codes
func (bf *BloomFilter) AddBatch(codes []string) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	for _, code := range codes {
		bf.filter.AddString(code)
	}
}

// Test reports whether a short code might have been issued. False means
// definitely not.
func (bf *BloomFilter) Test(code string) bool {
	bf.mu.RLock()
	defer bf.mu.RUnlock()
	return bf.filter.TestString(code)
}
