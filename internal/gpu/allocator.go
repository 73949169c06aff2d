package gpu

import (
	"errors"
	"fmt"
	"sync"
)

// block is a single allocation owned by a cachingAllocator.
type block[P any] struct {
	ptr  P
	size uint64
}

// cachingAllocator keeps freed blocks in a per-size cache so that repeated
// allocations of the same shape do not go back to the device. It tracks
// allocated (live) and reserved (live + cached) bytes.
type cachingAllocator[P any] struct {
	mu     sync.Mutex
	malloc func(size uint64) (P, error)
	free   func(ptr P) error

	cache     map[uint64][]*block[P]
	allocated uint64
	reserved  uint64
}

func newCachingAllocator[P any](malloc func(uint64) (P, error), free func(P) error) *cachingAllocator[P] {
	return &cachingAllocator[P]{
		malloc: malloc,
		free:   free,
		cache:  make(map[uint64][]*block[P]),
	}
}

func (a *cachingAllocator[P]) alloc(size uint64) (*block[P], error) {
	if size == 0 {
		return nil, fmt.Errorf("allocation of zero bytes")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if cached := a.cache[size]; len(cached) > 0 {
		b := cached[len(cached)-1]
		a.cache[size] = cached[:len(cached)-1]
		a.allocated += size
		return b, nil
	}

	ptr, err := a.malloc(size)
	if err != nil {
		return nil, fmt.Errorf("allocate %d bytes: %w", size, err)
	}
	a.reserved += size
	a.allocated += size
	return &block[P]{ptr: ptr, size: size}, nil
}

// release moves b into the cache. The device memory stays reserved until
// emptyCache is called.
func (a *cachingAllocator[P]) release(b *block[P]) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.allocated -= b.size
	a.cache[b.size] = append(a.cache[b.size], b)
}

// emptyCache frees every cached block.
func (a *cachingAllocator[P]) emptyCache() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for size, blocks := range a.cache {
		for _, b := range blocks {
			if err := a.free(b.ptr); err != nil {
				errs = append(errs, err)
				continue
			}
			a.reserved -= b.size
		}
		delete(a.cache, size)
	}
	return errors.Join(errs...)
}

func (a *cachingAllocator[P]) stats() (allocated, reserved uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocated, a.reserved
}
