package pyramid

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MemoryLimitExceededError is returned when a scratch buffer would exceed
// the pool's memory limit.
type MemoryLimitExceededError struct {
	Requested int64
	Current   int64
	Limit     int64
}

func (e *MemoryLimitExceededError) Error() string {
	return fmt.Sprintf("pyramid: scratch memory limit exceeded (requested %d, in use %d, limit %d)",
		e.Requested, e.Current, e.Limit)
}

// BufferPool recycles tile and scratch buffers. Buffers are bucketed by
// size; requests larger than the biggest bucket are allocated directly.
type BufferPool struct {
	pools       []*sync.Pool
	memoryUsed  atomic.Int64
	memoryLimit atomic.Int64 // 0 = unlimited
	allocCount  atomic.Int64
	hitCount    atomic.Int64
	missCount   atomic.Int64
}

// bucketSizes cover one 128x128 BGRA tile up to a 4096x4096 BGRA region.
var bucketSizes = []int{
	64 << 10,
	256 << 10,
	1 << 20,
	4 << 20,
	16 << 20,
	64 << 20,
}

// NewBufferPool creates a pool. A limit of 0 disables the memory limit.
func NewBufferPool(limit int64) *BufferPool {
	p := &BufferPool{pools: make([]*sync.Pool, len(bucketSizes))}
	p.memoryLimit.Store(limit)
	for i := range bucketSizes {
		p.pools[i] = &sync.Pool{}
	}
	return p
}

// SetMemoryLimit sets the limit and returns the previous one.
func (p *BufferPool) SetMemoryLimit(limit int64) int64 {
	return p.memoryLimit.Swap(limit)
}

// MemoryUsed returns the bytes currently handed out, tracked only while a
// limit is set.
func (p *BufferPool) MemoryUsed() int64 {
	return p.memoryUsed.Load()
}

// Stats returns the number of requests, pool hits and pool misses.
func (p *BufferPool) Stats() (allocs, hits, misses int64) {
	return p.allocCount.Load(), p.hitCount.Load(), p.missCount.Load()
}

func bucketIndex(size int) int {
	for i, s := range bucketSizes {
		if size <= s {
			return i
		}
	}
	return -1
}

// Get returns a buffer of length size with unspecified contents.
func (p *BufferPool) Get(size int) ([]byte, error) {
	p.allocCount.Add(1)

	idx := bucketIndex(size)
	charge := int64(size)
	if idx >= 0 {
		charge = int64(bucketSizes[idx])
	}
	if limit := p.memoryLimit.Load(); limit > 0 {
		current := p.memoryUsed.Add(charge)
		if current > limit {
			p.memoryUsed.Add(-charge)
			return nil, &MemoryLimitExceededError{Requested: int64(size), Current: current - charge, Limit: limit}
		}
	}

	if idx < 0 {
		p.missCount.Add(1)
		return make([]byte, size), nil
	}
	if v := p.pools[idx].Get(); v != nil {
		p.hitCount.Add(1)
		buf := *(v.(*[]byte))
		return buf[:size], nil
	}
	p.missCount.Add(1)
	return make([]byte, size, bucketSizes[idx]), nil
}

// Put returns a buffer obtained from Get.
func (p *BufferPool) Put(buf []byte) {
	if buf == nil {
		return
	}
	c := cap(buf)
	idx := bucketIndex(c)

	if p.memoryLimit.Load() > 0 {
		charge := int64(c)
		if idx >= 0 {
			charge = int64(bucketSizes[idx])
		}
		p.memoryUsed.Add(-charge)
	}

	// Only exact bucket capacities are recycled
	if idx >= 0 && c == bucketSizes[idx] {
		buf = buf[:c]
		p.pools[idx].Put(&buf)
	}
}
