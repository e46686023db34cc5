package pyramid

import (
	"errors"
	"testing"
)

func TestBufferPoolGet(t *testing.T) {
	pool := NewBufferPool(0)

	tests := []struct {
		size         int
		expectedSize int
	}{
		{100, 100},
		{64 << 10, 64 << 10},
		{200 << 10, 200 << 10},
		{1 << 20, 1 << 20},
		{64<<20 + 1, 64<<20 + 1}, // Larger than the biggest bucket
	}

	for _, tt := range tests {
		buf, err := pool.Get(tt.size)
		if err != nil {
			t.Fatalf("Get(%d) error = %v", tt.size, err)
		}
		if len(buf) != tt.expectedSize {
			t.Errorf("Get(%d) returned len=%d, want %d", tt.size, len(buf), tt.expectedSize)
		}
		pool.Put(buf)
	}
}

func TestBufferPoolMemoryLimit(t *testing.T) {
	// Two 64K buckets do not fit in 100K
	pool := NewBufferPool(100 << 10)

	buf1, err := pool.Get(64 << 10)
	if err != nil {
		t.Fatalf("first allocation should succeed: %v", err)
	}

	_, err = pool.Get(64 << 10)
	var limitErr *MemoryLimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("second allocation error = %v, want MemoryLimitExceededError", err)
	}
	if limitErr.Limit != 100<<10 || limitErr.Current != 64<<10 {
		t.Errorf("limit error = %+v", limitErr)
	}

	pool.Put(buf1)
	if pool.MemoryUsed() != 0 {
		t.Errorf("MemoryUsed after Put = %d, want 0", pool.MemoryUsed())
	}

	buf3, err := pool.Get(64 << 10)
	if err != nil {
		t.Errorf("allocation after Put should succeed: %v", err)
	}
	pool.Put(buf3)
}

func TestBufferPoolStats(t *testing.T) {
	pool := NewBufferPool(0)

	buf1, _ := pool.Get(1024)
	buf2, _ := pool.Get(1024)
	pool.Put(buf1)
	buf3, _ := pool.Get(1024)
	pool.Put(buf2)
	pool.Put(buf3)

	allocs, hits, misses := pool.Stats()
	if allocs != 3 {
		t.Errorf("allocs = %d, want 3", allocs)
	}
	if hits+misses != allocs {
		t.Errorf("hits %d + misses %d != allocs %d", hits, misses, allocs)
	}
}

func TestSetMemoryLimit(t *testing.T) {
	pool := NewBufferPool(0)
	if prev := pool.SetMemoryLimit(1 << 20); prev != 0 {
		t.Errorf("previous limit = %d, want 0", prev)
	}
	if _, err := pool.Get(4 << 20); err == nil {
		t.Error("Get above the limit should fail")
	}
	if prev := pool.SetMemoryLimit(0); prev != 1<<20 {
		t.Errorf("previous limit = %d, want %d", prev, 1<<20)
	}
}

func TestMemoryLimitedPyramid(t *testing.T) {
	p := newTestPyramid(t, 256, 256, 3, WithRawMemory(), WithMemoryLimit(16<<10))
	err := p.View(func(a *Access) error {
		_, err := a.PatchData(0, 32, 32, 64, 64)
		return err
	})
	var limitErr *MemoryLimitExceededError
	if !errors.As(err, &limitErr) {
		t.Errorf("multi-tile read error = %v, want MemoryLimitExceededError", err)
	}
}

func BenchmarkBufferPoolGet(b *testing.B) {
	pool := NewBufferPool(0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf, _ := pool.Get(64 << 10)
		pool.Put(buf)
	}
}
