package pyramid

import (
	"runtime"
	"sync"
)

// ParallelConfig configures the row-parallel pixel loops of the pyramid
// (downsampling, background fill, format conversion).
type ParallelConfig struct {
	// NumWorkers is the number of worker goroutines. 0 means runtime.GOMAXPROCS(0).
	NumWorkers int

	// GrainSize is the minimum number of rows per worker. Smaller jobs
	// run on the calling goroutine.
	GrainSize int
}

// DefaultParallelConfig returns the default configuration.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{GrainSize: 64}
}

var (
	parallelConfig   = DefaultParallelConfig()
	parallelConfigMu sync.RWMutex
)

// SetParallelConfig replaces the process-wide parallel configuration.
func SetParallelConfig(config ParallelConfig) {
	parallelConfigMu.Lock()
	defer parallelConfigMu.Unlock()
	parallelConfig = config
}

// GetParallelConfig returns the process-wide parallel configuration.
func GetParallelConfig() ParallelConfig {
	parallelConfigMu.RLock()
	defer parallelConfigMu.RUnlock()
	return parallelConfig
}

func effectiveWorkers(config ParallelConfig) int {
	if config.NumWorkers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return config.NumWorkers
}

// ParallelFor runs fn(i) for i in [0, n), splitting the range into
// contiguous chunks when it is large enough.
func ParallelFor(n int, fn func(i int)) {
	config := GetParallelConfig()
	workers := effectiveWorkers(config)
	grain := max(config.GrainSize, 1)

	if workers == 1 || n < grain*2 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	workers = min(workers, n/grain)

	var wg sync.WaitGroup
	chunk := (n + workers - 1) / workers
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}
