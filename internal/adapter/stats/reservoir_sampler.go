package stats

import (
	"math/rand/v2"
	"sort"
	"sync"
)

// ReservoirSampler keeps a fixed-size uniform sample of scan latencies so
// /stats can report p95/p99 with bounded memory. Every value ever added has
// an equal chance of sitting in the reservoir.
type ReservoirSampler struct {
	samples    []int64
	sampleSize int
	count      int64
	mu         sync.Mutex
}

func NewReservoirSampler(sampleSize int) *ReservoirSampler {
	if sampleSize <= 0 {
		sampleSize = 100
	}
	return &ReservoirSampler{
		sampleSize: sampleSize,
		samples:    make([]int64, 0, sampleSize),
	}
}

func (rs *ReservoirSampler) Add(value int64) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.count++

	if len(rs.samples) < rs.sampleSize {
		rs.samples = append(rs.samples, value)
		return
	}

	// Replace a random slot with probability sampleSize/count, which keeps
	// the sample uniform over everything seen so far.
	j := rand.Int64N(rs.count) //nolint:gosec // Statistical sampling doesn't require crypto rand
	if j < int64(rs.sampleSize) {
		rs.samples[j] = value
	}
}

// GetPercentiles returns the 50th, 95th and 99th percentiles of the sample.
func (rs *ReservoirSampler) GetPercentiles() (p50, p95, p99 int64) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if len(rs.samples) == 0 {
		return 0, 0, 0
	}

	sorted := make([]int64, len(rs.samples))
	copy(sorted, rs.samples)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	return percentile(sorted, 50), percentile(sorted, 95), percentile(sorted, 99)
}

func percentile(sorted []int64, pct int) int64 {
	idx := len(sorted) * pct / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Count returns how many values were added, sampled or not.
func (rs *ReservoirSampler) Count() int64 {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.count
}

// Reset clears the sample but keeps its capacity.
func (rs *ReservoirSampler) Reset() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.samples = rs.samples[:0]
	rs.count = 0
}
