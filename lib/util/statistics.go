package util

import (
	"math"
	"sync"
)

// ----------------------------------------------------------------------------
// Summary statistics
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes mean, standard deviation, minimum and maximum of values
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	lo, hi := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean := sum / float64(len(values))

	var sumSquaredDiffs float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}

	ratio := 1.0
	if hi > 0 {
		ratio = lo / hi
	}

	return Stats{
		StdDeviation: math.Sqrt(sumSquaredDiffs / float64(len(values))),
		Min:          lo,
		Max:          hi,
		Mean:         mean,
		MinMaxRatio:  ratio,
	}
}

type DistributionStats struct {
	Stats
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats rates how evenly values are spread over buckets
// (e.g. entries over shards). A quality of 1 means a perfectly even spread.
func NewDistributionStats(bucketSizes []float64) DistributionStats {
	stats := NewStats(bucketSizes)

	// coefficient of variation
	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	// lower CV and higher min/max ratio indicate a better distribution
	return DistributionStats{
		Stats:               stats,
		DistributionQuality: (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5,
	}
}

// ----------------------------------------------------------------------------
// Histogram
// ----------------------------------------------------------------------------

// Histogram counts samples in exponentially growing buckets, giving cheap
// median and percentile estimates without keeping the samples.
//
// Thread-safe: all methods are safe for concurrent use
type Histogram struct {
	mutex      sync.RWMutex
	boundaries []int   // inclusive upper bound per bucket
	buckets    []int64 // len(boundaries)+1, the last bucket is open-ended
	count      int64
	sum        int64
}

// NewHistogram creates a histogram with the given ascending bucket boundaries
func NewHistogram(boundaries ...int) *Histogram {
	return &Histogram{
		boundaries: boundaries,
		buckets:    make([]int64, len(boundaries)+1),
	}
}

// NewSizeHistogram creates a histogram for byte sizes (16B up to 4GB)
func NewSizeHistogram() *Histogram {
	return NewHistogram(
		16, 64, 256, 1024, 4096,
		16384, 65536, 262144, 1048576,
		4194304, 16777216, 67108864,
		268435456, 1073741824, 4294967296,
	)
}

// NewCardinalityHistogram creates a histogram for small counts such as the
// number of keys sharing one indexed value
func NewCardinalityHistogram() *Histogram {
	return NewHistogram(1, 2, 4, 8, 16, 32, 64, 128, 256, 1024, 4096, 16384, 65536)
}

// AddSample adds a sample to the histogram
func (h *Histogram) AddSample(v int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	bucket := len(h.boundaries)
	for i, boundary := range h.boundaries {
		if v <= boundary {
			bucket = i
			break
		}
	}

	h.buckets[bucket]++
	h.count++
	h.sum += int64(v)
}

// Count returns the number of samples
func (h *Histogram) Count() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// Sum returns the sum of all samples
func (h *Histogram) Sum() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.sum
}

// Average returns the average sample
func (h *Histogram) Average() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// Median estimates the median sample
func (h *Histogram) Median() int {
	return h.Percentile(50)
}

// Percentile estimates the given percentile (0-100) from the bucket counts
func (h *Histogram) Percentile(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	target := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	var cumulative int64
	for i, n := range h.buckets {
		cumulative += n
		if cumulative < target {
			continue
		}
		switch {
		case len(h.boundaries) == 0:
			return int(h.sum / h.count)
		case i == 0:
			return (h.boundaries[0] + 1) / 2
		case i < len(h.boundaries):
			return (h.boundaries[i-1] + h.boundaries[i]) / 2
		default:
			// open-ended bucket
			return h.boundaries[len(h.boundaries)-1] * 2
		}
	}

	return int(h.sum / h.count)
}

// Distribution returns the bucket boundaries and the share of samples per
// bucket in percent
func (h *Histogram) Distribution() ([]int, []float64) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	percentages := make([]float64, len(h.buckets))
	if h.count == 0 {
		return h.boundaries, percentages
	}
	for i, n := range h.buckets {
		percentages[i] = float64(n) * 100.0 / float64(h.count)
	}
	return h.boundaries, percentages
}

// Reset clears all samples
func (h *Histogram) Reset() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.count = 0
	h.sum = 0
	clear(h.buckets)
}
