package util

import (
	"math"
	"testing"
)

func TestNewStats(t *testing.T) {
	s := NewStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if s.Mean != 5 {
		t.Errorf("mean = %v, want 5", s.Mean)
	}
	if s.StdDeviation != 2 {
		t.Errorf("std deviation = %v, want 2", s.StdDeviation)
	}
	if s.Min != 2 || s.Max != 9 {
		t.Errorf("min/max = %v/%v", s.Min, s.Max)
	}

	if empty := NewStats(nil); empty != (Stats{}) {
		t.Errorf("stats of no values should be zero, got %+v", empty)
	}
}

func TestDistributionStats(t *testing.T) {
	even := NewDistributionStats([]float64{10, 10, 10})
	if math.Abs(even.DistributionQuality-1) > 1e-9 {
		t.Errorf("even distribution should have quality 1, got %v", even.DistributionQuality)
	}
	skewed := NewDistributionStats([]float64{0, 0, 30})
	if skewed.DistributionQuality >= even.DistributionQuality {
		t.Errorf("skewed distribution should rate lower")
	}
}

func TestHistogram(t *testing.T) {
	h := NewCardinalityHistogram()
	for i := 0; i < 90; i++ {
		h.AddSample(1)
	}
	for i := 0; i < 10; i++ {
		h.AddSample(100)
	}

	if h.Count() != 100 {
		t.Errorf("count = %d", h.Count())
	}
	if h.Sum() != 1090 {
		t.Errorf("sum = %d", h.Sum())
	}
	if h.Median() != 1 {
		t.Errorf("median = %d, want 1", h.Median())
	}
	// 100 falls into the (64, 128] bucket
	if p := h.Percentile(99); p != 96 {
		t.Errorf("p99 = %d, want 96", p)
	}

	_, shares := h.Distribution()
	if shares[0] != 90 {
		t.Errorf("first bucket share = %v, want 90", shares[0])
	}

	h.Reset()
	if h.Count() != 0 || h.Average() != 0 {
		t.Errorf("reset did not clear the histogram")
	}
}
