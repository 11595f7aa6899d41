package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumMerge(t *testing.T) {
	s := Sum{}
	assert.Equal(t, float64(6), s.Merge([]any{1.0, 2.0, 3.0}))
}

func TestSumMergeIgnoresWrongType(t *testing.T) {
	s := Sum{}
	assert.Equal(t, float64(5), s.Merge([]any{5.0, "not a float"}))
}

func TestMaxMerge(t *testing.T) {
	m := Max{}
	assert.Equal(t, float64(9), m.Merge([]any{1.0, 9.0, 3.0}))
}

func TestMinMerge(t *testing.T) {
	m := Min{}
	assert.Equal(t, float64(1), m.Merge([]any{5.0, 1.0, 3.0}))
}

func TestAvgMergeWeightedAcrossShards(t *testing.T) {
	a := Avg{}
	got := a.Merge([]any{
		AvgPartial{Sum: 10, Count: 2},
		AvgPartial{Sum: 20, Count: 2},
	})
	assert.Equal(t, float64(7.5), got)
}

func TestAvgMergeEmptyReturnsZero(t *testing.T) {
	a := Avg{}
	assert.Equal(t, float64(0), a.Merge(nil))
}

func TestTermsMergeSumsCountsAcrossShards(t *testing.T) {
	term := Terms{ShardSize: 10}
	got := term.Merge([]any{
		[]Bucket{{Key: "a", Count: 3}, {Key: "b", Count: 1}},
		[]Bucket{{Key: "a", Count: 2}},
	})
	buckets, ok := got.([]Bucket)
	require.True(t, ok, "expected []Bucket result")
	counts := map[string]int64{}
	for _, b := range buckets {
		counts[b.Key] = b.Count
	}
	assert.Equal(t, int64(5), counts["a"])
	assert.Equal(t, int64(1), counts["b"])
}

func TestHistogramMergeSumsBucketCounts(t *testing.T) {
	h := Histogram{Interval: 10}
	got := h.Merge([]any{
		[]Bucket{{Key: "0", Count: 2}},
		[]Bucket{{Key: "0", Count: 3}, {Key: "10", Count: 1}},
	})
	buckets := got.([]Bucket)
	counts := map[string]int64{}
	for _, b := range buckets {
		counts[b.Key] = b.Count
	}
	assert.Equal(t, int64(5), counts["0"])
	assert.Equal(t, int64(1), counts["10"])
}
