// Package breaker implements per-category circuit breakers guarding memory
// that would otherwise be estimated only after the fact (large bulk
// requests, in-flight aggregations, the query cache). Each category
// reserves against its own limit and against a shared parent budget.
package breaker

import (
	"context"
	"sync"

	"github.com/dreamware/vindex/internal/vmetrics"
	"github.com/dreamware/vindex/internal/vterrors"
)

// Limits configures one category's byte budget.
type Limits struct {
	Category string
	Bytes    int64
}

// Accountant tracks estimated in-use bytes per category against both the
// category's own limit and a shared parent (overall) limit.
type Accountant struct {
	mu       sync.Mutex
	limits   map[string]int64
	used     map[string]int64
	parent   int64
	usedTotal int64
}

// NewAccountant builds an Accountant with the given per-category limits and
// an overall parent limit no category's sum may exceed.
func NewAccountant(parentLimitBytes int64, categories ...Limits) *Accountant {
	a := &Accountant{
		limits: map[string]int64{},
		used:   map[string]int64{},
		parent: parentLimitBytes,
	}
	for _, c := range categories {
		a.limits[c.Category] = c.Bytes
		a.used[c.Category] = 0
	}
	return a
}

// Reserve accounts for an estimated allocation of bytes under category,
// refusing with vterrors.CircuitBreakingError if either the category's own
// limit or the shared parent limit would be exceeded.
func (a *Accountant) Reserve(ctx context.Context, category string, bytes int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	limit, ok := a.limits[category]
	if !ok {
		limit = a.parent
	}
	if a.used[category]+bytes > limit {
		vmetrics.BreakerTrippedTotal.WithLabelValues(category).Inc()
		return &vterrors.CircuitBreakingError{Category: category, RequestedBytes: bytes, LimitBytes: limit}
	}
	if a.usedTotal+bytes > a.parent {
		vmetrics.BreakerTrippedTotal.WithLabelValues("parent").Inc()
		return &vterrors.CircuitBreakingError{Category: "parent", RequestedBytes: bytes, LimitBytes: a.parent}
	}

	a.used[category] += bytes
	a.usedTotal += bytes
	vmetrics.BreakerUsedBytes.WithLabelValues(category).Set(float64(a.used[category]))
	return nil
}

// Release returns bytes previously reserved under category back to the budget.
func (a *Accountant) Release(category string, bytes int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used[category] -= bytes
	a.usedTotal -= bytes
	if a.used[category] < 0 {
		a.used[category] = 0
	}
	vmetrics.BreakerUsedBytes.WithLabelValues(category).Set(float64(a.used[category]))
}

// Used returns the current estimated usage for category.
func (a *Accountant) Used(category string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used[category]
}
