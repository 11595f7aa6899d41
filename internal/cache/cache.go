// Package cache provides a weight-bounded LRU used both for the engine's
// version-resolution cache concern (a plain key->struct cache, see
// internal/engine) and the query coordinator's result cache, where entries
// have varying serialized size and eviction must respect a byte budget
// rather than an entry count.
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is anything cacheable with a known weight in bytes.
type Entry struct {
	Key    string
	Value  []byte
	Weight int64
}

// WeightedLRU bounds total cached bytes rather than entry count: golang-lru
// evicts oldest-first on Add when the entry count cap is hit, so this
// wraps it with a byte-budget check that proactively evicts the oldest
// entries before inserting one that would exceed the budget. Query cache
// and scroll cleanup below share the rule this package documents once:
// snapshot what to evict under the lock before releasing any reference, so
// a reader-closed callback never races an in-flight eviction scan.
type WeightedLRU struct {
	mu       sync.Mutex
	inner    *lru.Cache[string, Entry]
	order    []string // oldest-first insertion order, for weight-based eviction
	used     int64
	budget   int64
}

// NewWeightedLRU returns a cache that evicts down to budget bytes whenever
// an insert would exceed it. capHint bounds the underlying entry-count LRU
// as a backstop against pathological many-tiny-entries workloads.
func NewWeightedLRU(budgetBytes int64, capHint int) (*WeightedLRU, error) {
	w := &WeightedLRU{budget: budgetBytes}
	inner, err := lru.NewWithEvict[string, Entry](capHint, w.onEvict)
	if err != nil {
		return nil, err
	}
	w.inner = inner
	return w, nil
}

func (w *WeightedLRU) onEvict(key string, value Entry) {
	w.used -= value.Weight
	for i, k := range w.order {
		if k == key {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

// Get returns the cached value for key, if present.
func (w *WeightedLRU) Get(key string) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.inner.Get(key)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Add inserts value under key, evicting the oldest entries (snapshotting
// the eviction list under the lock before actually removing anything) until
// there is room within the byte budget.
func (w *WeightedLRU) Add(key string, value []byte) {
	weight := int64(len(value))
	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, ok := w.inner.Peek(key); ok {
		w.used -= existing.Weight
	} else {
		w.order = append(w.order, key)
	}

	var toEvict []string
	used := w.used + weight
	i := 0
	for used > w.budget && i < len(w.order) {
		k := w.order[i]
		if k == key {
			i++
			continue
		}
		if e, ok := w.inner.Peek(k); ok {
			used -= e.Weight
			toEvict = append(toEvict, k)
		}
		i++
	}
	for _, k := range toEvict {
		w.inner.Remove(k) // triggers onEvict, which updates w.used and w.order
	}

	w.inner.Add(key, Entry{Key: key, Value: value, Weight: weight})
	w.used += weight
}

// Remove evicts key immediately if present, used by Invalidate-style calls
// (e.g. a cache entry's backing reader closed).
func (w *WeightedLRU) Remove(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inner.Remove(key)
}

// Len returns the current entry count.
func (w *WeightedLRU) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inner.Len()
}
