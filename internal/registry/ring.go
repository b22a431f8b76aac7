// Package registry provides the bounded lookup tables behind action handles.
//
// Eviction is FIFO by insertion, never by access recency: a Get does not
// protect an entry from being evicted.
package registry

import "sync"

// Ring is a fixed-capacity ring buffer of key/value pairs with a map index.
// It is safe for concurrent use.
type Ring[K comparable, V any] struct {
	mu    sync.Mutex
	keys  []K
	vals  []V
	head  int // slot of the oldest entry
	n     int
	index map[K]int
}

func NewRing[K comparable, V any](capacity int) *Ring[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[K, V]{
		keys:  make([]K, capacity),
		vals:  make([]V, capacity),
		index: make(map[K]int, capacity),
	}
}

func (r *Ring[K, V]) Cap() int { return len(r.keys) }

func (r *Ring[K, V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Put inserts or overwrites k. Overwriting keeps the entry's original age.
// Inserting into a full ring evicts the oldest entry, which is returned.
func (r *Ring[K, V]) Put(k K, v V) (evicted K, didEvict bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot, ok := r.index[k]; ok {
		r.vals[slot] = v
		return evicted, false
	}
	c := len(r.keys)
	if r.n == c {
		evicted, didEvict = r.keys[r.head], true
		delete(r.index, evicted)
		r.keys[r.head], r.vals[r.head] = k, v
		r.index[k] = r.head
		r.head = (r.head + 1) % c
		return evicted, didEvict
	}
	slot := (r.head + r.n) % c
	r.keys[slot], r.vals[slot] = k, v
	r.index[k] = slot
	r.n++
	return evicted, false
}

func (r *Ring[K, V]) Get(k K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.index[k]
	if !ok {
		var zero V
		return zero, false
	}
	return r.vals[slot], true
}

// Delete removes k and closes the gap so insertion order is preserved.
func (r *Ring[K, V]) Delete(k K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.index[k]
	if !ok {
		var zero V
		return zero, false
	}
	v := r.vals[slot]
	delete(r.index, k)

	c := len(r.keys)
	pos := (slot - r.head + c) % c
	for i := pos; i < r.n-1; i++ {
		from := (r.head + i + 1) % c
		to := (r.head + i) % c
		r.keys[to], r.vals[to] = r.keys[from], r.vals[from]
		r.index[r.keys[to]] = to
	}
	last := (r.head + r.n - 1) % c
	var zk K
	var zv V
	r.keys[last], r.vals[last] = zk, zv
	r.n--
	return v, true
}

// FindKey returns the oldest key whose value satisfies match.
func (r *Ring[K, V]) FindKey(match func(V) bool) (K, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := len(r.keys)
	for i := 0; i < r.n; i++ {
		slot := (r.head + i) % c
		if match(r.vals[slot]) {
			return r.keys[slot], true
		}
	}
	var zero K
	return zero, false
}

// Keys returns the keys oldest first.
func (r *Ring[K, V]) Keys() []K {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]K, 0, r.n)
	c := len(r.keys)
	for i := 0; i < r.n; i++ {
		out = append(out, r.keys[(r.head+i)%c])
	}
	return out
}

func (r *Ring[K, V]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.keys)
	clear(r.vals)
	clear(r.index)
	r.head, r.n = 0, 0
}
