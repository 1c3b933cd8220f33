package native

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry is a concurrent handle table used by Library implementations to
// map opaque handle ids to their state.
type Registry[T any] struct {
	next  atomic.Uint64
	items *xsync.MapOf[uint64, T]
}

// NewRegistry returns an empty registry. Ids start at 1.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{items: xsync.NewMapOf[uint64, T]()}
}

// Add stores v under a fresh id.
func (r *Registry[T]) Add(v T) uint64 {
	id := r.next.Add(1)
	r.items.Store(id, v)
	return id
}

// Get returns the value stored under id.
func (r *Registry[T]) Get(id uint64) (T, bool) {
	return r.items.Load(id)
}

// Remove deletes id and returns what was stored there.
func (r *Registry[T]) Remove(id uint64) (T, bool) {
	return r.items.LoadAndDelete(id)
}

// Len returns the number of live handles.
func (r *Registry[T]) Len() int {
	return r.items.Size()
}

// Range calls f for every live handle until f returns false.
func (r *Registry[T]) Range(f func(id uint64, v T) bool) {
	r.items.Range(f)
}
