// Package registry tracks live tasks and the process-wide delivery counters.
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pulsecast/internal/domain"
)

type Registry[T any] struct {
	mu        sync.RWMutex
	items     map[string]T
	delivered atomic.Int64
	started   time.Time
	now       func() time.Time
}

func New[T any]() *Registry[T] {
	return &Registry[T]{items: map[string]T{}, started: time.Now(), now: time.Now}
}

// Create registers v under id. Ids are never reused.
func (r *Registry[T]) Create(id string, v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; ok {
		return fmt.Errorf("task %s already registered", id)
	}
	r.items[id] = v
	return nil
}

func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[id]
	return v, ok
}

// Remove deletes id and returns what was stored. Only one concurrent caller
// observes ok for a given id.
func (r *Registry[T]) Remove(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[id]
	if ok {
		delete(r.items, id)
	}
	return v, ok
}

func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// List returns the registered values in no particular order.
func (r *Registry[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.items))
	for _, v := range r.items {
		out = append(out, v)
	}
	return out
}

// RecordDelivery bumps the cumulative delivery counter.
func (r *Registry[T]) RecordDelivery() int64 { return r.delivered.Add(1) }

func (r *Registry[T]) Stats() domain.Stats {
	return domain.Stats{
		Uptime:      r.now().Sub(r.started),
		ActiveTasks: r.Count(),
		Delivered:   r.delivered.Load(),
	}
}
