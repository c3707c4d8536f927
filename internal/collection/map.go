package collection

import "sync"

// SyncMap is a minimal generic map guarded by a RWMutex. It backs the
// correlator pending-call table, where Take provides the remove-exactly-once
// discipline.
type SyncMap[K comparable, V any] struct {
	m   map[K]V
	mux sync.RWMutex
}

func (m *SyncMap[K, V]) Get(k K) (V, bool) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	v, ok := m.m[k]
	return v, ok
}

func (m *SyncMap[K, V]) Put(k K, v V) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.m[k] = v
}

// Take removes and returns the value for k. The second result reports
// whether the key was present; at most one caller observes true for a given
// insertion.
func (m *SyncMap[K, V]) Take(k K) (V, bool) {
	m.mux.Lock()
	defer m.mux.Unlock()
	v, ok := m.m[k]
	if ok {
		delete(m.m, k)
	}
	return v, ok
}

func (m *SyncMap[K, V]) Delete(k K) {
	m.mux.Lock()
	defer m.mux.Unlock()
	delete(m.m, k)
}

func (m *SyncMap[K, V]) Len() int {
	m.mux.RLock()
	defer m.mux.RUnlock()
	return len(m.m)
}

// Drain removes all entries and returns the removed values.
func (m *SyncMap[K, V]) Drain() []V {
	m.mux.Lock()
	defer m.mux.Unlock()
	values := make([]V, 0, len(m.m))
	for k, v := range m.m {
		values = append(values, v)
		delete(m.m, k)
	}
	return values
}

// Range calls f for each entry under a read lock until f returns false.
func (m *SyncMap[K, V]) Range(f func(key K, value V) bool) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	for k, v := range m.m {
		if !f(k, v) {
			return
		}
	}
}

func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{m: make(map[K]V)}
}
