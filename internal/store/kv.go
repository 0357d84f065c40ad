// Package store provides the durable local state of the sync core.
//
// Three logical tables live under stable keys in a key-value backend:
//
//	task-cache   → JSON array of schema.Task (last known state, insertion order)
//	task-queue   → JSON array of schema.QueuedAction (FIFO)
//	task-id-map  → JSON object temp id → server id
//
// Missing or malformed values are read as empty tables, never as errors.
package store

import (
	"context"
	"sync"
)

// KV is the persistent key-value backend behind the Store.
type KV interface {
	// Get returns the value stored under key. The bool is false when the
	// key has never been written.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Close releases the backend.
	Close() error
}

// MemoryKV is a goroutine-safe in-memory KV, used in tests and for
// sessions that should not touch disk.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV creates an empty in-memory backend.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get implements KV.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set implements KV.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

// Close implements KV.
func (m *MemoryKV) Close() error {
	return nil
}
