// Package memstore provides an in-memory implementation of the store interfaces.
// This implementation is designed for fast unit testing and does not persist data.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yiblet/qrscan/internal/store"
)

// MemoryStore is an in-memory implementation of store.Store.
// It is thread-safe via mutexes. Data exists only for the lifetime of the process.
type MemoryStore struct {
	history *memoryHistoryStore
	meta    *memoryMetaStore
}

// NewMemoryStore creates a new in-memory store for testing.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		history: newMemoryHistoryStore(),
		meta:    newMemoryMetaStore(),
	}
}

// History returns the history store.
func (m *MemoryStore) History() store.HistoryStore {
	return m.history
}

// Meta returns the metadata store.
func (m *MemoryStore) Meta() store.MetaStore {
	return m.meta
}

// FailAppends makes every following Append return err (nil restores normal
// behavior). Used to exercise persistence-failure paths.
func (m *MemoryStore) FailAppends(err error) {
	m.history.mu.Lock()
	defer m.history.mu.Unlock()
	m.history.appendErr = err
}

// Appends returns how many Append calls reached the store, failed or not.
func (m *MemoryStore) Appends() int {
	m.history.mu.RLock()
	defer m.history.mu.RUnlock()
	return m.history.appendCalls
}

// Close releases resources (no-op for memory store).
func (m *MemoryStore) Close() error {
	return nil
}

// memoryHistoryStore implements store.HistoryStore using an ordered slice.
type memoryHistoryStore struct {
	mu          sync.RWMutex
	records     []*store.ScanRecord
	values      map[string]struct{}
	nextID      uint
	appendErr   error
	appendCalls int
}

// newMemoryHistoryStore creates a new in-memory history store.
func newMemoryHistoryStore() *memoryHistoryStore {
	return &memoryHistoryStore{
		values: make(map[string]struct{}),
		nextID: 1,
	}
}

// LoadAll returns copies of all records in insertion order.
func (m *memoryHistoryStore) LoadAll(ctx context.Context) ([]*store.ScanRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*store.ScanRecord, len(m.records))
	for i, rec := range m.records {
		cp := *rec
		records[i] = &cp
	}
	return records, nil
}

// Append stores a new record, rejecting duplicate values.
func (m *memoryHistoryStore) Append(ctx context.Context, input *store.AppendInput) (*store.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.appendCalls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.appendErr != nil {
		return nil, fmt.Errorf("failed to append record: %w", m.appendErr)
	}
	if input == nil || input.Value == "" {
		return nil, errors.New("failed to append record: empty value")
	}
	if _, exists := m.values[input.Value]; exists {
		return nil, fmt.Errorf("failed to append record: %w", store.ErrDuplicate)
	}

	in := *input
	in.Normalize(time.Now())

	rec := &store.ScanRecord{
		ID:        m.nextID,
		Value:     in.Value,
		Time:      in.Time,
		Timestamp: in.Timestamp,
		SessionID: in.SessionID,
		CreatedAt: time.Now(),
	}
	m.nextID++

	m.records = append(m.records, rec)
	m.values[rec.Value] = struct{}{}

	cp := *rec
	return &cp, nil
}

// Count returns the number of records.
func (m *memoryHistoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Clear removes all records. IDs keep increasing, like an autoincrement key.
func (m *memoryHistoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.values = make(map[string]struct{})
	return nil
}

// Close is a no-op.
func (m *memoryHistoryStore) Close() error {
	return nil
}

// memoryMetaStore implements store.MetaStore using a map.
type memoryMetaStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// newMemoryMetaStore creates a new in-memory metadata store.
func newMemoryMetaStore() *memoryMetaStore {
	return &memoryMetaStore{
		values: make(map[string]string),
	}
}

// Get retrieves a value by key.
func (m *memoryMetaStore) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.values[key]
	if !exists {
		return "", fmt.Errorf("meta key %s: %w", key, store.ErrNotFound)
	}
	return value, nil
}

// Set stores a value.
func (m *memoryMetaStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// List returns a copy of all key-value pairs.
func (m *memoryMetaStore) List() (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]string, len(m.values))
	for k, v := range m.values {
		result[k] = v
	}
	return result, nil
}

// Delete removes a key.
func (m *memoryMetaStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.values[key]; !exists {
		return fmt.Errorf("meta key %s: %w", key, store.ErrNotFound)
	}
	delete(m.values, key)
	return nil
}

// Close is a no-op.
func (m *memoryMetaStore) Close() error {
	return nil
}
