package cache

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound is returned when a key is absent or its entry has expired.
var ErrNotFound = errors.New("key not found")

// memoryEntries bounds the in-process cache. Webhook dedup markers and
// availability results are small, so eviction pressure is unlikely before
// entries expire on their own.
const memoryEntries = 10_000

type memoryEntry struct {
	value    string
	deadline time.Time
}

// MemoryProvider is the single-process default. Entries carry their own
// deadline because the LRU itself has no notion of TTL.
type MemoryProvider struct {
	entries *lru.Cache[string, memoryEntry]
}

func NewMemoryProvider() (*MemoryProvider, error) {
	entries, err := lru.New[string, memoryEntry](memoryEntries)
	if err != nil {
		return nil, err
	}
	return &MemoryProvider{entries: entries}, nil
}

func (m *MemoryProvider) Get(_ context.Context, key string) (string, error) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	if time.Now().After(entry.deadline) {
		m.entries.Remove(key)
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (m *MemoryProvider) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.entries.Add(key, memoryEntry{
		value:    value,
		deadline: time.Now().Add(ttl),
	})
	return nil
}

func (m *MemoryProvider) Delete(_ context.Context, key string) error {
	m.entries.Remove(key)
	return nil
}

func (m *MemoryProvider) Close() error {
	return nil
}
