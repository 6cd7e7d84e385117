package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultLRUSize bounds the in-process cache.
const DefaultLRUSize = 4096

// LRUBackend is an in-process, size-bounded backend. Entries live for the process lifetime.
type LRUBackend struct {
	entries *lru.Cache[string, []byte]
}

// NewLRUBackend creates an LRU backend holding at most size entries.
func NewLRUBackend(size int) (*LRUBackend, error) {
	if size <= 0 {
		size = DefaultLRUSize
	}
	entries, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &LRUBackend{entries: entries}, nil
}

// Get implements Backend.
func (b *LRUBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := b.entries.Get(key)
	return val, ok, nil
}

// Set implements Backend.
func (b *LRUBackend) Set(_ context.Context, key string, value []byte) error {
	b.entries.Add(key, value)
	return nil
}

// Len returns the number of cached entries.
func (b *LRUBackend) Len() int {
	return b.entries.Len()
}
