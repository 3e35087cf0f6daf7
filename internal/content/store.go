// Package content fetches and decrypts the off-chain content referenced by job events.
package content

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNotFound indicates the store holds no content for a hash.
	ErrNotFound = errors.New("content not found")

	// ErrAccessDenied indicates the store rejected the credentials.
	ErrAccessDenied = errors.New("content store access denied")

	// ErrThrottled indicates the store asked the caller to slow down.
	ErrThrottled = errors.New("content store throttled")
)

// Store fetches content by its hash.
type Store interface {
	Fetch(ctx context.Context, hash common.Hash) ([]byte, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[common.Hash][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[common.Hash][]byte)}
}

func (s *MemoryStore) Put(hash common.Hash, content []byte) {
	s.mu.Lock()
	s.data[hash] = append([]byte(nil), content...)
	s.mu.Unlock()
}

func (s *MemoryStore) Fetch(_ context.Context, hash common.Hash) ([]byte, error) {
	s.mu.RLock()
	content, ok := s.data[hash]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), content...), nil
}
