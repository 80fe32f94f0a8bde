package contentstore

import (
	"context"
	"sync"

	"vaultsync/codec"
)

// MemoryStore keeps payloads in process memory, addressed the same way the
// real store addresses them. Useful for local development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	payloads map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payloads: map[string][]byte{}}
}

func (s *MemoryStore) Put(ctx context.Context, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	addr, err := codec.AddressOf(payload)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.payloads[addr] = append([]byte(nil), payload...)
	s.mu.Unlock()
	return addr, nil
}

// Get returns the payload stored under addr, or nil when absent.
func (s *MemoryStore) Get(addr string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloads[addr]
}

var _ ContentStore = (*MemoryStore)(nil)
