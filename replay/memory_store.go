package replay

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryStore is a bounded in-process ReplayStore, mainly useful for tests
// and short-lived CLI runs where persistence across process restarts isn't
// needed.
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, Exchange]
}

// NewMemoryStore builds a MemoryStore holding at most size exchanges.
func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = 1024
	}
	cache, _ := lru.New[string, Exchange](size)
	return &MemoryStore{cache: cache}
}

func (s *MemoryStore) Record(_ context.Context, fp string, exchange Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(fp, exchange)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, fp string, isSuccess func(status int) bool) (*Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exchange, ok := s.cache.Get(fp)
	if !ok {
		return nil, ErrNotFound
	}
	if exchange.DiscardOnBadStatus && isSuccess != nil && !isSuccess(exchange.Status) {
		return nil, ErrNotFound
	}
	return &exchange, nil
}
