package cache

import (
	"context"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU caches paste text in front of the file store. Entries are
// refreshed on every write, so a hit is never staler than the last
// write seen by this process.
type LRU struct {
	c  *lru.Cache[string, string]
	mu sync.Mutex
}

func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 100000 {
		return nil, errors.New("cache size too large")
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c}, nil
}

func (l *LRU) Get(ctx context.Context, id string) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	default:
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.Get(id)
}

func (l *LRU) Set(id, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Add(id, text)
}

func (l *LRU) Delete(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Remove(id)
}
