package session

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CacheLocker is the in-process lock backend, suitable for a single
// instance deployment.
type CacheLocker struct {
	cache *cache.Cache
}

var _ Locker = &CacheLocker{}

func NewCacheLocker() *CacheLocker {
	// TTL doubles as crash recovery: a lock orphaned by a dead exchange
	// expires instead of wedging the session forever
	c := cache.New(LockTTL, 10*time.Minute)
	return &CacheLocker{
		cache: c,
	}
}

func (l *CacheLocker) Acquire(ctx context.Context, sessionId string) error {
	// Add is atomic: it fails when the key already exists
	if err := l.cache.Add(sessionId, struct{}{}, cache.DefaultExpiration); err != nil {
		return ErrBusy
	}
	return nil
}

func (l *CacheLocker) Release(ctx context.Context, sessionId string) {
	l.cache.Delete(sessionId)
}
