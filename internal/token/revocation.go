package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore remembers revoked token ids until their natural expiry.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Close() error
}

// MemoryRevocationStore is a single-instance store; entries are pruned periodically.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time

	interval time.Duration
	stop     chan struct{}
	once     sync.Once
}

func NewMemoryRevocationStore(cleanupInterval time.Duration) *MemoryRevocationStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	s := &MemoryRevocationStore{
		entries:  make(map[string]time.Time),
		interval: cleanupInterval,
		stop:     make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *MemoryRevocationStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = time.Now().Add(ttl)
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.entries[jti]
	if !ok {
		return false, nil
	}
	return time.Now().Before(exp), nil
}

// Len reports the number of entries, expired or not, still held.
func (s *MemoryRevocationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryRevocationStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryRevocationStore) loop() {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.prune(time.Now())
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryRevocationStore) prune(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, jti)
		}
	}
}

// RedisRevocationStore shares revocations across instances; redis expires keys itself.
type RedisRevocationStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisRevocationStore(rdb *redis.Client, prefix string) *RedisRevocationStore {
	if prefix == "" {
		prefix = "ewaste:revoked:"
	}
	return &RedisRevocationStore{rdb: rdb, prefix: prefix}
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.prefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisRevocationStore) Close() error { return nil }

// NoopRevocationStore never revokes anything.
type NoopRevocationStore struct{}

func (NoopRevocationStore) Revoke(context.Context, string, time.Duration) error { return nil }
func (NoopRevocationStore) IsRevoked(context.Context, string) (bool, error)     { return false, nil }
func (NoopRevocationStore) Close() error                                         { return nil }
