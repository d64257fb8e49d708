package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blacklist records revoked token IDs until they would have expired anyway.
type Blacklist interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryBlacklist is process-local. Use RedisBlacklist when running more than
// one instance.
type MemoryBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	clock   Clock
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryBlacklist starts a cleanup loop that runs every interval.
// interval <= 0 disables the loop.
func NewMemoryBlacklist(interval time.Duration) *MemoryBlacklist {
	b := &MemoryBlacklist{
		entries: make(map[string]time.Time),
		clock:   realClock{},
		stop:    make(chan struct{}),
	}
	if interval > 0 {
		go b.cleanupLoop(interval)
	}
	return b
}

// SetClock replaces the clock. Intended for testing.
func (b *MemoryBlacklist) SetClock(c Clock) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clock = c
}

func (b *MemoryBlacklist) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !expiresAt.After(b.clock.Now()) {
		return nil
	}
	b.entries[tokenID] = expiresAt
	return nil
}

func (b *MemoryBlacklist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !exp.After(b.clock.Now()) {
		delete(b.entries, tokenID)
		return false, nil
	}
	return true, nil
}

// Cleanup drops entries whose tokens have expired.
func (b *MemoryBlacklist) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock.Now()
	for id, exp := range b.entries {
		if !exp.After(now) {
			delete(b.entries, id)
		}
	}
}

// Len returns the number of tracked entries.
func (b *MemoryBlacklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *MemoryBlacklist) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.Cleanup()
		case <-b.stop:
			return
		}
	}
}

// Stop ends the cleanup loop.
func (b *MemoryBlacklist) Stop() {
	b.once.Do(func() { close(b.stop) })
}

// RedisBlacklist stores one key per revoked token with a TTL equal to the
// token's remaining lifetime.
type RedisBlacklist struct {
	client *redis.Client
	prefix string
	clock  Clock
}

func NewRedisBlacklist(client *redis.Client, prefix string) *RedisBlacklist {
	return &RedisBlacklist{client: client, prefix: prefix, clock: realClock{}}
}

// SetClock replaces the clock. Intended for testing.
func (b *RedisBlacklist) SetClock(c Clock) {
	b.clock = c
}

func (b *RedisBlacklist) key(tokenID string) string {
	return b.prefix + ":" + tokenID
}

func (b *RedisBlacklist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(b.clock.Now())
	if ttl <= 0 {
		return nil
	}
	if err := b.client.Set(ctx, b.key(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("auth: blacklist set: %w", err)
	}
	return nil
}

func (b *RedisBlacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("auth: blacklist exists: %w", err)
	}
	return n > 0, nil
}
