package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore records per account the instant before which every
// issued token is invalid.
type RevocationStore interface {
	RevokeUser(ctx context.Context, username string, at time.Time) error
	IsRevoked(ctx context.Context, username string, issuedAt time.Time) (bool, error)
}

// revokedBy reports whether a token issued at issuedAt predates a
// revocation at revokedAt. Tokens carry second precision, so a token minted
// within the revocation second counts as revoked.
func revokedBy(issuedAt, revokedAt time.Time) bool {
	return !issuedAt.After(revokedAt.Truncate(time.Second))
}

// MemoryRevocationStore keeps revocations in process memory. Entries are
// dropped once every token they could match has expired.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time // username -> revoked at
	ttl     time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemoryRevocationStore starts a cleanup goroutine; ttl is the longest
// token lifetime.
func NewMemoryRevocationStore(ttl time.Duration) *MemoryRevocationStore {
	s := &MemoryRevocationStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *MemoryRevocationStore) RevokeUser(_ context.Context, username string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.entries[username]; !ok || at.After(prev) {
		s.entries[username] = at
	}
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, username string, issuedAt time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.entries[username]
	return ok && revokedBy(issuedAt, at), nil
}

// Count returns the number of tracked accounts.
func (s *MemoryRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (s *MemoryRevocationStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryRevocationStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryRevocationStore) cleanup() {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	for user, at := range s.entries {
		if at.Before(cutoff) {
			delete(s.entries, user)
		}
	}
}

// RedisRevocationStore shares revocations between every service process.
type RedisRevocationStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedisRevocationStore(client redis.UniversalClient, ttl time.Duration) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, ttl: ttl, prefix: "medeasy:revoked:"}
}

func (s *RedisRevocationStore) RevokeUser(ctx context.Context, username string, at time.Time) error {
	// the key expires with the last token it can match
	err := s.client.Set(ctx, s.prefix+username, at.Unix(), s.ttl+time.Second).Err()
	if err != nil {
		return fmt.Errorf("revoke %s: %w", username, err)
	}
	return nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, username string, issuedAt time.Time) (bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+username).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup revocation of %s: %w", username, err)
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse revocation of %s: %w", username, err)
	}
	return revokedBy(issuedAt, time.Unix(unix, 0)), nil
}
