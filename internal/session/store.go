// Package session implements the server-side session store: an opaque,
// unguessable token mapped to a user identity in Redis.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL is the fixed session lifetime. Sessions are not refreshed on access;
// a login is good for exactly this long.
const TTL = 7 * 24 * time.Hour

const keyPrefix = "session:"

// Store persists sessions in Redis. All operations are atomic single
// commands, so concurrent requests for the same user cannot corrupt state.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore returns a session store using the given Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, ttl: TTL}
}

// NewStoreTTL returns a store with a custom session lifetime, used in tests.
func NewStoreTTL(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func key(token string) string {
	return keyPrefix + token
}

// newToken returns 32 bytes of crypto/rand, hex encoded.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Create mints a fresh session bound to userID and returns its token.
func (s *Store) Create(ctx context.Context, userID uint) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	if err := s.rdb.Set(ctx, key(token), strconv.FormatUint(uint64(userID), 10), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}
	return token, nil
}

// Resolve maps a token to the user it was issued for. A missing, malformed,
// or expired token is not an error: it resolves to (0, false, nil). Errors
// are reserved for store failures.
func (s *Store) Resolve(ctx context.Context, token string) (uint, bool, error) {
	if token == "" {
		return 0, false, nil
	}
	val, err := s.rdb.Get(ctx, key(token)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolving session: %w", err)
	}
	userID, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		// A corrupt record is treated as no session.
		return 0, false, nil
	}
	return uint(userID), true, nil
}

// Destroy removes a session. Destroying an already-absent session succeeds;
// logout is idempotent.
func (s *Store) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, key(token)).Err(); err != nil {
		return fmt.Errorf("destroying session: %w", err)
	}
	return nil
}
