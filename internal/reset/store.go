// Package reset implements the single-use password-reset token store.
//
// Only a SHA-256 digest of the token is persisted, keyed by user: issuing a
// new token for a user atomically supersedes any previous one, and consuming
// is a compare-and-delete so a token can be spent at most once.
package reset

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Window is the fixed validity period of a reset token.
const Window = time.Hour

const keyPrefix = "pwreset:"

var (
	// ErrInvalid is returned when the token does not match, was already
	// used, or no token was ever issued for the user.
	ErrInvalid = errors.New("reset token invalid")
	// ErrExpired is returned when a matching token is older than Window.
	ErrExpired = errors.New("reset token expired")
)

// consumeScript deletes the key only if it still holds the value the caller
// validated, making consumption atomic under concurrent attempts.
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store persists reset tokens in Redis.
type Store struct {
	rdb    *redis.Client
	window time.Duration
	now    func() time.Time
}

// NewStore returns a reset token store using the given Redis client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, window: Window, now: time.Now}
}

// NewStoreWindow returns a store with a custom validity window, used in tests.
func NewStoreWindow(rdb *redis.Client, window time.Duration, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{rdb: rdb, window: window, now: now}
}

func key(userID uint) string {
	return keyPrefix + strconv.FormatUint(uint64(userID), 10)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue mints a new token for userID and returns the plaintext. The stored
// record is "<sha256-hex>|<issued-unix>"; a plain SET replaces any previous
// token for the user in one atomic step. The Redis TTL is a backstop — the
// issue timestamp is the authoritative expiry check.
func (s *Store) Issue(ctx context.Context, userID uint) (string, error) {
	token := uuid.NewString()
	record := hashToken(token) + "|" + strconv.FormatInt(s.now().Unix(), 10)
	if err := s.rdb.Set(ctx, key(userID), record, s.window).Err(); err != nil {
		return "", fmt.Errorf("storing reset token: %w", err)
	}
	return token, nil
}

// Consume validates and spends the active token for userID. On success the
// token is deleted and nil is returned; replaying it yields ErrInvalid.
func (s *Store) Consume(ctx context.Context, userID uint, token string) error {
	record, err := s.rdb.Get(ctx, key(userID)).Result()
	if err == redis.Nil {
		return ErrInvalid
	}
	if err != nil {
		return fmt.Errorf("loading reset token: %w", err)
	}

	sep := strings.LastIndexByte(record, '|')
	if sep < 0 {
		return ErrInvalid
	}
	storedHash := record[:sep]
	issuedUnix, err := strconv.ParseInt(record[sep+1:], 10, 64)
	if err != nil {
		return ErrInvalid
	}

	presented := hashToken(token)
	if subtle.ConstantTimeCompare([]byte(storedHash), []byte(presented)) != 1 {
		return ErrInvalid
	}
	if s.now().Sub(time.Unix(issuedUnix, 0)) > s.window {
		return ErrExpired
	}

	// Delete only if the record is still the one we validated; a concurrent
	// consumer losing this race sees ErrInvalid.
	deleted, err := consumeScript.Run(ctx, s.rdb, []string{key(userID)}, record).Int()
	if err != nil {
		return fmt.Errorf("consuming reset token: %w", err)
	}
	if deleted == 0 {
		return ErrInvalid
	}
	return nil
}

// Invalidate discards any active token for userID. Used when a reset
// completes through another path; absence is not an error.
func (s *Store) Invalidate(ctx context.Context, userID uint) error {
	return s.rdb.Del(ctx, key(userID)).Err()
}
