package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrIdempotencyKeyReused is returned when a create request repeats a key that is
// still reserved.
var ErrIdempotencyKeyReused = errors.New("idempotency key already used")

// ErrIdempotencyKeyInvalid is returned for keys longer than maxIdempotencyKeyLength.
var ErrIdempotencyKeyInvalid = errors.New("idempotency key is too long")

const maxIdempotencyKeyLength = 200

// IdempotencyGuard reserves client-supplied Idempotency-Key values in Redis so a
// double-submitted create is stored only once. A nil guard reserves nothing.
type IdempotencyGuard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewIdempotencyGuard creates a guard whose reservations expire after ttl.
func NewIdempotencyGuard(client redis.UniversalClient, prefix string, ttl time.Duration) *IdempotencyGuard {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "finance"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyGuard{client: client, prefix: trimmedPrefix + ":idempotency", ttl: ttl}
}

// Reserve claims key for ownerID and scope. The returned release func frees the
// reservation again and should be called when the guarded operation fails.
func (g *IdempotencyGuard) Reserve(ctx context.Context, scope, ownerID, key string) (release func(), err error) {
	noop := func() {}
	key = strings.TrimSpace(key)
	if g == nil || g.client == nil || key == "" {
		return noop, nil
	}
	if len(key) > maxIdempotencyKeyLength {
		return noop, ErrIdempotencyKeyInvalid
	}

	redisKey := fmt.Sprintf("%s:%s:%s:%s", g.prefix, scope, ownerID, key)
	ok, err := g.client.SetNX(ctx, redisKey, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return noop, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if !ok {
		return noop, ErrIdempotencyKeyReused
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = g.client.Del(releaseCtx, redisKey).Err()
	}, nil
}
