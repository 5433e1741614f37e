// Package redisinfra holds the Redis-backed single-use ledger for
// reset-session token ids.
package redisinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/go-membership-api/internal/config"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "reset-jti:"

// NewClient connects to cfg.RedisAddr and checks the connection.
func NewClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return rdb, nil
}

// Ledger marks token ids as spent. Entries expire with the token they guard.
type Ledger struct {
	rdb *redis.Client
}

func NewLedger(rdb *redis.Client) *Ledger {
	return &Ledger{rdb: rdb}
}

// Consume reports true the first time jti is seen within ttl, false afterwards.
func (l *Ledger) Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, keyPrefix+jti, time.Now().UTC().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Ping backs the readiness check.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}
