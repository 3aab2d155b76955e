package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenRevocationRepository remembers revoked refresh token ids until they
// would have expired anyway.
type TokenRevocationRepository interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type redisTokenRevocation struct {
	client *redis.Client
}

// NewTokenRevocationRepository stores revocations in redis.
func NewTokenRevocationRepository(client *redis.Client) TokenRevocationRepository {
	return &redisTokenRevocation{client: client}
}

func revokedKey(jti string) string {
	return "auth:revoked:" + jti
}

func (r *redisTokenRevocation) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revokedKey(jti), "1", ttl).Err()
}

func (r *redisTokenRevocation) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := r.client.Get(ctx, revokedKey(jti)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
