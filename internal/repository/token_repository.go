package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/project-tracker/internal/utils"
)

const blacklistValue = "blacklisted"

// TokenBlacklist records revoked tokens in Redis. Each entry carries a
// TTL no shorter than the token's remaining lifetime, so it disappears on
// its own once the token could no longer be used anyway.
type TokenBlacklist struct {
	rdb    *redis.Client
	prefix string
}

// NewTokenBlacklist keys entries as "<prefix>:<sha256(token)>".
func NewTokenBlacklist(rdb *redis.Client, prefix string) *TokenBlacklist {
	if prefix == "" {
		prefix = "blacklist"
	}
	return &TokenBlacklist{rdb: rdb, prefix: prefix}
}

func (b *TokenBlacklist) key(token string) string {
	return b.prefix + ":" + utils.HashToken(token)
}

// Blacklist stores token for ttl. Calling it again overwrites the TTL.
// A non-positive ttl means the token has already expired and nothing is
// stored.
func (b *TokenBlacklist) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.rdb.Set(ctx, b.key(token), blacklistValue, ttl).Err()
}

// IsBlacklisted reports whether token has a live revocation entry.
func (b *TokenBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := b.rdb.Exists(ctx, b.key(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Consume stores token for ttl only when no entry exists yet and reports
// whether this call created it. Refresh rotation relies on it so that two
// concurrent refreshes with the same token cannot both succeed.
func (b *TokenBlacklist) Consume(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	return b.rdb.SetNX(ctx, b.key(token), blacklistValue, ttl).Result()
}
