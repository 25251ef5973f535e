package config

import (
	"os"
	"time"
)

// RateLimitConfig drives the token bucket in front of /v1/auth.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string // ip, user, route, ip_user, ip_route, user_route, ip_user_route
	Prefix         string
	Debug          bool
}

func LoadRateLimitConfig() RateLimitConfig {
	return LoadRateLimitConfigFrom(os.LookupEnv)
}

// LoadRateLimitConfigFrom reads the RATE_LIMIT_* variables through
// lookup. Invalid values fall back to defaults rather than failing.
func LoadRateLimitConfigFrom(lookup func(string) (string, bool)) RateLimitConfig {
	e := env{lookup: lookup}
	def := RateLimitConfig{
		Enabled:        e.bool("RATE_LIMIT_ENABLED", true),
		Capacity:       e.int("RATE_LIMIT_CAPACITY", 20),
		RefillTokens:   e.int("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: e.dur("RATE_LIMIT_REFILL_INTERVAL", 3*time.Second),
		TTL:            e.dur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    e.str("RATE_LIMIT_KEY_STRATEGY", "ip_route"),
		Prefix:         e.str("RATE_LIMIT_PREFIX", "rl"),
		Debug:          e.bool("RATE_LIMIT_DEBUG", false),
	}
	if b := e.int("RATE_LIMIT_BURST", -1); b > 0 {
		def.Capacity = b
	}
	if every := e.dur("RATE_LIMIT_REFILL_EVERY", 0); every > 0 {
		def.RefillTokens = 1
		def.RefillInterval = every
	}
	if def.Capacity < 1 {
		def.Capacity = 1
	}
	if def.RefillTokens < 1 {
		def.RefillTokens = 1
	}
	if def.RefillInterval <= 0 {
		def.RefillInterval = time.Second
	}
	if minTTL := 5 * def.RefillInterval; def.TTL < minTTL {
		def.TTL = minTTL
	}
	return def
}
