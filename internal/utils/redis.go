// Redis connection helpers: one env-driven opener plus a direct one for tests.
package utils

import (
	"os"
	"strconv"

	"currents-api/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis opens a client from explicit address and password. Kept for tests
// and manual injection; returns nil when no address is given.
func OpenRedis(addr, pass string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass})
}

// OpenRedisFromEnv opens a client from REDIS_* variables. The cache is
// optional: when REDIS_HOST is unset the caller gets nil and serves without
// caching. REDIS_DB parse failures fall back to 0.
func OpenRedisFromEnv() *redis.Client {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return nil
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	addr := host + ":" + port
	pass := os.Getenv("REDIS_PASS")
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, _ := strconv.Atoi(v); n >= 0 {
			db = n
		}
	}
	logger.L().Debug("redis_env", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}
