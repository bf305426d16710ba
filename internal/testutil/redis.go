// Package testutil holds helpers shared by package tests.
package testutil

import (
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/irfndi/celebrum-patterns/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewTestRedis starts an in-process redis and a client connected to it.
// Both are closed when the test ends.
func NewTestRedis(tb testing.TB) (*redis.Client, *miniredis.Miniredis) {
	tb.Helper()
	mr := miniredis.RunT(tb)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tb.Cleanup(func() { _ = client.Close() })

	return client, mr
}

// RedisConfig returns the connection settings of mr.
func RedisConfig(tb testing.TB, mr *miniredis.Miniredis) config.RedisConfig {
	tb.Helper()
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		tb.Fatalf("miniredis port %q: %v", mr.Port(), err)
	}
	return config.RedisConfig{Host: mr.Host(), Port: port}
}
