package cache

import (
	"context"
	"strconv"
	"testing"

	"yieldengine/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsAndPing(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := &config.RedisConfig{Host: mr.Host(), Port: port, DB: 0, PoolSize: 8, MinIdleConns: 2}
	opts := Options(cfg)
	assert.Equal(t, mr.Addr(), opts.Addr)
	assert.Equal(t, 8, opts.PoolSize)

	client := redis.NewClient(opts)
	defer client.Close()
	assert.NoError(t, Ping(context.Background(), client))

	mr.Close()
	assert.Error(t, Ping(context.Background(), client))
}
