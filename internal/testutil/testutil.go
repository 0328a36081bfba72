// Package testutil 为各包测试提供内存数据库、内存 Redis 和默认配置
package testutil

import (
	"testing"

	"yieldengine/internal/config"
	"yieldengine/internal/infrastructure/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 每个测试一个独立的内存 SQLite
// 只开一个连接，事务内的查询必须走同一个 tx
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.Models()...))
	return db
}

func NewRedis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// Config 默认配置，代币精度为 0 便于手算
func Config(t testing.TB) *config.Config {
	t.Helper()

	v := viper.New()
	config.SetDefaults(v)
	v.Set("business.authority", "ops-admin")
	v.Set("business.token_decimals", 0)
	v.Set("business.lock_retry_millis", 5)
	v.Set("business.lock_max_retries", 3)

	cfg := &config.Config{}
	require.NoError(t, v.Unmarshal(cfg))
	return cfg
}
