package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"yieldengine/internal/config"

	"github.com/go-redis/redis/v8"
)

// Options 由配置生成连接参数
// 锁在每个资金操作上都会取一次，连接池按 API 并发量配置
func Options(cfg *config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
	return opts
}

// Ping 校验 Redis 可用，超时 5 秒
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

// InitRedis 建立连接，不可用时直接退出
func InitRedis(cfg *config.RedisConfig) *redis.Client {
	client := redis.NewClient(Options(cfg))
	if err := Ping(context.Background(), client); err != nil {
		log.Fatalf("连接 Redis 失败: %v", err)
	}

	log.Printf("Redis 连接成功: addr=%s, db=%d", client.Options().Addr, cfg.DB)
	return client
}
