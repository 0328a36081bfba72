package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"yieldengine/internal/config"
	"yieldengine/internal/infrastructure/lock"
	"yieldengine/internal/ledger"
	"yieldengine/internal/model"
	"yieldengine/internal/repository"
	"yieldengine/pkg/clock"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// base 各业务服务共用的依赖
type base struct {
	db         *gorm.DB
	cfg        *config.Config
	clock      clock.Clock
	ledger     *ledger.Ledger
	locker     *lock.Locker
	outboxRepo *repository.OutboxRepository
	subPools   *repository.PoolRepository
}

func newBase(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, clk clock.Clock) base {
	if clk == nil {
		clk = clock.System{}
	}
	return base{
		db:     db,
		cfg:    cfg,
		clock:  clk,
		ledger: ledger.New(db, cfg.Business.ProgramID, cfg.Business.TokenMint),
		locker: lock.NewLocker(redisClient, lock.Options{
			TTL:           time.Duration(cfg.Business.LockTTLSeconds) * time.Second,
			RetryInterval: time.Duration(cfg.Business.LockRetryMillis) * time.Millisecond,
			MaxRetries:    cfg.Business.LockMaxRetries,
		}),
		outboxRepo: repository.NewOutboxRepository(db),
		subPools:   repository.NewPoolRepository(db),
	}
}

func (b *base) withLock(ctx context.Context, dl *lock.DistributedLock, fn func() error) error {
	if err := b.locker.Acquire(ctx, dl); err != nil {
		return lockError(err)
	}
	defer dl.Unlock(context.Background())
	return fn()
}

// withOwnerLock 同一参与者的请求串行执行
func (b *base) withOwnerLock(ctx context.Context, owner string, fn func() error) error {
	return b.withLock(ctx, b.locker.NewOwnerLock(owner), fn)
}

func (b *base) withPoolLock(ctx context.Context, fn func() error) error {
	return b.withLock(ctx, b.locker.NewPoolLock(), fn)
}

// withPolicyLock 同一份参数的管理操作串行执行
func (b *base) withPolicyLock(ctx context.Context, name string, fn func() error) error {
	return b.withLock(ctx, b.locker.NewPolicyLock(name), fn)
}

// payout 从发放金库转给参与者，发放金库是子池时累加子池的已发放数量
func (b *base) payout(ctx context.Context, tx *gorm.DB, vault, owner string, amount uint64, memo string) error {
	if _, err := b.ledger.OpenParticipantVault(ctx, tx, owner); err != nil {
		return fmt.Errorf("打开参与者金库失败: %w", err)
	}
	if _, err := b.ledger.Transfer(ctx, tx, b.ledger.Signer(vault), vault, model.ParticipantVaultName(owner), amount, memo); err != nil {
		return transferError(err)
	}
	if err := b.subPools.AddDistributed(ctx, tx, vault, amount); err != nil {
		return fmt.Errorf("更新子池发放数量失败: %w", err)
	}
	return nil
}

// publish 在业务事务内写入本地消息表
func (b *base) publish(ctx context.Context, tx *gorm.DB, topic, eventType, key string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	return b.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: key,
		EventType:  eventType,
		Topic:      topic,
		Payload:    string(body),
		Status:     model.OutboxStatusPending,
	})
}
