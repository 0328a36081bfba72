package service

import (
	"context"
	"testing"
	"time"

	"yieldengine/internal/config"
	"yieldengine/internal/infrastructure/lock"
	"yieldengine/internal/infrastructure/randomness"
	"yieldengine/internal/ledger"
	"yieldengine/internal/model"
	"yieldengine/internal/testutil"
	"yieldengine/pkg/clock"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	admin     = "ops-admin"
	startTime = int64(1_700_000_000)
)

type testEnv struct {
	db     *gorm.DB
	redis  *redis.Client
	cfg    *config.Config
	clock  *clock.Manual
	seeds  *seedBox
	svcs   *Services
	ledger *ledger.Ledger
}

// seedBox 测试中随时替换种子
type seedBox struct {
	src randomness.Source
}

func (b *seedBox) Seed(owner string, nonce uint64) uint64 {
	return b.src.Seed(owner, nonce)
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	rdb, _ := testutil.NewRedis(t)
	cfg := testutil.Config(t)
	clk := clock.NewManual(startTime)
	seeds := &seedBox{src: randomness.Fixed(50)}

	env := &testEnv{
		db:     db,
		redis:  rdb,
		cfg:    cfg,
		clock:  clk,
		seeds:  seeds,
		svcs:   NewServices(db, rdb, cfg, clk, seeds),
		ledger: ledger.New(db, cfg.Business.ProgramID, cfg.Business.TokenMint),
	}
	require.NoError(t, env.svcs.Setup.Bootstrap(context.Background()))
	return env
}

func (e *testEnv) credit(t *testing.T, owner string, amount uint64) {
	t.Helper()
	_, err := e.svcs.Vault.Credit(context.Background(), admin, owner, amount)
	require.NoError(t, err)
}

func (e *testEnv) fund(t *testing.T, vault string, amount uint64) {
	t.Helper()
	_, err := e.svcs.Vault.Fund(context.Background(), admin, vault, amount)
	require.NoError(t, err)
}

func (e *testEnv) balance(t *testing.T, vault string) uint64 {
	t.Helper()
	b, err := e.svcs.Vault.GetBalance(context.Background(), vault)
	require.NoError(t, err)
	return b
}

func (e *testEnv) wallet(t *testing.T, owner string) uint64 {
	return e.balance(t, model.ParticipantVaultName(owner))
}

func (e *testEnv) totalStaked(t *testing.T) uint64 {
	t.Helper()
	policy, err := e.svcs.Staking.GetPolicy(context.Background())
	require.NoError(t, err)
	return policy.TotalStaked
}

func (e *testEnv) sumStaked(t *testing.T) uint64 {
	t.Helper()
	var records []model.StakeRecord
	require.NoError(t, e.db.Find(&records).Error)
	var sum uint64
	for _, r := range records {
		sum += r.StakedAmount
	}
	return sum
}

// holdPolicyLock 模拟另一个实例正在修改参数
func (e *testEnv) holdPolicyLock(t *testing.T, name string) {
	t.Helper()
	locker := lock.NewLocker(e.redis, lock.Options{TTL: time.Minute})
	require.NoError(t, locker.Acquire(context.Background(), locker.NewPolicyLock(name)))
}

func (e *testEnv) events(t *testing.T, eventType string) []*model.OutboxMessage {
	t.Helper()
	var msgs []*model.OutboxMessage
	err := e.db.Where("event_type = ?", eventType).Order("id ASC").Find(&msgs).Error
	require.NoError(t, err)
	return msgs
}
