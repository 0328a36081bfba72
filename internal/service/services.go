package service

import (
	"yieldengine/internal/config"
	"yieldengine/internal/infrastructure/randomness"
	"yieldengine/pkg/clock"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Services 对外暴露的全部业务服务
type Services struct {
	Staking *StakingService
	Spin    *SpinService
	Pool    *PoolService
	Vault   *VaultService
	Setup   *SetupService
}

func NewServices(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, clk clock.Clock, seeds randomness.Source) *Services {
	staking := NewStakingService(db, redisClient, cfg, clk)
	return &Services{
		Staking: staking,
		Spin:    NewSpinService(db, redisClient, cfg, clk, staking, seeds),
		Pool:    NewPoolService(db, redisClient, cfg, clk),
		Vault:   NewVaultService(db, redisClient, cfg, clk),
		Setup:   NewSetupService(db, cfg),
	}
}
