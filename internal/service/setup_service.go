package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"yieldengine/internal/config"
	"yieldengine/internal/ledger"
	"yieldengine/internal/model"
	"yieldengine/internal/repository"
	"yieldengine/pkg/yieldcalc"

	"gorm.io/gorm"
)

// SetupService 按配置初始化三类策略、四个子池和全部程序金库
// 重复执行不会覆盖已有数据
type SetupService struct {
	db        *gorm.DB
	cfg       *config.Config
	ledger    *ledger.Ledger
	stakeRepo *repository.StakeRepository
	spinRepo  *repository.SpinRepository
	poolRepo  *repository.PoolRepository
}

func NewSetupService(db *gorm.DB, cfg *config.Config) *SetupService {
	return &SetupService{
		db:        db,
		cfg:       cfg,
		ledger:    ledger.New(db, cfg.Business.ProgramID, cfg.Business.TokenMint),
		stakeRepo: repository.NewStakeRepository(db),
		spinRepo:  repository.NewSpinRepository(db),
		poolRepo:  repository.NewPoolRepository(db),
	}
}

// tokenUnits 整币数量换算为最小单位
func tokenUnits(whole uint64, decimals int) uint64 {
	scale := uint64(1)
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	return yieldcalc.MulDiv(whole, scale, 1)
}

func (s *SetupService) subPoolVaults() map[string]string {
	v := s.cfg.Business.Vaults
	return map[string]string{
		model.SubPoolStaking:  v.StakingSubPool,
		model.SubPoolSpin:     v.SpinSubPool,
		model.SubPoolReferral: v.ReferralPool,
		model.SubPoolReserve:  v.ReservePool,
	}
}

func (s *SetupService) validate() error {
	if s.cfg.Business.Authority == "" {
		return invalidInput("business.authority 未配置")
	}
	if s.cfg.Business.TokenDecimals < 0 || s.cfg.Business.TokenDecimals > 18 {
		return invalidInput("token_decimals 不合法: %d", s.cfg.Business.TokenDecimals)
	}

	st := s.cfg.Staking
	if st.BaseAPRBps > maxBaseAPRBps {
		return invalidInput("base_apr_bps 不能超过 %d", maxBaseAPRBps)
	}
	if st.DailyYieldBps > maxDailyYieldBps {
		return invalidInput("daily_yield_bps 不能超过 %d", maxDailyYieldBps)
	}
	if err := ValidatePenaltySchedule(st.PenaltyTiersBps, st.PenaltyThresholdsHr); err != nil {
		return err
	}

	sp := s.cfg.Spin
	if err := ValidateSpinPolicy(&model.SpinPolicy{
		BaseYieldMinBps:     sp.BaseYieldMinBps,
		BaseYieldMaxBps:     sp.BaseYieldMaxBps,
		MoonshotYieldMinBps: sp.MoonshotYieldMinBps,
		MoonshotYieldMaxBps: sp.MoonshotYieldMaxBps,
		MoonshotProbability: sp.MoonshotProbability,
		CooldownSeconds:     sp.CooldownSeconds,
	}); err != nil {
		return err
	}

	p := s.cfg.Pool
	if err := ValidateAllocations([4]uint16{p.StakingBps, p.SpinBps, p.ReferralBps, p.ReserveBps}); err != nil {
		return err
	}
	if p.DistributionIntervalSeconds <= 0 {
		return invalidInput("distribution_interval_seconds 必须大于0")
	}
	return nil
}

// Bootstrap 初始化，已存在的记录保持原样
func (s *SetupService) Bootstrap(ctx context.Context) error {
	if err := s.validate(); err != nil {
		return err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		v := s.cfg.Business.Vaults
		names := []string{v.StakeVault, v.RewardsPool, v.StakingPayout, v.SpinPayout}
		for _, name := range s.subPoolVaults() {
			names = append(names, name)
		}
		for _, name := range names {
			if _, err := s.ledger.OpenProgramVault(ctx, tx, name); err != nil {
				return fmt.Errorf("创建程序金库 %s 失败: %w", name, err)
			}
		}

		if err := s.ensureStakingPolicy(ctx, tx); err != nil {
			return err
		}
		if err := s.ensureSpinPolicy(ctx, tx); err != nil {
			return err
		}
		return s.ensurePool(ctx, tx)
	})
	if err != nil {
		return err
	}

	log.Println("[SetupService] 策略与程序金库初始化完成")
	return nil
}

func (s *SetupService) ensureStakingPolicy(ctx context.Context, tx *gorm.DB) error {
	_, err := s.stakeRepo.GetPolicy(ctx, tx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrStakingPolicyNotFound) {
		return fmt.Errorf("查询质押策略失败: %w", err)
	}

	st := s.cfg.Staking
	policy := &model.StakingPolicy{
		Authority:     s.cfg.Business.Authority,
		BaseAPRBps:    st.BaseAPRBps,
		DailyYieldBps: st.DailyYieldBps,
	}
	policy.SetPenaltySchedule(st.PenaltyTiersBps, st.PenaltyThresholdsHr)
	if err := s.stakeRepo.CreatePolicy(ctx, tx, policy); err != nil {
		return fmt.Errorf("创建质押策略失败: %w", err)
	}
	log.Printf("[SetupService] 质押策略已创建: base_apr_bps=%d, daily_yield_bps=%d", policy.BaseAPRBps, policy.DailyYieldBps)
	return nil
}

func (s *SetupService) ensureSpinPolicy(ctx context.Context, tx *gorm.DB) error {
	_, err := s.spinRepo.GetPolicy(ctx, tx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrSpinPolicyNotFound) {
		return fmt.Errorf("查询转盘策略失败: %w", err)
	}

	sp := s.cfg.Spin
	decimals := s.cfg.Business.TokenDecimals
	policy := &model.SpinPolicy{
		Authority:           s.cfg.Business.Authority,
		BaseYieldMinBps:     sp.BaseYieldMinBps,
		BaseYieldMaxBps:     sp.BaseYieldMaxBps,
		MoonshotYieldMinBps: sp.MoonshotYieldMinBps,
		MoonshotYieldMaxBps: sp.MoonshotYieldMaxBps,
		MoonshotProbability: sp.MoonshotProbability,
		FallbackYieldBps:    sp.FallbackYieldBps,
		CooldownSeconds:     sp.CooldownSeconds,
		LuckyCharmUnitCost:  tokenUnits(sp.LuckyCharmUnitCost, decimals),
		AmplifierUnitCost:   tokenUnits(sp.AmplifierUnitCost, decimals),
		ShieldUnitCost:      tokenUnits(sp.ShieldUnitCost, decimals),
	}
	if err := s.spinRepo.CreatePolicy(ctx, tx, policy); err != nil {
		return fmt.Errorf("创建转盘策略失败: %w", err)
	}
	log.Printf("[SetupService] 转盘策略已创建: cooldown=%d, probability=%d", policy.CooldownSeconds, policy.MoonshotProbability)
	return nil
}

func (s *SetupService) ensurePool(ctx context.Context, tx *gorm.DB) error {
	policy, err := s.poolRepo.GetPolicy(ctx, tx)
	if err != nil {
		if !errors.Is(err, repository.ErrPoolPolicyNotFound) {
			return fmt.Errorf("查询奖励池策略失败: %w", err)
		}
		p := s.cfg.Pool
		policy = &model.PoolPolicy{
			Authority:                   s.cfg.Business.Authority,
			SourceVault:                 s.cfg.Business.Vaults.RewardsPool,
			StakingBps:                  p.StakingBps,
			SpinBps:                     p.SpinBps,
			ReferralBps:                 p.ReferralBps,
			ReserveBps:                  p.ReserveBps,
			DistributionIntervalSeconds: p.DistributionIntervalSeconds,
		}
		if err := s.poolRepo.CreatePolicy(ctx, tx, policy); err != nil {
			return fmt.Errorf("创建奖励池策略失败: %w", err)
		}
		log.Printf("[SetupService] 奖励池策略已创建: source=%s", policy.SourceVault)
	}

	vaults := s.subPoolVaults()
	for _, poolType := range model.SubPoolTypes {
		err := s.poolRepo.CreateSubPool(ctx, tx, &model.SubPool{
			PoolType:      poolType,
			VaultName:     vaults[poolType],
			AllocationBps: policy.AllocationOf(poolType),
		})
		if err != nil {
			return fmt.Errorf("创建子池 %s 失败: %w", poolType, err)
		}
	}
	return nil
}
