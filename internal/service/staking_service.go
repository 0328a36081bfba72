package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"yieldengine/internal/config"
	"yieldengine/internal/ledger"
	"yieldengine/internal/model"
	"yieldengine/internal/repository"
	"yieldengine/pkg/clock"
	"yieldengine/pkg/yieldcalc"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	maxBaseAPRBps    = 10000
	maxDailyYieldBps = 1000
)

// ============================================================================
// 质押账本
// ============================================================================
//
// 两种利率分别用在不同入口：
//   - 存入、领取：按日收益率 daily_yield_bps 计算待领收益
//   - 提取：按基础年化 base_apr_bps 另算一笔，只记入累计收益
//
// 提取罚金按质押时长分档，罚金转入奖励池金库，不销毁。
//
// ============================================================================

type StakingService struct {
	base
	stakeRepo *repository.StakeRepository
}

func NewStakingService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, clk clock.Clock) *StakingService {
	return &StakingService{
		base:      newBase(db, redisClient, cfg, clk),
		stakeRepo: repository.NewStakeRepository(db),
	}
}

type StakeEvent struct {
	Owner          string `json:"owner"`
	Amount         uint64 `json:"amount"`
	StakedAmount   uint64 `json:"staked_amount"`
	PendingRewards uint64 `json:"pending_rewards"`
	Penalty        uint64 `json:"penalty,omitempty"`
	PenaltyTier    int    `json:"penalty_tier,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// Deposit 存入质押
func (s *StakingService) Deposit(ctx context.Context, owner string, amount uint64) (*model.StakeRecord, error) {
	if owner == "" {
		return nil, invalidInput("owner 不能为空")
	}
	if amount == 0 {
		return nil, invalidInput("质押数量必须大于0")
	}

	now := s.clock.Now()
	var record *model.StakeRecord

	err := s.withOwnerLock(ctx, owner, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			policy, err := s.stakeRepo.GetPolicyForUpdate(ctx, tx)
			if err != nil {
				return fmt.Errorf("查询质押策略失败: %w", err)
			}

			var pending uint64
			record, err = s.stakeRepo.GetByOwnerForUpdate(ctx, tx, owner)
			switch {
			case errors.Is(err, repository.ErrStakeNotFound):
				record = &model.StakeRecord{
					Owner:        owner,
					StakedAmount: amount,
					StakeStartAt: now,
					LastClaimAt:  now,
				}
			case err != nil:
				return fmt.Errorf("查询质押记录失败: %w", err)
			default:
				if record.StakedAmount > math.MaxUint64-amount {
					return invalidInput("质押数量溢出")
				}
				pending = yieldcalc.Accrue(record.StakedAmount, policy.DailyYieldBps, record.LastClaimAt, now)
				if record.StakedAmount == 0 {
					record.StakeStartAt = now
				}
				record.StakedAmount += amount
				record.LastClaimAt = now
				record.CumulativeRewards += pending
			}
			if policy.TotalStaked > math.MaxUint64-amount {
				return invalidInput("质押总量溢出")
			}

			if _, err := s.ledger.OpenParticipantVault(ctx, tx, owner); err != nil {
				return fmt.Errorf("打开参与者金库失败: %w", err)
			}
			_, err = s.ledger.Transfer(ctx, tx, ledger.Participant(owner),
				model.ParticipantVaultName(owner), s.cfg.Business.Vaults.StakeVault, amount, model.MemoStakeDeposit)
			if err != nil {
				return transferError(err)
			}

			if record.ID == 0 {
				err = s.stakeRepo.Create(ctx, tx, record)
			} else {
				err = s.stakeRepo.Save(ctx, tx, record)
			}
			if err != nil {
				return fmt.Errorf("保存质押记录失败: %w", err)
			}

			policy.TotalStaked += amount
			if err := s.stakeRepo.SavePolicy(ctx, tx, policy); err != nil {
				return fmt.Errorf("更新质押总量失败: %w", err)
			}

			return s.publish(ctx, tx, s.cfg.Kafka.Topic.StakeEvent, model.EventStakeDeposited, owner, &StakeEvent{
				Owner:          owner,
				Amount:         amount,
				StakedAmount:   record.StakedAmount,
				PendingRewards: pending,
				Timestamp:      now,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[StakingService] 质押成功: owner=%s, amount=%d, staked=%d", owner, amount, record.StakedAmount)
	return record, nil
}

type WithdrawResult struct {
	Owner          string `json:"owner"`
	Amount         uint64 `json:"amount"`
	Returned       uint64 `json:"returned"`
	Penalty        uint64 `json:"penalty"`
	PenaltyTier    int    `json:"penalty_tier"`
	PenaltyBps     uint16 `json:"penalty_bps"`
	PendingRewards uint64 `json:"pending_rewards"`
	StakedAmount   uint64 `json:"staked_amount"`
}

// Withdraw 提取质押，按质押时长扣除罚金
func (s *StakingService) Withdraw(ctx context.Context, owner string, amount uint64) (*WithdrawResult, error) {
	if owner == "" {
		return nil, invalidInput("owner 不能为空")
	}
	if amount == 0 {
		return nil, invalidInput("提取数量必须大于0")
	}

	now := s.clock.Now()
	var result *WithdrawResult

	err := s.withOwnerLock(ctx, owner, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			policy, err := s.stakeRepo.GetPolicyForUpdate(ctx, tx)
			if err != nil {
				return fmt.Errorf("查询质押策略失败: %w", err)
			}
			record, err := s.stakeRepo.GetByOwnerForUpdate(ctx, tx, owner)
			if err != nil {
				if errors.Is(err, repository.ErrStakeNotFound) {
					return insufficient("owner=%s 没有质押", owner)
				}
				return fmt.Errorf("查询质押记录失败: %w", err)
			}
			if amount > record.StakedAmount {
				return insufficient("提取 %d 超过质押余额 %d", amount, record.StakedAmount)
			}

			pending := yieldcalc.Accrue(record.StakedAmount, policy.BaseAPRBps, record.LastClaimAt, now)
			tier := yieldcalc.PenaltyTier(yieldcalc.ElapsedHours(record.StakeStartAt, now), policy.Thresholds())
			penaltyBps := policy.PenaltyTiers()[tier]
			penalty := yieldcalc.ApplyBps(amount, uint64(penaltyBps))
			returned := amount - penalty

			stakeVault := s.cfg.Business.Vaults.StakeVault
			signer := s.ledger.Signer(stakeVault)
			if _, err := s.ledger.OpenParticipantVault(ctx, tx, owner); err != nil {
				return fmt.Errorf("打开参与者金库失败: %w", err)
			}
			if _, err := s.ledger.Transfer(ctx, tx, signer, stakeVault, model.ParticipantVaultName(owner), returned, model.MemoStakeWithdraw); err != nil {
				return transferError(err)
			}
			if _, err := s.ledger.Transfer(ctx, tx, signer, stakeVault, s.cfg.Business.Vaults.RewardsPool, penalty, model.MemoStakePenalty); err != nil {
				return transferError(err)
			}

			record.StakedAmount -= amount
			record.LastClaimAt = now
			record.CumulativeRewards += pending
			if record.StakedAmount == 0 {
				record.StakeStartAt = 0
			}
			if err := s.stakeRepo.Save(ctx, tx, record); err != nil {
				return fmt.Errorf("保存质押记录失败: %w", err)
			}

			policy.TotalStaked -= amount
			if err := s.stakeRepo.SavePolicy(ctx, tx, policy); err != nil {
				return fmt.Errorf("更新质押总量失败: %w", err)
			}

			result = &WithdrawResult{
				Owner:          owner,
				Amount:         amount,
				Returned:       returned,
				Penalty:        penalty,
				PenaltyTier:    tier,
				PenaltyBps:     penaltyBps,
				PendingRewards: pending,
				StakedAmount:   record.StakedAmount,
			}
			return s.publish(ctx, tx, s.cfg.Kafka.Topic.StakeEvent, model.EventStakeWithdrawn, owner, &StakeEvent{
				Owner:          owner,
				Amount:         amount,
				StakedAmount:   record.StakedAmount,
				PendingRewards: pending,
				Penalty:        penalty,
				PenaltyTier:    tier,
				Timestamp:      now,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[StakingService] 提取成功: owner=%s, amount=%d, returned=%d, penalty=%d, tier=%d",
		owner, amount, result.Returned, result.Penalty, result.PenaltyTier)
	return result, nil
}

// ClaimRewards 按日收益率领取待领收益
func (s *StakingService) ClaimRewards(ctx context.Context, owner string) (uint64, error) {
	if owner == "" {
		return 0, invalidInput("owner 不能为空")
	}

	now := s.clock.Now()
	var pending uint64

	err := s.withOwnerLock(ctx, owner, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			policy, err := s.stakeRepo.GetPolicy(ctx, tx)
			if err != nil {
				return fmt.Errorf("查询质押策略失败: %w", err)
			}
			record, err := s.stakeRepo.GetByOwnerForUpdate(ctx, tx, owner)
			if err != nil {
				if errors.Is(err, repository.ErrStakeNotFound) {
					return nothingToClaim("owner=%s 没有质押", owner)
				}
				return fmt.Errorf("查询质押记录失败: %w", err)
			}

			pending = yieldcalc.Accrue(record.StakedAmount, policy.DailyYieldBps, record.LastClaimAt, now)
			if pending == 0 {
				return nothingToClaim("owner=%s 待领收益为0", owner)
			}

			if err := s.payout(ctx, tx, s.cfg.Business.Vaults.StakingPayout, owner, pending, model.MemoStakeReward); err != nil {
				return err
			}

			record.LastClaimAt = now
			record.CumulativeRewards += pending
			if err := s.stakeRepo.Save(ctx, tx, record); err != nil {
				return fmt.Errorf("保存质押记录失败: %w", err)
			}

			return s.publish(ctx, tx, s.cfg.Kafka.Topic.StakeEvent, model.EventRewardsClaimed, owner, &StakeEvent{
				Owner:          owner,
				Amount:         pending,
				StakedAmount:   record.StakedAmount,
				PendingRewards: pending,
				Timestamp:      now,
			})
		})
	})
	if err != nil {
		return 0, err
	}

	log.Printf("[StakingService] 领取收益成功: owner=%s, rewards=%d", owner, pending)
	return pending, nil
}

// UpdatePolicy 修改利率，dailyYieldBps 为 nil 时保持不变
func (s *StakingService) UpdatePolicy(ctx context.Context, caller string, baseAPRBps uint16, dailyYieldBps *uint16) (*model.StakingPolicy, error) {
	var policy *model.StakingPolicy
	err := s.withPolicyLock(ctx, model.PolicyStaking, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			policy, err = s.stakeRepo.GetPolicyForUpdate(ctx, tx)
			if err != nil {
				return fmt.Errorf("查询质押策略失败: %w", err)
			}
			if err := checkAuthority(policy.Authority, caller); err != nil {
				return err
			}
			if baseAPRBps > maxBaseAPRBps {
				return invalidInput("base_apr_bps 不能超过 %d", maxBaseAPRBps)
			}
			if dailyYieldBps != nil && *dailyYieldBps > maxDailyYieldBps {
				return invalidInput("daily_yield_bps 不能超过 %d", maxDailyYieldBps)
			}

			policy.BaseAPRBps = baseAPRBps
			if dailyYieldBps != nil {
				policy.DailyYieldBps = *dailyYieldBps
			}
			return s.stakeRepo.SavePolicy(ctx, tx, policy)
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[StakingService] 利率已更新: base_apr_bps=%d, daily_yield_bps=%d", policy.BaseAPRBps, policy.DailyYieldBps)
	return policy, nil
}

// ReplacePenaltySchedule 整体替换罚金档位
func (s *StakingService) ReplacePenaltySchedule(ctx context.Context, caller string, tiers [4]uint16, thresholds [4]uint32) (*model.StakingPolicy, error) {
	var policy *model.StakingPolicy
	err := s.withPolicyLock(ctx, model.PolicyStaking, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			policy, err = s.stakeRepo.GetPolicyForUpdate(ctx, tx)
			if err != nil {
				return fmt.Errorf("查询质押策略失败: %w", err)
			}
			if err := checkAuthority(policy.Authority, caller); err != nil {
				return err
			}
			if err := ValidatePenaltySchedule(tiers, thresholds); err != nil {
				return err
			}

			policy.SetPenaltySchedule(tiers, thresholds)
			return s.stakeRepo.SavePolicy(ctx, tx, policy)
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[StakingService] 罚金档位已替换: tiers=%v, thresholds=%v", tiers, thresholds)
	return policy, nil
}

// ValidatePenaltySchedule 每档不超过 10000 bps，阈值严格递增
func ValidatePenaltySchedule(tiers [4]uint16, thresholds [4]uint32) error {
	for i, bps := range tiers {
		if bps > yieldcalc.BpsDenominator {
			return invalidInput("第 %d 档罚金 %d bps 超过 10000", i, bps)
		}
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return invalidInput("罚金阈值必须严格递增: %v", thresholds)
		}
	}
	return nil
}

// StakeOf 当前质押数量，没有记录时为 0
// tx 非空时在调用方事务内读取
func (s *StakingService) StakeOf(ctx context.Context, tx *gorm.DB, owner string) (uint64, error) {
	record, err := s.stakeRepo.GetByOwner(ctx, tx, owner)
	if err != nil {
		if errors.Is(err, repository.ErrStakeNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return record.StakedAmount, nil
}

type StakeView struct {
	*model.StakeRecord
	PendingRewards uint64 `json:"pending_rewards"`
	PenaltyTier    int    `json:"penalty_tier"`
	PenaltyBps     uint16 `json:"penalty_bps"`
}

// GetStake 质押记录以及此刻的待领收益和罚金档位
func (s *StakingService) GetStake(ctx context.Context, owner string) (*StakeView, error) {
	policy, err := s.stakeRepo.GetPolicy(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("查询质押策略失败: %w", err)
	}
	record, err := s.stakeRepo.GetByOwner(ctx, nil, owner)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	view := &StakeView{
		StakeRecord:    record,
		PendingRewards: yieldcalc.Accrue(record.StakedAmount, policy.DailyYieldBps, record.LastClaimAt, now),
		PenaltyTier:    3,
	}
	if record.StakedAmount > 0 {
		view.PenaltyTier = yieldcalc.PenaltyTier(yieldcalc.ElapsedHours(record.StakeStartAt, now), policy.Thresholds())
	}
	view.PenaltyBps = policy.PenaltyTiers()[view.PenaltyTier]
	return view, nil
}

func (s *StakingService) GetPolicy(ctx context.Context) (*model.StakingPolicy, error) {
	return s.stakeRepo.GetPolicy(ctx, nil)
}
