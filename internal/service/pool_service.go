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
	"yieldengine/pkg/clock"
	"yieldengine/pkg/idgen"
	"yieldengine/pkg/yieldcalc"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ============================================================================
// 奖励池分配
// ============================================================================
//
// Distribute 任何人都可以触发，只受时间间隔限制。每份按
// floor(B * bps / 10000) 计算，截断产生的余数留在源金库，下一轮一起分。
// EmergencyWithdraw 只能从储备子池出账，除余额外没有额度限制。
//
// ============================================================================

type PoolService struct {
	base
	poolRepo *repository.PoolRepository
}

func NewPoolService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, clk clock.Clock) *PoolService {
	return &PoolService{
		base:     newBase(db, redisClient, cfg, clk),
		poolRepo: repository.NewPoolRepository(db),
	}
}

type DistributionEvent struct {
	DistributionNo string            `json:"distribution_no"`
	TotalAmount    uint64            `json:"total_amount"`
	Shares         map[string]uint64 `json:"shares"`
	Remainder      uint64            `json:"remainder"`
	Timestamp      int64             `json:"timestamp"`
}

// Shares 按比例切分余额，返回各子池份额与截断余数
func Shares(balance uint64, policy *model.PoolPolicy) (map[string]uint64, uint64) {
	shares := make(map[string]uint64, len(model.SubPoolTypes))
	var sum uint64
	for _, poolType := range model.SubPoolTypes {
		share := yieldcalc.ApplyBps(balance, uint64(policy.AllocationOf(poolType)))
		shares[poolType] = share
		sum += share
	}
	return shares, balance - sum
}

// Distribute 把源金库当前余额按比例划入四个子池
func (s *PoolService) Distribute(ctx context.Context) (*model.DistributionHistory, error) {
	now := s.clock.Now()
	var history *model.DistributionHistory

	err := s.withPoolLock(ctx, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			policy, err := s.poolRepo.GetPolicyForUpdate(ctx, tx)
			if err != nil {
				return fmt.Errorf("查询奖励池策略失败: %w", err)
			}
			if next := policy.LastDistributionAt + policy.DistributionIntervalSeconds; now < next {
				return notYetEligible("距下次分配还有 %d 秒", next-now)
			}

			balance, err := s.ledger.BalanceForUpdate(ctx, tx, policy.SourceVault)
			if err != nil {
				return fmt.Errorf("查询奖励池余额失败: %w", err)
			}
			if balance == 0 {
				return nothingToClaim("奖励池余额为0")
			}

			shares, remainder := Shares(balance, policy)
			signer := s.ledger.Signer(policy.SourceVault)
			for _, poolType := range model.SubPoolTypes {
				share := shares[poolType]
				if share == 0 {
					continue
				}
				subPool, err := s.poolRepo.GetSubPoolForUpdate(ctx, tx, poolType)
				if err != nil {
					return fmt.Errorf("查询子池 %s 失败: %w", poolType, err)
				}
				if _, err := s.ledger.Transfer(ctx, tx, signer, policy.SourceVault, subPool.VaultName, share, model.MemoPoolAllocation); err != nil {
					return transferError(err)
				}
				subPool.TotalReceived += share
				if err := s.poolRepo.SaveSubPool(ctx, tx, subPool); err != nil {
					return fmt.Errorf("更新子池 %s 失败: %w", poolType, err)
				}
			}

			history = &model.DistributionHistory{
				DistributionNo: idgen.GenerateDistributionNo(),
				DistributedAt:  now,
				TotalAmount:    balance,
				StakingAmount:  shares[model.SubPoolStaking],
				SpinAmount:     shares[model.SubPoolSpin],
				ReferralAmount: shares[model.SubPoolReferral],
				ReserveAmount:  shares[model.SubPoolReserve],
				Remainder:      remainder,
			}
			if err := s.poolRepo.CreateHistory(ctx, tx, history); err != nil {
				return fmt.Errorf("写入分配记录失败: %w", err)
			}

			policy.LastDistributionAt = now
			policy.TotalDistributed += balance
			if err := s.poolRepo.SavePolicy(ctx, tx, policy); err != nil {
				return fmt.Errorf("更新奖励池策略失败: %w", err)
			}

			return s.publish(ctx, tx, s.cfg.Kafka.Topic.PoolEvent, model.EventRewardsDistributed, history.DistributionNo, &DistributionEvent{
				DistributionNo: history.DistributionNo,
				TotalAmount:    balance,
				Shares:         shares,
				Remainder:      remainder,
				Timestamp:      now,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[PoolService] 分配完成: no=%s, total=%d, staking=%d, spin=%d, referral=%d, reserve=%d, remainder=%d",
		history.DistributionNo, history.TotalAmount, history.StakingAmount, history.SpinAmount,
		history.ReferralAmount, history.ReserveAmount, history.Remainder)
	return history, nil
}

// ValidateAllocations 四个比例之和必须恰好为 10000
func ValidateAllocations(allocations [4]uint16) error {
	var sum uint32
	for _, bps := range allocations {
		sum += uint32(bps)
	}
	if sum != yieldcalc.BpsDenominator {
		return invalidInput("分配比例之和必须为 10000，当前为 %d", sum)
	}
	return nil
}

// UpdateAllocations 按 staking/spin/referral/reserve 顺序更新比例，策略与四个子池在同一事务内修改
func (s *PoolService) UpdateAllocations(ctx context.Context, caller string, allocations [4]uint16) (*model.PoolPolicy, error) {
	var policy *model.PoolPolicy

	err := s.withPoolLock(ctx, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			policy, err = s.poolRepo.GetPolicyForUpdate(ctx, tx)
			if err != nil {
				return fmt.Errorf("查询奖励池策略失败: %w", err)
			}
			if err := checkAuthority(policy.Authority, caller); err != nil {
				return err
			}
			if err := ValidateAllocations(allocations); err != nil {
				return err
			}

			policy.StakingBps, policy.SpinBps, policy.ReferralBps, policy.ReserveBps =
				allocations[0], allocations[1], allocations[2], allocations[3]
			if err := s.poolRepo.SavePolicy(ctx, tx, policy); err != nil {
				return fmt.Errorf("更新奖励池策略失败: %w", err)
			}

			for _, poolType := range model.SubPoolTypes {
				subPool, err := s.poolRepo.GetSubPoolForUpdate(ctx, tx, poolType)
				if err != nil {
					return fmt.Errorf("查询子池 %s 失败: %w", poolType, err)
				}
				subPool.AllocationBps = policy.AllocationOf(poolType)
				if err := s.poolRepo.SaveSubPool(ctx, tx, subPool); err != nil {
					return fmt.Errorf("更新子池 %s 失败: %w", poolType, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[PoolService] 分配比例已更新: staking=%d, spin=%d, referral=%d, reserve=%d",
		policy.StakingBps, policy.SpinBps, policy.ReferralBps, policy.ReserveBps)
	return policy, nil
}

type EmergencyEvent struct {
	Caller      string `json:"caller"`
	Amount      uint64 `json:"amount"`
	Destination string `json:"destination"`
	TransferNo  string `json:"transfer_no"`
	Timestamp   int64  `json:"timestamp"`
}

// EmergencyWithdraw 从储备子池划出到指定金库
func (s *PoolService) EmergencyWithdraw(ctx context.Context, caller string, amount uint64, destination string) (string, error) {
	if destination == "" {
		return "", invalidInput("目标金库不能为空")
	}

	now := s.clock.Now()
	var transferNo string

	err := s.withPoolLock(ctx, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			policy, err := s.poolRepo.GetPolicy(ctx, tx)
			if err != nil {
				return fmt.Errorf("查询奖励池策略失败: %w", err)
			}
			if err := checkAuthority(policy.Authority, caller); err != nil {
				return err
			}
			if amount == 0 {
				return invalidInput("提取数量必须大于0")
			}

			reserve, err := s.poolRepo.GetSubPoolForUpdate(ctx, tx, model.SubPoolReserve)
			if err != nil {
				return fmt.Errorf("查询储备子池失败: %w", err)
			}
			if _, err := s.ledger.Vault(ctx, tx, destination); err != nil {
				if errors.Is(err, ledger.ErrVaultNotFound) {
					return invalidInput("目标金库不存在: %s", destination)
				}
				return fmt.Errorf("查询目标金库失败: %w", err)
			}
			if destination == reserve.VaultName {
				return invalidInput("目标金库不能是储备子池自身")
			}
			balance, err := s.ledger.BalanceForUpdate(ctx, tx, reserve.VaultName)
			if err != nil {
				return fmt.Errorf("查询储备余额失败: %w", err)
			}
			if amount > balance {
				return insufficient("储备余额 %d 不足 %d", balance, amount)
			}

			transferNo, err = s.ledger.Transfer(ctx, tx, s.ledger.Signer(reserve.VaultName), reserve.VaultName, destination, amount, model.MemoEmergency)
			if err != nil {
				return transferError(err)
			}

			reserve.TotalDistributed += amount
			if err := s.poolRepo.SaveSubPool(ctx, tx, reserve); err != nil {
				return fmt.Errorf("更新储备子池失败: %w", err)
			}

			return s.publish(ctx, tx, s.cfg.Kafka.Topic.PoolEvent, model.EventEmergencyWithdrawn, transferNo, &EmergencyEvent{
				Caller:      caller,
				Amount:      amount,
				Destination: destination,
				TransferNo:  transferNo,
				Timestamp:   now,
			})
		})
	})
	if err != nil {
		return "", err
	}

	log.Printf("[PoolService] 紧急提取: caller=%s, amount=%d, destination=%s, transfer_no=%s", caller, amount, destination, transferNo)
	return transferNo, nil
}

type PoolView struct {
	Policy        *model.PoolPolicy `json:"policy"`
	SubPools      []*SubPoolView    `json:"sub_pools"`
	SourceBalance uint64            `json:"source_balance"`
}

type SubPoolView struct {
	*model.SubPool
	Balance uint64 `json:"balance"`
}

// GetPool 策略、子池及各金库当前余额
func (s *PoolService) GetPool(ctx context.Context) (*PoolView, error) {
	policy, err := s.poolRepo.GetPolicy(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("查询奖励池策略失败: %w", err)
	}
	subPools, err := s.poolRepo.ListSubPools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("查询子池失败: %w", err)
	}

	view := &PoolView{Policy: policy}
	view.SourceBalance, err = s.ledger.Balance(ctx, nil, policy.SourceVault)
	if err != nil {
		return nil, fmt.Errorf("查询奖励池余额失败: %w", err)
	}
	for _, sp := range subPools {
		balance, err := s.ledger.Balance(ctx, nil, sp.VaultName)
		if err != nil {
			return nil, fmt.Errorf("查询子池 %s 余额失败: %w", sp.PoolType, err)
		}
		view.SubPools = append(view.SubPools, &SubPoolView{SubPool: sp, Balance: balance})
	}
	return view, nil
}

func (s *PoolService) ListDistributions(ctx context.Context, page, pageSize int) ([]*model.DistributionHistory, int64, error) {
	return s.poolRepo.ListHistory(ctx, page, pageSize)
}

// Remainder 源金库当前未分配的余额
func (s *PoolService) Remainder(ctx context.Context) (uint64, error) {
	policy, err := s.poolRepo.GetPolicy(ctx, nil)
	if err != nil {
		return 0, err
	}
	return s.ledger.Balance(ctx, nil, policy.SourceVault)
}
