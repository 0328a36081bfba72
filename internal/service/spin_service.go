package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"yieldengine/internal/config"
	"yieldengine/internal/infrastructure/randomness"
	"yieldengine/internal/ledger"
	"yieldengine/internal/model"
	"yieldengine/internal/repository"
	"yieldengine/pkg/clock"
	"yieldengine/pkg/idgen"
	"yieldengine/pkg/yieldcalc"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const (
	luckyCharmBonus = 10

	maxLuckyCharmSpins = 5
	maxAmplifierHours  = 24
	maxShieldSpins     = 3
)

// StakeReader 转盘收益以质押数量为本金
type StakeReader interface {
	StakeOf(ctx context.Context, tx *gorm.DB, owner string) (uint64, error)
}

// ============================================================================
// 转盘
// ============================================================================
//
// 每个参与者：空闲 -> 冷却中 -> 可转 -> 空闲。
// 一次转盘只读一次时间、取一次种子，同一个种子既决定是否 moonshot，
// 也决定区间内的收益率。
//
// 加成的作用顺序：
//   1. 幸运符：moonshot 概率 +10，消耗一次
//   2. 护盾：收益率低于保底时抬到保底，消耗一次
//   3. 放大器：有效期内收益率 x1.5，叠加在护盾之后
//
// 种子来源是弱随机（见 randomness 包），只用于低价值分支。
//
// ============================================================================

type SpinService struct {
	base
	spinRepo *repository.SpinRepository
	stakes   StakeReader
	seeds    randomness.Source
}

func NewSpinService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, clk clock.Clock, stakes StakeReader, seeds randomness.Source) *SpinService {
	if seeds == nil {
		seeds = randomness.NewRecentIDSource()
	}
	return &SpinService{
		base:     newBase(db, redisClient, cfg, clk),
		spinRepo: repository.NewSpinRepository(db),
		stakes:   stakes,
		seeds:    seeds,
	}
}

type SpinResult struct {
	SpinNo          string `json:"spin_no"`
	Owner           string `json:"owner"`
	Kind            string `json:"kind"`
	YieldBps        uint32 `json:"yield_bps"`
	IsMoonshot      bool   `json:"is_moonshot"`
	StakeAmount     uint64 `json:"stake_amount"`
	TokensPaid      uint64 `json:"tokens_paid"`
	LuckyCharmUsed  bool   `json:"lucky_charm_used"`
	AmplifierActive bool   `json:"amplifier_active"`
	ShieldUsed      bool   `json:"shield_used"`
	SpinAt          int64  `json:"spin_at"`
}

func resultOf(record *model.SpinRecord) *SpinResult {
	return &SpinResult{
		SpinNo:          record.SpinNo,
		Owner:           record.Owner,
		Kind:            record.Kind,
		YieldBps:        record.YieldBps,
		IsMoonshot:      record.IsMoonshot,
		StakeAmount:     record.StakeAmount,
		TokensPaid:      record.TokensPaid,
		LuckyCharmUsed:  record.LuckyCharmUsed,
		AmplifierActive: record.AmplifierActive,
		ShieldUsed:      record.ShieldUsed,
		SpinAt:          record.SpinAt,
	}
}

// Outcome 一次转盘的抽取结果
type Outcome struct {
	YieldBps        uint32
	IsMoonshot      bool
	LuckyCharmUsed  bool
	ShieldUsed      bool
	AmplifierActive bool
}

// Draw 根据种子和加成计算收益率，会扣减 profile 上被消耗的加成次数
func Draw(policy *model.SpinPolicy, profile *model.SpinProfile, seed uint64, now int64) Outcome {
	var out Outcome

	probability := uint64(policy.MoonshotProbability)
	if profile.LuckySpins > 0 {
		probability += luckyCharmBonus
		profile.LuckySpins--
		out.LuckyCharmUsed = true
	}
	out.IsMoonshot = seed%100 < probability

	lo, hi := policy.BaseYieldMinBps, policy.BaseYieldMaxBps
	if out.IsMoonshot {
		lo, hi = policy.MoonshotYieldMinBps, policy.MoonshotYieldMaxBps
	}
	width := uint64(hi) - uint64(lo) + 1
	out.YieldBps = uint32(lo) + uint32(seed%width)

	if profile.ShieldSpins > 0 && out.YieldBps < uint32(policy.FallbackYieldBps) {
		out.YieldBps = uint32(policy.FallbackYieldBps)
		profile.ShieldSpins--
		out.ShieldUsed = true
	}

	if now < profile.AmplifierExpiry {
		out.YieldBps = yieldcalc.Amplify(out.YieldBps)
		out.AmplifierActive = true
	}
	return out
}

type SpinEvent struct {
	SpinNo     string `json:"spin_no"`
	Owner      string `json:"owner"`
	Kind       string `json:"kind"`
	YieldBps   uint32 `json:"yield_bps"`
	IsMoonshot bool   `json:"is_moonshot"`
	TokensPaid uint64 `json:"tokens_paid"`
	Timestamp  int64  `json:"timestamp"`
}

// Spin 转一次盘
func (s *SpinService) Spin(ctx context.Context, owner string) (*SpinResult, error) {
	return s.settle(ctx, owner, model.SpinKindSpin)
}

// ClaimFallbackYield 不转盘，按保底收益率领取，同样重置冷却
func (s *SpinService) ClaimFallbackYield(ctx context.Context, owner string) (*SpinResult, error) {
	return s.settle(ctx, owner, model.SpinKindFallback)
}

func (s *SpinService) settle(ctx context.Context, owner, kind string) (*SpinResult, error) {
	if owner == "" {
		return nil, invalidInput("owner 不能为空")
	}

	now := s.clock.Now()
	if now <= 0 {
		return nil, invalidInput("当前时间无效: %d", now)
	}
	var record *model.SpinRecord

	err := s.withOwnerLock(ctx, owner, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			policy, err := s.spinRepo.GetPolicy(ctx, tx)
			if err != nil {
				return fmt.Errorf("查询转盘策略失败: %w", err)
			}
			profile, err := s.spinRepo.GetOrCreateProfileForUpdate(ctx, tx, owner)
			if err != nil {
				return fmt.Errorf("查询转盘档案失败: %w", err)
			}
			if !profile.Eligible(now, policy.CooldownSeconds) {
				return notYetEligible("冷却中，还需 %d 秒", profile.LastSpinAt+int64(policy.CooldownSeconds)-now)
			}

			stake, err := s.stakes.StakeOf(ctx, tx, owner)
			if err != nil {
				return fmt.Errorf("查询质押数量失败: %w", err)
			}
			if stake == 0 {
				return insufficient("owner=%s 没有质押", owner)
			}

			record = &model.SpinRecord{
				SpinNo:      idgen.GenerateSpinNo(),
				Owner:       owner,
				Kind:        kind,
				SpinAt:      now,
				StakeAmount: stake,
			}
			if kind == model.SpinKindSpin {
				record.Seed = s.seeds.Seed(owner, uint64(profile.SpinCount))
				out := Draw(policy, profile, record.Seed, now)
				record.YieldBps = out.YieldBps
				record.IsMoonshot = out.IsMoonshot
				record.LuckyCharmUsed = out.LuckyCharmUsed
				record.ShieldUsed = out.ShieldUsed
				record.AmplifierActive = out.AmplifierActive
			} else {
				record.YieldBps = uint32(policy.FallbackYieldBps)
			}
			record.TokensPaid = yieldcalc.ApplyBps(stake, uint64(record.YieldBps))

			memo := model.MemoSpinPayout
			if kind == model.SpinKindFallback {
				memo = model.MemoFallbackPayout
			}
			if err := s.payout(ctx, tx, s.cfg.Business.Vaults.SpinPayout, owner, record.TokensPaid, memo); err != nil {
				return err
			}

			profile.LastSpinAt = now
			if kind == model.SpinKindSpin {
				profile.SpinCount++
			}
			if record.IsMoonshot {
				profile.TotalMoonshotEarned += record.TokensPaid
			} else {
				profile.TotalBaseEarned += record.TokensPaid
			}
			if err := s.spinRepo.SaveProfile(ctx, tx, profile); err != nil {
				return fmt.Errorf("保存转盘档案失败: %w", err)
			}
			if err := s.spinRepo.CreateRecord(ctx, tx, record); err != nil {
				return fmt.Errorf("写入转盘记录失败: %w", err)
			}

			eventType := model.EventSpinSettled
			if kind == model.SpinKindFallback {
				eventType = model.EventFallbackClaimed
			}
			return s.publish(ctx, tx, s.cfg.Kafka.Topic.SpinEvent, eventType, owner, &SpinEvent{
				SpinNo:     record.SpinNo,
				Owner:      owner,
				Kind:       kind,
				YieldBps:   record.YieldBps,
				IsMoonshot: record.IsMoonshot,
				TokensPaid: record.TokensPaid,
				Timestamp:  now,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[SpinService] 结算成功: owner=%s, kind=%s, yield_bps=%d, moonshot=%v, paid=%d",
		owner, kind, record.YieldBps, record.IsMoonshot, record.TokensPaid)
	return resultOf(record), nil
}

// 加成类型
const (
	BoosterLuckyCharm = "LUCKY_CHARM"
	BoosterAmplifier  = "YIELD_AMPLIFIER"
	BoosterShield     = "CHAD_SHIELD"
)

type BoosterEvent struct {
	Owner     string `json:"owner"`
	Booster   string `json:"booster"`
	Units     uint8  `json:"units"`
	Cost      uint64 `json:"cost"`
	Timestamp int64  `json:"timestamp"`
}

// ActivateLuckyCharm 购买 1-5 次幸运符
func (s *SpinService) ActivateLuckyCharm(ctx context.Context, owner string, spins uint8) (*model.SpinProfile, error) {
	if spins < 1 || spins > maxLuckyCharmSpins {
		return nil, invalidInput("幸运符次数必须在 1-%d 之间", maxLuckyCharmSpins)
	}
	return s.activate(ctx, owner, BoosterLuckyCharm, spins,
		func(p *model.SpinPolicy) uint64 { return p.LuckyCharmUnitCost },
		func(profile *model.SpinProfile, _ int64) { profile.LuckySpins += uint32(spins) })
}

// ActivateYieldAmplifier 购买 1-24 小时放大器，未过期时在原到期时间上顺延
func (s *SpinService) ActivateYieldAmplifier(ctx context.Context, owner string, hours uint8) (*model.SpinProfile, error) {
	if hours < 1 || hours > maxAmplifierHours {
		return nil, invalidInput("放大器时长必须在 1-%d 小时之间", maxAmplifierHours)
	}
	return s.activate(ctx, owner, BoosterAmplifier, hours,
		func(p *model.SpinPolicy) uint64 { return p.AmplifierUnitCost },
		func(profile *model.SpinProfile, now int64) {
			from := now
			if now < profile.AmplifierExpiry {
				from = profile.AmplifierExpiry
			}
			profile.AmplifierExpiry = from + int64(hours)*yieldcalc.SecondsPerHour
		})
}

// ActivateChadShield 购买 1-3 次保底护盾
func (s *SpinService) ActivateChadShield(ctx context.Context, owner string, spins uint8) (*model.SpinProfile, error) {
	if spins < 1 || spins > maxShieldSpins {
		return nil, invalidInput("护盾次数必须在 1-%d 之间", maxShieldSpins)
	}
	return s.activate(ctx, owner, BoosterShield, spins,
		func(p *model.SpinPolicy) uint64 { return p.ShieldUnitCost },
		func(profile *model.SpinProfile, _ int64) { profile.ShieldSpins += uint32(spins) })
}

func (s *SpinService) activate(ctx context.Context, owner, booster string, units uint8,
	unitCost func(*model.SpinPolicy) uint64, apply func(*model.SpinProfile, int64)) (*model.SpinProfile, error) {
	if owner == "" {
		return nil, invalidInput("owner 不能为空")
	}

	now := s.clock.Now()
	var profile *model.SpinProfile
	var cost uint64

	err := s.withOwnerLock(ctx, owner, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			policy, err := s.spinRepo.GetPolicy(ctx, tx)
			if err != nil {
				return fmt.Errorf("查询转盘策略失败: %w", err)
			}
			cost = yieldcalc.MulDiv(uint64(units), unitCost(policy), 1)

			profile, err = s.spinRepo.GetOrCreateProfileForUpdate(ctx, tx, owner)
			if err != nil {
				return fmt.Errorf("查询转盘档案失败: %w", err)
			}

			if _, err := s.ledger.OpenParticipantVault(ctx, tx, owner); err != nil {
				return fmt.Errorf("打开参与者金库失败: %w", err)
			}
			_, err = s.ledger.Transfer(ctx, tx, ledger.Participant(owner),
				model.ParticipantVaultName(owner), s.cfg.Business.Vaults.RewardsPool, cost, model.MemoBoosterPurchase)
			if err != nil {
				return transferError(err)
			}

			apply(profile, now)
			if err := s.spinRepo.SaveProfile(ctx, tx, profile); err != nil {
				return fmt.Errorf("保存转盘档案失败: %w", err)
			}

			return s.publish(ctx, tx, s.cfg.Kafka.Topic.SpinEvent, model.EventBoosterActivated, owner, &BoosterEvent{
				Owner:     owner,
				Booster:   booster,
				Units:     units,
				Cost:      cost,
				Timestamp: now,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[SpinService] 加成已激活: owner=%s, booster=%s, units=%d, cost=%d", owner, booster, units, cost)
	return profile, nil
}

// SpinPolicyUpdate 为 nil 的字段保持不变
type SpinPolicyUpdate struct {
	BaseYieldMinBps     *uint16 `json:"base_yield_min_bps"`
	BaseYieldMaxBps     *uint16 `json:"base_yield_max_bps"`
	MoonshotYieldMinBps *uint16 `json:"moonshot_yield_min_bps"`
	MoonshotYieldMaxBps *uint16 `json:"moonshot_yield_max_bps"`
	MoonshotProbability *uint8  `json:"moonshot_probability"`
	FallbackYieldBps    *uint16 `json:"fallback_yield_bps"`
	CooldownSeconds     *uint32 `json:"cooldown_seconds"`
}

// UpdateSpinPolicy 部分更新转盘参数，应用后整体校验，不合法时不落库
func (s *SpinService) UpdateSpinPolicy(ctx context.Context, caller string, update *SpinPolicyUpdate) (*model.SpinPolicy, error) {
	var policy *model.SpinPolicy
	err := s.withPolicyLock(ctx, model.PolicySpin, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			policy, err = s.spinRepo.GetPolicyForUpdate(ctx, tx)
			if err != nil {
				return fmt.Errorf("查询转盘策略失败: %w", err)
			}
			if err := checkAuthority(policy.Authority, caller); err != nil {
				return err
			}

			if update.BaseYieldMinBps != nil {
				policy.BaseYieldMinBps = *update.BaseYieldMinBps
			}
			if update.BaseYieldMaxBps != nil {
				policy.BaseYieldMaxBps = *update.BaseYieldMaxBps
			}
			if update.MoonshotYieldMinBps != nil {
				policy.MoonshotYieldMinBps = *update.MoonshotYieldMinBps
			}
			if update.MoonshotYieldMaxBps != nil {
				policy.MoonshotYieldMaxBps = *update.MoonshotYieldMaxBps
			}
			if update.MoonshotProbability != nil {
				policy.MoonshotProbability = *update.MoonshotProbability
			}
			if update.FallbackYieldBps != nil {
				policy.FallbackYieldBps = *update.FallbackYieldBps
			}
			if update.CooldownSeconds != nil {
				policy.CooldownSeconds = *update.CooldownSeconds
			}
			if err := ValidateSpinPolicy(policy); err != nil {
				return err
			}
			return s.spinRepo.SavePolicy(ctx, tx, policy)
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[SpinService] 转盘参数已更新: base=[%d,%d], moonshot=[%d,%d], probability=%d, fallback=%d, cooldown=%d",
		policy.BaseYieldMinBps, policy.BaseYieldMaxBps, policy.MoonshotYieldMinBps, policy.MoonshotYieldMaxBps,
		policy.MoonshotProbability, policy.FallbackYieldBps, policy.CooldownSeconds)
	return policy, nil
}

// ValidateSpinPolicy 区间 min <= max，概率不超过 100，冷却大于 0
func ValidateSpinPolicy(policy *model.SpinPolicy) error {
	if policy.BaseYieldMinBps > policy.BaseYieldMaxBps {
		return invalidInput("基础收益区间不合法: [%d,%d]", policy.BaseYieldMinBps, policy.BaseYieldMaxBps)
	}
	if policy.MoonshotYieldMinBps > policy.MoonshotYieldMaxBps {
		return invalidInput("moonshot 收益区间不合法: [%d,%d]", policy.MoonshotYieldMinBps, policy.MoonshotYieldMaxBps)
	}
	if policy.MoonshotProbability > 100 {
		return invalidInput("moonshot 概率不能超过 100: %d", policy.MoonshotProbability)
	}
	if policy.CooldownSeconds == 0 {
		return invalidInput("冷却时间必须大于0")
	}
	return nil
}

func (s *SpinService) GetSpinProfile(ctx context.Context, owner string) (*model.SpinProfile, error) {
	profile, err := s.spinRepo.GetProfile(ctx, nil, owner)
	if errors.Is(err, repository.ErrSpinProfileNotFound) {
		return &model.SpinProfile{Owner: owner}, nil
	}
	return profile, err
}

func (s *SpinService) ListSpinRecords(ctx context.Context, owner string, page, pageSize int) ([]*model.SpinRecord, int64, error) {
	return s.spinRepo.ListRecords(ctx, owner, page, pageSize)
}

func (s *SpinService) GetPolicy(ctx context.Context) (*model.SpinPolicy, error) {
	return s.spinRepo.GetPolicy(ctx, nil)
}
