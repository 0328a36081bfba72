package model

import (
	"time"
)

// StakingPolicy 质押全局参数
//
// 日收益率与基础年化是两个独立参数：领取与追加质押按日收益率计息，
// 解押时按基础年化另算一笔，两者不合并
type StakingPolicy struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Authority       string    `gorm:"type:varchar(128);not null" json:"authority"`
	TotalStaked     uint64    `gorm:"not null;default:0" json:"total_staked"`
	BaseAPRBps      uint16    `gorm:"not null" json:"base_apr_bps"`
	DailyYieldBps   uint16    `gorm:"not null" json:"daily_yield_bps"`
	PenaltyTier0Bps uint16    `gorm:"not null" json:"penalty_tier0_bps"`
	PenaltyTier1Bps uint16    `gorm:"not null" json:"penalty_tier1_bps"`
	PenaltyTier2Bps uint16    `gorm:"not null" json:"penalty_tier2_bps"`
	PenaltyTier3Bps uint16    `gorm:"not null" json:"penalty_tier3_bps"`
	Threshold0Hours uint32    `gorm:"not null" json:"threshold0_hours"`
	Threshold1Hours uint32    `gorm:"not null" json:"threshold1_hours"`
	Threshold2Hours uint32    `gorm:"not null" json:"threshold2_hours"`
	Threshold3Hours uint32    `gorm:"not null" json:"threshold3_hours"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StakingPolicy) TableName() string {
	return "staking_policy"
}

func (p *StakingPolicy) PenaltyTiers() [4]uint16 {
	return [4]uint16{p.PenaltyTier0Bps, p.PenaltyTier1Bps, p.PenaltyTier2Bps, p.PenaltyTier3Bps}
}

func (p *StakingPolicy) Thresholds() [4]uint32 {
	return [4]uint32{p.Threshold0Hours, p.Threshold1Hours, p.Threshold2Hours, p.Threshold3Hours}
}

// SetPenaltySchedule 整表替换罚金档位
func (p *StakingPolicy) SetPenaltySchedule(tiers [4]uint16, hours [4]uint32) {
	p.PenaltyTier0Bps, p.PenaltyTier1Bps, p.PenaltyTier2Bps, p.PenaltyTier3Bps = tiers[0], tiers[1], tiers[2], tiers[3]
	p.Threshold0Hours, p.Threshold1Hours, p.Threshold2Hours, p.Threshold3Hours = hours[0], hours[1], hours[2], hours[3]
}

// StakeRecord 参与者质押记录
// 首次质押时创建，余额归零后保留，StakeStartAt 重置为 0
type StakeRecord struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Owner             string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"owner"`
	StakedAmount      uint64    `gorm:"not null;default:0" json:"staked_amount"`
	StakeStartAt      int64     `gorm:"not null;default:0" json:"stake_start_at"` // unix 秒
	LastClaimAt       int64     `gorm:"not null;default:0" json:"last_claim_at"`
	CumulativeRewards uint64    `gorm:"not null;default:0" json:"cumulative_rewards"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StakeRecord) TableName() string {
	return "stake_record"
}
