package model

import (
	"time"
)

const (
	SubPoolStaking  = "STAKING"
	SubPoolSpin     = "SPIN"
	SubPoolReferral = "REFERRAL"
	SubPoolReserve  = "RESERVE"
)

// SubPoolTypes 固定的分配顺序
var SubPoolTypes = []string{SubPoolStaking, SubPoolSpin, SubPoolReferral, SubPoolReserve}

// PoolPolicy 奖励池分配参数
type PoolPolicy struct {
	ID                          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Authority                   string    `gorm:"type:varchar(128);not null" json:"authority"`
	SourceVault                 string    `gorm:"type:varchar(128);not null" json:"source_vault"`
	StakingBps                  uint16    `gorm:"not null" json:"staking_bps"`
	SpinBps                     uint16    `gorm:"not null" json:"spin_bps"`
	ReferralBps                 uint16    `gorm:"not null" json:"referral_bps"`
	ReserveBps                  uint16    `gorm:"not null" json:"reserve_bps"`
	LastDistributionAt          int64     `gorm:"not null;default:0" json:"last_distribution_at"`
	DistributionIntervalSeconds int64     `gorm:"not null" json:"distribution_interval_seconds"`
	TotalDistributed            uint64    `gorm:"not null;default:0" json:"total_distributed"`
	CreatedAt                   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PoolPolicy) TableName() string {
	return "pool_policy"
}

// AllocationOf 按子池类型取分配比例
func (p *PoolPolicy) AllocationOf(poolType string) uint16 {
	switch poolType {
	case SubPoolStaking:
		return p.StakingBps
	case SubPoolSpin:
		return p.SpinBps
	case SubPoolReferral:
		return p.ReferralBps
	case SubPoolReserve:
		return p.ReserveBps
	}
	return 0
}

// SubPool 分配目标
type SubPool struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PoolType         string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"pool_type"`
	VaultName        string    `gorm:"type:varchar(128);not null" json:"vault_name"`
	AllocationBps    uint16    `gorm:"not null" json:"allocation_bps"`
	TotalReceived    uint64    `gorm:"not null;default:0" json:"total_received"`
	TotalDistributed uint64    `gorm:"not null;default:0" json:"total_distributed"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SubPool) TableName() string {
	return "sub_pool"
}

// DistributionHistory 分配批次记录，只追加
// 截断产生的余数留在源金库，等下一轮分配
type DistributionHistory struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DistributionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"distribution_no"`
	DistributedAt  int64     `gorm:"not null;index" json:"distributed_at"`
	TotalAmount    uint64    `gorm:"not null" json:"total_amount"`
	StakingAmount  uint64    `gorm:"not null" json:"staking_amount"`
	SpinAmount     uint64    `gorm:"not null" json:"spin_amount"`
	ReferralAmount uint64    `gorm:"not null" json:"referral_amount"`
	ReserveAmount  uint64    `gorm:"not null" json:"reserve_amount"`
	Remainder      uint64    `gorm:"not null" json:"remainder"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (DistributionHistory) TableName() string {
	return "distribution_history"
}
