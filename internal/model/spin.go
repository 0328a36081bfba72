package model

import (
	"time"
)

const (
	SpinKindSpin     = "SPIN"
	SpinKindFallback = "FALLBACK"
)

// 参数锁的名字
const (
	PolicyStaking = "staking"
	PolicySpin    = "spin"
)

// SpinPolicy 转盘全局参数
type SpinPolicy struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Authority           string    `gorm:"type:varchar(128);not null" json:"authority"`
	BaseYieldMinBps     uint16    `gorm:"not null" json:"base_yield_min_bps"`
	BaseYieldMaxBps     uint16    `gorm:"not null" json:"base_yield_max_bps"`
	MoonshotYieldMinBps uint16    `gorm:"not null" json:"moonshot_yield_min_bps"`
	MoonshotYieldMaxBps uint16    `gorm:"not null" json:"moonshot_yield_max_bps"`
	MoonshotProbability uint8     `gorm:"not null" json:"moonshot_probability"` // 0-100
	FallbackYieldBps    uint16    `gorm:"not null" json:"fallback_yield_bps"`
	CooldownSeconds     uint32    `gorm:"not null" json:"cooldown_seconds"`
	LuckyCharmUnitCost  uint64    `gorm:"not null" json:"lucky_charm_unit_cost"` // 最小单位
	AmplifierUnitCost   uint64    `gorm:"not null" json:"amplifier_unit_cost"`
	ShieldUnitCost      uint64    `gorm:"not null" json:"shield_unit_cost"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SpinPolicy) TableName() string {
	return "spin_policy"
}

// SpinProfile 参与者转盘状态，首次转盘或购买增益时创建，不删除
type SpinProfile struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Owner               string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"owner"`
	LastSpinAt          int64     `gorm:"not null;default:0" json:"last_spin_at"`
	SpinCount           uint32    `gorm:"not null;default:0" json:"spin_count"`
	TotalBaseEarned     uint64    `gorm:"not null;default:0" json:"total_base_earned"`
	TotalMoonshotEarned uint64    `gorm:"not null;default:0" json:"total_moonshot_earned"`
	LuckySpins          uint32    `gorm:"not null;default:0" json:"lucky_spins"`
	ShieldSpins         uint32    `gorm:"not null;default:0" json:"shield_spins"`
	AmplifierExpiry     int64     `gorm:"not null;default:0" json:"amplifier_expiry"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SpinProfile) TableName() string {
	return "spin_profile"
}

// Eligible 距上次转盘已满冷却时间，未转过时 LastSpinAt 为 0
func (p *SpinProfile) Eligible(now int64, cooldownSeconds uint32) bool {
	return now-p.LastSpinAt >= int64(cooldownSeconds)
}

// SpinRecord 转盘审计记录，只追加
type SpinRecord struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SpinNo          string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"spin_no"`
	Owner           string    `gorm:"type:varchar(128);index;not null" json:"owner"`
	Kind            string    `gorm:"type:varchar(20);not null" json:"kind"`
	SpinAt          int64     `gorm:"not null" json:"spin_at"`
	Seed            uint64    `gorm:"not null;default:0" json:"seed"`
	YieldBps        uint32    `gorm:"not null" json:"yield_bps"` // 放大后的最终收益率
	IsMoonshot      bool      `gorm:"not null" json:"is_moonshot"`
	StakeAmount     uint64    `gorm:"not null" json:"stake_amount"`
	TokensPaid      uint64    `gorm:"not null" json:"tokens_paid"`
	LuckyCharmUsed  bool      `gorm:"not null" json:"lucky_charm_used"`
	AmplifierActive bool      `gorm:"not null" json:"amplifier_active"`
	ShieldUsed      bool      `gorm:"not null" json:"shield_used"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (SpinRecord) TableName() string {
	return "spin_record"
}
