package model

import "time"

// 投递状态，FAILED 之后不再自动重试
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 领域事件类型
const (
	EventStakeDeposited     = "STAKE_DEPOSITED"
	EventStakeWithdrawn     = "STAKE_WITHDRAWN"
	EventRewardsClaimed     = "REWARDS_CLAIMED"
	EventSpinSettled        = "SPIN_SETTLED"
	EventFallbackClaimed    = "FALLBACK_CLAIMED"
	EventBoosterActivated   = "BOOSTER_ACTIVATED"
	EventRewardsDistributed = "REWARDS_DISTRIBUTED"
	EventEmergencyWithdrawn = "EMERGENCY_WITHDRAWN"
)

// OutboxMessage 本地消息表
// 与资金变动写在同一个事务里，由 OutboxSender 异步投递到 Kafka。
// MessageKey 是参与者或金库名，同一个 key 的事件落在同一个分区
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(128);not null" json:"message_key"`
	EventType  string    `gorm:"type:varchar(32);not null" json:"event_type"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	LastError  string    `gorm:"type:varchar(255)" json:"last_error"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// TruncateError 截断错误信息以适配 last_error 列
func TruncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 255 {
		return msg[:255]
	}
	return msg
}
