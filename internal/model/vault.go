package model

import (
	"time"
)

const (
	VaultKindParticipant = "PARTICIPANT" // 参与者自己的余额，需本人授权
	VaultKindProgram     = "PROGRAM"     // 程序金库，无私钥，由派生地址授权
)

// Vault 金库表
// 资产账本里的一个具名余额。余额只能经由 ledger.Transfer 变动
type Vault struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"name"`
	Kind      string    `gorm:"type:varchar(20);not null" json:"kind"`
	Owner     string    `gorm:"type:varchar(128);index;not null" json:"owner"` // 参与者ID或程序派生地址
	Balance   uint64    `gorm:"not null;default:0" json:"balance"`
	Version   int       `gorm:"not null;default:0" json:"version"` // 乐观锁版本号
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Vault) TableName() string {
	return "vault"
}

// ParticipantVaultName 参与者金库命名规则
func ParticipantVaultName(owner string) string {
	return "user:" + owner
}
