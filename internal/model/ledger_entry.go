package model

import (
	"time"
)

const (
	EntryDirectionDebit  = "DEBIT"
	EntryDirectionCredit = "CREDIT"
)

// 划转用途，写入流水便于对账
const (
	MemoStakeDeposit    = "STAKE_DEPOSIT"
	MemoStakeWithdraw   = "STAKE_WITHDRAW"
	MemoStakePenalty    = "STAKE_PENALTY"
	MemoStakeReward     = "STAKE_REWARD"
	MemoSpinPayout      = "SPIN_PAYOUT"
	MemoFallbackPayout  = "FALLBACK_PAYOUT"
	MemoBoosterPurchase = "BOOSTER_PURCHASE"
	MemoPoolAllocation  = "POOL_ALLOCATION"
	MemoEmergency       = "EMERGENCY_WITHDRAW"
	MemoMint            = "MINT"
)

// LedgerEntry 金库流水表
//
// 只追加，不修改，不删除。一次划转写两条：出账方 DEBIT、入账方 CREDIT，
// 共用一个 TransferNo，并记录变动前后余额
type LedgerEntry struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransferNo    string    `gorm:"type:varchar(64);index;not null" json:"transfer_no"`
	VaultName     string    `gorm:"type:varchar(128);index;not null" json:"vault_name"`
	Counterparty  string    `gorm:"type:varchar(128);not null" json:"counterparty"`
	Direction     string    `gorm:"type:varchar(10);not null" json:"direction"`
	Amount        uint64    `gorm:"not null" json:"amount"`
	BalanceBefore uint64    `gorm:"not null" json:"balance_before"`
	BalanceAfter  uint64    `gorm:"not null" json:"balance_after"`
	Memo          string    `gorm:"type:varchar(64);not null" json:"memo"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}
