package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"yieldengine/internal/model"
	"yieldengine/internal/repository"
	"yieldengine/pkg/idgen"

	"gorm.io/gorm"
)

// ============================================================================
// 资产账本
// ============================================================================
//
// 所有金库余额的变动都经过 Transfer：同一个数据库事务内
//   1. 按名称顺序锁定出账、入账两行（固定加锁顺序，避免死锁）
//   2. 校验出账授权
//   3. 条件扣减（balance >= amount AND version = ?）
//   4. 入账
//   5. 写两条流水
// 调用方把业务记录的修改放进同一个事务，资金与账务要么一起生效，要么一起回滚。
//
// 程序金库没有私钥：所有者是 DeriveAddress(programID, seeds...) 得到的派生地址，
// 组件出示自己的种子即可证明权限，参与者凭证永远不能动程序金库。
//
// ============================================================================

var (
	ErrInsufficientFunds = errors.New("金库余额不足")
	ErrUnauthorized      = errors.New("无权从该金库划出")
	ErrInvalidTransfer   = errors.New("非法划转")
	ErrVaultNotFound     = repository.ErrVaultNotFound
)

// Authority 出账授权
type Authority struct {
	Principal string   // 参与者本人
	Seeds     []string // 程序金库的派生种子
}

// Participant 参与者本人授权
func Participant(owner string) Authority {
	return Authority{Principal: owner}
}

// Program 程序授权，种子约定为 (金库名, 代币)
func Program(vaultName, tokenMint string) Authority {
	return Authority{Seeds: []string{vaultName, tokenMint}}
}

// DeriveAddress 由程序ID和种子确定性派生程序金库所有者地址
func DeriveAddress(programID string, seeds ...string) string {
	h := sha256.New()
	for _, s := range seeds {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	h.Write([]byte(programID))
	h.Write([]byte("program-derived-address"))
	return "pda:" + hex.EncodeToString(h.Sum(nil))
}

type Ledger struct {
	programID string
	tokenMint string
	vaultRepo *repository.VaultRepository
	entryRepo *repository.LedgerEntryRepository
}

func New(db *gorm.DB, programID, tokenMint string) *Ledger {
	return &Ledger{
		programID: programID,
		tokenMint: tokenMint,
		vaultRepo: repository.NewVaultRepository(db),
		entryRepo: repository.NewLedgerEntryRepository(db),
	}
}

// Signer 组件访问某个程序金库时使用的授权
func (l *Ledger) Signer(vaultName string) Authority {
	return Program(vaultName, l.tokenMint)
}

// OpenProgramVault 创建（或取回）程序金库
func (l *Ledger) OpenProgramVault(ctx context.Context, tx *gorm.DB, name string) (*model.Vault, error) {
	return l.vaultRepo.GetOrCreate(ctx, tx, &model.Vault{
		Name:  name,
		Kind:  model.VaultKindProgram,
		Owner: DeriveAddress(l.programID, name, l.tokenMint),
	})
}

// OpenParticipantVault 创建（或取回）参与者金库
func (l *Ledger) OpenParticipantVault(ctx context.Context, tx *gorm.DB, owner string) (*model.Vault, error) {
	return l.vaultRepo.GetOrCreate(ctx, tx, &model.Vault{
		Name:  model.ParticipantVaultName(owner),
		Kind:  model.VaultKindParticipant,
		Owner: owner,
	})
}

func (l *Ledger) Vault(ctx context.Context, tx *gorm.DB, name string) (*model.Vault, error) {
	return l.vaultRepo.GetByName(ctx, tx, name)
}

func (l *Ledger) Balance(ctx context.Context, tx *gorm.DB, name string) (uint64, error) {
	vault, err := l.vaultRepo.GetByName(ctx, tx, name)
	if err != nil {
		return 0, err
	}
	return vault.Balance, nil
}

// BalanceForUpdate 事务内加锁读取余额，读出的值在事务结束前不会被其他请求改动
func (l *Ledger) BalanceForUpdate(ctx context.Context, tx *gorm.DB, name string) (uint64, error) {
	vault, err := l.vaultRepo.GetByNameForUpdate(ctx, tx, name)
	if err != nil {
		return 0, err
	}
	return vault.Balance, nil
}

func (l *Ledger) authorize(vault *model.Vault, auth Authority) error {
	switch vault.Kind {
	case model.VaultKindProgram:
		if len(auth.Seeds) == 0 || DeriveAddress(l.programID, auth.Seeds...) != vault.Owner {
			return fmt.Errorf("%w: vault=%s", ErrUnauthorized, vault.Name)
		}
	case model.VaultKindParticipant:
		if auth.Principal == "" || auth.Principal != vault.Owner {
			return fmt.Errorf("%w: vault=%s", ErrUnauthorized, vault.Name)
		}
	default:
		return fmt.Errorf("%w: 未知金库类型 %s", ErrInvalidTransfer, vault.Kind)
	}
	return nil
}

// Transfer 原子划转，必须在调用方的事务内执行
// amount 为 0 时不产生任何变动
func (l *Ledger) Transfer(ctx context.Context, tx *gorm.DB, auth Authority, from, to string, amount uint64, memo string) (string, error) {
	if tx == nil {
		return "", fmt.Errorf("%w: 划转必须在事务内执行", ErrInvalidTransfer)
	}
	if amount == 0 {
		return "", nil
	}
	if from == to {
		return "", fmt.Errorf("%w: 出账与入账金库相同 %s", ErrInvalidTransfer, from)
	}

	first, second := from, to
	if strings.Compare(first, second) > 0 {
		first, second = second, first
	}
	locked := make(map[string]*model.Vault, 2)
	for _, name := range []string{first, second} {
		vault, err := l.vaultRepo.GetByNameForUpdate(ctx, tx, name)
		if err != nil {
			return "", fmt.Errorf("锁定金库 %s 失败: %w", name, err)
		}
		locked[name] = vault
	}
	src, dst := locked[from], locked[to]

	if err := l.authorize(src, auth); err != nil {
		return "", err
	}
	if src.Balance < amount {
		return "", fmt.Errorf("%w: vault=%s balance=%d amount=%d", ErrInsufficientFunds, from, src.Balance, amount)
	}

	if err := l.vaultRepo.Deduct(ctx, tx, from, amount, src.Version); err != nil {
		if errors.Is(err, repository.ErrBalanceNotEnough) {
			return "", fmt.Errorf("%w: vault=%s", ErrInsufficientFunds, from)
		}
		return "", fmt.Errorf("扣减金库 %s 失败: %w", from, err)
	}
	if err := l.vaultRepo.Increase(ctx, tx, to, amount); err != nil {
		return "", fmt.Errorf("入账金库 %s 失败: %w", to, err)
	}

	transferNo := idgen.GenerateTransferNo()
	err := l.entryRepo.Create(ctx, tx,
		&model.LedgerEntry{
			TransferNo:    transferNo,
			VaultName:     from,
			Counterparty:  to,
			Direction:     model.EntryDirectionDebit,
			Amount:        amount,
			BalanceBefore: src.Balance,
			BalanceAfter:  src.Balance - amount,
			Memo:          memo,
		},
		&model.LedgerEntry{
			TransferNo:    transferNo,
			VaultName:     to,
			Counterparty:  from,
			Direction:     model.EntryDirectionCredit,
			Amount:        amount,
			BalanceBefore: dst.Balance,
			BalanceAfter:  dst.Balance + amount,
			Memo:          memo,
		},
	)
	if err != nil {
		return "", fmt.Errorf("记录流水失败: %w", err)
	}

	return transferNo, nil
}

// Mint 向金库直接入账（外部充值），只记一条 CREDIT 流水
func (l *Ledger) Mint(ctx context.Context, tx *gorm.DB, to string, amount uint64) (string, error) {
	if tx == nil {
		return "", fmt.Errorf("%w: 入账必须在事务内执行", ErrInvalidTransfer)
	}
	if amount == 0 {
		return "", fmt.Errorf("%w: 入账金额必须大于0", ErrInvalidTransfer)
	}

	dst, err := l.vaultRepo.GetByNameForUpdate(ctx, tx, to)
	if err != nil {
		return "", fmt.Errorf("锁定金库 %s 失败: %w", to, err)
	}
	if err := l.vaultRepo.Increase(ctx, tx, to, amount); err != nil {
		return "", fmt.Errorf("入账金库 %s 失败: %w", to, err)
	}

	transferNo := idgen.GenerateTransferNo()
	err = l.entryRepo.Create(ctx, tx, &model.LedgerEntry{
		TransferNo:    transferNo,
		VaultName:     to,
		Counterparty:  model.MemoMint,
		Direction:     model.EntryDirectionCredit,
		Amount:        amount,
		BalanceBefore: dst.Balance,
		BalanceAfter:  dst.Balance + amount,
		Memo:          model.MemoMint,
	})
	if err != nil {
		return "", fmt.Errorf("记录流水失败: %w", err)
	}
	return transferNo, nil
}

func (l *Ledger) Entries(ctx context.Context, vaultName string, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	return l.entryRepo.ListByVault(ctx, vaultName, page, pageSize)
}
