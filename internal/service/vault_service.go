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

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type VaultService struct {
	base
	vaultRepo *repository.VaultRepository
	entryRepo *repository.LedgerEntryRepository
}

func NewVaultService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, clk clock.Clock) *VaultService {
	return &VaultService{
		base:      newBase(db, redisClient, cfg, clk),
		vaultRepo: repository.NewVaultRepository(db),
		entryRepo: repository.NewLedgerEntryRepository(db),
	}
}

// GetVault 按金库名查询，不存在的参与者金库视为余额 0
func (s *VaultService) GetVault(ctx context.Context, name string) (*model.Vault, error) {
	vault, err := s.ledger.Vault(ctx, nil, name)
	if err != nil {
		if errors.Is(err, ledger.ErrVaultNotFound) {
			return &model.Vault{Name: name, Kind: model.VaultKindParticipant}, nil
		}
		return nil, err
	}
	return vault, nil
}

func (s *VaultService) GetBalance(ctx context.Context, name string) (uint64, error) {
	vault, err := s.GetVault(ctx, name)
	if err != nil {
		return 0, err
	}
	return vault.Balance, nil
}

// Credit 管理员向参与者金库入账（外部充值）
func (s *VaultService) Credit(ctx context.Context, caller, owner string, amount uint64) (*model.Vault, error) {
	if err := checkAuthority(s.cfg.Business.Authority, caller); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, invalidInput("owner 不能为空")
	}
	if amount == 0 {
		return nil, invalidInput("入账金额必须大于0")
	}

	var vault *model.Vault
	err := s.withOwnerLock(ctx, owner, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			opened, err := s.ledger.OpenParticipantVault(ctx, tx, owner)
			if err != nil {
				return fmt.Errorf("打开参与者金库失败: %w", err)
			}
			if _, err := s.ledger.Mint(ctx, tx, opened.Name, amount); err != nil {
				return err
			}
			vault, err = s.ledger.Vault(ctx, tx, opened.Name)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[VaultService] 入账成功: owner=%s, amount=%d, balance=%d", owner, amount, vault.Balance)
	return vault, nil
}

// Fund 管理员向程序金库注资，例如给奖励池补充预算
func (s *VaultService) Fund(ctx context.Context, caller, vaultName string, amount uint64) (*model.Vault, error) {
	if err := checkAuthority(s.cfg.Business.Authority, caller); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, invalidInput("注资金额必须大于0")
	}

	var vault *model.Vault
	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.ledger.Vault(ctx, tx, vaultName)
		if err != nil {
			if errors.Is(err, ledger.ErrVaultNotFound) {
				return invalidInput("金库不存在: %s", vaultName)
			}
			return err
		}
		if existing.Kind != model.VaultKindProgram {
			return invalidInput("只能向程序金库注资: %s", vaultName)
		}
		if _, err := s.ledger.Mint(ctx, tx, vaultName, amount); err != nil {
			return err
		}
		vault, err = s.ledger.Vault(ctx, tx, vaultName)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[VaultService] 注资成功: vault=%s, amount=%d, balance=%d", vaultName, amount, vault.Balance)
	return vault, nil
}

// ListProgramVaults 全部程序金库及余额，运营核对预算用
func (s *VaultService) ListProgramVaults(ctx context.Context) ([]*model.Vault, error) {
	return s.vaultRepo.ListByKind(ctx, model.VaultKindProgram)
}

// GetTransfer 一次划转的全部流水，找不到时返回空
func (s *VaultService) GetTransfer(ctx context.Context, transferNo string) ([]*model.LedgerEntry, error) {
	if transferNo == "" {
		return nil, invalidInput("transfer_no 不能为空")
	}
	return s.entryRepo.ListByTransferNo(ctx, transferNo)
}

func (s *VaultService) ListEntries(ctx context.Context, name string, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	return s.ledger.Entries(ctx, name, page, pageSize)
}
