package repository

import (
	"context"
	"errors"

	"yieldengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrVaultNotFound    = errors.New("金库不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
	ErrOptimisticLock   = errors.New("乐观锁冲突，请重试")
)

// pick 事务内用 tx，事务外用 db
func pick(db, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return db
	}
	return tx
}

type VaultRepository struct {
	db *gorm.DB
}

func NewVaultRepository(db *gorm.DB) *VaultRepository {
	return &VaultRepository{db: db}
}

func (r *VaultRepository) GetByName(ctx context.Context, tx *gorm.DB, name string) (*model.Vault, error) {
	var vault model.Vault
	err := pick(r.db, tx).WithContext(ctx).Where("name = ?", name).First(&vault).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVaultNotFound
		}
		return nil, err
	}
	return &vault, nil
}

func (r *VaultRepository) GetByNameForUpdate(ctx context.Context, tx *gorm.DB, name string) (*model.Vault, error) {
	var vault model.Vault
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", name).
		First(&vault).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVaultNotFound
		}
		return nil, err
	}
	return &vault, nil
}

// Deduct 扣减余额
// 条件更新 balance >= amount AND version = ?，保证不会扣成负数
func (r *VaultRepository) Deduct(ctx context.Context, tx *gorm.DB, name string, amount uint64, version int) error {
	result := tx.WithContext(ctx).
		Model(&model.Vault{}).
		Where("name = ? AND balance >= ? AND version = ?", name, amount, version).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance - ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		vault, err := r.GetByName(ctx, tx, name)
		if err != nil {
			return err
		}
		if vault.Balance < amount {
			return ErrBalanceNotEnough
		}
		return ErrOptimisticLock
	}

	return nil
}

func (r *VaultRepository) Increase(ctx context.Context, tx *gorm.DB, name string, amount uint64) error {
	result := tx.WithContext(ctx).
		Model(&model.Vault{}).
		Where("name = ?", name).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance + ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrVaultNotFound
	}

	return nil
}

// GetOrCreate 不存在则按模板创建，并发创建由唯一索引兜底
func (r *VaultRepository) GetOrCreate(ctx context.Context, tx *gorm.DB, tmpl *model.Vault) (*model.Vault, error) {
	vault, err := r.GetByName(ctx, tx, tmpl.Name)
	if err == nil {
		return vault, nil
	}

	if !errors.Is(err, ErrVaultNotFound) {
		return nil, err
	}

	newVault := &model.Vault{
		Name:  tmpl.Name,
		Kind:  tmpl.Kind,
		Owner: tmpl.Owner,
	}

	err = pick(r.db, tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(newVault).Error
	if err != nil {
		return nil, err
	}

	return r.GetByName(ctx, tx, tmpl.Name)
}

func (r *VaultRepository) ListByKind(ctx context.Context, kind string) ([]*model.Vault, error) {
	var vaults []*model.Vault
	err := r.db.WithContext(ctx).
		Where("kind = ?", kind).
		Order("name ASC").
		Find(&vaults).Error
	return vaults, err
}
