package repository

import (
	"context"

	"yieldengine/internal/model"

	"gorm.io/gorm"
)

type LedgerEntryRepository struct {
	db *gorm.DB
}

func NewLedgerEntryRepository(db *gorm.DB) *LedgerEntryRepository {
	return &LedgerEntryRepository{db: db}
}

func (r *LedgerEntryRepository) Create(ctx context.Context, tx *gorm.DB, entries ...*model.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return pick(r.db, tx).WithContext(ctx).Create(entries).Error
}

func (r *LedgerEntryRepository) ListByTransferNo(ctx context.Context, transferNo string) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("transfer_no = ?", transferNo).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

func (r *LedgerEntryRepository) ListByVault(ctx context.Context, vaultName string, page, pageSize int) ([]*model.LedgerEntry, int64, error) {
	var entries []*model.LedgerEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.LedgerEntry{}).Where("vault_name = ?", vaultName)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}
