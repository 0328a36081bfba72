package repository

import (
	"context"
	"errors"

	"yieldengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPoolPolicyNotFound = errors.New("奖励池策略未初始化")
	ErrSubPoolNotFound    = errors.New("子池不存在")
)

type PoolRepository struct {
	db *gorm.DB
}

func NewPoolRepository(db *gorm.DB) *PoolRepository {
	return &PoolRepository{db: db}
}

func (r *PoolRepository) CreatePolicy(ctx context.Context, tx *gorm.DB, policy *model.PoolPolicy) error {
	return pick(r.db, tx).WithContext(ctx).Create(policy).Error
}

func (r *PoolRepository) GetPolicy(ctx context.Context, tx *gorm.DB) (*model.PoolPolicy, error) {
	var policy model.PoolPolicy
	err := pick(r.db, tx).WithContext(ctx).Order("id ASC").First(&policy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPoolPolicyNotFound
		}
		return nil, err
	}
	return &policy, nil
}

func (r *PoolRepository) GetPolicyForUpdate(ctx context.Context, tx *gorm.DB) (*model.PoolPolicy, error) {
	var policy model.PoolPolicy
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Order("id ASC").
		First(&policy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPoolPolicyNotFound
		}
		return nil, err
	}
	return &policy, nil
}

func (r *PoolRepository) SavePolicy(ctx context.Context, tx *gorm.DB, policy *model.PoolPolicy) error {
	return tx.WithContext(ctx).Save(policy).Error
}

func (r *PoolRepository) CreateSubPool(ctx context.Context, tx *gorm.DB, subPool *model.SubPool) error {
	return pick(r.db, tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pool_type"}},
			DoNothing: true,
		}).
		Create(subPool).Error
}

func (r *PoolRepository) GetSubPoolForUpdate(ctx context.Context, tx *gorm.DB, poolType string) (*model.SubPool, error) {
	var subPool model.SubPool
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("pool_type = ?", poolType).
		First(&subPool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubPoolNotFound
		}
		return nil, err
	}
	return &subPool, nil
}

func (r *PoolRepository) ListSubPools(ctx context.Context, tx *gorm.DB) ([]*model.SubPool, error) {
	var subPools []*model.SubPool
	err := pick(r.db, tx).WithContext(ctx).Order("id ASC").Find(&subPools).Error
	return subPools, err
}

func (r *PoolRepository) SaveSubPool(ctx context.Context, tx *gorm.DB, subPool *model.SubPool) error {
	return tx.WithContext(ctx).Save(subPool).Error
}

// AddDistributed 记录从子池金库支出的数量，vaultName 不是子池时不做任何修改
func (r *PoolRepository) AddDistributed(ctx context.Context, tx *gorm.DB, vaultName string, amount uint64) error {
	return pick(r.db, tx).WithContext(ctx).
		Model(&model.SubPool{}).
		Where("vault_name = ?", vaultName).
		Update("total_distributed", gorm.Expr("total_distributed + ?", amount)).Error
}

func (r *PoolRepository) CreateHistory(ctx context.Context, tx *gorm.DB, history *model.DistributionHistory) error {
	return pick(r.db, tx).WithContext(ctx).Create(history).Error
}

func (r *PoolRepository) ListHistory(ctx context.Context, page, pageSize int) ([]*model.DistributionHistory, int64, error) {
	var histories []*model.DistributionHistory
	var total int64

	query := r.db.WithContext(ctx).Model(&model.DistributionHistory{})

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&histories).Error

	return histories, total, err
}
