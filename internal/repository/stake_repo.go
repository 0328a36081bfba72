package repository

import (
	"context"
	"errors"

	"yieldengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrStakeNotFound         = errors.New("质押记录不存在")
	ErrStakingPolicyNotFound = errors.New("质押策略未初始化")
)

type StakeRepository struct {
	db *gorm.DB
}

func NewStakeRepository(db *gorm.DB) *StakeRepository {
	return &StakeRepository{db: db}
}

func (r *StakeRepository) CreatePolicy(ctx context.Context, tx *gorm.DB, policy *model.StakingPolicy) error {
	return pick(r.db, tx).WithContext(ctx).Create(policy).Error
}

func (r *StakeRepository) GetPolicy(ctx context.Context, tx *gorm.DB) (*model.StakingPolicy, error) {
	var policy model.StakingPolicy
	err := pick(r.db, tx).WithContext(ctx).Order("id ASC").First(&policy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStakingPolicyNotFound
		}
		return nil, err
	}
	return &policy, nil
}

func (r *StakeRepository) GetPolicyForUpdate(ctx context.Context, tx *gorm.DB) (*model.StakingPolicy, error) {
	var policy model.StakingPolicy
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Order("id ASC").
		First(&policy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStakingPolicyNotFound
		}
		return nil, err
	}
	return &policy, nil
}

func (r *StakeRepository) SavePolicy(ctx context.Context, tx *gorm.DB, policy *model.StakingPolicy) error {
	return tx.WithContext(ctx).Save(policy).Error
}

func (r *StakeRepository) GetByOwner(ctx context.Context, tx *gorm.DB, owner string) (*model.StakeRecord, error) {
	var record model.StakeRecord
	err := pick(r.db, tx).WithContext(ctx).Where("owner = ?", owner).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStakeNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *StakeRepository) GetByOwnerForUpdate(ctx context.Context, tx *gorm.DB, owner string) (*model.StakeRecord, error) {
	var record model.StakeRecord
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner = ?", owner).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStakeNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *StakeRepository) Create(ctx context.Context, tx *gorm.DB, record *model.StakeRecord) error {
	return pick(r.db, tx).WithContext(ctx).Create(record).Error
}

func (r *StakeRepository) Save(ctx context.Context, tx *gorm.DB, record *model.StakeRecord) error {
	return tx.WithContext(ctx).Save(record).Error
}

// SumStaked 全部质押记录余额之和，对账用
func (r *StakeRepository) SumStaked(ctx context.Context) (uint64, error) {
	var sum uint64
	err := r.db.WithContext(ctx).
		Model(&model.StakeRecord{}).
		Select("COALESCE(SUM(staked_amount), 0)").
		Scan(&sum).Error
	return sum, err
}
