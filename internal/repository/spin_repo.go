package repository

import (
	"context"
	"errors"

	"yieldengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSpinProfileNotFound = errors.New("转盘档案不存在")
	ErrSpinPolicyNotFound  = errors.New("转盘策略未初始化")
)

type SpinRepository struct {
	db *gorm.DB
}

func NewSpinRepository(db *gorm.DB) *SpinRepository {
	return &SpinRepository{db: db}
}

func (r *SpinRepository) CreatePolicy(ctx context.Context, tx *gorm.DB, policy *model.SpinPolicy) error {
	return pick(r.db, tx).WithContext(ctx).Create(policy).Error
}

func (r *SpinRepository) GetPolicy(ctx context.Context, tx *gorm.DB) (*model.SpinPolicy, error) {
	var policy model.SpinPolicy
	err := pick(r.db, tx).WithContext(ctx).Order("id ASC").First(&policy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSpinPolicyNotFound
		}
		return nil, err
	}
	return &policy, nil
}

func (r *SpinRepository) GetPolicyForUpdate(ctx context.Context, tx *gorm.DB) (*model.SpinPolicy, error) {
	var policy model.SpinPolicy
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Order("id ASC").
		First(&policy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSpinPolicyNotFound
		}
		return nil, err
	}
	return &policy, nil
}

func (r *SpinRepository) SavePolicy(ctx context.Context, tx *gorm.DB, policy *model.SpinPolicy) error {
	return tx.WithContext(ctx).Save(policy).Error
}

func (r *SpinRepository) GetProfile(ctx context.Context, tx *gorm.DB, owner string) (*model.SpinProfile, error) {
	var profile model.SpinProfile
	err := pick(r.db, tx).WithContext(ctx).Where("owner = ?", owner).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSpinProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// GetOrCreateProfileForUpdate 事务内加锁读取转盘档案，不存在则先创建
func (r *SpinRepository) GetOrCreateProfileForUpdate(ctx context.Context, tx *gorm.DB, owner string) (*model.SpinProfile, error) {
	err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner"}},
			DoNothing: true,
		}).
		Create(&model.SpinProfile{Owner: owner}).Error
	if err != nil {
		return nil, err
	}

	var profile model.SpinProfile
	err = tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner = ?", owner).
		First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *SpinRepository) SaveProfile(ctx context.Context, tx *gorm.DB, profile *model.SpinProfile) error {
	return tx.WithContext(ctx).Save(profile).Error
}

func (r *SpinRepository) CreateRecord(ctx context.Context, tx *gorm.DB, record *model.SpinRecord) error {
	return pick(r.db, tx).WithContext(ctx).Create(record).Error
}

func (r *SpinRepository) ListRecords(ctx context.Context, owner string, page, pageSize int) ([]*model.SpinRecord, int64, error) {
	var records []*model.SpinRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&model.SpinRecord{}).Where("owner = ?", owner)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records).Error

	return records, total, err
}
