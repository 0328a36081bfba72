package repository

import (
	"context"

	"yieldengine/internal/model"

	"gorm.io/gorm"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	return pick(r.db, tx).WithContext(ctx).Create(msg).Error
}

// GetPendingMessages 按写入顺序取待发送消息，保证同一参与者的事件按序投递
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// MarkSent 只把仍处于待发送的消息标记为已发送
func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ? AND status = ?", id, model.OutboxStatusPending).
		Update("status", model.OutboxStatusSent).Error
}

// RecordFailure 重试次数加一并记录错误，达到 maxRetry 时标记为失败，返回是否已失败
func (r *OutboxRepository) RecordFailure(ctx context.Context, id int64, maxRetry int, cause error) (bool, error) {
	var failed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pending := tx.Model(&model.OutboxMessage{}).Where("id = ? AND status = ?", id, model.OutboxStatusPending)
		err := pending.Updates(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  model.TruncateError(cause),
		}).Error
		if err != nil {
			return err
		}

		result := tx.Model(&model.OutboxMessage{}).
			Where("id = ? AND status = ? AND retry_count >= ?", id, model.OutboxStatusPending, maxRetry).
			Update("status", model.OutboxStatusFailed)
		if result.Error != nil {
			return result.Error
		}
		failed = result.RowsAffected > 0
		return nil
	})
	return failed, err
}

func (r *OutboxRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
