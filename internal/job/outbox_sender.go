package job

import (
	"context"
	"log"
	"sync"
	"time"

	"yieldengine/internal/config"
	"yieldengine/internal/infrastructure/mq"
	"yieldengine/internal/model"
	"yieldengine/internal/repository"

	"gorm.io/gorm"
)

// OutboxSender 把本地消息表里待发送的领域事件投递到 Kafka
// 至少投递一次，消费方按 message key 和事件内的编号去重
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	producer   mq.Producer
	cfg        *config.Config
	stopCh     chan struct{}
	stopOnce   sync.Once
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, producer mq.Producer, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		producer:   producer,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   outboxInterval(cfg),
		batchSize:  100,
	}
}

func outboxInterval(cfg *config.Config) time.Duration {
	if cfg.Schedule.OutboxIntervalMillis <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(cfg.Schedule.OutboxIntervalMillis) * time.Millisecond
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] 消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[OutboxSender] 任务停止")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

// Stop 可重复调用
func (s *OutboxSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// ProcessPending 发送一批待发送消息，返回成功条数
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Printf("[OutboxSender] 查询消息失败: %v", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.send(ctx, msg) {
			sent++
		}
	}
	if sent > 0 {
		log.Printf("[OutboxSender] 本轮投递 %d/%d 条事件", sent, len(messages))
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	if err := s.producer.SendMessage(msg.Topic, msg.MessageKey, msg.Payload); err != nil {
		failed, recordErr := s.outboxRepo.RecordFailure(ctx, msg.ID, s.cfg.Business.MaxRetryCount, err)
		switch {
		case recordErr != nil:
			log.Printf("[OutboxSender] 记录发送失败出错: id=%d, err=%v", msg.ID, recordErr)
		case failed:
			log.Printf("[OutboxSender] 事件超过最大重试次数，标记为失败: id=%d, event=%s, err=%v", msg.ID, msg.EventType, err)
		default:
			log.Printf("[OutboxSender] 事件投递失败，等待重试: id=%d, event=%s, retry=%d, err=%v", msg.ID, msg.EventType, msg.RetryCount+1, err)
		}
		return false
	}

	if err := s.outboxRepo.MarkSent(ctx, msg.ID); err != nil {
		log.Printf("[OutboxSender] 更新事件状态失败: id=%d, err=%v", msg.ID, err)
		return false
	}
	return true
}
