package job

import (
	"context"
	"testing"
	"time"

	"yieldengine/internal/infrastructure/mq"
	"yieldengine/internal/model"
	"yieldengine/internal/repository"
	"yieldengine/internal/testutil"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockProducer(t *testing.T) *mocks.SyncProducer {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	return mocks.NewSyncProducer(t, cfg)
}

func seedOutbox(t *testing.T, repo *repository.OutboxRepository, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, repo.Create(context.Background(), nil, &model.OutboxMessage{
			MessageKey: "alice",
			EventType:  model.EventStakeDeposited,
			Topic:      "yield_stake_event",
			Payload:    `{"owner":"alice"}`,
			Status:     model.OutboxStatusPending,
		}))
	}
}

func TestOutboxSender_MarksSent(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	cfg := testutil.Config(t)
	repo := repository.NewOutboxRepository(db)
	seedOutbox(t, repo, 2)

	mock := newMockProducer(t)
	mock.ExpectSendMessageAndSucceed()
	mock.ExpectSendMessageAndSucceed()
	producer := mq.NewKafkaProducer(mock)
	defer producer.Close()

	sender := NewOutboxSender(db, producer, cfg)
	assert.Equal(t, 2, sender.ProcessPending(ctx))

	sent, err := repo.CountByStatus(ctx, model.OutboxStatusSent)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sent)
	assert.Zero(t, sender.ProcessPending(ctx), "已发送的消息不会重发")
}

func TestOutboxSender_RetriesThenFails(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	cfg := testutil.Config(t)
	cfg.Business.MaxRetryCount = 2
	repo := repository.NewOutboxRepository(db)
	seedOutbox(t, repo, 1)

	mock := newMockProducer(t)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer := mq.NewKafkaProducer(mock)
	defer producer.Close()

	sender := NewOutboxSender(db, producer, cfg)

	assert.Zero(t, sender.ProcessPending(ctx))
	pending, err := repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Equal(t, sarama.ErrOutOfBrokers.Error(), pending[0].LastError)

	assert.Zero(t, sender.ProcessPending(ctx))
	failed, err := repo.CountByStatus(ctx, model.OutboxStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	assert.Zero(t, sender.ProcessPending(ctx), "失败的消息不再投递")
}

func TestOutboxSender_KeepsOrderAfterRetry(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	cfg := testutil.Config(t)
	repo := repository.NewOutboxRepository(db)
	seedOutbox(t, repo, 1)

	mock := newMockProducer(t)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mock.ExpectSendMessageAndSucceed()
	producer := mq.NewKafkaProducer(mock)
	defer producer.Close()

	sender := NewOutboxSender(db, producer, cfg)
	assert.Zero(t, sender.ProcessPending(ctx))
	assert.Equal(t, 1, sender.ProcessPending(ctx))

	sent, err := repo.CountByStatus(ctx, model.OutboxStatusSent)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sent)
}

func TestOutboxInterval(t *testing.T) {
	cfg := testutil.Config(t)
	cfg.Schedule.OutboxIntervalMillis = 0
	assert.Equal(t, 100*time.Millisecond, outboxInterval(cfg))
	cfg.Schedule.OutboxIntervalMillis = 250
	assert.Equal(t, 250*time.Millisecond, outboxInterval(cfg))
}

func TestOutboxSender_StopTwice(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.Config(t)
	producer := mq.NewKafkaProducer(newMockProducer(t))
	defer producer.Close()

	sender := NewOutboxSender(db, producer, cfg)
	done := make(chan struct{})
	go func() {
		sender.Start(context.Background())
		close(done)
	}()

	sender.Stop()
	assert.NotPanics(t, sender.Stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sender did not stop")
	}
}
