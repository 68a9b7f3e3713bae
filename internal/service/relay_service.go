package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"proofpay-core/internal/model"
	"proofpay-core/internal/service/mq"
	"proofpay-core/pkg/logger"
)

// RelayService moves rows from the transactional outbox to the MQ.
// At-least-once: a row is marked SENT only after a successful publish, so a
// crash between publish and update re-delivers. Consumers must be idempotent.
type RelayService struct {
	db       *gorm.DB
	producer mq.Producer
	interval time.Duration
}

func NewRelayService(db *gorm.DB, producer mq.Producer) *RelayService {
	return &RelayService{
		db:       db,
		producer: producer,
		interval: 500 * time.Millisecond,
	}
}

func (s *RelayService) Start(ctx context.Context) {
	logger.Info("outbox relay started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *RelayService) processPendingMessages(ctx context.Context) {
	var messages []model.OutboxMessage
	// Bounded batch to keep memory flat.
	if err := s.db.Where("status = ?", "PENDING").Limit(50).Find(&messages).Error; err != nil {
		logger.Error("outbox query failed", zap.Error(err))
		return
	}

	for _, msg := range messages {
		if err := s.producer.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			logger.Warn("outbox publish failed",
				zap.Uint64("message_id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Error(err))
			continue
		}

		if err := s.db.Model(&msg).Update("status", "SENT").Error; err != nil {
			logger.Warn("outbox status update failed",
				zap.Uint64("message_id", msg.ID), zap.Error(err))
		}
	}
}
