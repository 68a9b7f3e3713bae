package model

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Outbox topics for proof lifecycle events.
const (
	TopicProofSubmitted   = "proof.submitted"
	TopicProofConfirmed   = "proof.confirmed"
	TopicProofFailed      = "proof.failed"
	TopicPaymentCompleted = "payment.completed"
)

// OutboxMessage is the transactional outbox row. Lifecycle events are written
// in the same transaction as the state change and relayed to the MQ
// asynchronously (at-least-once, consumers must be idempotent).
type OutboxMessage struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Topic     string         `gorm:"type:varchar(255);not null" json:"topic"`
	Key       string         `gorm:"type:varchar(255)" json:"key"`
	Payload   []byte         `gorm:"type:text;not null" json:"payload"`
	Status    string         `gorm:"type:varchar(50);not null;default:'PENDING';index" json:"status"` // PENDING, SENT
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

// CreateOutboxMessage writes an outbox row inside the caller's transaction.
func CreateOutboxMessage(tx *gorm.DB, topic string, key string, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := OutboxMessage{
		Topic:   topic,
		Key:     key,
		Payload: payloadBytes,
		Status:  "PENDING",
	}

	return tx.Create(&msg).Error
}
