package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofpay-core/internal/model"
)

// fakeProducer records published messages and can fail per topic.
type fakeProducer struct {
	published []string
	failTopic string
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	if topic == f.failTopic {
		return errors.New("broker down")
	}
	f.published = append(f.published, topic)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func TestRelayMarksSentAfterPublish(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&model.OutboxMessage{
		Topic:   model.TopicProofConfirmed,
		Key:     "pf_1",
		Payload: []byte(`{}`),
		Status:  "PENDING",
	}).Error)

	producer := &fakeProducer{}
	relay := NewRelayService(db, producer)
	relay.processPendingMessages(context.Background())

	assert.Equal(t, []string{model.TopicProofConfirmed}, producer.published)

	var msg model.OutboxMessage
	require.NoError(t, db.First(&msg).Error)
	assert.Equal(t, "SENT", msg.Status)
}

func TestRelayKeepsPendingOnPublishFailure(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&model.OutboxMessage{
		Topic:   model.TopicProofFailed,
		Key:     "pf_2",
		Payload: []byte(`{}`),
		Status:  "PENDING",
	}).Error)
	require.NoError(t, db.Create(&model.OutboxMessage{
		Topic:   model.TopicPaymentCompleted,
		Key:     "pf_3",
		Payload: []byte(`{}`),
		Status:  "PENDING",
	}).Error)

	producer := &fakeProducer{failTopic: model.TopicProofFailed}
	relay := NewRelayService(db, producer)
	relay.processPendingMessages(context.Background())

	// The failed message stays pending for the next tick; the other one went out.
	var pending int64
	require.NoError(t, db.Model(&model.OutboxMessage{}).
		Where("status = ?", "PENDING").Count(&pending).Error)
	assert.EqualValues(t, 1, pending)
	assert.Equal(t, []string{model.TopicPaymentCompleted}, producer.published)
}
