package mq

import "context"

// Producer publishes pipeline lifecycle events.
type Producer interface {
	// Publish sends one message. key is the partition key (proof id);
	// an empty key means any partition.
	Publish(ctx context.Context, topic string, key string, payload []byte) error

	// Close releases the underlying connection.
	Close() error
}
