package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/novapush/dispatcher/internal/domain"
)

// Publisher publishes dispatch jobs to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DispatchMessage) error
	Close() error
}

// MessageHandler handles a consumed dispatch job.
type MessageHandler func(ctx context.Context, msg DispatchMessage) error

// Consumer consumes dispatch jobs from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// QueueName returns the channel work queue name, e.g. dispatch.sms.
func QueueName(channel domain.Channel) string {
	return fmt.Sprintf("dispatch.%s", strings.ToLower(channel.String()))
}

// DLQName returns the dead-letter queue name for a channel.
func DLQName(channel domain.Channel) string {
	return fmt.Sprintf("dlq.%s", strings.ToLower(channel.String()))
}

// WorkQueueNames returns all channel work queues (3 total).
func WorkQueueNames() []string {
	channels := domain.Channels()
	queues := make([]string, 0, len(channels))
	for _, channel := range channels {
		queues = append(queues, QueueName(channel))
	}
	return queues
}

// DLQNames returns all dead-letter queues (3 total).
func DLQNames() []string {
	channels := domain.Channels()
	queues := make([]string, 0, len(channels))
	for _, channel := range channels {
		queues = append(queues, DLQName(channel))
	}
	return queues
}
