package queue

import (
	"context"
	"testing"
	"time"

	"github.com/novapush/dispatcher/internal/domain"
)

func TestQueueNames(t *testing.T) {
	t.Parallel()

	if got := QueueName(domain.ChannelSMS); got != "dispatch.sms" {
		t.Fatalf("QueueName(sms) = %q, want dispatch.sms", got)
	}
	if got := DLQName(domain.ChannelEmail); got != "dlq.email" {
		t.Fatalf("DLQName(email) = %q, want dlq.email", got)
	}
	if got := len(WorkQueueNames()); got != 3 {
		t.Fatalf("len(WorkQueueNames()) = %d, want 3", got)
	}
	if got := len(DLQNames()); got != 3 {
		t.Fatalf("len(DLQNames()) = %d, want 3", got)
	}
}

func TestDispatchMessageValidate(t *testing.T) {
	t.Parallel()

	valid := DispatchMessage{
		CorrelationID: "corr-1",
		DeliveryIDs:   []string{"d1", "d2"},
		Channel:       domain.ChannelEmail,
		TemplateID:    "tpl-1",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}

	cases := map[string]DispatchMessage{
		"missing correlation": {DeliveryIDs: []string{"d1"}, Channel: domain.ChannelEmail, TemplateID: "tpl-1"},
		"no deliveries":       {CorrelationID: "c", Channel: domain.ChannelEmail, TemplateID: "tpl-1"},
		"empty delivery id":   {CorrelationID: "c", DeliveryIDs: []string{""}, Channel: domain.ChannelEmail, TemplateID: "tpl-1"},
		"invalid channel":     {CorrelationID: "c", DeliveryIDs: []string{"d1"}, Channel: "fax", TemplateID: "tpl-1"},
		"missing template":    {CorrelationID: "c", DeliveryIDs: []string{"d1"}, Channel: domain.ChannelEmail},
	}
	for name, msg := range cases {
		if err := msg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestMemoryQueuePublishConsume(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg := DispatchMessage{
		CorrelationID: "corr-1",
		DeliveryIDs:   []string{"d1"},
		Channel:       domain.ChannelSMS,
		TemplateID:    "tpl-1",
	}
	if err := q.Publish(ctx, QueueName(domain.ChannelSMS), msg); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	received := make(chan DispatchMessage, 1)
	go func() {
		_ = q.Consume(ctx, QueueName(domain.ChannelSMS), func(ctx context.Context, msg DispatchMessage) error {
			received <- msg
			return nil
		})
	}()

	select {
	case got := <-received:
		if got.CorrelationID != "corr-1" {
			t.Fatalf("correlationId = %q, want corr-1", got.CorrelationID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMemoryQueuePublishInvalidMessage(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue()
	err := q.Publish(context.Background(), "dispatch.sms", DispatchMessage{})
	if err == nil {
		t.Fatal("expected validation error")
	}
}
