package service

import (
	"context"
	"errors"
	"testing"

	"github.com/novapush/dispatcher/internal/domain"
	"github.com/novapush/dispatcher/internal/provider"
	"go.uber.org/zap"
)

func sentDeliveryWithSid(id, sid string) *domain.Delivery {
	providerMsgID := sid
	return &domain.Delivery{
		ID:                id,
		CorrelationID:     "corr-1",
		Recipient:         "+15550001111",
		Channel:           domain.ChannelSMS,
		TemplateID:        "tmpl-1",
		Status:            domain.StatusSent,
		Attempts:          1,
		ProviderMessageID: &providerMsgID,
		Timeline: []domain.TimelineEntry{
			{Status: domain.StatusQueued, Info: "Queued for sending"},
			{Status: domain.StatusSending, Info: "Attempt 1"},
			{Status: domain.StatusSent, Info: "Attempt 1 succeeded"},
		},
	}
}

func newTestWebhookService(t *testing.T, repo *memDeliveryRepo, hub Broadcaster) *WebhookService {
	t.Helper()

	svc, err := NewWebhookService(repo, hub, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWebhookService() error = %v", err)
	}
	return svc
}

func TestWebhookServiceAppliesDelivered(t *testing.T) {
	t.Parallel()

	repo := newMemDeliveryRepo()
	repo.put(sentDeliveryWithSid("d1", "SM123"))
	hub := &fakeHub{}

	svc := newTestWebhookService(t, repo, hub)

	updated, err := svc.ApplyTwilioStatus(context.Background(), provider.TwilioCallback{
		MessageSid:    "SM123",
		MessageStatus: "delivered",
	})
	if err != nil {
		t.Fatalf("ApplyTwilioStatus() error = %v", err)
	}

	if updated.Status != domain.StatusDelivered {
		t.Fatalf("status = %s, want delivered", updated.Status)
	}
	last := updated.Timeline[len(updated.Timeline)-1]
	if last.Status != domain.StatusDelivered || last.Info != "Twilio status update" {
		t.Fatalf("last timeline entry = %+v, want delivered update", last)
	}
	if len(hub.published) != 1 || hub.published[0].Status != domain.StatusDelivered {
		t.Fatal("updated delivery should be broadcast")
	}
}

func TestWebhookServiceAppliesFailedWithError(t *testing.T) {
	t.Parallel()

	repo := newMemDeliveryRepo()
	repo.put(sentDeliveryWithSid("d2", "SM456"))

	svc := newTestWebhookService(t, repo, nil)

	updated, err := svc.ApplyTwilioStatus(context.Background(), provider.TwilioCallback{
		MessageSid:    "SM456",
		MessageStatus: "failed",
	})
	if err != nil {
		t.Fatalf("ApplyTwilioStatus() error = %v", err)
	}

	if updated.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", updated.Status)
	}
	if updated.Error == nil || *updated.Error != "provider reported failed" {
		t.Fatalf("error = %v, want provider reported failed", updated.Error)
	}
}

func TestWebhookServiceUnknownStatusMapsToSent(t *testing.T) {
	t.Parallel()

	repo := newMemDeliveryRepo()
	repo.put(sentDeliveryWithSid("d3", "SM789"))

	svc := newTestWebhookService(t, repo, nil)

	updated, err := svc.ApplyTwilioStatus(context.Background(), provider.TwilioCallback{
		MessageSid:    "SM789",
		MessageStatus: "queued",
	})
	if err != nil {
		t.Fatalf("ApplyTwilioStatus() error = %v", err)
	}
	if updated.Status != domain.StatusSent {
		t.Fatalf("status = %s, want sent for unrecognized provider status", updated.Status)
	}
}

func TestWebhookServiceUnknownSid(t *testing.T) {
	t.Parallel()

	svc := newTestWebhookService(t, newMemDeliveryRepo(), nil)

	_, err := svc.ApplyTwilioStatus(context.Background(), provider.TwilioCallback{
		MessageSid:    "SM-unknown",
		MessageStatus: "delivered",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ApplyTwilioStatus() error = %v, want ErrNotFound", err)
	}
}

func TestWebhookServiceMissingSid(t *testing.T) {
	t.Parallel()

	svc := newTestWebhookService(t, newMemDeliveryRepo(), nil)

	_, err := svc.ApplyTwilioStatus(context.Background(), provider.TwilioCallback{
		MessageStatus: "delivered",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ApplyTwilioStatus() error = %v, want ErrValidation", err)
	}
}
