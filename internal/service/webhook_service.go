package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/novapush/dispatcher/internal/domain"
	"github.com/novapush/dispatcher/internal/observability"
	"github.com/novapush/dispatcher/internal/provider"
	"github.com/novapush/dispatcher/internal/repository"
	"go.uber.org/zap"
)

// WebhookService reconciles provider status callbacks onto delivery records.
type WebhookService struct {
	deliveries repository.DeliveryRepository
	hub        Broadcaster
	logger     *zap.Logger
	metrics    *observability.Metrics
}

func NewWebhookService(
	deliveries repository.DeliveryRepository,
	hub Broadcaster,
	logger *zap.Logger,
) (*WebhookService, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookService{
		deliveries: deliveries,
		hub:        hub,
		logger:     logger,
	}, nil
}

func (s *WebhookService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// ApplyTwilioStatus maps a Twilio callback onto the matching delivery and
// applies the new status unconditionally; Twilio does not guarantee
// callback ordering, so the latest received status wins.
func (s *WebhookService) ApplyTwilioStatus(ctx context.Context, callback provider.TwilioCallback) (*domain.Delivery, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(callback.MessageSid) == "" {
		return nil, fmt.Errorf("%w: message sid is required", domain.ErrValidation)
	}

	mapped := provider.MapTwilioStatus(callback.MessageStatus)

	delivery, err := s.deliveries.GetByProviderMessageID(ctx, strings.TrimSpace(callback.MessageSid))
	if err != nil {
		return nil, err
	}

	patch := domain.DeliveryPatch{Status: &mapped}
	if mapped == domain.StatusFailed {
		errMsg := fmt.Sprintf("provider reported %s", strings.ToLower(strings.TrimSpace(callback.MessageStatus)))
		patch.Error = &errMsg
	}

	updated, err := s.deliveries.Apply(ctx, delivery.ID, patch, domain.TimelineEntry{
		Status: mapped,
		Info:   "Twilio status update",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply provider status: %w", err)
	}

	s.metrics.IncWebhookUpdate("twilio", mapped.String())
	s.logger.Info("applied provider status callback",
		zap.String("deliveryId", updated.ID),
		zap.String("providerStatus", callback.MessageStatus),
		zap.String("status", mapped.String()),
	)

	if s.hub != nil {
		s.hub.Publish(*updated)
	}

	return updated, nil
}
