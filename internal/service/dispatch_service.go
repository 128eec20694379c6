package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/novapush/dispatcher/internal/domain"
	"github.com/novapush/dispatcher/internal/idempotency"
	"github.com/novapush/dispatcher/internal/queue"
	"github.com/novapush/dispatcher/internal/repository"
	"go.uber.org/zap"
)

const maxRecipientsPerRequest = 1000

// Broadcaster pushes delivery updates to connected observers.
type Broadcaster interface {
	Publish(delivery domain.Delivery)
}

// DispatchRequest is one validated intake request: a template applied to a
// list of recipients over a single channel.
type DispatchRequest struct {
	IdempotencyKey string
	TemplateID     string
	Channel        domain.Channel
	Recipients     []string
	Variables      map[string]any
}

// DispatchResult reports the accepted request. Replayed is set when an
// idempotency key matched a previously recorded receipt and nothing was
// dispatched; Count then carries the record count of the original request.
type DispatchResult struct {
	CorrelationID string
	Count         int
	Replayed      bool
	Deliveries    []domain.Delivery
}

type DispatchService struct {
	deliveries repository.DeliveryRepository
	templates  repository.TemplateRepository
	guard      idempotency.Guard
	publisher  queue.Publisher
	hub        Broadcaster
	logger     *zap.Logger
	now        func() time.Time
}

func NewDispatchService(
	deliveries repository.DeliveryRepository,
	templates repository.TemplateRepository,
	guard idempotency.Guard,
	publisher queue.Publisher,
	hub Broadcaster,
	logger *zap.Logger,
) (*DispatchService, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if templates == nil {
		return nil, fmt.Errorf("template repository is required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchService{
		deliveries: deliveries,
		templates:  templates,
		guard:      guard,
		publisher:  publisher,
		hub:        hub,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Dispatch fans a request out into one delivery per recipient, persists the
// records, and enqueues a single job carrying their ordered ids. Requests
// replayed with a known idempotency key return the original correlation id
// without creating anything.
func (s *DispatchService) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	recipients, err := normalizeRecipients(req.Recipients)
	if err != nil {
		return nil, err
	}
	if !req.Channel.IsValid() {
		return nil, fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, req.Channel)
	}
	if strings.TrimSpace(req.TemplateID) == "" {
		return nil, fmt.Errorf("%w: template id is required", domain.ErrValidation)
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey != "" {
		receipt, found, err := s.guard.ReserveOrGet(ctx, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
		if found {
			s.logger.Info("dispatch replayed from idempotency key",
				zap.String("correlationId", receipt.CorrelationID),
			)
			return &DispatchResult{
				CorrelationID: receipt.CorrelationID,
				Count:         receipt.Count,
				Replayed:      true,
			}, nil
		}
	}

	template, err := s.templates.GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	correlationID := uuid.NewString()
	createdAt := s.now().UTC()

	deliveries := make([]*domain.Delivery, 0, len(recipients))
	for _, recipient := range recipients {
		delivery := &domain.Delivery{
			ID:            uuid.NewString(),
			CorrelationID: correlationID,
			Recipient:     recipient,
			Channel:       req.Channel,
			TemplateID:    template.ID,
			Payload:       map[string]any{"variables": req.Variables},
			Status:        domain.StatusQueued,
			Attempts:      0,
			Timeline: []domain.TimelineEntry{{
				At:     createdAt,
				Status: domain.StatusQueued,
				Info:   "Queued for sending",
			}},
		}
		if err := delivery.Validate(); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, delivery)
	}

	if err := s.deliveries.Create(ctx, deliveries); err != nil {
		return nil, fmt.Errorf("failed to persist deliveries: %w", err)
	}

	ids := make([]string, 0, len(deliveries))
	for _, delivery := range deliveries {
		ids = append(ids, delivery.ID)
	}

	msg := queue.DispatchMessage{
		CorrelationID: correlationID,
		DeliveryIDs:   ids,
		Channel:       req.Channel,
		TemplateID:    template.ID,
	}
	if err := s.publisher.Publish(ctx, queue.QueueName(req.Channel), msg); err != nil {
		// Records are persisted as queued; the resume scanner re-enqueues
		// them, so the request is still accepted.
		s.logger.Error("failed to publish dispatch job, resume scan will requeue",
			zap.String("correlationId", correlationID),
			zap.String("channel", req.Channel.String()),
			zap.Error(err),
		)
	}

	if idempotencyKey != "" {
		receipt := idempotency.Receipt{CorrelationID: correlationID, Count: len(deliveries)}
		if err := s.guard.Commit(ctx, idempotencyKey, receipt); err != nil {
			s.logger.Error("failed to commit idempotency receipt",
				zap.String("correlationId", correlationID),
				zap.Error(err),
			)
		}
	}

	result := &DispatchResult{
		CorrelationID: correlationID,
		Count:         len(deliveries),
		Deliveries:    make([]domain.Delivery, 0, len(deliveries)),
	}
	for _, delivery := range deliveries {
		result.Deliveries = append(result.Deliveries, *delivery)
	}

	return result, nil
}

func (s *DispatchService) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: delivery id is required", domain.ErrValidation)
	}
	return s.deliveries.GetByID(ctx, strings.TrimSpace(id))
}

func (s *DispatchService) List(ctx context.Context, limit int) ([]domain.Delivery, error) {
	return s.deliveries.List(ctx, limit)
}

// Retry requeues a failed delivery and publishes a single-record job for it.
func (s *DispatchService) Retry(ctx context.Context, id string) (*domain.Delivery, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: delivery id is required", domain.ErrValidation)
	}

	delivery, err := s.deliveries.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if delivery.Status != domain.StatusFailed {
		return nil, fmt.Errorf("%w: delivery %s is %s, only failed deliveries can be retried",
			domain.ErrValidation, delivery.ID, delivery.Status)
	}

	queued := domain.StatusQueued
	attempts := delivery.Attempts + 1
	updated, err := s.deliveries.Apply(ctx, delivery.ID,
		domain.DeliveryPatch{Status: &queued, Attempts: &attempts, ClearError: true},
		domain.TimelineEntry{
			At:     s.now().UTC(),
			Status: domain.StatusQueued,
			Info:   "Retry requested",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to requeue delivery: %w", err)
	}

	msg := queue.DispatchMessage{
		CorrelationID: updated.CorrelationID,
		DeliveryIDs:   []string{updated.ID},
		Channel:       updated.Channel,
		TemplateID:    updated.TemplateID,
	}
	if err := s.publisher.Publish(ctx, queue.QueueName(updated.Channel), msg); err != nil {
		s.logger.Error("failed to publish retry job, resume scan will requeue",
			zap.String("deliveryId", updated.ID),
			zap.Error(err),
		)
	}

	if s.hub != nil {
		s.hub.Publish(*updated)
	}

	return updated, nil
}

func normalizeRecipients(recipients []string) ([]string, error) {
	normalized := make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		trimmed := strings.TrimSpace(recipient)
		if trimmed == "" {
			continue
		}
		normalized = append(normalized, trimmed)
	}

	if len(normalized) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", domain.ErrValidation)
	}
	if len(normalized) > maxRecipientsPerRequest {
		return nil, fmt.Errorf("%w: recipient count exceeds %d", domain.ErrValidation, maxRecipientsPerRequest)
	}

	return normalized, nil
}
