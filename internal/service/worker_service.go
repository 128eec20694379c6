package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/novapush/dispatcher/internal/domain"
	"github.com/novapush/dispatcher/internal/observability"
	"github.com/novapush/dispatcher/internal/provider"
	"github.com/novapush/dispatcher/internal/queue"
	"github.com/novapush/dispatcher/internal/ratelimit"
	"github.com/novapush/dispatcher/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minWorkerConcurrency  = 1
	defaultMaxAttempts    = 3
	defaultBaseRetryDelay = 500 * time.Millisecond
	maxRetryDelay         = 30 * time.Second
)

// TransportSender abstracts the channel transport registry.
type TransportSender interface {
	Send(ctx context.Context, channel domain.Channel, msg provider.Message) (*provider.SendResult, error)
}

// WorkerService drains the channel work queues and drives each delivery
// through its retry state machine. Records within one job are processed
// strictly in the order the dispatch request listed them.
type WorkerService struct {
	deliveries  repository.DeliveryRepository
	templates   repository.TemplateRepository
	consumer    queue.Consumer
	transports  TransportSender
	rateLimiter ratelimit.RateLimiter
	hub         Broadcaster
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	maxAttempts int
	baseDelay   time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewWorkerService(
	deliveries repository.DeliveryRepository,
	templates repository.TemplateRepository,
	consumer queue.Consumer,
	transports TransportSender,
	rateLimiter ratelimit.RateLimiter,
	hub Broadcaster,
	concurrency int,
	maxAttempts int,
	baseDelay time.Duration,
	logger *zap.Logger,
) (*WorkerService, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if templates == nil {
		return nil, fmt.Errorf("template repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if transports == nil {
		return nil, fmt.Errorf("transport sender is required")
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.NopLimiter{}
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		deliveries:  deliveries,
		templates:   templates,
		consumer:    consumer,
		transports:  transports,
		rateLimiter: rateLimiter,
		hub:         hub,
		logger:      logger,
		concurrency: concurrency,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		now:         time.Now,
		sleep:       sleepWithContext,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the channel work queues until context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := s.consumer.Consume(groupCtx, queueName, s.processJob)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processJob(ctx context.Context, msg queue.DispatchMessage) error {
	if err := msg.Validate(); err != nil {
		s.logger.Warn("dropping malformed dispatch job", zap.Error(err))
		return nil
	}

	ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	logger := observability.WithContextLogger(s.logger, ctx)

	channelName := strings.ToLower(msg.Channel.String())
	s.metrics.IncWorkerInFlight(channelName)
	defer s.metrics.DecWorkerInFlight(channelName)

	template, err := s.templates.GetByID(ctx, msg.TemplateID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.failJobRecords(ctx, logger, msg, "template not found")
		}
		return fmt.Errorf("failed to resolve template %s: %w", msg.TemplateID, err)
	}

	for _, deliveryID := range msg.DeliveryIDs {
		if err := s.processDelivery(ctx, logger, template, deliveryID); err != nil {
			return err
		}
	}

	return nil
}

func (s *WorkerService) processDelivery(
	ctx context.Context,
	logger *zap.Logger,
	template *domain.Template,
	deliveryID string,
) error {
	delivery, err := s.deliveries.GetByID(ctx, deliveryID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("delivery not found, skipping", zap.String("deliveryId", deliveryID))
			return nil
		}
		return fmt.Errorf("failed to load delivery %s: %w", deliveryID, err)
	}

	// Only queued records are live work; anything else was already picked
	// up elsewhere or finished.
	if delivery.Status != domain.StatusQueued {
		logger.Debug("skipping delivery not in queued state",
			zap.String("deliveryId", delivery.ID),
			zap.String("status", delivery.Status.String()),
		)
		return nil
	}

	vars := variablesFromPayload(delivery.Payload)
	message := provider.Message{
		Recipient: delivery.Recipient,
		Subject:   template.RenderSubject(vars),
		Content:   template.Render(vars),
	}

	channelName := strings.ToLower(delivery.Channel.String())
	startAttempts := delivery.Attempts

	for local := 1; local <= s.maxAttempts; local++ {
		attemptNumber := startAttempts + local

		// Gate before the state transition so a limiter failure leaves the
		// record queued for redelivery instead of stranded in sending.
		if err := s.rateLimiter.Wait(ctx, channelName); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}

		sending := domain.StatusSending
		if _, err := s.deliveries.Apply(ctx, delivery.ID,
			domain.DeliveryPatch{Status: &sending, Attempts: &attemptNumber},
			domain.TimelineEntry{
				At:     s.now().UTC(),
				Status: domain.StatusSending,
				Info:   fmt.Sprintf("Attempt %d", attemptNumber),
			},
		); err != nil {
			return fmt.Errorf("failed to mark delivery %s as sending: %w", delivery.ID, err)
		}

		sendStart := s.now()
		result, sendErr := s.transports.Send(ctx, delivery.Channel, message)
		s.metrics.ObserveAttemptDuration(channelName, s.now().Sub(sendStart))

		if sendErr == nil {
			return s.markSent(ctx, logger, delivery, result, attemptNumber, channelName)
		}

		errMsg := sendErr.Error()
		if local < s.maxAttempts {
			// The record returns to queued so a crash during backoff leaves
			// it visible to the resume scan; the timeline still records the
			// failed attempt.
			queued := domain.StatusQueued
			updated, err := s.deliveries.Apply(ctx, delivery.ID,
				domain.DeliveryPatch{Status: &queued, Error: &errMsg},
				domain.TimelineEntry{
					At:     s.now().UTC(),
					Status: domain.StatusFailed,
					Info:   fmt.Sprintf("Attempt %d failed: %s", attemptNumber, errMsg),
				},
			)
			if err != nil {
				return fmt.Errorf("failed to requeue delivery %s after attempt: %w", delivery.ID, err)
			}

			s.metrics.IncRetryScheduled(channelName)
			if s.hub != nil {
				s.hub.Publish(*updated)
			}
			if err := s.sleep(ctx, s.retryDelay(local)); err != nil {
				return err
			}
			continue
		}

		failed := domain.StatusFailed
		updated, err := s.deliveries.Apply(ctx, delivery.ID,
			domain.DeliveryPatch{Status: &failed, Error: &errMsg},
			domain.TimelineEntry{
				At:     s.now().UTC(),
				Status: domain.StatusFailed,
				Info:   fmt.Sprintf("Attempt %d failed: %s", attemptNumber, errMsg),
			},
		)
		if err != nil {
			return fmt.Errorf("failed to mark delivery %s as failed: %w", delivery.ID, err)
		}

		s.metrics.IncDeliveryFailed(channelName)
		logger.Warn("delivery exhausted retry budget",
			zap.String("deliveryId", delivery.ID),
			zap.Int("attempts", attemptNumber),
			zap.String("error", errMsg),
		)
		if s.hub != nil {
			s.hub.Publish(*updated)
		}
		return nil
	}

	return nil
}

func (s *WorkerService) markSent(
	ctx context.Context,
	logger *zap.Logger,
	delivery *domain.Delivery,
	result *provider.SendResult,
	attemptNumber int,
	channelName string,
) error {
	sent := domain.StatusSent
	patch := domain.DeliveryPatch{Status: &sent, ClearError: true}

	if result != nil && strings.TrimSpace(result.ProviderMessageID) != "" {
		providerMsgID := strings.TrimSpace(result.ProviderMessageID)
		patch.ProviderMessageID = &providerMsgID
		if key := providerIDPayloadKey(delivery.Channel); key != "" {
			patch.PayloadSet = map[string]any{key: providerMsgID}
		}
	}

	updated, err := s.deliveries.Apply(ctx, delivery.ID, patch, domain.TimelineEntry{
		At:     s.now().UTC(),
		Status: domain.StatusSent,
		Info:   fmt.Sprintf("Attempt %d succeeded", attemptNumber),
	})
	if err != nil {
		return fmt.Errorf("failed to mark delivery %s as sent: %w", delivery.ID, err)
	}

	s.metrics.IncDeliverySent(channelName)
	logger.Info("delivery sent",
		zap.String("deliveryId", delivery.ID),
		zap.Int("attempts", attemptNumber),
	)
	if s.hub != nil {
		s.hub.Publish(*updated)
	}
	return nil
}

// failJobRecords fails every still-queued record of a job whose shared
// precondition (template resolution) cannot be met.
func (s *WorkerService) failJobRecords(
	ctx context.Context,
	logger *zap.Logger,
	msg queue.DispatchMessage,
	reason string,
) error {
	channelName := strings.ToLower(msg.Channel.String())

	for _, deliveryID := range msg.DeliveryIDs {
		delivery, err := s.deliveries.GetByID(ctx, deliveryID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return fmt.Errorf("failed to load delivery %s: %w", deliveryID, err)
		}
		if delivery.Status != domain.StatusQueued {
			continue
		}

		failed := domain.StatusFailed
		errMsg := reason
		updated, err := s.deliveries.Apply(ctx, delivery.ID,
			domain.DeliveryPatch{Status: &failed, Error: &errMsg},
			domain.TimelineEntry{
				At:     s.now().UTC(),
				Status: domain.StatusFailed,
				Info:   reason,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to mark delivery %s as failed: %w", delivery.ID, err)
		}

		s.metrics.IncDeliveryFailed(channelName)
		if s.hub != nil {
			s.hub.Publish(*updated)
		}
	}

	logger.Warn("failed dispatch job records",
		zap.String("templateId", msg.TemplateID),
		zap.String("reason", reason),
	)
	return nil
}

func (s *WorkerService) retryDelay(attemptsSoFar int) time.Duration {
	if attemptsSoFar < 1 {
		attemptsSoFar = 1
	}

	delay := s.baseDelay
	for i := 1; i < attemptsSoFar; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

func variablesFromPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	vars, ok := payload["variables"].(map[string]any)
	if !ok {
		return nil
	}
	return vars
}

func providerIDPayloadKey(channel domain.Channel) string {
	switch channel {
	case domain.ChannelSMS:
		return "sid"
	case domain.ChannelEmail:
		return "messageId"
	default:
		return ""
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
