package service

import (
	"context"
	"fmt"
	"time"

	"github.com/novapush/dispatcher/internal/domain"
	"github.com/novapush/dispatcher/internal/queue"
	"github.com/novapush/dispatcher/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultResumeScanInterval = 30 * time.Second
	defaultResumeScanLimit    = 100
)

// ResumeScanner periodically re-enqueues queued deliveries that have not
// been touched for a full scan interval. It covers jobs lost to a broker
// outage or a worker crash mid-backoff; the worker's queued-only pickup
// makes a duplicate enqueue harmless.
type ResumeScanner struct {
	deliveries repository.DeliveryRepository
	publisher  queue.Publisher
	logger     *zap.Logger
	interval   time.Duration
	limit      int
	now        func() time.Time
}

func NewResumeScanner(
	deliveries repository.DeliveryRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*ResumeScanner, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultResumeScanInterval
	}
	if limit <= 0 {
		limit = defaultResumeScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ResumeScanner{
		deliveries: deliveries,
		publisher:  publisher,
		logger:     logger,
		interval:   interval,
		limit:      limit,
		now:        time.Now,
	}, nil
}

func (s *ResumeScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Initial scan so records stranded by a previous run are picked up
	// right away instead of waiting for the first ticker edge.
	if err := s.scanStranded(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("resume scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.scanStranded(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("resume scanner scan failed", zap.Error(err))
			}
		}
	}
}

func (s *ResumeScanner) scanStranded(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.interval)
	stranded, err := s.deliveries.ListQueuedBefore(ctx, cutoff, s.limit)
	if err != nil {
		return fmt.Errorf("failed to list stranded deliveries: %w", err)
	}

	for i := range stranded {
		delivery := stranded[i]
		msg := queue.DispatchMessage{
			CorrelationID: delivery.CorrelationID,
			DeliveryIDs:   []string{delivery.ID},
			Channel:       delivery.Channel,
			TemplateID:    delivery.TemplateID,
		}

		queueName := queue.QueueName(delivery.Channel)
		if err := s.publisher.Publish(ctx, queueName, msg); err != nil {
			s.logger.Error("failed to re-enqueue stranded delivery",
				zap.String("deliveryId", delivery.ID),
				zap.String("queue", queueName),
				zap.Error(err),
			)
			continue
		}

		// Touch the record so the next scan does not pick it up again
		// before a worker gets to it.
		if _, err := s.deliveries.Apply(ctx, delivery.ID,
			domain.DeliveryPatch{},
			domain.TimelineEntry{
				At:     s.now().UTC(),
				Status: domain.StatusQueued,
				Info:   "Requeued by resume scan",
			},
		); err != nil {
			s.logger.Error("failed to touch delivery after re-enqueue",
				zap.String("deliveryId", delivery.ID),
				zap.Error(err),
			)
			continue
		}

		s.logger.Info("re-enqueued stranded delivery",
			zap.String("deliveryId", delivery.ID),
			zap.String("queue", queueName),
		)
	}

	return nil
}
