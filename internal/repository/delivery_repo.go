package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/novapush/dispatcher/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeliveryRepository interface {
	Create(ctx context.Context, deliveries []*domain.Delivery) error
	GetByID(ctx context.Context, id string) (*domain.Delivery, error)
	GetByProviderMessageID(ctx context.Context, providerMsgID string) (*domain.Delivery, error)
	List(ctx context.Context, limit int) ([]domain.Delivery, error)
	ListQueuedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Delivery, error)
	Apply(ctx context.Context, id string, patch domain.DeliveryPatch, entry domain.TimelineEntry) (*domain.Delivery, error)
}

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

func (r *GormDeliveryRepo) Create(ctx context.Context, deliveries []*domain.Delivery) error {
	models := make([]DeliveryModel, 0, len(deliveries))
	modelIndexes := make([]int, 0, len(deliveries))
	for i, d := range deliveries {
		model := deliveryModelFromDomain(d)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		*deliveries[idx] = *deliveryModelToDomain(&models[i])
	}

	return nil
}

func (r *GormDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	var model DeliveryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: delivery %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) GetByProviderMessageID(ctx context.Context, providerMsgID string) (*domain.Delivery, error) {
	if strings.TrimSpace(providerMsgID) == "" {
		return nil, fmt.Errorf("%w: provider message id is required", domain.ErrValidation)
	}

	var model DeliveryModel
	err := r.db.WithContext(ctx).
		First(&model, "provider_message_id = ?", providerMsgID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: delivery with provider message id %s", domain.ErrNotFound, providerMsgID)
		}
		return nil, err
	}
	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) List(ctx context.Context, limit int) ([]domain.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	var models []DeliveryModel
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	deliveries := make([]domain.Delivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}
	return deliveries, nil
}

func (r *GormDeliveryRepo) ListQueuedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Delivery, error) {
	if limit <= 0 {
		limit = 100
	}

	var models []DeliveryModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.StatusQueued, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	deliveries := make([]domain.Delivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}
	return deliveries, nil
}

// Apply performs one atomic find-and-update: the patch and the timeline
// append happen inside a single row-locked transaction, so concurrent
// worker and webhook mutations never interleave on one record.
func (r *GormDeliveryRepo) Apply(
	ctx context.Context,
	id string,
	patch domain.DeliveryPatch,
	entry domain.TimelineEntry,
) (*domain.Delivery, error) {
	var updated *domain.Delivery

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model DeliveryModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: delivery %s", domain.ErrNotFound, id)
			}
			return err
		}

		if patch.Status != nil {
			model.Status = *patch.Status
		}
		if patch.Attempts != nil {
			model.Attempts = *patch.Attempts
		}
		if patch.ClearError {
			model.Error = nil
		} else if patch.Error != nil {
			model.Error = patch.Error
		}
		if patch.ProviderMessageID != nil {
			model.ProviderMessageID = patch.ProviderMessageID
		}
		if len(patch.PayloadSet) > 0 {
			if model.Payload == nil {
				model.Payload = make(map[string]any, len(patch.PayloadSet))
			}
			for key, value := range patch.PayloadSet {
				model.Payload[key] = value
			}
		}

		if entry.At.IsZero() {
			entry.At = time.Now().UTC()
		}
		model.Timeline = append(model.Timeline, entry)

		if err := tx.Save(&model).Error; err != nil {
			return err
		}

		updated = deliveryModelToDomain(&model)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}
