package repository

import (
	"time"

	"github.com/novapush/dispatcher/internal/domain"
)

// DeliveryModel is the persistence model for the deliveries table. Payload
// and timeline are stored as jsonb documents; the timeline is append-only.
type DeliveryModel struct {
	ID                string                 `gorm:"type:uuid;primaryKey"`
	CorrelationID     string                 `gorm:"type:varchar(36);not null;index"`
	Recipient         string                 `gorm:"type:varchar(255);not null;index"`
	Channel           domain.Channel         `gorm:"type:varchar(10);not null"`
	TemplateID        string                 `gorm:"type:varchar(64);not null"`
	Payload           map[string]any         `gorm:"type:jsonb;serializer:json"`
	Status            domain.Status          `gorm:"type:varchar(20);not null;index"`
	Error             *string                `gorm:"type:text"`
	Attempts          int                    `gorm:"not null;default:0"`
	ProviderMessageID *string                `gorm:"type:varchar(255)"`
	Timeline          []domain.TimelineEntry `gorm:"type:jsonb;serializer:json"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (DeliveryModel) TableName() string {
	return "deliveries"
}

// TemplateModel is the persistence model for templates. The engine only
// reads templates; writes happen outside this service.
type TemplateModel struct {
	ID        string         `gorm:"type:varchar(64);primaryKey"`
	Name      string         `gorm:"type:varchar(255);not null"`
	Channel   domain.Channel `gorm:"type:varchar(10);not null"`
	Subject   string         `gorm:"type:varchar(255)"`
	Content   string         `gorm:"type:text;not null"`
	Variables []string       `gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TemplateModel) TableName() string {
	return "templates"
}

func deliveryModelFromDomain(d *domain.Delivery) *DeliveryModel {
	if d == nil {
		return nil
	}

	return &DeliveryModel{
		ID:                d.ID,
		CorrelationID:     d.CorrelationID,
		Recipient:         d.Recipient,
		Channel:           d.Channel,
		TemplateID:        d.TemplateID,
		Payload:           d.Payload,
		Status:            d.Status,
		Error:             d.Error,
		Attempts:          d.Attempts,
		ProviderMessageID: d.ProviderMessageID,
		Timeline:          d.Timeline,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func deliveryModelToDomain(m *DeliveryModel) *domain.Delivery {
	if m == nil {
		return nil
	}

	return &domain.Delivery{
		ID:                m.ID,
		CorrelationID:     m.CorrelationID,
		Recipient:         m.Recipient,
		Channel:           m.Channel,
		TemplateID:        m.TemplateID,
		Payload:           m.Payload,
		Status:            m.Status,
		Error:             m.Error,
		Attempts:          m.Attempts,
		ProviderMessageID: m.ProviderMessageID,
		Timeline:          m.Timeline,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func templateModelToDomain(m *TemplateModel) *domain.Template {
	if m == nil {
		return nil
	}

	return &domain.Template{
		ID:        m.ID,
		Name:      m.Name,
		Channel:   m.Channel,
		Subject:   m.Subject,
		Content:   m.Content,
		Variables: m.Variables,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
