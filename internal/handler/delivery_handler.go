package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/novapush/dispatcher/internal/domain"
	"github.com/novapush/dispatcher/internal/service"
)

const (
	latestListLimit      = 50
	maxListLimit         = 200
	idempotencyKeyHeader = "Idempotency-Key"
)

type DispatchService interface {
	Dispatch(ctx context.Context, req service.DispatchRequest) (*service.DispatchResult, error)
	GetByID(ctx context.Context, id string) (*domain.Delivery, error)
	List(ctx context.Context, limit int) ([]domain.Delivery, error)
	Retry(ctx context.Context, id string) (*domain.Delivery, error)
}

type DeliveryHandler struct {
	service DispatchService
}

func NewDeliveryHandler(service DispatchService) (*DeliveryHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("dispatch service is required")
	}
	return &DeliveryHandler{service: service}, nil
}

func RegisterDeliveryRoutes(router fiber.Router, service DispatchService) error {
	h, err := NewDeliveryHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/dispatches", h.CreateDispatch)
	v1.Get("/deliveries", h.ListDeliveries)
	v1.Get("/deliveries/:id", h.GetDelivery)
	v1.Post("/deliveries/:id/retry", h.RetryDelivery)

	return nil
}

type createDispatchRequest struct {
	TemplateID string         `json:"templateId"`
	Channel    string         `json:"channel"`
	Recipients []string       `json:"recipients"`
	Variables  map[string]any `json:"variables"`
}

type createDispatchResponse struct {
	Success       bool   `json:"success"`
	CorrelationID string `json:"correlationId"`
	Count         int    `json:"count"`
	Replayed      bool   `json:"replayed,omitempty"`
}

type deliveryResponse struct {
	ID                string               `json:"id"`
	CorrelationID     string               `json:"correlationId"`
	Recipient         string               `json:"recipient"`
	Channel           string               `json:"channel"`
	TemplateID        string               `json:"templateId"`
	Payload           map[string]any       `json:"payload,omitempty"`
	Status            string               `json:"status"`
	Error             *string              `json:"error,omitempty"`
	Attempts          int                  `json:"attempts"`
	ProviderMessageID *string              `json:"providerMessageId,omitempty"`
	Timeline          []timelineEntryItem  `json:"timeline"`
	CreatedAt         time.Time            `json:"createdAt"`
	UpdatedAt         time.Time            `json:"updatedAt"`
}

type timelineEntryItem struct {
	At     time.Time `json:"at"`
	Status string    `json:"status"`
	Info   string    `json:"info"`
}

func (h *DeliveryHandler) CreateDispatch(c *fiber.Ctx) error {
	var req createDispatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	channel, err := domain.ParseChannelFromString(req.Channel)
	if err != nil {
		return err
	}

	result, err := h.service.Dispatch(c.Context(), service.DispatchRequest{
		IdempotencyKey: strings.TrimSpace(c.Get(idempotencyKeyHeader)),
		TemplateID:     strings.TrimSpace(req.TemplateID),
		Channel:        channel,
		Recipients:     req.Recipients,
		Variables:      req.Variables,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(createDispatchResponse{
		Success:       true,
		CorrelationID: result.CorrelationID,
		Count:         result.Count,
		Replayed:      result.Replayed,
	})
}

// ListDeliveries returns the newest records first. The latest flag selects
// the small recent window; without it the larger window applies.
func (h *DeliveryHandler) ListDeliveries(c *fiber.Ctx) error {
	limit := maxListLimit
	if c.QueryBool("latest", false) {
		limit = latestListLimit
	}

	deliveries, err := h.service.List(c.Context(), limit)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    toDeliveryResponses(deliveries),
	})
}

func (h *DeliveryHandler) GetDelivery(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	delivery, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    toDeliveryResponse(delivery),
	})
}

func (h *DeliveryHandler) RetryDelivery(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	delivery, err := h.service.Retry(c.Context(), id)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    toDeliveryResponse(delivery),
	})
}

func toDeliveryResponses(deliveries []domain.Delivery) []deliveryResponse {
	responses := make([]deliveryResponse, 0, len(deliveries))
	for i := range deliveries {
		responses = append(responses, toDeliveryResponse(&deliveries[i]))
	}
	return responses
}

func toDeliveryResponse(d *domain.Delivery) deliveryResponse {
	if d == nil {
		return deliveryResponse{}
	}

	timeline := make([]timelineEntryItem, 0, len(d.Timeline))
	for _, entry := range d.Timeline {
		timeline = append(timeline, timelineEntryItem{
			At:     entry.At,
			Status: entry.Status.String(),
			Info:   entry.Info,
		})
	}

	return deliveryResponse{
		ID:                d.ID,
		CorrelationID:     d.CorrelationID,
		Recipient:         d.Recipient,
		Channel:           d.Channel.String(),
		TemplateID:        d.TemplateID,
		Payload:           d.Payload,
		Status:            d.Status.String(),
		Error:             d.Error,
		Attempts:          d.Attempts,
		ProviderMessageID: d.ProviderMessageID,
		Timeline:          timeline,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}
