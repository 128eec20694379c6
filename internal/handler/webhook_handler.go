package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/novapush/dispatcher/internal/domain"
	"github.com/novapush/dispatcher/internal/provider"
	"go.uber.org/zap"
)

const twilioSignatureHeader = "X-Twilio-Signature"

type WebhookService interface {
	ApplyTwilioStatus(ctx context.Context, callback provider.TwilioCallback) (*domain.Delivery, error)
}

// WebhookHandler terminates provider status callbacks. These routes are
// unauthenticated at the API level; Twilio requests are verified by
// signature instead.
type WebhookHandler struct {
	service         WebhookService
	twilioAuthToken string
	publicBaseURL   string
	logger          *zap.Logger
}

func NewWebhookHandler(
	service WebhookService,
	twilioAuthToken string,
	publicBaseURL string,
	logger *zap.Logger,
) (*WebhookHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("webhook service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookHandler{
		service:         service,
		twilioAuthToken: strings.TrimSpace(twilioAuthToken),
		publicBaseURL:   strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		logger:          logger,
	}, nil
}

func RegisterWebhookRoutes(
	router fiber.Router,
	service WebhookService,
	twilioAuthToken string,
	publicBaseURL string,
	logger *zap.Logger,
) error {
	h, err := NewWebhookHandler(service, twilioAuthToken, publicBaseURL, logger)
	if err != nil {
		return err
	}

	router.Post("/v1/webhooks/twilio", h.TwilioStatus)
	return nil
}

func (h *WebhookHandler) TwilioStatus(c *fiber.Ctx) error {
	if h.twilioAuthToken == "" {
		return fmt.Errorf("%w: twilio auth token is not set", domain.ErrNotConfigured)
	}

	params := formParams(c)
	signature := c.Get(twilioSignatureHeader)
	if !provider.ValidateTwilioSignature(h.twilioAuthToken, signature, h.callbackURL(c), params) {
		return fmt.Errorf("%w: twilio signature mismatch", domain.ErrSignature)
	}

	callback := provider.ParseTwilioCallback(params)
	if strings.TrimSpace(callback.MessageSid) == "" {
		return fmt.Errorf("%w: message sid is required", domain.ErrValidation)
	}

	_, err := h.service.ApplyTwilioStatus(c.Context(), callback)
	if err != nil {
		// Callbacks for unknown messages are acked so Twilio stops
		// retrying them.
		if errors.Is(err, domain.ErrNotFound) {
			h.logger.Warn("callback for unknown provider message id",
				zap.String("messageSid", callback.MessageSid),
			)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{
				"success": true,
				"ignored": true,
			})
		}
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}

// callbackURL rebuilds the URL Twilio signed. Behind a proxy the request
// host is not the public one, so a configured public base URL wins.
func (h *WebhookHandler) callbackURL(c *fiber.Ctx) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL + c.OriginalURL()
	}
	return c.Protocol() + "://" + c.Hostname() + c.OriginalURL()
}

func formParams(c *fiber.Ctx) map[string]string {
	params := make(map[string]string)
	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		params[string(key)] = string(value)
	})
	return params
}
