package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/novapush/dispatcher/internal/domain"
)

const (
	sendgridDefaultBaseURL = "https://api.sendgrid.com"
	sendgridTimeout        = 15 * time.Second
)

type SendGridConfig struct {
	APIKey  string
	From    string
	BaseURL string
}

// SendGridTransport sends email through the SendGrid v3 mail API.
type SendGridTransport struct {
	client *resty.Client
	cfg    SendGridConfig
}

func NewSendGridTransport(cfg SendGridConfig) *SendGridTransport {
	client := resty.New()
	client.SetTimeout(sendgridTimeout)
	client.SetRetryCount(0)
	return NewSendGridTransportWithClient(cfg, client)
}

func NewSendGridTransportWithClient(cfg SendGridConfig, client *resty.Client) *SendGridTransport {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = sendgridDefaultBaseURL
	}
	return &SendGridTransport{client: client, cfg: cfg}
}

type sendgridMailRequest struct {
	Personalizations []sendgridPersonalization `json:"personalizations"`
	From             sendgridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendgridContent         `json:"content"`
}

type sendgridPersonalization struct {
	To []sendgridAddress `json:"to"`
}

type sendgridAddress struct {
	Email string `json:"email"`
}

type sendgridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (t *SendGridTransport) Send(ctx context.Context, msg Message) (*SendResult, error) {
	if strings.TrimSpace(t.cfg.APIKey) == "" {
		return nil, &TransportError{
			Provider: "sendgrid",
			Message:  "sendgrid is not configured",
			Cause:    domain.ErrNotConfigured,
		}
	}

	reqBody := sendgridMailRequest{
		Personalizations: []sendgridPersonalization{
			{To: []sendgridAddress{{Email: msg.Recipient}}},
		},
		From:    sendgridAddress{Email: t.cfg.From},
		Subject: msg.Subject,
		Content: []sendgridContent{{Type: "text/html", Value: msg.Content}},
	}

	response, err := t.client.R().
		SetContext(ctx).
		SetAuthToken(t.cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(strings.TrimRight(t.cfg.BaseURL, "/") + "/v3/mail/send")
	if err != nil {
		return nil, &TransportError{
			Provider: "sendgrid",
			Message:  "request failed",
			Cause:    err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		messageID := strings.TrimSpace(response.Header().Get("X-Message-Id"))
		if messageID == "" {
			messageID = fmt.Sprintf("sendgrid-%d", time.Now().UnixMilli())
		}
		return &SendResult{
			ProviderMessageID: messageID,
			StatusCode:        statusCode,
		}, nil
	}

	message := strings.TrimSpace(response.String())
	if message == "" {
		message = fmt.Sprintf("sendgrid returned status %d", statusCode)
	}
	return nil, &TransportError{
		Provider:   "sendgrid",
		StatusCode: statusCode,
		Message:    message,
	}
}
