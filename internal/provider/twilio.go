package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/novapush/dispatcher/internal/domain"
)

const (
	twilioDefaultBaseURL = "https://api.twilio.com"
	twilioTimeout        = 10 * time.Second
)

// TwilioConfig carries the credentials for the SMS transport. StatusCallback
// is the externally visible webhook URL passed to Twilio so delivery status
// callbacks can be reconciled later.
type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	From           string
	StatusCallback string
	BaseURL        string
}

func (c TwilioConfig) configured() bool {
	return strings.TrimSpace(c.AccountSID) != "" &&
		strings.TrimSpace(c.AuthToken) != "" &&
		strings.TrimSpace(c.From) != ""
}

// TwilioTransport sends SMS messages through the Twilio Messages API.
type TwilioTransport struct {
	client *resty.Client
	cfg    TwilioConfig
}

func NewTwilioTransport(cfg TwilioConfig) *TwilioTransport {
	client := resty.New()
	client.SetTimeout(twilioTimeout)
	client.SetRetryCount(0)
	return NewTwilioTransportWithClient(cfg, client)
}

func NewTwilioTransportWithClient(cfg TwilioConfig, client *resty.Client) *TwilioTransport {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = twilioDefaultBaseURL
	}
	return &TwilioTransport{client: client, cfg: cfg}
}

type twilioMessageResponse struct {
	Sid          string `json:"sid"`
	Status       string `json:"status"`
	ErrorMessage string `json:"message"`
}

func (t *TwilioTransport) Send(ctx context.Context, msg Message) (*SendResult, error) {
	if !t.cfg.configured() {
		return nil, &TransportError{
			Provider: "twilio",
			Message:  "twilio is not configured",
			Cause:    domain.ErrNotConfigured,
		}
	}

	form := map[string]string{
		"To":   msg.Recipient,
		"From": t.cfg.From,
		"Body": msg.Content,
	}
	if callback := strings.TrimSpace(t.cfg.StatusCallback); callback != "" {
		form["StatusCallback"] = callback
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(t.cfg.BaseURL, "/"), t.cfg.AccountSID)

	response, err := t.client.R().
		SetContext(ctx).
		SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken).
		SetFormData(form).
		Post(endpoint)
	if err != nil {
		return nil, &TransportError{
			Provider: "twilio",
			Message:  "request failed",
			Cause:    err,
		}
	}

	statusCode := response.StatusCode()
	body := response.Body()

	var parsed twilioMessageResponse
	_ = json.Unmarshal(body, &parsed)

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &SendResult{
			ProviderMessageID: parsed.Sid,
			StatusCode:        statusCode,
		}, nil
	}

	message := strings.TrimSpace(parsed.ErrorMessage)
	if message == "" {
		message = fmt.Sprintf("twilio returned status %d", statusCode)
	}
	return nil, &TransportError{
		Provider:   "twilio",
		StatusCode: statusCode,
		Message:    message,
	}
}
