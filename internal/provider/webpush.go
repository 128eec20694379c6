package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/novapush/dispatcher/internal/domain"
)

type WebPushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
}

func (c WebPushConfig) configured() bool {
	return strings.TrimSpace(c.VAPIDPublicKey) != "" &&
		strings.TrimSpace(c.VAPIDPrivateKey) != ""
}

// WebPushTransport delivers browser push notifications via the Web Push
// protocol with VAPID authentication. The recipient is a JSON-encoded push
// subscription as handed out by the browser.
type WebPushTransport struct {
	cfg  WebPushConfig
	send func(ctx context.Context, message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

func NewWebPushTransport(cfg WebPushConfig) *WebPushTransport {
	return &WebPushTransport{
		cfg:  cfg,
		send: webpush.SendNotificationWithContext,
	}
}

func (t *WebPushTransport) Send(ctx context.Context, msg Message) (*SendResult, error) {
	if !t.cfg.configured() {
		return nil, &TransportError{
			Provider: "webpush",
			Message:  "VAPID keys not set",
			Cause:    domain.ErrNotConfigured,
		}
	}

	var subscription webpush.Subscription
	if err := json.Unmarshal([]byte(msg.Recipient), &subscription); err != nil {
		return nil, &TransportError{
			Provider: "webpush",
			Message:  "recipient is not a valid push subscription",
			Cause:    err,
		}
	}

	payload, err := json.Marshal(map[string]string{
		"title": msg.Subject,
		"body":  msg.Content,
	})
	if err != nil {
		return nil, &TransportError{
			Provider: "webpush",
			Message:  "failed to encode push payload",
			Cause:    err,
		}
	}

	response, err := t.send(ctx, payload, &subscription, &webpush.Options{
		Subscriber:      t.cfg.Subject,
		VAPIDPublicKey:  t.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: t.cfg.VAPIDPrivateKey,
		TTL:             60,
	})
	if err != nil {
		return nil, &TransportError{
			Provider: "webpush",
			Message:  "push send failed",
			Cause:    err,
		}
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
		return &SendResult{StatusCode: response.StatusCode}, nil
	}

	return nil, &TransportError{
		Provider:   "webpush",
		StatusCode: response.StatusCode,
		Message:    fmt.Sprintf("push service returned status %d", response.StatusCode),
	}
}
