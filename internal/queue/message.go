package queue

import (
	"fmt"
	"strings"

	"github.com/novapush/dispatcher/internal/domain"
)

// DispatchMessage is the broker payload for one dispatch job: the ordered
// delivery ids created by a single request. Deliveries listed here are
// processed strictly sequentially by one worker.
type DispatchMessage struct {
	CorrelationID string         `json:"correlationId"`
	DeliveryIDs   []string       `json:"deliveryIds"`
	Channel       domain.Channel `json:"channel"`
	TemplateID    string         `json:"templateId"`
}

func (m DispatchMessage) Validate() error {
	if strings.TrimSpace(m.CorrelationID) == "" {
		return fmt.Errorf("correlationId is required")
	}
	if len(m.DeliveryIDs) == 0 {
		return fmt.Errorf("deliveryIds must not be empty")
	}
	for _, id := range m.DeliveryIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("deliveryIds must not contain empty ids")
		}
	}
	if !m.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", m.Channel)
	}
	if strings.TrimSpace(m.TemplateID) == "" {
		return fmt.Errorf("templateId is required")
	}
	return nil
}
