package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a delivery record.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusSending, StatusSent, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the delivery worker has nothing left to do.
// A failed record can still be requeued manually; delivered can still be
// appended to by provider callbacks.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents the delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Channels lists every supported delivery channel.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelPush}
}

// TimelineEntry is one step in a delivery's append-only audit trail.
type TimelineEntry struct {
	At     time.Time `json:"at"`
	Status Status    `json:"status"`
	Info   string    `json:"info"`
}

// Delivery is the core domain entity: one recipient of one dispatch request.
// All deliveries created by the same request share a correlation id.
type Delivery struct {
	ID                string          `json:"id"`
	CorrelationID     string          `json:"correlationId"`
	Recipient         string          `json:"recipient"`
	Channel           Channel         `json:"channel"`
	TemplateID        string          `json:"templateId"`
	Payload           map[string]any  `json:"payload"`
	Status            Status          `json:"status"`
	Error             *string         `json:"error,omitempty"`
	Attempts          int             `json:"attempts"`
	ProviderMessageID *string         `json:"providerMessageId,omitempty"`
	Timeline          []TimelineEntry `json:"timeline"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func (d *Delivery) Validate() error {
	if strings.TrimSpace(d.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if !d.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, d.Channel)
	}
	if strings.TrimSpace(d.TemplateID) == "" {
		return fmt.Errorf("%w: template id is required", ErrValidation)
	}
	if !d.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, d.Status)
	}
	if d.Attempts < 0 {
		return fmt.Errorf("%w: attempts must not be negative", ErrValidation)
	}
	return nil
}

// DeliveryPatch describes a single atomic mutation of a delivery record.
// Nil fields are left untouched; ClearError removes the stored error.
type DeliveryPatch struct {
	Status            *Status
	Attempts          *int
	Error             *string
	ClearError        bool
	ProviderMessageID *string
	PayloadSet        map[string]any
}
