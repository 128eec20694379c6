package provider

import (
	"context"
	"fmt"

	"github.com/novapush/dispatcher/internal/domain"
)

// Message is the rendered content handed to a channel transport.
type Message struct {
	Recipient string
	Subject   string
	Content   string
}

// SendResult stores transport call metadata for audit and reconciliation.
// ProviderMessageID is the provider-assigned identifier later matched by
// status callbacks; transports without one leave it empty.
type SendResult struct {
	ProviderMessageID string
	StatusCode        int
}

// Transport is the outbound delivery port for one channel.
type Transport interface {
	Send(ctx context.Context, msg Message) (*SendResult, error)
}

// Registry maps channels to transports. Adding a channel is a registration,
// not a branch in the delivery worker.
type Registry struct {
	transports map[domain.Channel]Transport
}

func NewRegistry() *Registry {
	return &Registry{transports: make(map[domain.Channel]Transport)}
}

func (r *Registry) Register(channel domain.Channel, transport Transport) error {
	if !channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, channel)
	}
	if transport == nil {
		return fmt.Errorf("transport is required for channel %s", channel)
	}
	r.transports[channel] = transport
	return nil
}

func (r *Registry) Send(ctx context.Context, channel domain.Channel, msg Message) (*SendResult, error) {
	transport, ok := r.transports[channel]
	if !ok {
		return nil, &TransportError{
			Provider: channel.String(),
			Message:  fmt.Sprintf("no transport registered for channel %s", channel),
			Cause:    domain.ErrNotConfigured,
		}
	}
	return transport.Send(ctx, msg)
}
