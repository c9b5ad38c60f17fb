package dispatch

import (
	"context"

	"github.com/harun/shinimi/pkg/actions"
	"github.com/harun/shinimi/pkg/events"
)

// PublishingDeliverer reports every successful delivery to a Publisher.
type PublishingDeliverer struct {
	next      actions.Deliverer
	publisher Publisher
}

// NewPublishingDeliverer wraps next. A nil publisher discards events.
func NewPublishingDeliverer(next actions.Deliverer, publisher Publisher) *PublishingDeliverer {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &PublishingDeliverer{next: next, publisher: publisher}
}

// Deliver implements actions.Deliverer.
func (p *PublishingDeliverer) Deliver(ctx context.Context, recipientID, text string) error {
	if err := p.next.Deliver(ctx, recipientID, text); err != nil {
		return err
	}
	p.publisher.Publish(events.EventMessageDelivered, map[string]interface{}{
		"recipient_id": recipientID,
		"length":       len([]rune(text)),
	})
	return nil
}
