package kafka

import (
	"context"
	"time"

	"github.com/Domenick1991/slotbooking/internal/domain"
)

// ReservationEvent is published on every reservation lifecycle change.
type ReservationEvent struct {
	Type                 string    `json:"type"`
	ReservationID        string    `json:"reservation_id"`
	ProviderID           string    `json:"provider_id"`
	StartTime            time.Time `json:"start_time"`
	EndTime              time.Time `json:"end_time"`
	State                string    `json:"state"`
	PaymentWindow        string    `json:"payment_window"`
	PaymentCorrelationID string    `json:"payment_correlation_id,omitempty"`
	ExpiresAt            time.Time `json:"expires_at"`
}

func NewReservationEvent(eventType string, r *domain.SlotReservation) ReservationEvent {
	return ReservationEvent{
		Type:                 eventType,
		ReservationID:        r.ID,
		ProviderID:           r.ProviderID,
		StartTime:            r.Range.Start,
		EndTime:              r.Range.End,
		State:                string(r.State),
		PaymentWindow:        string(r.Window),
		PaymentCorrelationID: r.PaymentCorrelationID,
		ExpiresAt:            r.ExpiresAt,
	}
}

// NotificationMessage is the wire form of a notification request.
type NotificationMessage struct {
	Recipient  string            `json:"recipient"`
	TemplateID string            `json:"template_id"`
	Variables  map[string]string `json:"variables"`
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// Notifier hands notifications to the delivery worker through a topic.
type Notifier struct {
	producer Publisher
	topic    string
}

func NewNotifier(producer Publisher, topic string) *Notifier {
	return &Notifier{producer: producer, topic: topic}
}

func (n *Notifier) Notify(ctx context.Context, msg domain.Notification) error {
	return n.producer.Publish(ctx, n.topic, msg.Recipient, NotificationMessage{
		Recipient:  msg.Recipient,
		TemplateID: msg.TemplateID,
		Variables:  msg.Variables,
	})
}

// LifecyclePublisher publishes ReservationEvents keyed by reservation id.
type LifecyclePublisher struct {
	producer Publisher
	topic    string
}

func NewLifecyclePublisher(producer Publisher, topic string) *LifecyclePublisher {
	return &LifecyclePublisher{producer: producer, topic: topic}
}

func (p *LifecyclePublisher) PublishReservation(ctx context.Context, eventType string, r *domain.SlotReservation) error {
	if p.topic == "" {
		return nil
	}
	return p.producer.Publish(ctx, p.topic, r.ID, NewReservationEvent(eventType, r))
}
