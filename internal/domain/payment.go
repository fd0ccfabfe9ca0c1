package domain

import "time"

type PaymentEventType string

const (
	PaymentEventSucceeded      PaymentEventType = "succeeded"
	PaymentEventFailed         PaymentEventType = "failed"
	PaymentEventRequiresAction PaymentEventType = "requires_action"
)

type PaymentEvent struct {
	ID                   string
	Type                 PaymentEventType
	PaymentCorrelationID string
	AmountCents          int64
	Currency             string
	Timestamp            time.Time
}

type RefundRecord struct {
	PaymentCorrelationID string
	AmountCents          int64
	Currency             string
	ReasonCode           ConflictType
	ProcessedAt          time.Time
	PolicyVersion        string
	GatewayRefundID      string
}

const (
	TemplateBookingConfirmed   = "booking_confirmed"
	TemplateSlotConflictRefund = "slot_conflict_refund"
)

// Notification is a fire-and-forget request to the notification service.
type Notification struct {
	Recipient  string
	TemplateID string
	Variables  map[string]string
}
