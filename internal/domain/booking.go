package domain

import "time"

type ReservationState string

const (
	ReservationStateReserved         ReservationState = "RESERVED"
	ReservationStatePaid             ReservationState = "PAID"
	ReservationStateConfirmed        ReservationState = "CONFIRMED"
	ReservationStateExpired          ReservationState = "EXPIRED"
	ReservationStateConflictRefunded ReservationState = "CONFLICT_REFUNDED"
	ReservationStateFailed           ReservationState = "FAILED"
)

// Claiming reports whether a reservation in this state still holds its slot.
func (s ReservationState) Claiming() bool {
	switch s {
	case ReservationStateReserved, ReservationStatePaid, ReservationStateConfirmed:
		return true
	default:
		return false
	}
}

type PaymentWindow string

const (
	PaymentWindowImmediate PaymentWindow = "IMMEDIATE"
	PaymentWindowDelayed   PaymentWindow = "DELAYED"
)

type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses half-open intervals, so back-to-back slots do not collide.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start.Before(other.End) && r.End.After(other.Start)
}

func (r TimeRange) Valid() bool {
	return r.End.After(r.Start)
}

func (r TimeRange) UTC() TimeRange {
	return TimeRange{Start: r.Start.UTC(), End: r.End.UTC()}
}

type ClientContact struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type SlotReservation struct {
	ID                   string
	ProviderID           string
	Range                TimeRange
	Client               ClientContact
	Timezone             string
	PaymentCorrelationID string
	State                ReservationState
	Window               PaymentWindow
	PaymentMethodTypes   []string
	AmountCents          int64
	Currency             string
	ExpiresAt            time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

const BookingStatusSucceeded = "succeeded"

// ConfirmedBooking is created once per successful payment and keyed by the
// payment correlation id.
type ConfirmedBooking struct {
	ID                   string
	ReservationID        string
	ProviderID           string
	Range                TimeRange
	Client               ClientContact
	Status               string
	PaymentCorrelationID string
	CreatedAt            time.Time
}
