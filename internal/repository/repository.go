package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/slotbooking/internal/domain"
)

type ReservationRepository interface {
	// Create inserts a RESERVED row. Overlap with another claiming reservation
	// yields domain.ErrSlotTaken.
	Create(ctx context.Context, r *domain.SlotReservation) error
	GetByID(ctx context.Context, id string) (*domain.SlotReservation, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*domain.SlotReservation, error)
	AttachPayment(ctx context.Context, id, correlationID string) (*domain.SlotReservation, error)
	// Transition moves a reservation from one state to another only when it is
	// still in the from state. It reports whether a row changed.
	Transition(ctx context.Context, id string, from, to domain.ReservationState) (bool, error)
	// Confirm moves a PAID reservation to CONFIRMED and inserts the booking in
	// one transaction. It reports false when the reservation is no longer PAID
	// or a booking for the correlation id exists.
	Confirm(ctx context.Context, reservationID string, booking *domain.ConfirmedBooking) (bool, error)
	// ExpireBefore only touches RESERVED rows; a reservation claimed by a
	// payment is PAID and out of its reach.
	ExpireBefore(ctx context.Context, now time.Time) ([]domain.SlotReservation, error)
	// ExpireDuplicates expires every RESERVED row that overlaps a newer RESERVED
	// row of the same provider.
	ExpireDuplicates(ctx context.Context) ([]domain.SlotReservation, error)
}

type BookingRepository interface {
	ExistsForCorrelation(ctx context.Context, correlationID string) (bool, error)
	FindOverlapping(ctx context.Context, providerID string, rng domain.TimeRange) ([]domain.ConfirmedBooking, error)
}

type AvailabilityRepository interface {
	GetProvider(ctx context.Context, providerID string) (*domain.ProviderSettings, error)
	// FindBlockedDate returns nil when the day is free.
	FindBlockedDate(ctx context.Context, providerID string, day time.Time) (*domain.BlockedDate, error)
}

type RefundRepository interface {
	GetByCorrelationID(ctx context.Context, correlationID string) (*domain.RefundRecord, error)
	// Create reports false when a record for the correlation id already exists.
	Create(ctx context.Context, rec *domain.RefundRecord) (bool, error)
}
