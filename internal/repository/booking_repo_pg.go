package repository

import (
	"context"

	"github.com/Domenick1991/slotbooking/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

func (r *PGBookingRepository) ExistsForCorrelation(ctx context.Context, correlationID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM confirmed_bookings WHERE payment_correlation_id=$1)`, correlationID).
		Scan(&exists)
	return exists, err
}

func (r *PGBookingRepository) FindOverlapping(ctx context.Context, providerID string, rng domain.TimeRange) ([]domain.ConfirmedBooking, error) {
	rows, err := r.db.Query(ctx, `SELECT id, reservation_id, provider_id, start_time, end_time, client_email, client_name,
			status, payment_correlation_id, created_at
		FROM confirmed_bookings
		WHERE provider_id=$1 AND start_time < $2 AND end_time > $3
		ORDER BY start_time`, providerID, rng.End.UTC(), rng.Start.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]domain.ConfirmedBooking, 0)
	for rows.Next() {
		var b domain.ConfirmedBooking
		if err := rows.Scan(&b.ID, &b.ReservationID, &b.ProviderID, &b.Range.Start, &b.Range.End, &b.Client.Email,
			&b.Client.Name, &b.Status, &b.PaymentCorrelationID, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Range = b.Range.UTC()
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

var _ BookingRepository = (*PGBookingRepository)(nil)
