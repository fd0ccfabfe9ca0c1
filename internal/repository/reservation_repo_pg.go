package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/slotbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reservationColumns = `id, provider_id, start_time, end_time, client_email, client_name, timezone,
	payment_correlation_id, state, payment_window, payment_method_types, amount_cents, currency,
	expires_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

type PGReservationRepository struct {
	db *pgxpool.Pool
}

func NewReservationRepository(db *pgxpool.Pool) ReservationRepository {
	return &PGReservationRepository{db: db}
}

func (r *PGReservationRepository) Create(ctx context.Context, res *domain.SlotReservation) error {
	res.State = domain.ReservationStateReserved
	err := r.db.QueryRow(ctx, `INSERT INTO slot_reservations (id, provider_id, start_time, end_time, client_email, client_name,
			timezone, payment_correlation_id, state, payment_window, payment_method_types, amount_cents, currency, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		res.ID, res.ProviderID, res.Range.Start.UTC(), res.Range.End.UTC(), res.Client.Email, res.Client.Name,
		res.Timezone, nullable(res.PaymentCorrelationID), res.State, res.Window, res.PaymentMethodTypes,
		res.AmountCents, res.Currency, res.ExpiresAt.UTC()).
		Scan(&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) && res.PaymentCorrelationID != "" {
			return domain.ErrCorrelationInUse
		}
		return translateInsertError(err)
	}
	return nil
}

func (r *PGReservationRepository) GetByID(ctx context.Context, id string) (*domain.SlotReservation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM slot_reservations WHERE id=$1`, id)
	res, err := scanReservation(row)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return res, nil
}

func (r *PGReservationRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*domain.SlotReservation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+reservationColumns+` FROM slot_reservations WHERE payment_correlation_id=$1`, correlationID)
	res, err := scanReservation(row)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return res, nil
}

func (r *PGReservationRepository) AttachPayment(ctx context.Context, id, correlationID string) (*domain.SlotReservation, error) {
	row := r.db.QueryRow(ctx, `UPDATE slot_reservations SET payment_correlation_id=$1, updated_at=now()
		WHERE id=$2 AND state=$3 AND (payment_correlation_id IS NULL OR payment_correlation_id=$1)
		RETURNING `+reservationColumns, correlationID, id, domain.ReservationStateReserved)
	res, err := scanReservation(row)
	if err == nil {
		return res, nil
	}
	if isUniqueViolation(err) {
		return nil, domain.ErrCorrelationInUse
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, domain.ErrStaleTransition
}

func (r *PGReservationRepository) Transition(ctx context.Context, id string, from, to domain.ReservationState) (bool, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE slot_reservations SET state=$1, updated_at=now() WHERE id=$2 AND state=$3`, to, id, from)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *PGReservationRepository) Confirm(ctx context.Context, reservationID string, b *domain.ConfirmedBooking) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	cmd, err := tx.Exec(ctx, `UPDATE slot_reservations SET state=$1, updated_at=now() WHERE id=$2 AND state=$3`,
		domain.ReservationStateConfirmed, reservationID, domain.ReservationStatePaid)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}

	cmd, err = tx.Exec(ctx, `INSERT INTO confirmed_bookings (id, reservation_id, provider_id, start_time, end_time,
			client_email, client_name, status, payment_correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (payment_correlation_id) DO NOTHING`,
		b.ID, reservationID, b.ProviderID, b.Range.Start.UTC(), b.Range.End.UTC(),
		b.Client.Email, b.Client.Name, b.Status, b.PaymentCorrelationID)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *PGReservationRepository) ExpireBefore(ctx context.Context, now time.Time) ([]domain.SlotReservation, error) {
	rows, err := r.db.Query(ctx, `UPDATE slot_reservations SET state=$1, updated_at=now()
		WHERE state=$2 AND expires_at < $3
		RETURNING `+reservationColumns, domain.ReservationStateExpired, domain.ReservationStateReserved, now.UTC())
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (r *PGReservationRepository) ExpireDuplicates(ctx context.Context) ([]domain.SlotReservation, error) {
	rows, err := r.db.Query(ctx, `UPDATE slot_reservations s SET state=$1, updated_at=now()
		WHERE s.state=$2 AND EXISTS (
			SELECT 1 FROM slot_reservations o
			WHERE o.state=$2 AND o.provider_id=s.provider_id AND o.id<>s.id
				AND tstzrange(o.start_time, o.end_time) && tstzrange(s.start_time, s.end_time)
				AND (o.created_at, o.id) > (s.created_at, s.id))
		RETURNING `+reservationColumns, domain.ReservationStateExpired, domain.ReservationStateReserved)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func collectReservations(rows pgx.Rows) ([]domain.SlotReservation, error) {
	defer rows.Close()

	var out []domain.SlotReservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func scanReservation(row scanner) (*domain.SlotReservation, error) {
	var (
		res           domain.SlotReservation
		correlationID *string
	)
	if err := row.Scan(&res.ID, &res.ProviderID, &res.Range.Start, &res.Range.End, &res.Client.Email, &res.Client.Name,
		&res.Timezone, &correlationID, &res.State, &res.Window, &res.PaymentMethodTypes, &res.AmountCents, &res.Currency,
		&res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	if correlationID != nil {
		res.PaymentCorrelationID = *correlationID
	}
	res.Range = res.Range.UTC()
	return &res, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ ReservationRepository = (*PGReservationRepository)(nil)
