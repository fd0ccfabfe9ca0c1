package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/slotbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGAvailabilityRepository reads provider settings and blocked dates owned by
// the provider-settings component.
type PGAvailabilityRepository struct {
	db *pgxpool.Pool
}

func NewAvailabilityRepository(db *pgxpool.Pool) AvailabilityRepository {
	return &PGAvailabilityRepository{db: db}
}

func (r *PGAvailabilityRepository) GetProvider(ctx context.Context, providerID string) (*domain.ProviderSettings, error) {
	var (
		p             domain.ProviderSettings
		noticeMinutes int
	)
	err := r.db.QueryRow(ctx, `SELECT id, timezone, minimum_notice_minutes, notification_email FROM providers WHERE id=$1`, providerID).
		Scan(&p.ProviderID, &p.Timezone, &noticeMinutes, &p.NotificationEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProviderNotFound
		}
		return nil, err
	}
	p.MinimumNotice = time.Duration(noticeMinutes) * time.Minute
	return &p, nil
}

func (r *PGAvailabilityRepository) FindBlockedDate(ctx context.Context, providerID string, day time.Time) (*domain.BlockedDate, error) {
	var b domain.BlockedDate
	err := r.db.QueryRow(ctx, `SELECT provider_id, date, reason FROM blocked_dates WHERE provider_id=$1 AND date=$2::date`,
		providerID, day).
		Scan(&b.ProviderID, &b.Date, &b.Reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

var _ AvailabilityRepository = (*PGAvailabilityRepository)(nil)
