package repository

import (
	"context"

	"github.com/Domenick1991/slotbooking/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGRefundRepository struct {
	db *pgxpool.Pool
}

func NewRefundRepository(db *pgxpool.Pool) RefundRepository {
	return &PGRefundRepository{db: db}
}

func (r *PGRefundRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*domain.RefundRecord, error) {
	var rec domain.RefundRecord
	err := r.db.QueryRow(ctx, `SELECT payment_correlation_id, amount_cents, currency, reason_code, processed_at,
			policy_version, gateway_refund_id
		FROM refund_records WHERE payment_correlation_id=$1`, correlationID).
		Scan(&rec.PaymentCorrelationID, &rec.AmountCents, &rec.Currency, &rec.ReasonCode, &rec.ProcessedAt,
			&rec.PolicyVersion, &rec.GatewayRefundID)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &rec, nil
}

func (r *PGRefundRepository) Create(ctx context.Context, rec *domain.RefundRecord) (bool, error) {
	cmd, err := r.db.Exec(ctx, `INSERT INTO refund_records (payment_correlation_id, amount_cents, currency, reason_code,
			processed_at, policy_version, gateway_refund_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (payment_correlation_id) DO NOTHING`,
		rec.PaymentCorrelationID, rec.AmountCents, rec.Currency, rec.ReasonCode, rec.ProcessedAt.UTC(),
		rec.PolicyVersion, rec.GatewayRefundID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

var _ RefundRepository = (*PGRefundRepository)(nil)
