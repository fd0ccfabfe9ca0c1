package refund

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/slotbooking/internal/clock"
	"github.com/Domenick1991/slotbooking/internal/domain"
	"github.com/Domenick1991/slotbooking/internal/gateway"
	"github.com/Domenick1991/slotbooking/internal/repository"
	"go.uber.org/zap"
)

const PolicyVersion = "full-refund-v2"

type Gateway interface {
	Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

type Processor interface {
	ProcessRefund(ctx context.Context, req Request) (*domain.RefundRecord, error)
}

// Request describes a payment that arrived for a slot that can no longer be
// honored.
type Request struct {
	Reservation    *domain.SlotReservation
	OriginalAmount int64
	Currency       string
	ConflictType   domain.ConflictType
}

type RefundService struct {
	refunds   repository.RefundRepository
	providers repository.AvailabilityRepository
	gateway   Gateway
	notifier  Notifier
	clock     clock.Clock
	log       *zap.Logger
}

func NewRefundService(
	refunds repository.RefundRepository,
	providers repository.AvailabilityRepository,
	gw Gateway,
	notifier Notifier,
	clk clock.Clock,
	log *zap.Logger,
) *RefundService {
	return &RefundService{
		refunds:   refunds,
		providers: providers,
		gateway:   gw,
		notifier:  notifier,
		clock:     clk,
		log:       log,
	}
}

// RefundPercent is the share of the original payment returned for a conflict.
// Every conflict is the provider side's fault, so every one is refunded in full.
func RefundPercent(t domain.ConflictType) (int64, error) {
	switch t {
	case domain.ConflictBlockedDate, domain.ConflictTimeOverlap, domain.ConflictMinimumNoticeViolation,
		domain.ConflictReservationLapsed:
		return 100, nil
	case domain.ConflictNone:
		return 0, fmt.Errorf("no refund policy for conflict type %q", t)
	default:
		return 0, fmt.Errorf("unknown conflict type %q", t)
	}
}

// ProcessRefund refunds a payment at most once per correlation id. A stored
// record means the refund already happened and the gateway is not called.
func (s *RefundService) ProcessRefund(ctx context.Context, req Request) (*domain.RefundRecord, error) {
	correlationID := req.Reservation.PaymentCorrelationID
	log := s.log.With(
		zap.String("payment_correlation_id", correlationID),
		zap.String("reservation_id", req.Reservation.ID),
		zap.String("reason", string(req.ConflictType)),
	)

	existing, err := s.existing(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Info("refund already recorded")
		return existing, nil
	}

	percent, err := RefundPercent(req.ConflictType)
	if err != nil {
		return nil, err
	}
	amount := req.OriginalAmount * percent / 100
	currency := req.Currency
	if currency == "" {
		currency = req.Reservation.Currency
	}

	result, err := s.gateway.Refund(ctx, gateway.RefundRequest{
		PaymentCorrelationID: correlationID,
		AmountCents:          amount,
		ReasonCode:           req.ConflictType,
		PolicyVersion:        PolicyVersion,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrGatewayRejected) {
			return nil, err
		}
		// a concurrent worker may have refunded and recorded in the meantime
		if existing, lookupErr := s.existing(ctx, correlationID); lookupErr == nil && existing != nil {
			log.Info("gateway rejected duplicate refund, returning stored record")
			return existing, nil
		}
		log.Error("refund rejected by gateway", zap.Error(err))
		return nil, &domain.RefundFailureError{PaymentCorrelationID: correlationID, Err: err}
	}

	rec := &domain.RefundRecord{
		PaymentCorrelationID: correlationID,
		AmountCents:          amount,
		Currency:             currency,
		ReasonCode:           req.ConflictType,
		ProcessedAt:          s.clock.Now(),
		PolicyVersion:        PolicyVersion,
		GatewayRefundID:      result.RefundID,
	}
	created, err := s.refunds.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("store refund record: %w", err)
	}
	if !created {
		stored, err := s.refunds.GetByCorrelationID(ctx, correlationID)
		if err != nil {
			return nil, fmt.Errorf("load refund record: %w", err)
		}
		return stored, nil
	}

	log.Info("refund processed",
		zap.Int64("amount_cents", amount),
		zap.String("gateway_refund_id", result.RefundID),
	)
	s.notify(ctx, req.Reservation, rec, log)
	return rec, nil
}

func (s *RefundService) existing(ctx context.Context, correlationID string) (*domain.RefundRecord, error) {
	rec, err := s.refunds.GetByCorrelationID(ctx, correlationID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load refund record: %w", err)
	}
	return rec, nil
}

// notify tells the client and the provider. Delivery failures never undo a
// refund that already went through.
func (s *RefundService) notify(ctx context.Context, res *domain.SlotReservation, rec *domain.RefundRecord, log *zap.Logger) {
	vars := map[string]string{
		"reservation_id": res.ID,
		"provider_id":    res.ProviderID,
		"start_time":     res.Range.Start.Format(time.RFC3339),
		"end_time":       res.Range.End.Format(time.RFC3339),
		"amount_cents":   strconv.FormatInt(rec.AmountCents, 10),
		"currency":       rec.Currency,
		"reason":         string(rec.ReasonCode),
	}

	recipients := []string{res.Client.Email}
	if settings, err := s.providers.GetProvider(ctx, res.ProviderID); err != nil {
		log.Warn("provider lookup for refund notice failed", zap.Error(err))
	} else if settings.NotificationEmail != "" {
		recipients = append(recipients, settings.NotificationEmail)
	}

	for _, to := range recipients {
		if to == "" {
			continue
		}
		err := s.notifier.Notify(ctx, domain.Notification{
			Recipient:  to,
			TemplateID: domain.TemplateSlotConflictRefund,
			Variables:  vars,
		})
		if err != nil {
			log.Warn("refund notification failed", zap.String("recipient", to), zap.Error(err))
		}
	}
}

var _ Processor = (*RefundService)(nil)
