package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/slotbooking/internal/domain"
	"github.com/Domenick1991/slotbooking/internal/repository"
	"github.com/Domenick1991/slotbooking/internal/service/conflict"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("slotbooking/reservation")

var ErrInvalidInput = errors.New("invalid reservation request")

type ReservationUseCase interface {
	CreateReservation(ctx context.Context, input CreateReservationInput, now time.Time) (*domain.SlotReservation, error)
	GetReservation(ctx context.Context, id string) (*domain.SlotReservation, error)
	AttachPayment(ctx context.Context, id, correlationID string) (*domain.SlotReservation, error)
}

type LifecyclePublisher interface {
	PublishReservation(ctx context.Context, eventType string, r *domain.SlotReservation) error
}

type CreateReservationInput struct {
	ProviderID           string               `json:"provider_id"`
	Start                time.Time            `json:"start_time"`
	End                  time.Time            `json:"end_time"`
	Client               domain.ClientContact `json:"client"`
	Timezone             string               `json:"timezone"`
	AmountCents          int64                `json:"amount_cents"`
	Currency             string               `json:"currency"`
	PaymentCorrelationID string               `json:"payment_correlation_id"`
}

// WindowPolicy picks how long a client has to pay and which payment methods
// the checkout may offer.
type WindowPolicy struct {
	ImmediateThreshold time.Duration
	ImmediateTTL       time.Duration
	DelayedTTL         time.Duration
}

var (
	immediateMethods = []string{"card"}
	delayedMethods   = []string{"card", "sepa_debit", "us_bank_account"}
)

func DefaultWindowPolicy() WindowPolicy {
	return WindowPolicy{
		ImmediateThreshold: 72 * time.Hour,
		ImmediateTTL:       30 * time.Minute,
		DelayedTTL:         24 * time.Hour,
	}
}

// Select returns IMMEDIATE for appointments within the threshold, because
// delayed-settlement methods can take days to clear.
func (p WindowPolicy) Select(start, now time.Time) (domain.PaymentWindow, time.Time, []string) {
	if start.Sub(now) <= p.ImmediateThreshold {
		return domain.PaymentWindowImmediate, now.Add(p.ImmediateTTL), append([]string(nil), immediateMethods...)
	}
	return domain.PaymentWindowDelayed, now.Add(p.DelayedTTL), append([]string(nil), delayedMethods...)
}

type ReservationService struct {
	reservations repository.ReservationRepository
	detector     conflict.Detector
	publisher    LifecyclePublisher
	policy       WindowPolicy
	log          *zap.Logger
}

type ReservationServiceOption func(*ReservationService)

func WithLifecyclePublisher(p LifecyclePublisher) ReservationServiceOption {
	return func(s *ReservationService) {
		s.publisher = p
	}
}

func WithWindowPolicy(p WindowPolicy) ReservationServiceOption {
	return func(s *ReservationService) {
		s.policy = p
	}
}

func NewReservationService(
	reservations repository.ReservationRepository,
	detector conflict.Detector,
	log *zap.Logger,
	opts ...ReservationServiceOption,
) *ReservationService {
	service := &ReservationService{
		reservations: reservations,
		detector:     detector,
		policy:       DefaultWindowPolicy(),
		log:          log,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// CreateReservation claims a slot pending payment. The conflict check here is
// advisory; the store's exclusion constraint decides races.
func (s *ReservationService) CreateReservation(ctx context.Context, input CreateReservationInput, now time.Time) (*domain.SlotReservation, error) {
	ctx, span := tracer.Start(ctx, "CreateReservation")
	defer span.End()
	span.SetAttributes(attribute.String("provider_id", input.ProviderID))

	rng := domain.TimeRange{Start: input.Start, End: input.End}.UTC()
	if err := validate(input, rng, now); err != nil {
		return nil, err
	}

	result, err := s.detector.DetectConflict(ctx, input.ProviderID, rng, now)
	if err != nil {
		return nil, err
	}
	switch result.Type {
	case domain.ConflictNone:
	case domain.ConflictTimeOverlap:
		// a confirmed booking already holds the slot
		return nil, fmt.Errorf("%w: %s", domain.ErrSlotTaken, result.Detail)
	case domain.ConflictBlockedDate, domain.ConflictMinimumNoticeViolation:
		return nil, &domain.ConflictError{Result: result}
	default:
		return nil, fmt.Errorf("unknown conflict type %q", result.Type)
	}

	timezone := input.Timezone
	if timezone == "" {
		settings, err := s.detector.ProviderSettings(ctx, input.ProviderID)
		if err != nil {
			return nil, err
		}
		timezone = settings.Timezone
	}

	window, expiresAt, methods := s.policy.Select(rng.Start, now)
	res := &domain.SlotReservation{
		ID:                   uuid.NewString(),
		ProviderID:           input.ProviderID,
		Range:                rng,
		Client:               input.Client,
		Timezone:             timezone,
		PaymentCorrelationID: input.PaymentCorrelationID,
		Window:               window,
		PaymentMethodTypes:   methods,
		AmountCents:          input.AmountCents,
		Currency:             strings.ToLower(input.Currency),
		ExpiresAt:            expiresAt,
	}

	if err := s.reservations.Create(ctx, res); err != nil {
		if errors.Is(err, domain.ErrSlotTaken) {
			s.log.Info("slot race lost",
				zap.String("provider_id", input.ProviderID),
				zap.Time("start", rng.Start),
			)
		}
		return nil, err
	}
	res.State = domain.ReservationStateReserved

	s.log.Info("reservation created",
		zap.String("reservation_id", res.ID),
		zap.String("provider_id", res.ProviderID),
		zap.String("window", string(res.Window)),
		zap.Time("expires_at", res.ExpiresAt),
	)
	s.publish(ctx, "reservation_created", res)
	return res, nil
}

func (s *ReservationService) GetReservation(ctx context.Context, id string) (*domain.SlotReservation, error) {
	return s.reservations.GetByID(ctx, id)
}

// AttachPayment records the gateway payment object created at checkout.
func (s *ReservationService) AttachPayment(ctx context.Context, id, correlationID string) (*domain.SlotReservation, error) {
	if strings.TrimSpace(correlationID) == "" {
		return nil, fmt.Errorf("%w: payment correlation id is required", ErrInvalidInput)
	}
	res, err := s.reservations.AttachPayment(ctx, id, correlationID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "reservation_payment_attached", res)
	return res, nil
}

func (s *ReservationService) publish(ctx context.Context, eventType string, res *domain.SlotReservation) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishReservation(ctx, eventType, res); err != nil {
		s.log.Warn("failed to publish reservation event",
			zap.String("type", eventType),
			zap.String("reservation_id", res.ID),
			zap.Error(err),
		)
	}
}

func validate(input CreateReservationInput, rng domain.TimeRange, now time.Time) error {
	if input.ProviderID == "" {
		return domain.ErrProviderNotFound
	}
	if input.Client.Email == "" {
		return fmt.Errorf("%w: client email is required", ErrInvalidInput)
	}
	if !rng.Valid() {
		return domain.ErrInvalidTimeRange
	}
	if !rng.Start.After(now) {
		return domain.ErrStartInPast
	}
	if input.AmountCents < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	if input.Timezone != "" {
		if _, err := time.LoadLocation(input.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidInput, input.Timezone)
		}
	}
	return nil
}

var _ ReservationUseCase = (*ReservationService)(nil)
