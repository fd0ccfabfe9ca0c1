package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/slotbooking/internal/clock"
	"github.com/Domenick1991/slotbooking/internal/domain"
	"github.com/Domenick1991/slotbooking/internal/repository"
	"github.com/Domenick1991/slotbooking/internal/service/conflict"
	"github.com/Domenick1991/slotbooking/internal/service/refund"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("slotbooking/payment")

type EventHandler interface {
	HandlePaymentEvent(ctx context.Context, event domain.PaymentEvent) error
}

// EventMarker remembers event ids that were fully handled. It only short-cuts
// redeliveries; the store checks stay authoritative.
type EventMarker interface {
	EventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID string) error
}

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

type LifecyclePublisher interface {
	PublishReservation(ctx context.Context, eventType string, r *domain.SlotReservation) error
}

type Reconciler struct {
	reservations repository.ReservationRepository
	bookings     repository.BookingRepository
	refundLog    repository.RefundRepository
	detector     conflict.Detector
	refunds      refund.Processor
	notifier     Notifier
	markers      EventMarker
	publisher    LifecyclePublisher
	clock        clock.Clock
	log          *zap.Logger
}

type Option func(*Reconciler)

func WithEventMarker(m EventMarker) Option {
	return func(r *Reconciler) {
		r.markers = m
	}
}

func WithLifecyclePublisher(p LifecyclePublisher) Option {
	return func(r *Reconciler) {
		r.publisher = p
	}
}

func NewReconciler(
	reservations repository.ReservationRepository,
	bookings repository.BookingRepository,
	refundLog repository.RefundRepository,
	detector conflict.Detector,
	refunds refund.Processor,
	notifier Notifier,
	clk clock.Clock,
	log *zap.Logger,
	opts ...Option,
) *Reconciler {
	r := &Reconciler{
		reservations: reservations,
		bookings:     bookings,
		refundLog:    refundLog,
		detector:     detector,
		refunds:      refunds,
		notifier:     notifier,
		clock:        clk,
		log:          log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandlePaymentEvent applies one gateway event. Redelivered, duplicate and
// out-of-order events are no-ops. A non-nil error means the event must be
// redelivered.
func (r *Reconciler) HandlePaymentEvent(ctx context.Context, event domain.PaymentEvent) (err error) {
	ctx, span := tracer.Start(ctx, "HandlePaymentEvent")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", string(event.Type)),
		attribute.String("payment.correlation_id", event.PaymentCorrelationID),
	)

	if err := validateEvent(event); err != nil {
		return err
	}
	log := r.log.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("payment_correlation_id", event.PaymentCorrelationID),
	)

	if r.seen(ctx, event.ID, log) {
		log.Debug("event already processed")
		return nil
	}

	res, err := r.reservations.GetByCorrelationID(ctx, event.PaymentCorrelationID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn("no reservation for payment, acknowledging")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load reservation: %w", err)
	}
	log = log.With(zap.String("reservation_id", res.ID))

	switch event.Type {
	case domain.PaymentEventSucceeded:
		err = r.handleSucceeded(ctx, event, res, log)
	case domain.PaymentEventFailed:
		err = r.handleFailed(ctx, res, log)
	case domain.PaymentEventRequiresAction:
		log.Info("payment requires customer action, waiting for a terminal event", zap.String("state", string(res.State)))
	}
	if err != nil {
		return err
	}

	r.mark(ctx, event.ID, log)
	return nil
}

func (r *Reconciler) handleSucceeded(ctx context.Context, event domain.PaymentEvent, res *domain.SlotReservation, log *zap.Logger) error {
	settled, err := r.alreadySettled(ctx, res, log)
	if err != nil || settled {
		return err
	}

	claimed, err := r.claim(ctx, res, log)
	if err != nil {
		return err
	}
	if !claimed {
		return r.handleLapsed(ctx, event, res, log)
	}

	result, err := r.detector.DetectConflict(ctx, res.ProviderID, res.Range, r.paidAt(event))
	if err != nil {
		return fmt.Errorf("detect conflict: %w", err)
	}

	switch result.Type {
	case domain.ConflictNone:
		return r.confirm(ctx, res, log)
	case domain.ConflictBlockedDate, domain.ConflictTimeOverlap, domain.ConflictMinimumNoticeViolation:
		log.Warn("conflict detected after payment",
			zap.String("conflict_type", string(result.Type)),
			zap.String("detail", result.Detail),
		)
		if err := r.refund(ctx, event, res, result.Type, log); err != nil {
			return err
		}
		_, err = r.transition(ctx, res, domain.ReservationStatePaid, domain.ReservationStateConflictRefunded, log)
		return err
	default:
		return fmt.Errorf("unknown conflict type %q", result.Type)
	}
}

// claim moves the reservation to PAID before anything else is decided, so a
// concurrent sweep can no longer expire it. A reservation already PAID was
// claimed by an earlier delivery of the same payment.
func (r *Reconciler) claim(ctx context.Context, res *domain.SlotReservation, log *zap.Logger) (bool, error) {
	if res.State == domain.ReservationStatePaid {
		return true, nil
	}
	changed, err := r.transition(ctx, res, domain.ReservationStateReserved, domain.ReservationStatePaid, log)
	if err != nil || changed {
		return changed, err
	}

	current, err := r.reservations.GetByID(ctx, res.ID)
	if err != nil {
		return false, fmt.Errorf("reload reservation: %w", err)
	}
	*res = *current
	return res.State == domain.ReservationStatePaid, nil
}

// handleLapsed settles a payment whose reservation could not be claimed. The
// slot may already belong to someone else, so the money goes back.
func (r *Reconciler) handleLapsed(ctx context.Context, event domain.PaymentEvent, res *domain.SlotReservation, log *zap.Logger) error {
	// a concurrent delivery may have settled it in the meantime
	settled, err := r.alreadySettled(ctx, res, log)
	if err != nil || settled {
		return err
	}

	switch res.State {
	case domain.ReservationStateExpired, domain.ReservationStateFailed:
		log.Warn("payment succeeded after the reservation lapsed, refunding",
			zap.String("state", string(res.State)),
			zap.Int64("amount_cents", event.AmountCents),
		)
		return r.refund(ctx, event, res, domain.ConflictReservationLapsed, log)
	default:
		return fmt.Errorf("reservation %s in state %s has neither booking nor refund", res.ID, res.State)
	}
}

// alreadySettled reports whether a booking or refund exists for the payment.
// A refund recorded by an attempt that crashed before its state transition is
// finished here.
func (r *Reconciler) alreadySettled(ctx context.Context, res *domain.SlotReservation, log *zap.Logger) (bool, error) {
	booked, err := r.bookings.ExistsForCorrelation(ctx, res.PaymentCorrelationID)
	if err != nil {
		return false, fmt.Errorf("check booking: %w", err)
	}
	if booked {
		log.Info("booking already confirmed")
		return true, nil
	}

	_, err = r.refundLog.GetByCorrelationID(ctx, res.PaymentCorrelationID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check refund: %w", err)
	}

	log.Info("refund already recorded")
	switch res.State {
	case domain.ReservationStateReserved, domain.ReservationStatePaid:
		if _, err := r.transition(ctx, res, res.State, domain.ReservationStateConflictRefunded, log); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r *Reconciler) confirm(ctx context.Context, res *domain.SlotReservation, log *zap.Logger) error {
	booking := &domain.ConfirmedBooking{
		ID:                   uuid.NewString(),
		ReservationID:        res.ID,
		ProviderID:           res.ProviderID,
		Range:                res.Range,
		Client:               res.Client,
		Status:               domain.BookingStatusSucceeded,
		PaymentCorrelationID: res.PaymentCorrelationID,
	}
	confirmed, err := r.reservations.Confirm(ctx, res.ID, booking)
	if err != nil {
		return fmt.Errorf("confirm reservation: %w", err)
	}
	if !confirmed {
		settled, err := r.alreadySettled(ctx, res, log)
		if err != nil {
			return err
		}
		if !settled {
			return fmt.Errorf("reservation %s left PAID without a booking or refund", res.ID)
		}
		return nil
	}

	res.State = domain.ReservationStateConfirmed
	log.Info("booking confirmed", zap.String("booking_id", booking.ID))
	r.publish(ctx, "reservation_confirmed", res, log)
	r.notifyConfirmed(ctx, res, booking, log)
	return nil
}

func (r *Reconciler) refund(ctx context.Context, event domain.PaymentEvent, res *domain.SlotReservation, reason domain.ConflictType, log *zap.Logger) error {
	amount := event.AmountCents
	if amount == 0 {
		amount = res.AmountCents
	}
	rec, err := r.refunds.ProcessRefund(ctx, refund.Request{
		Reservation:    res,
		OriginalAmount: amount,
		Currency:       event.Currency,
		ConflictType:   reason,
	})
	if err != nil {
		var failure *domain.RefundFailureError
		if errors.As(err, &failure) {
			log.Error("refund needs operator review", zap.Error(err))
		}
		return err
	}

	log.Info("payment refunded",
		zap.Int64("amount_cents", rec.AmountCents),
		zap.String("reason", string(rec.ReasonCode)),
	)
	return nil
}

func (r *Reconciler) handleFailed(ctx context.Context, res *domain.SlotReservation, log *zap.Logger) error {
	changed, err := r.transition(ctx, res, domain.ReservationStateReserved, domain.ReservationStateFailed, log)
	if err != nil {
		return err
	}
	if !changed {
		log.Info("ignoring failure for reservation that is no longer reserved", zap.String("state", string(res.State)))
	}
	return nil
}

func (r *Reconciler) transition(ctx context.Context, res *domain.SlotReservation, from, to domain.ReservationState, log *zap.Logger) (bool, error) {
	changed, err := r.reservations.Transition(ctx, res.ID, from, to)
	if err != nil {
		return false, fmt.Errorf("transition to %s: %w", to, err)
	}
	if changed {
		res.State = to
		r.publish(ctx, "reservation_"+strings.ToLower(string(to)), res, log)
	}
	return changed, nil
}

// paidAt is the instant the payment settled. Using the event time keeps a
// late redelivery from turning a valid payment into a notice violation.
func (r *Reconciler) paidAt(event domain.PaymentEvent) time.Time {
	now := r.clock.Now()
	if !event.Timestamp.IsZero() && event.Timestamp.Before(now) {
		return event.Timestamp
	}
	return now
}

func (r *Reconciler) notifyConfirmed(ctx context.Context, res *domain.SlotReservation, booking *domain.ConfirmedBooking, log *zap.Logger) {
	vars := map[string]string{
		"reservation_id": res.ID,
		"booking_id":     booking.ID,
		"provider_id":    res.ProviderID,
		"start_time":     res.Range.Start.Format(time.RFC3339),
		"end_time":       res.Range.End.Format(time.RFC3339),
		"timezone":       res.Timezone,
		"amount_cents":   strconv.FormatInt(res.AmountCents, 10),
		"currency":       res.Currency,
	}

	recipients := []string{res.Client.Email}
	if settings, err := r.detector.ProviderSettings(ctx, res.ProviderID); err == nil && settings.NotificationEmail != "" {
		recipients = append(recipients, settings.NotificationEmail)
	}
	for _, to := range recipients {
		if to == "" {
			continue
		}
		err := r.notifier.Notify(ctx, domain.Notification{Recipient: to, TemplateID: domain.TemplateBookingConfirmed, Variables: vars})
		if err != nil {
			log.Warn("confirmation notification failed", zap.String("recipient", to), zap.Error(err))
		}
	}
}

func (r *Reconciler) publish(ctx context.Context, eventType string, res *domain.SlotReservation, log *zap.Logger) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.PublishReservation(ctx, eventType, res); err != nil {
		log.Warn("failed to publish reservation event", zap.String("type", eventType), zap.Error(err))
	}
}

func (r *Reconciler) seen(ctx context.Context, eventID string, log *zap.Logger) bool {
	if r.markers == nil {
		return false
	}
	processed, err := r.markers.EventProcessed(ctx, eventID)
	if err != nil {
		log.Warn("event marker lookup failed", zap.Error(err))
		return false
	}
	return processed
}

func (r *Reconciler) mark(ctx context.Context, eventID string, log *zap.Logger) {
	if r.markers == nil {
		return
	}
	if err := r.markers.MarkEventProcessed(ctx, eventID); err != nil {
		log.Warn("event marker write failed", zap.Error(err))
	}
}

func validateEvent(event domain.PaymentEvent) error {
	if event.ID == "" || event.PaymentCorrelationID == "" {
		return fmt.Errorf("%w: event id and payment correlation id are required", domain.ErrInvalidEvent)
	}
	switch event.Type {
	case domain.PaymentEventSucceeded, domain.PaymentEventFailed, domain.PaymentEventRequiresAction:
		return nil
	default:
		return fmt.Errorf("%w: unsupported type %q", domain.ErrInvalidEvent, event.Type)
	}
}

var _ EventHandler = (*Reconciler)(nil)
