package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/slotbooking/internal/domain"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

type RefundRequest struct {
	PaymentCorrelationID string
	AmountCents          int64
	ReasonCode           domain.ConflictType
	PolicyVersion        string
}

type RefundResult struct {
	RefundID string
	Status   string
}

type refundCreator interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeGateway issues refunds against Stripe payment intents. The payment
// correlation id is the payment intent id.
type StripeGateway struct {
	refunds refundCreator
	log     *zap.Logger
}

func NewStripeGateway(secretKey string, log *zap.Logger) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeGateway{refunds: sc.Refunds, log: log}
}

func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentCorrelationID),
		Amount:        stripe.Int64(req.AmountCents),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.AddMetadata("reason_code", string(req.ReasonCode))
	params.AddMetadata("policy_version", req.PolicyVersion)
	params.SetIdempotencyKey("refund:" + req.PaymentCorrelationID)

	r, err := g.refunds.New(params)
	if err != nil {
		return nil, classify(err)
	}

	g.log.Info("stripe refund created",
		zap.String("payment_intent", req.PaymentCorrelationID),
		zap.String("refund_id", r.ID),
		zap.String("status", string(r.Status)),
	)
	return &RefundResult{RefundID: r.ID, Status: string(r.Status)}, nil
}

// classify separates retryable outages from definitive rejections.
func classify(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %v", domain.ErrGatewayTransient, err)
	}
	if stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 429 || stripeErr.Type == stripe.ErrorTypeAPI {
		return fmt.Errorf("%w: %v", domain.ErrGatewayTransient, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrGatewayRejected, stripeErr.Code, err)
}

// StripeVerifier authenticates webhook payloads and converts the payment
// intent lifecycle events into domain events.
type StripeVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

var eventTypes = map[string]domain.PaymentEventType{
	"payment_intent.succeeded":       domain.PaymentEventSucceeded,
	"payment_intent.payment_failed":  domain.PaymentEventFailed,
	"payment_intent.requires_action": domain.PaymentEventRequiresAction,
}

// Verify returns ok=false for authentic events this service does not consume.
func (v *StripeVerifier) Verify(payload []byte, signature string) (domain.PaymentEvent, bool, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.PaymentEvent{}, false, fmt.Errorf("verify webhook signature: %w", err)
	}

	eventType, ok := eventTypes[string(ev.Type)]
	if !ok {
		return domain.PaymentEvent{}, false, nil
	}
	if ev.Data == nil {
		return domain.PaymentEvent{}, false, fmt.Errorf("%w: event %s has no data", domain.ErrInvalidEvent, ev.ID)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return domain.PaymentEvent{}, false, fmt.Errorf("%w: decode payment intent: %v", domain.ErrInvalidEvent, err)
	}

	return domain.PaymentEvent{
		ID:                   ev.ID,
		Type:                 eventType,
		PaymentCorrelationID: pi.ID,
		AmountCents:          pi.Amount,
		Currency:             string(pi.Currency),
		Timestamp:            time.Unix(ev.Created, 0).UTC(),
	}, true, nil
}
