package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/Domenick1991/slotbooking/internal/domain"
	"github.com/Domenick1991/slotbooking/internal/service/payment"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 65536

// Verifier authenticates a gateway webhook. ok is false for authentic events
// that carry nothing for the reconciler.
type Verifier interface {
	Verify(payload []byte, signature string) (event domain.PaymentEvent, ok bool, err error)
}

type WebhookHandler struct {
	verifier Verifier
	events   payment.EventHandler
	log      *zap.Logger
}

func NewWebhookHandler(verifier Verifier, events payment.EventHandler, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, events: events, log: log}
}

func (h *WebhookHandler) Register(router *gin.RouterGroup) {
	router.POST("/payments", h.payments)
}

// payments answers 2xx only once the event is applied or safely ignorable.
// Anything else makes the gateway redeliver.
func (h *WebhookHandler) payments(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read body"})
		return
	}

	event, ok, err := h.verifier.Verify(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.log.Warn("rejected webhook", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook"})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err := h.events.HandlePaymentEvent(c.Request.Context(), event); err != nil {
		if errors.Is(err, domain.ErrInvalidEvent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("payment event not applied, awaiting redelivery",
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event not processed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
