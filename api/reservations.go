package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/Domenick1991/slotbooking/internal/clock"
	"github.com/Domenick1991/slotbooking/internal/domain"
	"github.com/Domenick1991/slotbooking/internal/service/reservation"
	"github.com/gin-gonic/gin"
)

type ReservationHandler struct {
	service reservation.ReservationUseCase
	clock   clock.Clock
}

type createReservationRequest struct {
	ProviderID  string    `json:"provider_id" binding:"required"`
	StartTime   time.Time `json:"start_time" binding:"required"`
	EndTime     time.Time `json:"end_time" binding:"required"`
	ClientEmail string    `json:"client_email" binding:"required,email"`
	ClientName  string    `json:"client_name"`
	Timezone    string    `json:"timezone"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
}

type attachPaymentRequest struct {
	PaymentCorrelationID string `json:"payment_correlation_id" binding:"required"`
}

type reservationResponse struct {
	ID                   string   `json:"id"`
	ProviderID           string   `json:"provider_id"`
	StartTime            string   `json:"start_time"`
	EndTime              string   `json:"end_time"`
	Timezone             string   `json:"timezone"`
	State                string   `json:"state"`
	PaymentWindow        string   `json:"payment_window"`
	PaymentMethodTypes   []string `json:"payment_method_types"`
	PaymentCorrelationID string   `json:"payment_correlation_id,omitempty"`
	AmountCents          int64    `json:"amount_cents"`
	Currency             string   `json:"currency"`
	ExpiresAt            string   `json:"expires_at"`
}

func NewReservationHandler(service reservation.ReservationUseCase, clk clock.Clock) *ReservationHandler {
	return &ReservationHandler{service: service, clock: clk}
}

func (h *ReservationHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("/:id", h.get)
	router.PUT("/:id/payment", h.attachPayment)
}

func (h *ReservationHandler) create(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.service.CreateReservation(c.Request.Context(), reservation.CreateReservationInput{
		ProviderID:  req.ProviderID,
		Start:       req.StartTime,
		End:         req.EndTime,
		Client:      domain.ClientContact{Email: req.ClientEmail, Name: req.ClientName},
		Timezone:    req.Timezone,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
	}, h.clock.Now())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toReservationResponse(res))
}

func (h *ReservationHandler) get(c *gin.Context) {
	res, err := h.service.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(res))
}

func (h *ReservationHandler) attachPayment(c *gin.Context) {
	var req attachPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.service.AttachPayment(c.Request.Context(), c.Param("id"), req.PaymentCorrelationID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(res))
}

func toReservationResponse(r *domain.SlotReservation) reservationResponse {
	return reservationResponse{
		ID:                   r.ID,
		ProviderID:           r.ProviderID,
		StartTime:            r.Range.Start.Format(time.RFC3339),
		EndTime:              r.Range.End.Format(time.RFC3339),
		Timezone:             r.Timezone,
		State:                string(r.State),
		PaymentWindow:        string(r.Window),
		PaymentMethodTypes:   r.PaymentMethodTypes,
		PaymentCorrelationID: r.PaymentCorrelationID,
		AmountCents:          r.AmountCents,
		Currency:             r.Currency,
		ExpiresAt:            r.ExpiresAt.Format(time.RFC3339),
	}
}

func writeError(c *gin.Context, err error) {
	var conflictErr *domain.ConflictError
	switch {
	case errors.Is(err, domain.ErrSlotTaken):
		c.JSON(http.StatusConflict, gin.H{"error": domain.ErrSlotTaken.Error()})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":         conflictErr.Error(),
			"conflict_type": string(conflictErr.Result.Type),
		})
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrProviderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrCorrelationInUse), errors.Is(err, domain.ErrStaleTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidTimeRange), errors.Is(err, domain.ErrStartInPast),
		errors.Is(err, reservation.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
