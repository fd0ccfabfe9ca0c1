package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Domenick1991/slotbooking/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(payload []byte, signature string) (domain.PaymentEvent, bool, error) {
	args := m.Called(payload, signature)
	return args.Get(0).(domain.PaymentEvent), args.Bool(1), args.Error(2)
}

type MockEventHandler struct {
	mock.Mock
}

func (m *MockEventHandler) HandlePaymentEvent(ctx context.Context, event domain.PaymentEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func webhookContext(payload string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/webhooks/payments", bytes.NewReader([]byte(payload)))
	c.Request.Header.Set("Stripe-Signature", "t=1,v1=abc")
	return c, w
}

func TestWebhookHandler_payments(t *testing.T) {
	event := domain.PaymentEvent{ID: "evt_1", Type: domain.PaymentEventSucceeded, PaymentCorrelationID: "pi_1"}

	testCases := []struct {
		name       string
		setup      func(v *MockVerifier, h *MockEventHandler)
		wantStatus int
	}{
		{
			name: "applied",
			setup: func(v *MockVerifier, h *MockEventHandler) {
				v.On("Verify", []byte("{}"), "t=1,v1=abc").Return(event, true, nil)
				h.On("HandlePaymentEvent", mock.Anything, event).Return(nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "bad signature",
			setup: func(v *MockVerifier, h *MockEventHandler) {
				v.On("Verify", mock.Anything, mock.Anything).Return(domain.PaymentEvent{}, false, errors.New("signature mismatch"))
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "ignored event type",
			setup: func(v *MockVerifier, h *MockEventHandler) {
				v.On("Verify", mock.Anything, mock.Anything).Return(domain.PaymentEvent{}, false, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "transient failure asks for redelivery",
			setup: func(v *MockVerifier, h *MockEventHandler) {
				v.On("Verify", mock.Anything, mock.Anything).Return(event, true, nil)
				h.On("HandlePaymentEvent", mock.Anything, event).Return(fmt.Errorf("%w: 503", domain.ErrGatewayTransient))
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "refund failure asks for redelivery",
			setup: func(v *MockVerifier, h *MockEventHandler) {
				v.On("Verify", mock.Anything, mock.Anything).Return(event, true, nil)
				h.On("HandlePaymentEvent", mock.Anything, event).Return(&domain.RefundFailureError{PaymentCorrelationID: "pi_1", Err: domain.ErrGatewayRejected})
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "malformed event",
			setup: func(v *MockVerifier, h *MockEventHandler) {
				v.On("Verify", mock.Anything, mock.Anything).Return(event, true, nil)
				h.On("HandlePaymentEvent", mock.Anything, event).Return(fmt.Errorf("%w: missing id", domain.ErrInvalidEvent))
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			verifier := &MockVerifier{}
			events := &MockEventHandler{}
			tc.setup(verifier, events)
			handler := NewWebhookHandler(verifier, events, zap.NewNop())

			c, w := webhookContext("{}")
			handler.payments(c)

			assert.Equal(t, tc.wantStatus, w.Code)
			verifier.AssertExpectations(t)
			events.AssertExpectations(t)
		})
	}
}
