package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/slotbooking/internal/clock"
	"github.com/Domenick1991/slotbooking/internal/domain"
	"github.com/Domenick1991/slotbooking/internal/service/reservation"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockReservationUseCase is a mock implementation of reservation.ReservationUseCase
type MockReservationUseCase struct {
	mock.Mock
}

func (m *MockReservationUseCase) CreateReservation(ctx context.Context, input reservation.CreateReservationInput, now time.Time) (*domain.SlotReservation, error) {
	args := m.Called(ctx, input, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SlotReservation), args.Error(1)
}

func (m *MockReservationUseCase) GetReservation(ctx context.Context, id string) (*domain.SlotReservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SlotReservation), args.Error(1)
}

func (m *MockReservationUseCase) AttachPayment(ctx context.Context, id, correlationID string) (*domain.SlotReservation, error) {
	args := m.Called(ctx, id, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SlotReservation), args.Error(1)
}

var (
	testNow   = time.Date(2025, 5, 31, 14, 0, 0, 0, time.UTC)
	testStart = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
)

func sampleReservation() *domain.SlotReservation {
	return &domain.SlotReservation{
		ID:                 "r1",
		ProviderID:         "p1",
		Range:              domain.TimeRange{Start: testStart, End: testStart.Add(30 * time.Minute)},
		Client:             domain.ClientContact{Email: "test@example.com"},
		Timezone:           "Europe/Berlin",
		State:              domain.ReservationStateReserved,
		Window:             domain.PaymentWindowImmediate,
		PaymentMethodTypes: []string{"card"},
		AmountCents:        5000,
		Currency:           "eur",
		ExpiresAt:          testNow.Add(30 * time.Minute),
	}
}

func createBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"provider_id":  "p1",
		"start_time":   testStart.Format(time.RFC3339),
		"end_time":     testStart.Add(30 * time.Minute).Format(time.RFC3339),
		"client_email": "test@example.com",
		"timezone":     "Europe/Berlin",
		"amount_cents": 5000,
		"currency":     "EUR",
	})
	require.NoError(t, err)
	return body
}

func TestReservationHandler_create(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService, clock.NewFake(testNow))

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/v1/reservations", bytes.NewReader(createBody(t)))
	c.Request.Header.Set("Content-Type", "application/json")

	input := reservation.CreateReservationInput{
		ProviderID:  "p1",
		Start:       testStart,
		End:         testStart.Add(30 * time.Minute),
		Client:      domain.ClientContact{Email: "test@example.com"},
		Timezone:    "Europe/Berlin",
		AmountCents: 5000,
		Currency:    "EUR",
	}
	mockService.On("CreateReservation", c.Request.Context(), mock.MatchedBy(func(got reservation.CreateReservationInput) bool {
		return got.ProviderID == input.ProviderID && got.Start.Equal(input.Start) && got.End.Equal(input.End) &&
			got.Client == input.Client && got.Timezone == input.Timezone && got.AmountCents == input.AmountCents
	}), testNow).Return(sampleReservation(), nil)

	handler.create(c)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response reservationResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, "r1", response.ID)
	assert.Equal(t, string(domain.ReservationStateReserved), response.State)
	assert.Equal(t, string(domain.PaymentWindowImmediate), response.PaymentWindow)
	assert.Equal(t, []string{"card"}, response.PaymentMethodTypes)

	mockService.AssertExpectations(t)
}

func TestReservationHandler_createErrors(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"slot taken", domain.ErrSlotTaken, http.StatusConflict, ""},
		{"slot taken wrapped", fmt.Errorf("%w: overlaps booking b1", domain.ErrSlotTaken), http.StatusConflict, ""},
		{"blocked date", &domain.ConflictError{Result: domain.Conflict(domain.ConflictBlockedDate, "holiday")}, http.StatusUnprocessableEntity, "BLOCKED_DATE"},
		{"minimum notice", &domain.ConflictError{Result: domain.Conflict(domain.ConflictMinimumNoticeViolation, "")}, http.StatusUnprocessableEntity, "MINIMUM_NOTICE_VIOLATION"},
		{"start in past", domain.ErrStartInPast, http.StatusBadRequest, ""},
		{"invalid input", fmt.Errorf("%w: unknown timezone", reservation.ErrInvalidInput), http.StatusBadRequest, ""},
		{"unknown provider", domain.ErrProviderNotFound, http.StatusNotFound, ""},
		{"storage failure", fmt.Errorf("insert reservation: connection reset"), http.StatusInternalServerError, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := &MockReservationUseCase{}
			handler := NewReservationHandler(mockService, clock.NewFake(testNow))

			gin.SetMode(gin.TestMode)
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("POST", "/api/v1/reservations", bytes.NewReader(createBody(t)))
			c.Request.Header.Set("Content-Type", "application/json")

			mockService.On("CreateReservation", mock.Anything, mock.Anything, testNow).Return(nil, tc.err)

			handler.create(c)

			assert.Equal(t, tc.wantStatus, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tc.wantType != "" {
				assert.Equal(t, tc.wantType, body["conflict_type"])
			}
			if tc.wantStatus == http.StatusConflict {
				assert.Equal(t, "slot no longer available", body["error"])
			}
		})
	}
}

func TestReservationHandler_createRejectsBadBody(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService, clock.NewFake(testNow))

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/api/v1/reservations", bytes.NewReader([]byte(`{"provider_id":"p1","client_email":"nope"}`)))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "CreateReservation", mock.Anything, mock.Anything, mock.Anything)
}

func TestReservationHandler_get(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService, clock.NewFake(testNow))

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	c.Request = httptest.NewRequest("GET", "/api/v1/reservations/missing", nil)

	mockService.On("GetReservation", c.Request.Context(), "missing").Return(nil, domain.ErrNotFound)

	handler.get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockService.AssertExpectations(t)
}

func TestReservationHandler_attachPayment(t *testing.T) {
	mockService := &MockReservationUseCase{}
	handler := NewReservationHandler(mockService, clock.NewFake(testNow))

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	c.Request = httptest.NewRequest("PUT", "/api/v1/reservations/r1/payment", bytes.NewReader([]byte(`{"payment_correlation_id":"pi_1"}`)))
	c.Request.Header.Set("Content-Type", "application/json")

	attached := sampleReservation()
	attached.PaymentCorrelationID = "pi_1"
	mockService.On("AttachPayment", c.Request.Context(), "r1", "pi_1").Return(attached, nil)

	handler.attachPayment(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response reservationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "pi_1", response.PaymentCorrelationID)
	mockService.AssertExpectations(t)
}
