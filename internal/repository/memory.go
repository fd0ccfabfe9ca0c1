package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/slotbooking/internal/domain"
)

// MemoryStore keeps every table in process. The single mutex plays the role
// of the database's exclusion constraint and row locks.
type MemoryStore struct {
	mu           sync.Mutex
	now          func() time.Time
	reservations map[string]*domain.SlotReservation
	bookings     map[string]domain.ConfirmedBooking
	refunds      map[string]domain.RefundRecord
	providers    map[string]domain.ProviderSettings
	blocked      map[string]map[time.Time]domain.BlockedDate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:          func() time.Time { return time.Now().UTC() },
		reservations: make(map[string]*domain.SlotReservation),
		bookings:     make(map[string]domain.ConfirmedBooking),
		refunds:      make(map[string]domain.RefundRecord),
		providers:    make(map[string]domain.ProviderSettings),
		blocked:      make(map[string]map[time.Time]domain.BlockedDate),
	}
}

// WithClock sets the source of created_at/updated_at timestamps.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) PutProvider(p domain.ProviderSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ProviderID] = p
}

// BlockDate stores day as a calendar date; only its Y/M/D fields are used.
func (s *MemoryStore) BlockDate(providerID string, day time.Time, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	if s.blocked[providerID] == nil {
		s.blocked[providerID] = make(map[time.Time]domain.BlockedDate)
	}
	s.blocked[providerID][key] = domain.BlockedDate{ProviderID: providerID, Date: key, Reason: reason}
}

// PutBooking inserts a confirmed booking directly, as an external system would.
func (s *MemoryStore) PutBooking(b domain.ConfirmedBooking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.PaymentCorrelationID] = b
}

// InsertRaw bypasses the overlap check, for rows that slipped past the
// constraint during migrations or manual intervention.
func (s *MemoryStore) InsertRaw(r domain.SlotReservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := r
	s.reservations[r.ID] = &cp
}

func (s *MemoryStore) Bookings() []domain.ConfirmedBooking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ConfirmedBooking, 0, len(s.bookings))
	for _, b := range s.bookings {
		out = append(out, b)
	}
	return out
}

func (s *MemoryStore) Refunds() []domain.RefundRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RefundRecord, 0, len(s.refunds))
	for _, r := range s.refunds {
		out = append(out, r)
	}
	return out
}

// ReservationRepository

func (s *MemoryStore) Create(ctx context.Context, r *domain.SlotReservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.reservations {
		if existing.ProviderID == r.ProviderID && existing.State.Claiming() && existing.Range.Overlaps(r.Range) {
			return domain.ErrSlotTaken
		}
		if r.PaymentCorrelationID != "" && existing.PaymentCorrelationID == r.PaymentCorrelationID {
			return domain.ErrCorrelationInUse
		}
	}

	now := s.now()
	r.State = domain.ReservationStateReserved
	r.CreatedAt = now
	r.UpdatedAt = now
	cp := *r
	s.reservations[r.ID] = &cp
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*domain.SlotReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) GetByCorrelationID(ctx context.Context, correlationID string) (*domain.SlotReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations {
		if r.PaymentCorrelationID == correlationID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *MemoryStore) AttachPayment(ctx context.Context, id, correlationID string) (*domain.SlotReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	for otherID, other := range s.reservations {
		if otherID != id && other.PaymentCorrelationID == correlationID {
			return nil, domain.ErrCorrelationInUse
		}
	}
	if r.State != domain.ReservationStateReserved ||
		(r.PaymentCorrelationID != "" && r.PaymentCorrelationID != correlationID) {
		return nil, domain.ErrStaleTransition
	}
	r.PaymentCorrelationID = correlationID
	r.UpdatedAt = s.now()
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) Transition(ctx context.Context, id string, from, to domain.ReservationState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok || r.State != from {
		return false, nil
	}
	r.State = to
	r.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) Confirm(ctx context.Context, reservationID string, b *domain.ConfirmedBooking) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[reservationID]
	if !ok || r.State != domain.ReservationStatePaid {
		return false, nil
	}
	if _, exists := s.bookings[b.PaymentCorrelationID]; exists {
		return false, nil
	}

	now := s.now()
	stored := *b
	stored.ReservationID = reservationID
	stored.CreatedAt = now
	s.bookings[b.PaymentCorrelationID] = stored
	r.State = domain.ReservationStateConfirmed
	r.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) ExpireBefore(ctx context.Context, now time.Time) ([]domain.SlotReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []domain.SlotReservation
	for _, r := range s.reservations {
		if r.State == domain.ReservationStateReserved && r.ExpiresAt.Before(now) {
			r.State = domain.ReservationStateExpired
			r.UpdatedAt = s.now()
			expired = append(expired, *r)
		}
	}
	return expired, nil
}

func (s *MemoryStore) ExpireDuplicates(ctx context.Context) ([]domain.SlotReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reserved []*domain.SlotReservation
	for _, r := range s.reservations {
		if r.State == domain.ReservationStateReserved {
			reserved = append(reserved, r)
		}
	}

	// decide against the rows as they were, like a single UPDATE statement
	var losers []*domain.SlotReservation
	for _, r := range reserved {
		for _, other := range reserved {
			if other != r && other.ProviderID == r.ProviderID && other.Range.Overlaps(r.Range) && newer(other, r) {
				losers = append(losers, r)
				break
			}
		}
	}

	expired := make([]domain.SlotReservation, 0, len(losers))
	for _, r := range losers {
		r.State = domain.ReservationStateExpired
		r.UpdatedAt = s.now()
		expired = append(expired, *r)
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, nil
}

func newer(a, b *domain.SlotReservation) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// BookingRepository

func (s *MemoryStore) ExistsForCorrelation(ctx context.Context, correlationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bookings[correlationID]
	return ok, nil
}

func (s *MemoryStore) FindOverlapping(ctx context.Context, providerID string, rng domain.TimeRange) ([]domain.ConfirmedBooking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ConfirmedBooking, 0)
	for _, b := range s.bookings {
		if b.ProviderID == providerID && b.Range.Overlaps(rng) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Range.Start.Before(out[j].Range.Start) })
	return out, nil
}

// AvailabilityRepository

func (s *MemoryStore) GetProvider(ctx context.Context, providerID string) (*domain.ProviderSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[providerID]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return &p, nil
}

func (s *MemoryStore) FindBlockedDate(ctx context.Context, providerID string, day time.Time) (*domain.BlockedDate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	b, ok := s.blocked[providerID][key]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// refunds is exposed through RefundStore because RefundRepository shares
// method names with ReservationRepository.
type memoryRefunds struct {
	s *MemoryStore
}

func (s *MemoryStore) RefundStore() RefundRepository {
	return memoryRefunds{s: s}
}

func (m memoryRefunds) GetByCorrelationID(ctx context.Context, correlationID string) (*domain.RefundRecord, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	rec, ok := m.s.refunds[correlationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (m memoryRefunds) Create(ctx context.Context, rec *domain.RefundRecord) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.refunds[rec.PaymentCorrelationID]; ok {
		return false, nil
	}
	m.s.refunds[rec.PaymentCorrelationID] = *rec
	return true, nil
}

var (
	_ ReservationRepository  = (*MemoryStore)(nil)
	_ BookingRepository      = (*MemoryStore)(nil)
	_ AvailabilityRepository = (*MemoryStore)(nil)
	_ RefundRepository       = memoryRefunds{}
)
