package conflict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/slotbooking/internal/domain"
	"github.com/Domenick1991/slotbooking/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockSettingsCache struct {
	mock.Mock
}

func (m *MockSettingsCache) GetProviderSettings(ctx context.Context, providerID string) (*domain.ProviderSettings, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProviderSettings), args.Error(1)
}

func (m *MockSettingsCache) SetProviderSettings(ctx context.Context, settings *domain.ProviderSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}

var slotStart = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func slot() domain.TimeRange {
	return domain.TimeRange{Start: slotStart, End: slotStart.Add(30 * time.Minute)}
}

func newStore(notice time.Duration) *repository.MemoryStore {
	store := repository.NewMemoryStore()
	store.PutProvider(domain.ProviderSettings{ProviderID: "p1", Timezone: "UTC", MinimumNotice: notice})
	return store
}

func TestDetectConflict(t *testing.T) {
	ctx := context.Background()
	farAway := slotStart.Add(-20 * 24 * time.Hour)

	testCases := []struct {
		name  string
		setup func(s *repository.MemoryStore)
		now   time.Time
		want  domain.ConflictType
	}{
		{
			name:  "no conflict",
			setup: func(s *repository.MemoryStore) {},
			now:   farAway,
			want:  domain.ConflictNone,
		},
		{
			name:  "blocked date",
			setup: func(s *repository.MemoryStore) { s.BlockDate("p1", slotStart, "vacation") },
			now:   farAway,
			want:  domain.ConflictBlockedDate,
		},
		{
			name: "overlapping confirmed booking",
			setup: func(s *repository.MemoryStore) {
				s.PutBooking(domain.ConfirmedBooking{
					ID:                   "b1",
					ProviderID:           "p1",
					Range:                domain.TimeRange{Start: slotStart.Add(15 * time.Minute), End: slotStart.Add(45 * time.Minute)},
					PaymentCorrelationID: "pi_other",
				})
			},
			now:  farAway,
			want: domain.ConflictTimeOverlap,
		},
		{
			name: "adjacent booking does not overlap",
			setup: func(s *repository.MemoryStore) {
				s.PutBooking(domain.ConfirmedBooking{
					ID:                   "b1",
					ProviderID:           "p1",
					Range:                domain.TimeRange{Start: slotStart.Add(30 * time.Minute), End: slotStart.Add(time.Hour)},
					PaymentCorrelationID: "pi_other",
				})
			},
			now:  farAway,
			want: domain.ConflictNone,
		},
		{
			name:  "minimum notice",
			setup: func(s *repository.MemoryStore) {},
			now:   slotStart.Add(-time.Hour),
			want:  domain.ConflictMinimumNoticeViolation,
		},
		{
			name:  "blocked date outranks minimum notice",
			setup: func(s *repository.MemoryStore) { s.BlockDate("p1", slotStart, "") },
			now:   slotStart.Add(-time.Hour),
			want:  domain.ConflictBlockedDate,
		},
		{
			name: "overlap outranks minimum notice",
			setup: func(s *repository.MemoryStore) {
				s.PutBooking(domain.ConfirmedBooking{ID: "b1", ProviderID: "p1", Range: slot(), PaymentCorrelationID: "pi_other"})
			},
			now:  slotStart.Add(-time.Hour),
			want: domain.ConflictTimeOverlap,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore(24 * time.Hour)
			tc.setup(store)
			d := NewConflictDetector(store, store, zap.NewNop())

			result, err := d.DetectConflict(ctx, "p1", slot(), tc.now)

			require.NoError(t, err)
			assert.Equal(t, tc.want, result.Type)
			assert.Equal(t, tc.want != domain.ConflictNone, result.HasConflict)
		})
	}
}

func TestDetectConflict_BlockedDateUsesProviderTimezone(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	store.PutProvider(domain.ProviderSettings{ProviderID: "p1", Timezone: "America/New_York"})
	// 2025-06-01 02:00 UTC is still May 31st in New York.
	store.BlockDate("p1", time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC), "")
	d := NewConflictDetector(store, store, zap.NewNop())

	start := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	result, err := d.DetectConflict(ctx, "p1", domain.TimeRange{Start: start, End: start.Add(time.Hour)}, start.Add(-48*time.Hour))

	require.NoError(t, err)
	assert.Equal(t, domain.ConflictBlockedDate, result.Type)
}

func TestDetectConflict_UnknownProvider(t *testing.T) {
	store := repository.NewMemoryStore()
	d := NewConflictDetector(store, store, zap.NewNop())

	_, err := d.DetectConflict(context.Background(), "ghost", slot(), slotStart.Add(-48*time.Hour))
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestProviderSettings_CacheHit(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	cache := &MockSettingsCache{}
	cached := &domain.ProviderSettings{ProviderID: "p1", MinimumNotice: time.Hour}
	cache.On("GetProviderSettings", ctx, "p1").Return(cached, nil).Once()

	d := NewConflictDetector(store, store, zap.NewNop(), WithSettingsCache(cache))
	got, err := d.ProviderSettings(ctx, "p1")

	require.NoError(t, err)
	assert.Same(t, cached, got)
	cache.AssertExpectations(t)
	cache.AssertNotCalled(t, "SetProviderSettings")
}

func TestProviderSettings_CacheMissAndFailure(t *testing.T) {
	ctx := context.Background()
	store := newStore(2 * time.Hour)
	cache := &MockSettingsCache{}
	cache.On("GetProviderSettings", ctx, "p1").Return(nil, errors.New("redis down")).Once()
	cache.On("SetProviderSettings", ctx, mock.AnythingOfType("*domain.ProviderSettings")).Return(nil).Once()

	d := NewConflictDetector(store, store, zap.NewNop(), WithSettingsCache(cache))
	got, err := d.ProviderSettings(ctx, "p1")

	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, got.MinimumNotice)
	cache.AssertExpectations(t)
}
