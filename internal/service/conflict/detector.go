package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/slotbooking/internal/domain"
	"github.com/Domenick1991/slotbooking/internal/repository"
	"go.uber.org/zap"
)

type Detector interface {
	DetectConflict(ctx context.Context, providerID string, rng domain.TimeRange, now time.Time) (domain.ConflictResult, error)
	ProviderSettings(ctx context.Context, providerID string) (*domain.ProviderSettings, error)
}

// SettingsCache holds provider settings only. Blocked dates and bookings are
// always read from the store.
type SettingsCache interface {
	GetProviderSettings(ctx context.Context, providerID string) (*domain.ProviderSettings, error)
	SetProviderSettings(ctx context.Context, settings *domain.ProviderSettings) error
}

type ConflictDetector struct {
	availability repository.AvailabilityRepository
	bookings     repository.BookingRepository
	cache        SettingsCache
	log          *zap.Logger
}

type Option func(*ConflictDetector)

func WithSettingsCache(cache SettingsCache) Option {
	return func(d *ConflictDetector) {
		d.cache = cache
	}
}

func NewConflictDetector(
	availability repository.AvailabilityRepository,
	bookings repository.BookingRepository,
	log *zap.Logger,
	opts ...Option,
) *ConflictDetector {
	d := &ConflictDetector{
		availability: availability,
		bookings:     bookings,
		log:          log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectConflict checks, in this order and stopping at the first hit: blocked
// date, overlap with a confirmed booking, minimum notice.
//
// TODO: confirm with product why overlap outranks minimum notice; the order is
// kept as observed.
func (d *ConflictDetector) DetectConflict(ctx context.Context, providerID string, rng domain.TimeRange, now time.Time) (domain.ConflictResult, error) {
	settings, err := d.ProviderSettings(ctx, providerID)
	if err != nil {
		return domain.ConflictResult{}, err
	}
	rng = rng.UTC()

	day := domain.CalendarDay(rng.Start, settings.Location())
	blocked, err := d.availability.FindBlockedDate(ctx, providerID, day)
	if err != nil {
		return domain.ConflictResult{}, fmt.Errorf("find blocked date: %w", err)
	}
	if blocked != nil {
		detail := fmt.Sprintf("provider unavailable on %s", day.Format("2006-01-02"))
		if blocked.Reason != "" {
			detail += ": " + blocked.Reason
		}
		return domain.Conflict(domain.ConflictBlockedDate, detail), nil
	}

	overlapping, err := d.bookings.FindOverlapping(ctx, providerID, rng)
	if err != nil {
		return domain.ConflictResult{}, fmt.Errorf("find overlapping bookings: %w", err)
	}
	if len(overlapping) > 0 {
		first := overlapping[0]
		return domain.Conflict(domain.ConflictTimeOverlap, fmt.Sprintf("overlaps booking %s (%s - %s)",
			first.ID, first.Range.Start.Format(time.RFC3339), first.Range.End.Format(time.RFC3339))), nil
	}

	if notice := rng.Start.Sub(now); notice < settings.MinimumNotice {
		return domain.Conflict(domain.ConflictMinimumNoticeViolation, fmt.Sprintf("requires %s notice, got %s",
			settings.MinimumNotice, notice.Truncate(time.Minute))), nil
	}

	return domain.NoConflict(), nil
}

// ProviderSettings reads through the cache when one is configured. Cache
// errors degrade to a store read.
func (d *ConflictDetector) ProviderSettings(ctx context.Context, providerID string) (*domain.ProviderSettings, error) {
	if d.cache != nil {
		cached, err := d.cache.GetProviderSettings(ctx, providerID)
		if err != nil {
			d.log.Warn("provider settings cache read failed", zap.String("provider_id", providerID), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	settings, err := d.availability.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		if err := d.cache.SetProviderSettings(ctx, settings); err != nil {
			d.log.Warn("provider settings cache write failed", zap.String("provider_id", providerID), zap.Error(err))
		}
	}
	return settings, nil
}

var _ Detector = (*ConflictDetector)(nil)
