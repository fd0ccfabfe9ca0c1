package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/slotbooking/internal/domain"
	"github.com/Domenick1991/slotbooking/internal/repository"
	"go.uber.org/zap"
)

type LifecyclePublisher interface {
	PublishReservation(ctx context.Context, eventType string, r *domain.SlotReservation) error
}

// Sweeper reclaims slots held by reservations that were never paid. Every
// update is conditional on RESERVED, so overlapping sweeps and in-flight
// payment events are safe.
type Sweeper struct {
	reservations repository.ReservationRepository
	publisher    LifecyclePublisher
	log          *zap.Logger
}

func NewSweeper(reservations repository.ReservationRepository, publisher LifecyclePublisher, log *zap.Logger) *Sweeper {
	return &Sweeper{reservations: reservations, publisher: publisher, log: log}
}

// SweepExpired returns how many reservations moved to EXPIRED.
func (s *Sweeper) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.reservations.ExpireBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("expire reservations: %w", err)
	}
	duplicates, err := s.reservations.ExpireDuplicates(ctx)
	if err != nil {
		return len(expired), fmt.Errorf("expire duplicate reservations: %w", err)
	}

	for i := range expired {
		s.publish(ctx, &expired[i])
	}
	for i := range duplicates {
		s.log.Warn("expired duplicate reservation",
			zap.String("reservation_id", duplicates[i].ID),
			zap.String("provider_id", duplicates[i].ProviderID),
			zap.Time("start", duplicates[i].Range.Start),
		)
		s.publish(ctx, &duplicates[i])
	}

	total := len(expired) + len(duplicates)
	if total > 0 {
		s.log.Info("expired reservations",
			zap.Int("expired", len(expired)),
			zap.Int("duplicates", len(duplicates)),
		)
	}
	return total, nil
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration, now func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx, now()); err != nil {
				s.log.Error("failed to expire reservations", zap.Error(err))
			}
		}
	}
}

func (s *Sweeper) publish(ctx context.Context, r *domain.SlotReservation) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishReservation(ctx, "reservation_expired", r); err != nil {
		s.log.Warn("failed to publish reservation event", zap.String("reservation_id", r.ID), zap.Error(err))
	}
}
