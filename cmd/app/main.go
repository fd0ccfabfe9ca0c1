package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/slotbooking/api"
	"github.com/Domenick1991/slotbooking/config"
	"github.com/Domenick1991/slotbooking/internal/bootstrap"
	"github.com/Domenick1991/slotbooking/internal/cache"
	"github.com/Domenick1991/slotbooking/internal/clock"
	"github.com/Domenick1991/slotbooking/internal/gateway"
	"github.com/Domenick1991/slotbooking/internal/kafka"
	"github.com/Domenick1991/slotbooking/internal/logger"
	"github.com/Domenick1991/slotbooking/internal/obs"
	"github.com/Domenick1991/slotbooking/internal/repository"
	"github.com/Domenick1991/slotbooking/internal/service/conflict"
	"github.com/Domenick1991/slotbooking/internal/service/payment"
	"github.com/Domenick1991/slotbooking/internal/service/refund"
	"github.com/Domenick1991/slotbooking/internal/service/reservation"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zl.Sync()
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		zl.Fatal("init tracer", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			zl.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		zl.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if cfg.Database.Migrate {
		if err := repository.Migrate(ctx, pool); err != nil {
			zl.Fatal("migrate", zap.Error(err))
		}
	}

	redisCache := cache.NewRedisCache(cfg.Redis)
	defer redisCache.Close()
	producer := kafka.NewProducer(cfg.Kafka.Brokers, zl)
	defer producer.Close()

	clk := clock.Real{}
	reservations := repository.NewReservationRepository(pool)
	bookings := repository.NewBookingRepository(pool)
	availability := repository.NewAvailabilityRepository(pool)
	refundRecords := repository.NewRefundRepository(pool)

	notifier := kafka.NewNotifier(producer, cfg.Kafka.NotificationsTopic)
	lifecycle := kafka.NewLifecyclePublisher(producer, cfg.Kafka.ReservationsTopic)

	detector := conflict.NewConflictDetector(availability, bookings, zl, conflict.WithSettingsCache(redisCache))
	reservationService := reservation.NewReservationService(reservations, detector, zl,
		reservation.WithLifecyclePublisher(lifecycle),
		reservation.WithWindowPolicy(reservation.WindowPolicy{
			ImmediateThreshold: cfg.Reservation.ImmediateThreshold(),
			ImmediateTTL:       cfg.Reservation.ImmediateTTL(),
			DelayedTTL:         cfg.Reservation.DelayedTTL(),
		}),
	)
	refundService := refund.NewRefundService(refundRecords, availability,
		gateway.NewStripeGateway(cfg.Stripe.SecretKey, zl), notifier, clk, zl)
	reconciler := payment.NewReconciler(reservations, bookings, refundRecords, detector, refundService, notifier, clk, zl,
		payment.WithEventMarker(redisCache),
		payment.WithLifecyclePublisher(lifecycle),
	)

	rateLimiter := api.NewRateLimiter(cfg.HTTP.RequestsPerSecond, cfg.HTTP.Burst, zl)
	go rateLimiter.Run(ctx, time.Minute)

	router := api.NewRouter(api.Handlers{
		Reservations: api.NewReservationHandler(reservationService, clk),
		Webhooks:     api.NewWebhookHandler(gateway.NewStripeVerifier(cfg.Stripe.WebhookSecret), reconciler, zl),
		Health: api.NewHealthHandler(map[string]api.Pinger{
			"postgres": pool,
			"redis":    redisCache,
			"kafka":    api.PingFunc(producer.CheckConnection),
		}),
		RateLimiter: rateLimiter,
	}, zl)

	if err := bootstrap.Run(ctx, cfg.HTTP, router, zl); err != nil {
		zl.Fatal("server error", zap.Error(err))
	}
}
