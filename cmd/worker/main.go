package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Domenick1991/slotbooking/config"
	"github.com/Domenick1991/slotbooking/internal/clock"
	"github.com/Domenick1991/slotbooking/internal/email"
	"github.com/Domenick1991/slotbooking/internal/kafka"
	"github.com/Domenick1991/slotbooking/internal/logger"
	"github.com/Domenick1991/slotbooking/internal/repository"
	"github.com/Domenick1991/slotbooking/internal/service/sweeper"
	"github.com/jackc/pgx/v5/pgxpool"
	kafkaGo "github.com/segmentio/kafka-go"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		zl.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, zl)
	defer producer.Close()
	lifecycle := kafka.NewLifecyclePublisher(producer, cfg.Kafka.ReservationsTopic)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()
	emailSender := email.NewSender(zl)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
			var notification kafka.NotificationMessage
			if err := json.Unmarshal(msg.Value, &notification); err != nil {
				zl.Warn("skipping undecodable notification", zap.Int64("offset", msg.Offset), zap.Error(err))
				return nil
			}
			return emailSender.Send(ctx, notification)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			zl.Error("notification consumer stopped", zap.Error(err))
		}
	}()

	sweep := sweeper.NewSweeper(repository.NewReservationRepository(pool), lifecycle, zl)
	interval := time.Duration(cfg.Worker.ExpirationSweepMinutes) * time.Minute
	zl.Info("expiration sweeper started", zap.Duration("interval", interval))
	sweep.Run(ctx, interval, clock.Real{}.Now)

	zl.Info("shutting down worker")
	wg.Wait()
}
