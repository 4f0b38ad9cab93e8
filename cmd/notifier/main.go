package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/harvest-market/internal/config"
	"github.com/ariefcatur/harvest-market/internal/events"
	kafkax "github.com/ariefcatur/harvest-market/internal/kafka"
	"github.com/ariefcatur/harvest-market/internal/logx"
	"github.com/ariefcatur/harvest-market/internal/notify"
	"github.com/ariefcatur/harvest-market/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logx.New(cfg.ServiceName+"-notifier", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if len(cfg.KafkaBrokers) == 0 {
		logger.Fatal("notifier needs KAFKA_BROKERS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Dedup: redis kalau ada, supaya aman saat consumer di-scale
	var dedup notify.Dedup = &notify.MemDedup{}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		dedup = &notify.RedisDedup{Client: rdb, Service: cfg.NotifierGroup}
	}

	svc := &notify.Service{
		Notifier: notify.LogNotifier{Log: logger.Named("outbox")},
		Dedup:    dedup,
		Log:      logger,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, events.NotifiableTopics, cfg.NotifierWorkers, logger.Named("consumer"))
	logger.Info("notifier consumer started",
		zap.String("group", cfg.NotifierGroup),
		zap.Strings("topics", events.NotifiableTopics),
		zap.Int("workers", cfg.NotifierWorkers))

	if err := cons.Start(ctx, svc.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer exit", zap.Error(err))
		return
	}
	logger.Info("notifier stopped")
}
