package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/harvest-market/internal/auctions"
	"github.com/ariefcatur/harvest-market/internal/config"
	"github.com/ariefcatur/harvest-market/internal/events"
	"github.com/ariefcatur/harvest-market/internal/httpx"
	kafkax "github.com/ariefcatur/harvest-market/internal/kafka"
	"github.com/ariefcatur/harvest-market/internal/logx"
	"github.com/ariefcatur/harvest-market/internal/orders"
	"github.com/ariefcatur/harvest-market/internal/payments"
	"github.com/ariefcatur/harvest-market/internal/postgres"
	"github.com/ariefcatur/harvest-market/internal/realtime"
	"github.com/ariefcatur/harvest-market/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logx.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return fmt.Errorf("TAX_RATE %q: %w", cfg.TaxRate, err)
	}

	// Storage
	var (
		auctionStore auctions.Store
		orderStore   orders.Store
	)
	switch cfg.Storage {
	case config.StorageMemory:
		auctionStore = auctions.NewMemStore()
		orderStore = orders.NewMemStore()
	case config.StoragePostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return fmt.Errorf("db migrate: %w", err)
		}
		auctionStore = &auctions.PGStore{DB: db}
		orderStore = &orders.PGStore{DB: db}
	default:
		return fmt.Errorf("unknown STORAGE %q", cfg.Storage)
	}

	// Redis (opsional: idempotency, status cache, bus)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redisx.New(cfg.RedisAddr)
		defer rdb.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	// Kafka producer
	var sink events.Sink = events.Nop{}
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger.Named("producer"))
		prod.Start(gctx)
		sink = &kafkax.Emitter{Producer: prod, Service: cfg.ServiceName}
	} else {
		logger.Warn("KAFKA_BROKERS empty, domain events are not published")
	}

	// Broadcast: hub lokal, atau relay lewat redis/nats antar instance
	hub := realtime.NewHub(logger.Named("hub"))
	var broadcast auctions.Broadcaster = hub
	switch cfg.BroadcastBus {
	case config.BusLocal:
	case config.BusRedis:
		if rdb == nil {
			return errors.New("BROADCAST_BUS=redis needs REDIS_ADDR")
		}
		bus := &realtime.RedisBus{Client: rdb, Hub: hub, Log: logger.Named("bus")}
		broadcast = bus
		g.Go(func() error { return bus.Run(gctx) })
	case config.BusNATS:
		nc, err := nats.Connect(cfg.NatsURL, nats.Name(cfg.ServiceName))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
		bus := &realtime.NATSBus{Conn: nc, Hub: hub, Log: logger.Named("bus")}
		broadcast = bus
		g.Go(func() error { return bus.Run(gctx) })
	default:
		return fmt.Errorf("unknown BROADCAST_BUS %q", cfg.BroadcastBus)
	}

	auctionSvc := &auctions.Service{
		Store:     auctionStore,
		Broadcast: broadcast,
		Events:    sink,
		Log:       logger.Named("auctions"),
	}
	orderSvc := orders.NewService(orderStore, sink, logger.Named("orders"))
	orderSvc.TaxRate = taxRate
	orderSvc.ShippingFeeCents = cfg.ShippingFeeCents
	paymentSvc := &payments.Service{
		Verifier: &payments.Verifier{Secrets: cfg.PaymentSecrets},
		Orders:   orderSvc,
		Log:      logger.Named("payments"),
	}

	router := httpx.NewRouter()
	api := &httpx.API{
		Auctions: auctionSvc,
		Orders:   orderSvc,
		Payments: paymentSvc,
		Socket:   realtime.NewHandler(hub, auctionSvc, logger.Named("ws")),
		Redis:    rdb,
		Log:      logger.Named("http"),
	}
	api.Register(router)

	sched := &auctions.Scheduler{Service: auctionSvc, Interval: cfg.LifecycleInterval}
	g.Go(func() error { return sched.Run(gctx) })

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("storage", cfg.Storage), zap.String("bus", cfg.BroadcastBus))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		if prod != nil {
			prod.Close()      // tutup inbox -> flush & close writer
			prod.WaitClosed() // drain
		}
		return err
	})

	return g.Wait()
}
