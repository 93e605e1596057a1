package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-retail-fulfillment/internal/config"
	"github.com/ariefcatur/go-retail-fulfillment/internal/httpx"
	kafkax "github.com/ariefcatur/go-retail-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-retail-fulfillment/internal/logging"
	"github.com/ariefcatur/go-retail-fulfillment/internal/memstore"
	"github.com/ariefcatur/go-retail-fulfillment/internal/notify"
	"github.com/ariefcatur/go-retail-fulfillment/internal/observability"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
	"github.com/ariefcatur/go-retail-fulfillment/internal/postgres"
	"github.com/ariefcatur/go-retail-fulfillment/internal/redisx"
	"github.com/ariefcatur/go-retail-fulfillment/internal/revenue"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.New("order-api").Fatal("config", zap.Error(err))
	}
	log := logging.New(cfg.ServiceName)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		log.Fatal("tracing setup", zap.Error(err))
	}

	// Persistence
	var (
		store      orders.Store
		warehouses orders.WarehouseDirectory
		audit      orders.AuditSink
		source     revenue.Source
	)
	switch cfg.StoreDriver {
	case "memory":
		mem := memstore.New()
		store, warehouses, audit, source = mem, mem, mem, mem
		log.Warn("using in-memory store, data is lost on exit")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal("db migrate", zap.Error(err))
		}
		store = &postgres.Store{DB: db}
		warehouses = &postgres.Warehouses{DB: db}
		audit = &postgres.AuditLog{DB: db}
		source = &postgres.Revenue{DB: db}
	}

	// Redis
	var revenueCache revenue.Cache
	oh := &httpx.OrdersHandler{Log: log}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, caches will miss", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		revenueCache = &redisx.RevenueCache{RDB: rdb}
		oh.StatusCache = &redisx.StatusCache{RDB: rdb}
		oh.Idempotency = &redisx.Idempotency{RDB: rdb}
	} else {
		revenueCache = revenue.NewMemoryCache(nil)
	}
	agg := revenue.NewAggregator(source, revenueCache, cfg.RevenueCacheTTL, log)

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicNotifications, 1024, log)
	prod.Start(ctx)

	oh.Service = orders.NewService(orders.Deps{
		Store:      store,
		Warehouses: warehouses,
		Rules:      cfg.Rules,
		Audit:      audit,
		Notifier:   &notify.Dispatcher{Publisher: prod, Service: cfg.ServiceName},
		Revenue:    agg,
		Logger:     log,
	})

	router := httpx.NewRouter(log)
	oh.Register(router)
	(&httpx.RevenueHandler{Aggregator: agg, Log: log}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	prod.Close() // close inbox -> flush & close writer
	cancel()
	prod.WaitClosed()
	if err := shutdownTracing(ctx2); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
}
