package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-retail-fulfillment/internal/config"
	kafkax "github.com/ariefcatur/go-retail-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-retail-fulfillment/internal/logging"
	"github.com/ariefcatur/go-retail-fulfillment/internal/notify"
	"github.com/ariefcatur/go-retail-fulfillment/internal/observability"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		logging.New("order-api").Fatal("config", zap.Error(err))
	}
	service := cfg.ServiceName + "-notifier"
	log := logging.New(service)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, service, cfg.OtelEndpoint)
	if err != nil {
		log.Fatal("tracing setup", zap.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	h := &notify.Handler{Sender: notify.LogSender{Log: log}, Log: log}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, orders.TopicNotifications, cfg.NotifierWorkers, log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("notifier consumer started",
			zap.String("group", cfg.NotifierGroup),
			zap.String("topic", orders.TopicNotifications),
			zap.Int("workers", cfg.NotifierWorkers))
		if err := cons.Start(ctx, h.Handle); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer")
	cancel()
	<-done
}
