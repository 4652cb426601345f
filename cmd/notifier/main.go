package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/storefront-checkout/internal/config"
	kafkax "github.com/ariefcatur/storefront-checkout/internal/kafka"
	"github.com/ariefcatur/storefront-checkout/internal/notify"
	"github.com/ariefcatur/storefront-checkout/internal/redisx"
	"github.com/ariefcatur/storefront-checkout/pkg/logger"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateNotifier()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	service := cfg.ServiceName + "-notifier"
	log := logger.New(cfg.LogLevel).With("service", service)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc := &notify.Service{
		Sender:      &notify.SMTPMailer{Addr: cfg.SMTPAddr, From: cfg.MailFrom},
		ServiceName: service,
		Log:         log,
	}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		svc.Dedup = &redisx.Store{RDB: rdb}
	} else {
		log.Warn("REDIS_ADDR empty, redelivered events may send duplicate mail")
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, notify.TopicNotifications, cfg.NotifierWorkers, log)
	log.Info("notifier consumer started",
		"group", cfg.NotifierGroup,
		"topic", notify.TopicNotifications,
		"workers", cfg.NotifierWorkers,
	)
	if err := cons.Start(ctx, svc.HandleEmailRequested); err != nil {
		log.Error("consumer exit", "error", err)
		os.Exit(1)
	}
	log.Info("notifier stopped")
}
