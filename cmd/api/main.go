package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/ariefcatur/storefront-checkout/internal/config"
	"github.com/ariefcatur/storefront-checkout/internal/httpx"
	kafkax "github.com/ariefcatur/storefront-checkout/internal/kafka"
	"github.com/ariefcatur/storefront-checkout/internal/memstore"
	"github.com/ariefcatur/storefront-checkout/internal/metrics"
	"github.com/ariefcatur/storefront-checkout/internal/notify"
	"github.com/ariefcatur/storefront-checkout/internal/postgres"
	"github.com/ariefcatur/storefront-checkout/internal/redisx"
	"github.com/ariefcatur/storefront-checkout/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
)

type stores interface {
	checkout.Store
	checkout.OrderStore
	checkout.CouponStore
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	var st stores
	switch cfg.StoreDriver {
	case config.DriverMemory:
		st = memstore.Demo(time.Now())
		log.Warn("using in-memory store with demo data")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, 16)
		if err != nil {
			log.Error("db connect", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Error("db migrate", "error", err)
			os.Exit(1)
		}
		st = &postgres.Store{DB: db, LockTimeout: cfg.CheckoutTimeout / 2}
	}

	// Redis
	var rstore *redisx.Store
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, continuing without idempotency and cache", "error", err)
		} else {
			rstore = &redisx.Store{RDB: rdb}
		}
	}

	// Notifications
	var dispatcher checkout.Dispatcher = &notify.LogDispatcher{Log: log}
	var prod *kafkax.Producer
	if cfg.NotifyDriver == config.NotifyKafka {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicNotifications, 1024, log)
		prod.Start()
		dispatcher = &notify.KafkaDispatcher{Producer: prod, ServiceName: cfg.ServiceName}
	}

	m := metrics.NewServerMetrics(nil, "api")
	engine := &checkout.Engine{
		Store:      st,
		Dispatcher: dispatcher,
		Log:        log,
		Observer:   m,
		Operators:  cfg.OperatorEmails,
		Timeout:    cfg.CheckoutTimeout,
		Attempts:   cfg.CheckoutAttempts,
	}

	ch := &httpx.CheckoutHandler{Engine: engine, Log: log}
	oh := &httpx.OrdersHandler{Orders: &checkout.Orders{Store: st}, Log: log}
	cph := &httpx.CouponsHandler{Coupons: &checkout.Coupons{Store: st}, Log: log}
	if rstore != nil {
		ch.Idem = rstore
		oh.Cache = rstore
	}
	auth := &httpx.Authenticator{Secret: []byte(cfg.JWTSecret)}

	router := httpx.NewRouter(log, m)
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		ch.Register(r)
		oh.Register(r)
		cph.Register(r)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver, "notify", cfg.NotifyDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Error("http shutdown", "error", err)
	}
	engine.Wait() // pending notifications
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
	cancel()
}
