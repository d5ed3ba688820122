package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront/internal/app"
	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/logger"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatal("config", logger.Err(err))
	}
	log := logger.Init(logger.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Service: cfg.ServiceName})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server stopped", logger.Err(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	stores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable; using in-process cache and rate limiter")
	} else {
		defer rdb.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollector(reg)

	pub, err := queue.New(queue.BusConfig{
		Kind:         cfg.EventBus,
		RabbitURL:    cfg.RabbitURL,
		KafkaBrokers: cfg.KafkaBrokers,
	}, log)
	if err != nil {
		return err
	}
	defer pub.Close()

	if cfg.EventBus == "rabbitmq" {
		consumer := &queue.OrderLogConsumer{URL: cfg.RabbitURL, Path: cfg.OrderLogPath, Log: log}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("order log consumer stopped", logger.Err(err))
			}
		}()
	}

	svc := app.NewServices(cfg, stores, rdb, pub, m)
	e := app.NewServer(ctx, stores, svc, app.ServerDeps{
		Redis:     rdb,
		Metrics:   m,
		Gatherer:  reg,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
