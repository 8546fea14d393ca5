package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/petbook/libs/db"
	"github.com/md-rashed-zaman/petbook/libs/httpx"
	"github.com/md-rashed-zaman/petbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/petbook/libs/otel"
	"github.com/md-rashed-zaman/petbook/libs/redisx"
	"github.com/md-rashed-zaman/petbook/libs/runtime"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/locking"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/settings"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/sweep"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := settings.Load("booking-service", "8083")
	if err != nil {
		runtime.NewLogger("booking-service", "error").Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	backend, err := storage.Open(ctx, cfg.StorageDriver, cfg.DatabaseURL, true)
	if err != nil {
		logger.Error("storage init failed", "err", err, "driver", cfg.StorageDriver)
		os.Exit(1)
	}
	defer backend.Close()

	rdb, err := redisx.Open(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("redis connection failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg, "petbook")

	var locker booking.Locker = booking.NewLocalLocker()
	createLimit := httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).Middleware()
	if rdb != nil {
		defer rdb.Close()
		locker = locking.NewRedisLocker(rdb, locking.Options{Prefix: "petbook:lock", TTL: cfg.LockTTL})
		createLimit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "petbook:rl:create").Middleware(logger, true)
	}

	engine := booking.New(backend.Store, backend.Pets, booking.Options{
		Location: cfg.Location,
		Locker:   locker,
		Logger:   logger,
		Metrics:  collector,
	})

	if cfg.KafkaEnabled() {
		if backend.Pool != nil {
			publisher := outbox.NewPublisher(backend.Pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
				Brokers:   cfg.KafkaBrokers,
				PollEvery: 2 * time.Second,
				BatchSize: 50,
				OnPublish: collector.Published,
			})
			go publisher.Run(ctx)
		}
		petConsumer := consumer.New(logger, backend.Pets, consumer.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.KafkaPetTopic,
		})
		petConsumer.OnMessage = collector.PetEvent
		go petConsumer.Run(ctx)
	}

	// The memory store is private to this process, so it sweeps its own reservations.
	if backend.Pool == nil {
		worker := sweep.NewWorker(engine, policy.NewStaticProvider(cfg.Deadlines), sweep.AlwaysLeader{}, logger, collector, cfg.SweepConfig())
		go worker.Run(ctx)
	}

	var checks []runtime.ReadyCheck
	if backend.Pool != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(backend.Pool)})
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}
	if cfg.KafkaEnabled() {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}
	mux := runtime.NewBaseMux(reg, checks...)
	handlers.New(engine, logger).Routes(mux, createLimit)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger, collector.ObserveHTTP),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(10*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "storage", cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
