package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/petbook/libs/db"
	"github.com/md-rashed-zaman/petbook/libs/grpcx"
	otelx "github.com/md-rashed-zaman/petbook/libs/otel"
	"github.com/md-rashed-zaman/petbook/libs/redisx"
	"github.com/md-rashed-zaman/petbook/libs/runtime"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/locking"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/settings"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/sweep"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const sweepHealthService = "petbook.ReminderScheduler"

func main() {
	cfg, err := settings.Load("reminder-scheduler", "8084")
	if err != nil {
		runtime.NewLogger("reminder-scheduler", "error").Error("invalid configuration", "err", err)
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

	backend, err := storage.Open(ctx, cfg.StorageDriver, cfg.DatabaseURL, false)
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
	var locker booking.Locker = booking.NewLocalLocker()
	if rdb != nil {
		defer rdb.Close()
		locker = locking.NewRedisLocker(rdb, locking.Options{Prefix: "petbook:lock", TTL: cfg.LockTTL})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg, "petbook")

	engine := booking.New(backend.Store, backend.Pets, booking.Options{
		Location: cfg.Location,
		Locker:   locker,
		Logger:   logger,
		Metrics:  collector,
	})

	var leader sweep.Leader = sweep.AlwaysLeader{}
	var checks []runtime.ReadyCheck
	if backend.Pool != nil {
		advisory := storage.NewAdvisoryLeader(backend.Pool, 0)
		defer advisory.Release(context.Background())
		leader = advisory
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(backend.Pool)})
	} else {
		logger.Warn("memory storage is private to this process; the scheduler will only see its own reservations")
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}

	grpcServer := grpcx.NewServer(logger)
	grpcServer.SetServing("", true)
	grpcServer.SetServing(sweepHealthService, false)
	go func() {
		if err := grpcServer.Serve(ctx, net.JoinHostPort("", cfg.GRPCPort)); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	worker := sweep.NewWorker(engine, policy.NewStaticProvider(cfg.Deadlines), leader, logger, collector, cfg.SweepConfig())
	worker.OnSweep = func(_ sweep.Report, err error) {
		grpcServer.SetServing(sweepHealthService, err == nil)
	}
	go worker.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           runtime.NewBaseMux(reg, checks...),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "sweep_interval", cfg.SweepInterval.String())
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
	logger.Info("reminder scheduler stopped")
}
