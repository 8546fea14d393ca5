package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/petbook/libs/runtime"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/settings"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/storage"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "petbookctl",
		Short:         "Operate the petbook booking store: migrations, ledger repair and one-off sweeps",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newVersionCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newReconcileCmd())
	root.AddCommand(newSweepCmd())
	return root
}

// env is what every store-facing command needs. Callers must call close.
type env struct {
	cfg     settings.Settings
	logger  *slog.Logger
	backend *storage.Backend
	engine  *booking.Engine
}

func (e *env) close() { e.backend.Close() }

func openEnv(ctx context.Context, migrate bool) (*env, error) {
	cfg, err := settings.Load("petbookctl", "8085")
	if err != nil {
		return nil, err
	}
	if cfg.StorageDriver != settings.DriverPostgres {
		return nil, fmt.Errorf("petbookctl works against postgres, STORAGE_DRIVER is %q", cfg.StorageDriver)
	}
	logger := runtime.NewLogger(cfg.ServiceName, cfg.LogLevel)
	backend, err := storage.Open(ctx, cfg.StorageDriver, cfg.DatabaseURL, migrate)
	if err != nil {
		return nil, err
	}
	engine := booking.New(backend.Store, backend.Pets, booking.Options{Location: cfg.Location, Logger: logger})
	return &env{cfg: cfg, logger: logger, backend: backend, engine: engine}, nil
}
