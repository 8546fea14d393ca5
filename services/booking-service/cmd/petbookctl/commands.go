package main

import (
	"fmt"

	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/petbook/services/booking-service/internal/sweep"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "petbookctl %s (commit=%s, built=%s)\n", Version, CommitSHA, BuildDate)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.close()
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [service-id...]",
		Short: "Rebuild service ledgers from their reservations (all services when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, false)
			if err != nil {
				return err
			}
			defer e.close()

			ids := args
			if len(ids) == 0 {
				if ids, err = e.engine.ServiceIDs(ctx); err != nil {
					return err
				}
			}
			repaired := 0
			for _, id := range ids {
				changed, err := e.engine.Reconcile(ctx, id)
				if err != nil {
					return fmt.Errorf("reconcile %s: %w", id, err)
				}
				if changed {
					repaired++
					fmt.Fprintf(cmd.OutOrStdout(), "repaired %s\n", id)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d services repaired\n", repaired, len(ids))
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	var force bool
	c := &cobra.Command{
		Use:   "sweep",
		Short: "Run one reminder sweep now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx, false)
			if err != nil {
				return err
			}
			defer e.close()

			if !force {
				leader := storage.NewAdvisoryLeader(e.backend.Pool, 0)
				defer leader.Release(ctx)
				ok, err := leader.Elect(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("a reminder-scheduler holds the sweep lock; pass --force to sweep anyway")
				}
			}

			worker := sweep.NewWorker(e.engine, policy.NewStaticProvider(e.cfg.Deadlines), nil, e.logger, nil, e.cfg.SweepConfig())
			report, err := worker.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled=%d reminded=%d completed=%d skipped=%d failed=%d reconciled=%d\n",
				report.Cancelled, report.Reminded, report.Completed, report.Skipped, report.Failed, report.Reconciled)
			return nil
		},
	}
	c.Flags().BoolVar(&force, "force", false, "sweep without taking the scheduler's advisory lock")
	return c
}
