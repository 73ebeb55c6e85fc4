package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/libs/grpcx"
	"github.com/md-rashed-zaman/clinicdesk/libs/runtime"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/storage/postgres"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	root := &cobra.Command{
		Use:           "scheduling-service",
		Short:         "Clinic appointment scheduling service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), sweepCmd(), migrateCmd(), healthcheckCmd())

	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC health endpoint and the daily sweep",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), s)
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one absence sweep now and print its report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := runtime.NewLogger(s.service)
			d, err := openDeps(ctx, s, logger)
			if err != nil {
				return err
			}
			defer d.close()

			svc := scheduling.New(d.store, clock.System{}, logger, scheduling.Config{TxTimeout: s.txTimeout})
			rep, err := newSweeper(d, svc, s, logger).Run(ctx)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(rep); encErr != nil {
				return encErr
			}
			return err
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.Open(ctx, s.databaseURL, db.PoolOptions{MaxConns: 2, AppName: s.service + "-cli"})
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer pool.Close()
			n, err := migrate(ctx, pool)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
			return nil
		},
	})
	return cmd
}

func migrate(ctx context.Context, pool *db.Pool) (int, error) {
	migrations, err := postgres.Migrations()
	if err != nil {
		return 0, fmt.Errorf("load migrations: %w", err)
	}
	n, err := db.MigrateUp(ctx, pool, migrations)
	if err != nil {
		return n, fmt.Errorf("migrate: %w", err)
	}
	return n, nil
}

func healthcheckCmd() *cobra.Command {
	var addr, service string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Query the gRPC health endpoint of a running instance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			defer cancel()
			status, err := grpcx.Check(ctx, addr, service)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.String())
			if status != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("service %q is %s", service, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9093", "gRPC address of the instance")
	cmd.Flags().StringVar(&service, "service", "scheduling-service", "service name to check")
	return cmd
}
