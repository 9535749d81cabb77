package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ewilliams-labs/encore/internal/adapters/rest"
	"github.com/ewilliams-labs/encore/internal/logging"
	"github.com/ewilliams-labs/encore/internal/worker"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run reconciles on a schedule and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			pool := worker.NewPool(a.orchestrator, cfg.Schedule.Workers, cfg.Schedule.QueueSize)
			pool.SetRunTimeout(cfg.Run.Timeout)
			pool.Start(ctx)
			defer pool.Stop()

			handler := rest.NewHandler(pool, a.store,
				rest.WithSubmitRateLimit(cfg.Server.SubmitRateLimit, cfg.Server.SubmitRateWindow),
			)
			server := rest.NewServer(cfg.Server.Addr(), handler, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

			sup := worker.NewSupervisor("encore", worker.SupervisorConfig{
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
			})
			sup.Add(worker.NewScheduler(pool, cfg.Schedule.Interval, cfg.Schedule.RunOnStart))
			sup.Add(rest.NewServerService(server, cfg.Server.ShutdownTimeout))

			logging.Info().
				Str("addr", cfg.Server.Addr()).
				Dur("interval", cfg.Schedule.Interval).
				Msg("encore serving")

			if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logging.Info().Msg("shutting down")
			return nil
		},
	}
}
