package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var printReport bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one reconcile pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if cfg.Run.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.Run.Timeout)
				defer cancel()
			}

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.orchestrator.Run(ctx)
			if printReport {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(report); encErr != nil {
					return encErr
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&printReport, "print", true, "print the run report as JSON")
	return cmd
}
