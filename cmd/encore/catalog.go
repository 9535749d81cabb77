package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ewilliams-labs/encore/internal/adapters/duckdb"
	"github.com/ewilliams-labs/encore/internal/logging"
)

func newCatalogCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the SQLite catalog",
	}
	cmd.AddCommand(newCatalogImportCmd(opts))
	return cmd
}

func newCatalogImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import [catalog.csv]",
		Short: "Replace the SQLite catalog with the rows of a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			csv, err := duckdb.NewCSVCatalog(args[0])
			if err != nil {
				return err
			}
			defer csv.Close()

			catalog, err := csv.LoadCatalog(ctx)
			if err != nil {
				return err
			}

			store, err := openStore(opts.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.ReplaceCatalog(ctx, catalog); err != nil {
				return err
			}

			incomplete := 0
			for _, row := range catalog {
				if !row.HasFeatures() {
					incomplete++
				}
			}
			logging.Info().
				Int("rows", len(catalog)).
				Int("incomplete", incomplete).
				Str("store", opts.cfg.Store.Path).
				Msg("catalog imported")
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d rows (%d with missing features)\n", len(catalog), incomplete)
			return nil
		},
	}
}
