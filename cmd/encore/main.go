// Command encore reconciles recent Spotify plays into a recommendations playlist.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ewilliams-labs/encore/internal/config"
	"github.com/ewilliams-labs/encore/internal/logging"
)

var Version = "dev"

type rootOptions struct {
	configPath string
	envFiles   []string
	cfg        *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "encore",
		Short:         "Encore - recommendations from what you just played",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFiles(opts.envFiles...); err != nil {
				return err
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logging.Init(logging.Config{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Caller: cfg.Log.Caller,
			})
			opts.cfg = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: $CONFIG_PATH or ./config.yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newRecommendCmd(opts))
	rootCmd.AddCommand(newCatalogCmd(opts))

	return rootCmd
}
