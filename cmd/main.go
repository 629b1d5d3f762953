package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/genflow-backend/internal/app"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logMode string
	root := &cobra.Command{
		Use:           "genflow",
		Short:         "Generation orchestration API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logMode, "log-mode", "", "logger mode (development|production|test); defaults to LOG_MODE")

	newLogger := func() (*logger.Logger, app.Config, error) {
		cfg := app.LoadConfig()
		if logMode != "" {
			cfg.LogMode = logMode
		}
		log, err := logger.New(cfg.LogMode)
		if err != nil {
			return nil, cfg, fmt.Errorf("init logger: %w", err)
		}
		return log, cfg, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := newLogger()
			if err != nil {
				return err
			}
			a, err := app.New(cfg, log)
			if err != nil {
				log.Sync()
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Serve(ctx)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "reap",
		Short: "Fail and refund generations stuck past the timeout, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			res, err := app.Reap(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			return app.Migrate(cfg, log)
		},
	})

	return root
}
