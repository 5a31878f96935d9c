package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"metrify/internal/schedule"
	"metrify/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only inspection API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newRunnerApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			shutdown, err := initTelemetry(cmd, a)
			if err != nil {
				return err
			}
			defer shutdown()

			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				a.cfg.HTTPAddr = addr
			}

			metricsStore, closeStore, err := a.metricsStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			srv := server.NewServer(a.cfg, a.reg, metricsStore, a.trace, a.logger)
			if err := srv.Run(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info("shutting down")
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (default: HTTP_ADDR)")
	return cmd
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run scheduled metrics until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newRunnerApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			shutdown, err := initTelemetry(cmd, a)
			if err != nil {
				return err
			}
			defer shutdown()

			targetID, err := resolveTarget(cmd, a)
			if err != nil {
				return err
			}

			watcher, err := schedule.NewWatcher(a.runner, targetID, a.logger)
			if err != nil {
				return err
			}
			registered, err := watcher.Register(a.reg)
			if err != nil {
				return err
			}
			if registered == 0 {
				return fmt.Errorf("no metrics carry a schedule: add schedule fields to metric manifests")
			}

			return watcher.Run(cmd.Context())
		},
	}
	cmd.Flags().String("target", "", "target id (defaults to the only registered target)")
	return cmd
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the inspection API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.APISecret == "" {
				return fmt.Errorf("METRIFY_API_SECRET is not set: the API is open and needs no token")
			}

			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			token, err := server.MintToken(cfg.APISecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("subject", "cli", "token subject")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	return cmd
}
