package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/emily-news/tgcollect/internal/config"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect continuously on the configured interval",
	RunE:  runAction,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	c, err := buildCollector(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c.log.Info("collector started",
		"environment", cfg.Environment,
		"channels", len(cfg.Channels),
		"provider", cfg.Snapshot.Provider,
		"interval", cfg.SweepInterval.Duration.String())

	c.pipeline.Run(ctx)

	c.log.Info("collector stopped")
	return nil
}
