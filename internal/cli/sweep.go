package cli

import (
	"fmt"

	"github.com/emily-news/tgcollect/internal/config"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a single collection pass and exit",
	RunE:  sweepAction,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func sweepAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	c, err := buildCollector(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	c.pipeline.Sweep(cmd.Context())
	return nil
}
