package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hxnotes/internal/config"
	"hxnotes/internal/logger"
)

var (
	cfgFile string
	cfg     *config.AppConfig
	log     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hxnotes",
	Short: "Notes served as full pages or htmx fragments",
	Long: `hxnotes serves a notes application whose pages are rendered on the server
and updated in place by htmx fragment requests.

Examples:
  hxnotes serve --migrate        # apply pending schema steps, then serve
  hxnotes migrate plan           # show schema steps that would be applied
  hxnotes collectstatic --clear  # rebuild the static root`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "hxnotes.yml", "YAML config file; missing is fine")
}

// initConfig loads configuration and builds the logger shared by every command.
func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log, err = logger.New(cfg.LogLevel, cfg.Location())
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	return nil
}
