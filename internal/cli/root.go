// Package cli implements the autoqa command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"autoqa/internal/config"
	"autoqa/internal/logger"
)

var (
	configPath string
	verbose    bool

	// app is assembled before the command runs and closed by Execute.
	app *App
)

var rootCmd = &cobra.Command{
	Use:   "autoqa",
	Short: "Self-tuning French question answering over crawled pages",
	Long: `autoqa crawls web pages, indexes them and answers questions in French
with citations. Every answer feeds back into the retrieval threshold.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (default ./config.yaml or ~/.config/autoqa/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	defer func() {
		if err := teardown(); err != nil {
			logger.Warn("closing: %v", err)
		}
	}()
	return rootCmd.Execute()
}

func setup(cmd *cobra.Command, args []string) error {
	logger.SetVerbose(verbose)
	config.LoadEnv()

	var (
		cfg  *config.AppConfig
		path string
		err  error
	)
	if configPath == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		path = configPath
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Debug("config loaded from %s", path)

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	if err := a.Service.Init(cmd.Context()); err != nil {
		_ = a.Close()
		return fmt.Errorf("initialising service: %w", err)
	}
	app = a
	return nil
}

func teardown() error {
	if app == nil {
		return nil
	}
	err := app.Close()
	app = nil
	return err
}
