package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"folio/internal/logging"
)

var (
	logger   *zap.Logger
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "folio",
	Short:         "Article site backend with section navigation and page comments",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(logLevel)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", level, "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tocCmd)
	rootCmd.AddCommand(navcheckCmd)
}
