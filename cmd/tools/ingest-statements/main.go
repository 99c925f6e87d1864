package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"social-support-workers/internal/common/logger"
)

var (
	logLevel string
	zapLog   *zap.Logger
	log      logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ingest-statements",
	Short: "Consolidate applicant financial source files into single CSVs",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapLog = logger.New(logLevel, "console")
		log = logger.NewZapAdapter(zapLog)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zapLog.Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.AddCommand(bankStatementsCmd, creditReportsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
