package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/voluzi/pagepulse/internal/environ"
	"github.com/voluzi/pagepulse/pkg/agent"
)

var logLevel string
var configFile string
var agentURL string

var rootCmd = &cobra.Command{
	Use:   "pagepulse",
	Short: "Page telemetry sampler",
	Long: `PagePulse periodically samples page activity counters (DOM nodes, resources, errors and
long tasks), derives per-minute rates and a stress score, and serves the rolling history
as readouts and charts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLvl, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		log.SetLevel(logLvl)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel,
		"log-level",
		environ.GetString("LOG_LEVEL", "info"),
		"Log level. One of debug, info, warn, error, fatal, panic.",
	)
	rootCmd.PersistentFlags().StringVar(&configFile,
		"config",
		environ.GetString("PAGEPULSE_CONFIG", ""),
		"Path to a YAML or TOML configuration file",
	)
	rootCmd.PersistentFlags().StringVar(&agentURL,
		"agent",
		environ.GetString("PAGEPULSE_AGENT", fmt.Sprintf("http://127.0.0.1:%d", agent.DefaultPort)),
		"URL of a running pagepulse agent",
	)

	rootCmd.AddCommand(serveCmd, watchCmd, renderCmd, auditCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
