// Package commands provides the agentd CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agentmesh/runtime/internal/logging"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

var (
	printLogs bool
	logLevel  string
	logFile   bool
	envFile   string
)

var rootCmd = &cobra.Command{
	Use:   "agentd",
	Short: "agentd - multi-tenant agent runtime service",
	Long: `agentd runs a multi-tenant registry of autonomous agents, each with
its own workspace, memory/knowledge retrieval indexes, tool sandbox, and
cron/heartbeat schedulers, exposed over an HTTP API.

Run 'agentd serve' to start the HTTP server.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if envFile != "" {
			_ = godotenv.Load(envFile)
		} else {
			_ = godotenv.Load()
		}

		logCfg := logging.Config{
			Level:   logging.ParseLevel(logLevel),
			Output:  os.Stderr,
			Pretty:  printLogs,
			LogToFile: logFile,
		}
		if !printLogs && !logFile {
			logCfg.Level = logging.FatalLevel
		}
		logging.Init(logCfg)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&logFile, "log-file", false, "Write logs to a timestamped file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file of provider API keys (default: ./.env)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("agentd %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listAgentsCmd)
	rootCmd.AddCommand(migrateIndexCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
