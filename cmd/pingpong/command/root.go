package command

// root.go defines the root command and the configuration shared by every
// subcommand.

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"pingpong/internal/config"
	"pingpong/internal/logging"
)

var (
	cfgFile  string // config file path
	logLevel string

	cfg    *config.Config
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pingpong",
	Short: "pingpong - request/response ping-pong over QUIC",
	Long: `pingpong exchanges Ping/Pong messages over QUIC. A client sends a request
and waits for the correlated response, on a bidirectional stream, a pair of
unidirectional streams or unreliable datagrams. The server answers all three.

Configuration is read from a YAML file (--config or PINGPONG_CONFIG), then from
environment variables and a .env file, then from command flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		cfg = loaded
		logger = logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
