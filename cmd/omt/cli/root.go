// Package cli implements the omt command-line interface using Cobra. It
// creates, signs, verifies and audits provenance manifests stored as JSON
// files or in a SQL database.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Nontawatt/OpenMediaTrust/pkg/config"
	"github.com/Nontawatt/OpenMediaTrust/pkg/observability"
)

// Version is stamped at build time.
var Version = "dev"

var (
	configPath string
	jsonOut    bool
	logLevel   string
	actor      string

	cfg      *config.Config
	provider *observability.Provider
)

var rootCmd = &cobra.Command{
	Use:   "omt",
	Short: "OpenMediaTrust - content provenance manifests",
	Long: `omt creates C2PA-style provenance manifests for media files, signs them
with classical, post-quantum or hybrid keys, and evaluates their trust level
and compliance with organizational policy.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		logger, err := observability.NewLogger(c.Log.Level, c.Log.Format, os.Stderr)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		p, err := observability.New(cmd.Context(), c.Observability(Version))
		if err != nil {
			return err
		}
		cfg, provider = c, p
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if provider == nil {
			return nil
		}
		return provider.Shutdown(context.WithoutCancel(cmd.Context()))
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("OMT_CONFIG"), "YAML config file (env: OMT_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", os.Getenv("OMT_ACTOR"), "user performing the operation, for access control and audit (env: OMT_ACTOR)")
}
