package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// VersionInfo is stamped at build time.
type VersionInfo struct {
	Version string
	Commit  string
}

// NewRootCommand returns the doclocker root command. Running it without a
// subcommand starts the API server.
func NewRootCommand(info VersionInfo) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:           "doclocker",
		Short:         "Document locker API",
		Long:          "Versioned document storage behind QR codes, with role and department access control and a scan audit log.",
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(path)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&path, "config", "", "optional config file (yaml, json or toml)")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("LOG_LEVEL", cmd.PersistentFlags().Lookup("log-level"))

	cmd.Version = fmt.Sprintf("%s.%s", info.Version, info.Commit)

	return cmd
}

// initConfig points viper at the config file when one is given. Environment
// variables still take precedence over its values.
func initConfig(path string) error {
	if path == "" {
		return nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}
