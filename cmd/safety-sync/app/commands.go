// Package app provides the command line interface of the safety-sync engine.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	syncapp "github.com/cephasgm/safety-sync/internal/app"
	"github.com/cephasgm/safety-sync/internal/config"
	"github.com/cephasgm/safety-sync/internal/versions"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// rootOptions is shared by every subcommand of one command tree
type rootOptions struct {
	v             *viper.Viper
	componentOpts []syncapp.ComponentOption
}

// NewRootCmd creates the root command of the safety-sync CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd()
}

func newRootOptions(componentOpts ...syncapp.ComponentOption) *rootOptions {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return &rootOptions{v: v, componentOpts: componentOpts}
}

func newRootCmd(componentOpts ...syncapp.ComponentOption) *cobra.Command {
	opts := newRootOptions(componentOpts...)

	rootCmd := &cobra.Command{
		Use:               "safety-sync",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Local cache sync and migration engine for the safety dashboard",
		Long: `safety-sync keeps a local cache of the safety dashboard's remote document store
fresh, serves it while offline, and migrates locally captured records into the remote store.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to configuration file (YAML or TOML)")
	if err := opts.v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		slog.Error("Error binding config flag", "error", err)
	}

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newSyncCmd(opts))
	rootCmd.AddCommand(newMigrateCmd(opts))
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig loads the file named by --config or SAFETY_SYNC_CONFIG, or the
// defaults when neither is set.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := o.v.GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.LoadConfig()
	} else {
		cfg, err = config.LoadConfig(config.WithConfigPath(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Debug("Configuration loaded", "path", path, "data_dir", cfg.DataDir)
	return cfg, nil
}

func addFormatFlag(fs *pflag.FlagSet) {
	fs.String("format", formatText, "Output format (text or json)")
}

// addRemoteFlags adds the flags of commands that need the remote store
func addRemoteFlags(fs *pflag.FlagSet) {
	fs.Duration("wait", defaultWait, "How long to wait for the remote store")
	addFormatFlag(fs)
}

func getFormat(cmd *cobra.Command) (string, error) {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return "", fmt.Errorf("failed to get format flag: %w", err)
	}
	switch format {
	case formatText, formatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := getFormat(cmd)
			if err != nil {
				return err
			}
			info := versions.GetVersionInfo()
			if format == formatJSON {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info as JSON: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}
	addFormatFlag(cmd.Flags())
	return cmd
}
