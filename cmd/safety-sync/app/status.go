package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	syncapp "github.com/cephasgm/safety-sync/internal/app"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the freshness of every cached domain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, opts)
		},
	}
	addFormatFlag(cmd.Flags())
	return cmd
}

func runStatus(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	format, err := getFormat(cmd)
	if err != nil {
		return err
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	components, err := syncapp.BuildComponents(ctx, cfg, opts.componentOpts...)
	if err != nil {
		return err
	}
	defer closeComponents(ctx, components)

	rows, err := collectStatus(ctx, components.Tracker, time.Now())
	if err != nil {
		return fmt.Errorf("failed to read domain status: %w", err)
	}
	return printStatus(cmd.OutOrStdout(), rows, format)
}
