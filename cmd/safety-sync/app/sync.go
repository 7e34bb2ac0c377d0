package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	syncapp "github.com/cephasgm/safety-sync/internal/app"
	"github.com/cephasgm/safety-sync/internal/sync/coordinator"
)

const (
	defaultWait = 30 * time.Second
	cliActor    = "cli"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass",
		Long: `Run one sync pass in the foreground and print its outcome.

Only domains whose cached data is older than their refresh interval are
fetched, unless --force is given. --domain limits the pass to one domain.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd, opts)
		},
	}
	cmd.Flags().String("domain", "", "Sync only this domain")
	cmd.Flags().Bool("force", false, "Sync regardless of freshness")
	addRemoteFlags(cmd.Flags())
	return cmd
}

func runSync(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	domain, err := flags.GetString("domain")
	if err != nil {
		return fmt.Errorf("failed to get domain flag: %w", err)
	}
	force, err := flags.GetBool("force")
	if err != nil {
		return fmt.Errorf("failed to get force flag: %w", err)
	}
	wait, err := flags.GetDuration("wait")
	if err != nil {
		return fmt.Errorf("failed to get wait flag: %w", err)
	}
	format, err := getFormat(cmd)
	if err != nil {
		return err
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	components, err := syncapp.BuildComponents(ctx, cfg,
		append([]syncapp.ComponentOption{syncapp.WithWaitForRemote(wait)}, opts.componentOpts...)...)
	if err != nil {
		return err
	}
	defer closeComponents(ctx, components)

	summary, err := components.Coordinator.RunPass(ctx, coordinator.Trigger{
		Source: coordinator.TriggerManual,
		Domain: domain,
		Force:  force,
		Actor:  cliActor,
	})
	if err != nil {
		return fmt.Errorf("sync pass failed: %w", err)
	}

	if err := printPassSummary(cmd.OutOrStdout(), summary, format); err != nil {
		return err
	}
	if failed := len(summary.Failed()); failed > 0 {
		return fmt.Errorf("%d of %d domains failed to sync", failed, len(summary.Results))
	}
	return nil
}
