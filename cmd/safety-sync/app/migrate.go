package app

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	syncapp "github.com/cephasgm/safety-sync/internal/app"
	"github.com/cephasgm/safety-sync/internal/migration"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate locally captured records to the remote store",
		Long: `Copy every locally captured record set named in the migration mappings into
its remote collection. Each record is stamped with the acting user and the
migration time. A local set is removed only after its remote commit succeeded.

Running migrate requires local access to the data directory; the acting user
is taken from --actor.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, opts)
		},
	}
	cmd.Flags().String("actor", "", "User performing the migration (required)")
	cmd.Flags().BoolP("yes", "y", false, "Answer yes to all questions")
	cmd.Flags().Bool("dry-run", false, "Report what would be migrated without writing anything")
	addRemoteFlags(cmd.Flags())
	if err := cmd.MarkFlagRequired("actor"); err != nil {
		panic(err)
	}
	return cmd
}

func runMigrate(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	actor, err := flags.GetString("actor")
	if err != nil {
		return fmt.Errorf("failed to get actor flag: %w", err)
	}
	yes, err := flags.GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}
	dryRun, err := flags.GetBool("dry-run")
	if err != nil {
		return fmt.Errorf("failed to get dry-run flag: %w", err)
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

	if !yes && !dryRun {
		slog.Info("About to migrate local records",
			"mappings", len(cfg.Migration.Mappings), "database", cfg.Remote.Database, "actor", actor)
		ok, err := confirm(cmd)
		if err != nil {
			return err
		}
		if !ok {
			slog.Info("Migration cancelled by user")
			return nil
		}
	}

	components, err := syncapp.BuildComponents(ctx, cfg,
		append([]syncapp.ComponentOption{syncapp.WithWaitForRemote(wait)}, opts.componentOpts...)...)
	if err != nil {
		return err
	}
	defer closeComponents(ctx, components)

	result, err := components.Migrator.Run(ctx, migration.RunOptions{Actor: actor, DryRun: dryRun})
	if err != nil {
		if errors.Is(err, migration.ErrRemoteUnavailable) {
			return fmt.Errorf("remote store unavailable, nothing was migrated: %w", err)
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	if err := printMigrationResult(cmd.OutOrStdout(), result, format); err != nil {
		return err
	}
	if result.Stats.Failed > 0 {
		return fmt.Errorf("%d mappings failed to migrate", result.Stats.Failed)
	}
	return nil
}

func confirm(cmd *cobra.Command) (bool, error) {
	if _, err := fmt.Fprint(cmd.OutOrStdout(), "Continue? (yes/no): "); err != nil {
		return false, err
	}
	response, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && response == "" {
		return false, fmt.Errorf("failed to read user input: %w", err)
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "yes" || response == "y", nil
}
