package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	syncapp "github.com/cephasgm/safety-sync/internal/app"
	"github.com/cephasgm/safety-sync/internal/migration"
	"github.com/cephasgm/safety-sync/internal/sync/coordinator"
	"github.com/cephasgm/safety-sync/internal/sync/state"
)

const never = "never"

// statusRow is one line of the status command
type statusRow struct {
	state.Freshness
	Phase       string `json:"phase,omitempty"`
	Message     string `json:"message,omitempty"`
	RecordCount int    `json:"recordCount"`
}

func closeComponents(ctx context.Context, c *syncapp.Components) {
	if err := c.Close(context.WithoutCancel(ctx)); err != nil {
		slog.Error("Failed to release components", "error", err)
	}
}

func collectStatus(ctx context.Context, tracker state.Tracker, now time.Time) ([]statusRow, error) {
	domains := tracker.Domains()
	rows := make([]statusRow, 0, len(domains))
	for _, d := range domains {
		f, err := tracker.StatusOf(d.Name, now)
		if err != nil {
			return nil, err
		}
		row := statusRow{Freshness: f}
		if st, err := tracker.GetSyncStatus(ctx, d.Name); err == nil && st != nil {
			row.Phase = string(st.Phase)
			row.Message = st.Message
			row.RecordCount = st.RecordCount
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func writeJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format output as JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

func printStatus(w io.Writer, rows []statusRow, format string) error {
	if format == formatJSON {
		return writeJSON(w, rows)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Domain", "Phase", "Last Sync", "Age", "Interval", "Due", "Records")
	for _, r := range rows {
		lastSync, age := never, "-"
		if r.LastSyncAt != nil {
			lastSync = r.LastSyncAt.UTC().Format(time.RFC3339)
			age = r.Elapsed.Round(time.Second).String()
		}
		phase := r.Phase
		if phase == "" {
			phase = "-"
		}
		if err := table.Append([]string{
			r.Domain, phase, lastSync, age,
			r.RefreshInterval.String(), strconv.FormatBool(r.Due), strconv.Itoa(r.RecordCount),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func printPassSummary(w io.Writer, summary *coordinator.PassSummary, format string) error {
	if format == formatJSON {
		return writeJSON(w, summary)
	}

	if _, err := fmt.Fprintf(w, "Pass %s: %s\n", summary.ID, summary.Outcome()); err != nil {
		return err
	}
	if len(summary.Results) == 0 {
		_, err := fmt.Fprintln(w, "Nothing to sync.")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("Domain", "Outcome", "Records", "Duration", "Error")
	for _, r := range summary.Results {
		if err := table.Append([]string{
			r.Domain, r.Outcome, strconv.Itoa(r.RecordCount),
			r.Duration.Round(time.Millisecond).String(), r.Error,
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func printMigrationResult(w io.Writer, result *migration.Result, format string) error {
	if format == formatJSON {
		return writeJSON(w, result)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Source", "Target", "Outcome", "Records", "Reason")
	for _, item := range result.Items {
		reason := item.Reason
		if item.Error != "" {
			reason = item.Error
		}
		if err := table.Append([]string{
			item.SourceKey, item.TargetCollection, item.Outcome,
			strconv.Itoa(item.RecordCount), reason,
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	s := result.Stats
	_, err := fmt.Fprintf(w,
		"Run %s by %s: %d migrated, %d failed, %d skipped (%d of %d records migrated)\n",
		result.RunID, result.Actor, s.Migrated, s.Failed, s.Skipped, s.MigratedRecords, s.TotalRecords)
	return err
}
