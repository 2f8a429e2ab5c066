package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/cloo-solutions/stockrag/internal/service"
)

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
}

func wantsJSON(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("output")
	return format == "json"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withApp runs fn against a freshly wired graph and tears it down after.
func withApp(cmd *cobra.Command, opts appOptions, fn func(ctx context.Context, app *App) error) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := newApp(ctx, rt.cfg, rt.logger, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app)
}

func SyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync business records into the search index",
		Long: "Run an incremental sync of every entity type, force-sync a single type with --type, " +
			"or reset every checkpoint and rebuild the index with --full",
		RunE: runSync,
	}

	cmd.Flags().StringP("type", "t", "", "Entity type to sync (users, clients, products, suppliers, purchases, invoices)")
	cmd.Flags().Bool("full", false, "Reset checkpoints and resync every type")
	cmd.MarkFlagsMutuallyExclusive("type", "full")
	addOutputFlag(cmd)

	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	entityType, _ := cmd.Flags().GetString("type")
	full, _ := cmd.Flags().GetBool("full")

	return withApp(cmd, appOptions{}, func(ctx context.Context, app *App) error {
		if err := app.waitEmbeddings(ctx); err != nil {
			return err
		}

		var (
			results []service.SyncResult
			err     error
		)
		switch {
		case entityType != "":
			var res *service.SyncResult
			res, err = app.Sync.SyncType(ctx, entityType)
			if res != nil {
				results = []service.SyncResult{*res}
			}
		case full:
			results, err = app.Sync.FullResync(ctx)
		default:
			results, err = app.Sync.SyncAll(ctx)
		}
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		if wantsJSON(cmd) {
			if err := printJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
		} else {
			printSyncResults(cmd.OutOrStdout(), results)
		}

		for _, r := range results {
			if r.Outcome == service.SyncOutcomeFailed {
				return errors.New("one or more entity types failed to sync")
			}
		}
		return nil
	})
}

func printSyncResults(w io.Writer, results []service.SyncResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tOUTCOME\tDOCS\tCHUNKS\tATTEMPTS\tDURATION\tERROR")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%dms\t%s\n",
			r.EntityType, r.Outcome, r.Documents, r.Chunks, r.Attempts, r.DurationMS, r.Error)
	}
	_ = tw.Flush()
}

func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sync checkpoints",
		Long:  "Show the sync checkpoint of every entity type, or the aggregate health report with --health",
		RunE:  runStatus,
	}

	cmd.Flags().Bool("health", false, "Show store connectivity and embedding readiness instead")
	addOutputFlag(cmd)

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	health, _ := cmd.Flags().GetBool("health")

	return withApp(cmd, appOptions{}, func(ctx context.Context, app *App) error {
		if health {
			// A failed probe is part of the report, not an error.
			_ = app.waitEmbeddings(ctx)
			report := app.Sync.Health(ctx)
			if wantsJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), report)
			}
			printHealth(cmd.OutOrStdout(), report)
			if !report.Healthy {
				return errors.New("unhealthy")
			}
			return nil
		}

		statuses, err := app.Sync.Statuses(ctx)
		if err != nil {
			return fmt.Errorf("failed to load sync statuses: %w", err)
		}
		if wantsJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), statuses)
		}
		printStatuses(cmd.OutOrStdout(), statuses, time.Now())
		return nil
	})
}

func printHealth(w io.Writer, r *service.HealthReport) {
	fmt.Fprintf(w, "healthy:      %t\n", r.Healthy)
	for _, c := range []struct {
		name string
		h    service.ComponentHealth
	}{
		{"vector store", r.VectorStore},
		{"checkpoints", r.Checkpoints},
		{"embeddings", r.Embeddings},
	} {
		line := fmt.Sprintf("%-13s %s", c.name+":", c.h.Status)
		if c.h.Error != "" {
			line += " (" + c.h.Error + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func printStatuses(w io.Writer, statuses []*domain.SyncStatus, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tLAST SYNC\tDOCS\tLAST ERROR")
	for _, s := range statuses {
		last := "never"
		if !s.NeverSynced() {
			last = fmt.Sprintf("%s (%s ago)", s.LastSync.UTC().Format(time.RFC3339), now.Sub(s.LastSync).Truncate(time.Second))
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.EntityType, last, s.DocumentCount, s.LastError)
	}
	_ = tw.Flush()
}

func ResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the search index",
		Long:  "Delete every indexed chunk and reset every sync checkpoint to never-synced",
		RunE:  runReset,
	}

	cmd.Flags().Bool("yes", false, "Confirm the reset")

	return cmd
}

func runReset(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		return errors.New("refusing to clear the index without --yes")
	}

	return withApp(cmd, appOptions{}, func(ctx context.Context, app *App) error {
		deleted, err := app.Sync.ClearIndex(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Index cleared: %d chunks deleted, checkpoints reset\n", deleted)
		return nil
	})
}
