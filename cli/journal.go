package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/tooldispatch/bus"
	"github.com/petal-labs/tooldispatch/config"
)

// NewJournalCmd creates the "journal" subcommand.
func NewJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent tool invocations from the journal",
		Args:  cobra.NoArgs,
		RunE:  runJournal,
	}
	cmd.Flags().String("journal", "", "Path to the SQLite invocation journal")
	cmd.Flags().String("tool", "", "Only show invocations of this tool")
	cmd.Flags().Duration("since", 0, "Only show invocations newer than this age (e.g. 1h)")
	cmd.Flags().Int("limit", 20, "Maximum number of entries (0 for all)")
	cmd.Flags().Bool("json", false, "Print entries as JSON")
	return cmd
}

func runJournal(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Journal.Path == "" {
		return exitError(exitConfig, "no journal configured: set --journal, %s or journal.path", config.EnvJournal)
	}

	store, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{DSN: cfg.Journal.Path})
	if err != nil {
		return exitError(exitRuntime, "opening journal: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	toolName, _ := cmd.Flags().GetString("tool")
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")
	filter := bus.ListFilter{Tool: toolName, Limit: limit}
	if since > 0 {
		filter.Since = time.Now().Add(-since)
	}

	events, err := store.List(cmd.Context(), filter)
	if err != nil {
		return exitError(exitRuntime, "listing journal: %v", err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		if events == nil {
			events = []bus.Event{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	if len(events) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No invocations recorded.")
		return nil
	}
	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "TIME\tTOOL\tSTATUS\tDURATION_MS\tREQUEST_ID\tERROR")
	for _, e := range events {
		status := "ok"
		if !e.Success {
			status = "failed"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.Time.Format(time.RFC3339),
			e.Tool,
			status,
			e.DurationMS,
			dash(e.RequestID),
			dash(e.Error),
		)
	}
	return writer.Flush()
}
