// ABOUTME: Offline data commands: get, changes and prune operate directly on the store file
// ABOUTME: Output is indented JSON or an aligned text table depending on --format

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/till/internal/store"
)

// withStore opens the configured store, runs fn and closes it again.
func withStore(ctx context.Context, opts *rootOptions, fn func(*store.Store) error) (err error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	st := openStore(cfg, logger)
	if err := st.Open(ctx); err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, st.Close(closeCtx))
	}()

	return fn(st)
}

func newGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <table>",
		Short: "Print every record of a table",
		Long:  "Print every record of a table. Tables: products, inventory, orders, customers, logs, shop, changes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := store.ParseTable(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), opts, func(st *store.Store) error {
				v, err := st.Get(cmd.Context(), name)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return printJSON(cmd.OutOrStdout(), v)
				}
				return printRecords(cmd.OutOrStdout(), v)
			})
		},
	}
}

// printRecords renders a table as one id plus compact JSON line per record.
func printRecords(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}

	var rows []json.RawMessage
	switch {
	case string(raw) == "null":
		fmt.Fprintln(w, "(none)")
		return nil
	case len(raw) > 0 && raw[0] == '[':
		if err := json.Unmarshal(raw, &rows); err != nil {
			return fmt.Errorf("decoding records: %w", err)
		}
	default:
		rows = []json.RawMessage{raw}
	}

	if len(rows) == 0 {
		fmt.Fprintln(w, "(none)")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRECORD")
	for _, row := range rows {
		var head struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(row, &head)
		fmt.Fprintf(tw, "%s\t%s\n", head.ID, row)
	}
	return tw.Flush()
}

func newChangesCommand(opts *rootOptions) *cobra.Command {
	var since, table string

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Print the condensed change feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(st *store.Store) error {
				entries, err := st.ChangesSince(cmd.Context(), since, store.Table(table))
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return printJSON(cmd.OutOrStdout(), entries)
				}
				return printChanges(cmd.OutOrStdout(), entries)
			})
		},
	}

	cmd.Flags().StringVar(&since, "since", "1970-01-01T00:00:00Z", "only changes strictly after this timestamp")
	cmd.Flags().StringVar(&table, "table", "", "limit to one table")

	return cmd
}

func printChanges(w io.Writer, entries []store.ChangeEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No changes.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tACTION\tTABLE\tITEM")
	for _, e := range entries {
		item := e.ItemID
		if item == "" {
			item = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Timestamp, e.Action, e.Table, item)
	}
	return tw.Flush()
}

func newPruneCommand(opts *rootOptions) *cobra.Command {
	var olderThan time.Duration
	var before string

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop change-log entries older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff, err := resolveCutoff(before, olderThan, time.Now())
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), opts, func(st *store.Store) error {
				n, err := st.PruneChanges(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return printJSON(cmd.OutOrStdout(), map[string]int{"pruned": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d change(s) before %s\n", n, cutoff.UTC().Format(time.RFC3339))
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "prune entries older than this age (e.g. 720h)")
	cmd.Flags().StringVar(&before, "before", "", "prune entries before this timestamp")
	cmd.MarkFlagsMutuallyExclusive("older-than", "before")
	cmd.MarkFlagsOneRequired("older-than", "before")

	return cmd
}

func resolveCutoff(before string, olderThan time.Duration, now time.Time) (time.Time, error) {
	if before != "" {
		t, ok := store.ParseTimestamp(before)
		if !ok {
			return time.Time{}, fmt.Errorf("unparsable --before %q", before)
		}
		return t, nil
	}
	if olderThan <= 0 {
		return time.Time{}, fmt.Errorf("--older-than must be positive")
	}
	return now.Add(-olderThan), nil
}
