package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/randalmurphal/mpointer/pkg/mpointer/audit"
	"github.com/spf13/cobra"
)

func newJournalCmd(a *app) *cobra.Command {
	var (
		db        string
		limit     int
		olderThan time.Duration
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recorded sweeps",
		Long: `Lists sweeps recorded in the SQLite journal, newest first. With
--purge-older-than, records older than the given age are deleted first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := db
			if path == "" {
				path = a.settings.JournalPath
			}
			if path == "" {
				return errorf(cmd, "no journal: pass --db or set a journal path")
			}

			store, err := audit.NewSQLiteStore(path)
			if err != nil {
				return errorf(cmd, "%w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if olderThan > 0 {
				n, err := store.Purge(time.Now().Add(-olderThan))
				if err != nil {
					return errorf(cmd, "%w", err)
				}
				fmt.Fprintf(out, "purged %d record(s)\n", n)
			}

			records, err := store.List(limit)
			if err != nil {
				return errorf(cmd, "%w", err)
			}
			return writeRecords(out, records)
		},
	}

	cmd.Flags().StringVar(&db, "db", "", "journal path (default: settings journal)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum records to list, 0 for all")
	cmd.Flags().DurationVar(&olderThan, "purge-older-than", 0, "delete records older than this age first")
	return cmd
}

func writeRecords(out io.Writer, records []audit.Record) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SWEEP\tREGISTRY\tTIME\tSCANNED\tRECLAIMED\tIDENTITIES")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			rec.SweepID, rec.Registry, rec.Timestamp.Format(time.RFC3339),
			rec.Scanned, rec.Reclaimed, formatIdentities(rec.Identities))
	}
	return tw.Flush()
}

func formatIdentities(ids []uint64) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
