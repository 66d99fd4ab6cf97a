package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"jordanella.com/scrollcap/internal/database"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		dbPath string
		limit  int
		stats  bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or the pages of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("db") {
				dbPath = a.cfg.DatabasePath
			}
			if dbPath == "" {
				return errors.New("no run ledger configured (set database or pass --db)")
			}

			db, err := database.OpenAndMigrate(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if stats {
				return printStats(cmd.OutOrStdout(), db)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()

			if len(args) == 1 {
				return printPages(w, db, args[0])
			}
			return printRuns(w, db, limit)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite run ledger path")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")
	cmd.Flags().BoolVar(&stats, "stats", false, "print ledger totals instead of runs")
	return cmd
}

func printStats(out io.Writer, db *database.DB) error {
	version, err := db.GetVersion()
	if err != nil {
		return err
	}
	counts, err := db.GetStats()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "ledger: %s (schema v%d)\n", db.Path(), version)
	fmt.Fprintf(out, "runs:   %d\n", counts["runs"])
	fmt.Fprintf(out, "pages:  %d\n", counts["pages"])
	return nil
}

func printRuns(w *tabwriter.Writer, db *database.DB, limit int) error {
	runs, err := db.ListRuns(limit)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "RUN\tMODE\tADDRESS\tSTARTED\tSTATUS\tPAGES\tLINES\tREASON")
	for _, r := range runs {
		reason := ""
		if r.StopReason != nil {
			reason = *r.StopReason
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.Mode, r.Address, r.StartedAt.Local().Format(time.DateTime),
			r.Status, r.Pages, r.Lines, reason)
	}
	return nil
}

func printPages(w *tabwriter.Writer, db *database.DB, runID string) error {
	if _, err := db.GetRun(runID); err != nil {
		return err
	}

	pages, err := db.ListPages(runID)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "PAGE\tCAPTURED\tSIGNATURE\tNEW\tARTIFACT")
	for _, p := range pages {
		artifact := "-"
		if p.Artifact != nil {
			artifact = *p.Artifact
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
			p.PageIndex, p.CapturedAt.Local().Format(time.TimeOnly), p.Signature, p.NewCount, artifact)
	}
	return nil
}
