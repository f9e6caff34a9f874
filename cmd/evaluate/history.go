package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nvr-ai/fashion-eval/history"
	"github.com/nvr-ai/fashion-eval/models"
	"github.com/nvr-ai/fashion-eval/report"
)

func newHistoryCommand() *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past evaluation runs recorded with --history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(dbPath, func(store *history.Store) error {
				runs, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return writeRuns(cmd.OutOrStdout(), runs)
			})
		},
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database written by --history")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show, 0 for all")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the stored JSON report of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(dbPath, func(store *history.Store) error {
				doc, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeDocument(cmd.OutOrStdout(), doc)
			})
		},
	})
	return cmd
}

func saveHistory(ctx context.Context, path string, doc *report.Document) error {
	return withStore(path, func(store *history.Store) error {
		return store.Save(ctx, doc)
	})
}

// withStore opens the history database at path for the duration of fn.
func withStore(path string, fn func(*history.Store) error) (err error) {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			err = multierror.Append(err, errors.Wrap(cerr, "close history"))
		}
	}()
	return fn(store)
}

func writeDocument(w io.Writer, doc *report.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal report")
	}
	_, err = fmt.Fprintln(w, string(data))
	return errors.Wrap(err, "failed to write report")
}

// writeRuns prints one row per run with the top-1 and ACSA of every head.
func writeRuns(w io.Writer, runs []history.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprint(tw, "RUN\tSTARTED\tMODEL\tSAMPLES")
	for _, h := range models.Heads {
		fmt.Fprintf(tw, "\t%s TOP-1\t%s ACSA", h.Title(), h.Title())
	}
	fmt.Fprintln(tw)

	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d", r.ID, r.StartedAt.Local().Format(time.DateTime), r.Model, r.Samples)
		for _, h := range models.Heads {
			sc, ok := r.Heads[h.String()]
			if !ok {
				fmt.Fprint(tw, "\t-\t-")
				continue
			}
			fmt.Fprintf(tw, "\t%.5f\t%.5f", sc.Top1, sc.ACSA)
		}
		fmt.Fprintln(tw)
	}
	return errors.Wrap(tw.Flush(), "failed to write history")
}
