package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/me/ossim/internal/store"
	"github.com/me/ossim/internal/tablelog"
	"github.com/me/ossim/pkg/model"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
		offset int
		state  string
	)

	open := func(ctx context.Context) (*store.SQLiteStore, error) {
		if dbPath == "" {
			return nil, model.NewConfigError("missing required option", model.FieldError{Field: "db", Message: "--db is required"})
		}
		st, err := openStore(ctx, dbPath, logger)
		if err != nil {
			return nil, &model.ResourceError{Resource: "audit database", Err: err}
		}
		return st, nil
	}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			opts := model.ListOptions{Limit: limit, Offset: offset}
			if state != "" {
				rs, ok := model.ParseRunState(state)
				if !ok {
					return model.NewConfigError("unknown run state", model.FieldError{Field: "state", Message: state})
				}
				opts.State = rs
			}
			runs, total, err := st.ListRuns(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}
			fmt.Fprintf(out, "%-36s  %-11s  %-7s  %-5s  %-8s  %-14s  %s\n",
				"ID", "STATE", "MODE", "N/S", "LAUNCHED", "FINAL CLOCK", "CREATED")
			for _, r := range runs {
				fmt.Fprintf(out, "%-36s  %-11s  %-7s  %-5s  %-8d  %-14s  %s\n",
					r.ID, r.State, r.Mode, fmt.Sprintf("%d/%d", r.Total, r.Simultaneous),
					r.Launched, r.FinalClock, r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			if shown := offset + len(runs); shown < total {
				fmt.Fprintf(out, "(%d of %d runs; use --offset %d for more)\n", shown, total, shown)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database written by oss run --db")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of runs to skip")
	cmd.Flags().StringVar(&state, "state", "", "Only runs in this state (running, completed, interrupted, failed)")

	show := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a run and its recorded process tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			return showRun(cmd.Context(), st, args[0], cmd.OutOrStdout())
		},
	}
	cmd.AddCommand(show)
	return cmd
}

func showRun(ctx context.Context, st store.Store, id string, out io.Writer) error {
	run, err := st.GetRun(ctx, id)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return model.NewNotFoundError("run", id)
	}

	fmt.Fprintf(out, "Run:        %s\n", run.ID)
	fmt.Fprintf(out, "State:      %s\n", run.State)
	fmt.Fprintf(out, "Mode:       %s\n", run.Mode)
	fmt.Fprintf(out, "Options:    -n %d -s %d -t %d (seed %d)\n", run.Total, run.Simultaneous, run.TimeLimit, run.Seed)
	fmt.Fprintf(out, "Launched:   %d\n", run.Launched)
	fmt.Fprintf(out, "Final:      %s\n", run.FinalClock)
	if run.Error != "" {
		fmt.Fprintf(out, "Error:      %s\n", run.Error)
	}

	snaps, err := st.ListSnapshots(ctx, id)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	events, err := st.ListEvents(ctx, id)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	fmt.Fprintf(out, "Recorded:   %d snapshots, %d events\n", len(snaps), len(events))

	var b strings.Builder
	for _, snap := range snaps {
		b.WriteString(tablelog.FormatSnapshot(snap))
	}
	_, err = io.WriteString(out, b.String())
	return err
}
