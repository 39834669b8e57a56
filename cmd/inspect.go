package cmd

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/agentic-research/rowcast/internal/config"
	"github.com/agentic-research/rowcast/internal/manifest"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config]",
	Short: "Check a configuration and print the output tables it defines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := config.LoadPlan(args[0])
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}
		describePlan(cmd.OutOrStdout(), plan)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show [manifest.db] [run-id]",
	Short: "Print the recorded outcomes of a run",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := manifest.Open(args[0])
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}
		defer func() { _ = store.Close() }()
		if err := showRun(cmd.OutOrStdout(), store, args[1]); err != nil {
			return &ExitError{Code: 1, Err: err}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd, showCmd)
}

func describePlan(w io.Writer, plan *config.Plan) {
	_, _ = fmt.Fprintf(w, "format: %s\n", plan.Format)
	for _, r := range plan.Records {
		_, _ = fmt.Fprintf(w, "%s.csv: %s\n", r.Name, strings.Join(r.Columns, ", "))
	}
}

func showRun(w io.Writer, store *manifest.Store, runID string) error {
	run, err := store.Run(runID)
	if err != nil {
		return err
	}
	outs, err := store.Outcomes(runID)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "run %s: %s, started %s\n", run.ID, run.Status, run.StartedAt.Format("2006-01-02 15:04:05"))
	for _, o := range outs {
		name := o.Name
		if name == "" {
			name = o.Input
		}
		if o.Status != "success" {
			_, _ = fmt.Fprintf(w, "%3d FAILED  %s: %s\n", o.Seq, name, o.Reason)
			continue
		}
		_, _ = fmt.Fprintf(w, "%3d OK      %s: %d accepted, %d rejected\n", o.Seq, name, o.Accepted, o.Rejected)
		for _, record := range slices.Sorted(maps.Keys(o.Ordinals)) {
			_, _ = fmt.Fprintf(w, "      %s rejected ordinals: %v\n", record, o.Ordinals[record].ToArray())
		}
	}
	return nil
}
