package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kgraph/internal/logging"
	"kgraph/internal/mangle"
)

func (a *app) checkCmd() *cobra.Command {
	var printSource bool
	cmd := &cobra.Command{
		Use:   "check [program]",
		Short: "Cross-check inference against Google Mangle",
		Long: `Runs inference, then evaluates the same facts and rules with the
Google Mangle Datalog engine and compares both fixpoints. Exits non-zero
when they differ. Programs with filters cannot be checked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()

			g, err := a.graph(ctx, args[0])
			if err != nil {
				return err
			}
			if _, err := g.InferNewFacts(ctx); err != nil {
				return err
			}
			snap := g.Snapshot()
			out := cmd.OutOrStdout()
			if printSource {
				src, err := mangle.Source(snap)
				if err != nil {
					return err
				}
				fmt.Fprint(out, src)
			}

			report, err := mangle.Check(snap, a.logs.Get(logging.CategoryMangle))
			if err != nil {
				return err
			}
			for _, t := range report.Missing {
				fmt.Fprintln(out, "missing:", t)
			}
			for _, t := range report.Extra {
				fmt.Fprintln(out, "extra:", t)
			}
			if !report.Consistent() {
				return fmt.Errorf("inference disagrees with mangle: %d missing, %d extra",
					len(report.Missing), len(report.Extra))
			}
			fmt.Fprintf(out, "ok: %d facts agree\n", len(snap.Facts))
			return a.finish(cmd, g)
		},
	}
	cmd.Flags().BoolVar(&printSource, "print", false, "Print the generated Mangle program")
	return cmd
}
