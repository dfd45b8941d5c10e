package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kgraph/internal/store"
)

func (a *app) inferCmd() *cobra.Command {
	var naive, repair bool
	cmd := &cobra.Command{
		Use:   "infer [program]",
		Short: "Compute the fixpoint of a program and print the derived facts",
		Long: `Loads the program, runs the inference rules to a fixpoint and prints
each newly derived fact. With --repair, constraint violations are
repaired afterwards and only the surviving derivations are printed.

Example:
  kgraph infer university.yaml --repair`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()

			g, err := a.graph(ctx, args[0])
			if err != nil {
				return err
			}
			var derived []store.Triple
			switch {
			case repair:
				derived, err = g.InferNewFactsSemiNaiveWithRepairs(ctx)
			case naive:
				derived, err = g.InferNewFactsNaive(ctx)
			default:
				derived, err = g.InferNewFacts(ctx)
			}
			if err != nil {
				return err
			}
			if err := printTriples(cmd, g, derived); err != nil {
				return err
			}
			return a.finish(cmd, g)
		},
	}
	cmd.Flags().BoolVar(&naive, "naive", false, "Use naive evaluation")
	cmd.Flags().BoolVar(&repair, "repair", false, "Repair constraint violations after inference")
	cmd.MarkFlagsMutuallyExclusive("naive", "repair")
	return cmd
}

func (a *app) repairCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "repair [program]",
		Short: "Infer, then report violations and the facts repair retracts",
		Long: `Loads the program, runs inference, prints every constraint violation
and then the facts the repair policy retracts, in retraction order.
With --dry-run the retractions are computed without being applied.`,
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
			witnesses, err := g.Violations(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, w := range witnesses {
				desc, err := g.DescribeWitness(w)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "violation:", desc)
			}
			if dryRun {
				return a.finish(cmd, g)
			}
			retracted, err := g.Repair(ctx)
			if err != nil {
				return err
			}
			for _, t := range retracted {
				d, err := g.DecodeTriple(t)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "retracted:", d)
			}
			return a.finish(cmd, g)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only report violations")
	return cmd
}
