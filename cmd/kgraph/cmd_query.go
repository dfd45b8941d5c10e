package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type queryFlags struct {
	subject, predicate, object             string
	subjectLike, predicateLike, objectLike string
	distinct                               bool
	limit, offset                          int
	repaired                               string
	noInfer                                bool
	format                                 string
}

func (a *app) queryCmd() *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "query [program]",
		Short: "Query the facts of a program after inference",
		Long: `Loads the program, runs inference (unless --no-infer) and prints the
facts matching every filter.

Examples:
  kgraph query university.yaml --predicate isA
  kgraph query university.yaml --subject-like jo --limit 5 --format json
  kgraph query university.yaml --repaired "john isA ?Role"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()

			g, err := a.graph(ctx, args[0])
			if err != nil {
				return err
			}
			if !f.noInfer {
				if _, err := g.InferNewFacts(ctx); err != nil {
					return err
				}
			}

			if f.repaired != "" {
				p, err := parsePattern(g, f.repaired)
				if err != nil {
					return err
				}
				bindings, err := g.QueryWithRepairs(ctx, p)
				if err != nil {
					return err
				}
				return printBindings(cmd, g, p, bindings)
			}

			q := g.Query()
			if f.subject != "" {
				q = q.WithSubject(f.subject)
			}
			if f.predicate != "" {
				q = q.WithPredicate(f.predicate)
			}
			if f.object != "" {
				q = q.WithObject(f.object)
			}
			if f.subjectLike != "" {
				q = q.WithSubjectLike(f.subjectLike)
			}
			if f.predicateLike != "" {
				q = q.WithPredicateLike(f.predicateLike)
			}
			if f.objectLike != "" {
				q = q.WithObjectLike(f.objectLike)
			}
			if f.distinct {
				q = q.Distinct()
			}
			if f.offset > 0 {
				q = q.Offset(f.offset)
			}
			if f.limit > 0 {
				q = q.Limit(f.limit)
			}

			triples, err := q.GetDecodedTriples()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch f.format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(triples); err != nil {
					return err
				}
			case "text":
				for _, t := range triples {
					fmt.Fprintln(out, t)
				}
			default:
				return fmt.Errorf("unknown format %q", f.format)
			}
			return a.finish(cmd, g)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.subject, "subject", "", "Exact subject")
	fl.StringVar(&f.predicate, "predicate", "", "Exact predicate")
	fl.StringVar(&f.object, "object", "", "Exact object")
	fl.StringVar(&f.subjectLike, "subject-like", "", "Subject substring")
	fl.StringVar(&f.predicateLike, "predicate-like", "", "Predicate substring")
	fl.StringVar(&f.objectLike, "object-like", "", "Object substring")
	fl.BoolVar(&f.distinct, "distinct", false, "Drop duplicate rows")
	fl.IntVar(&f.limit, "limit", 0, "Maximum number of rows")
	fl.IntVar(&f.offset, "offset", 0, "Rows to skip")
	fl.StringVar(&f.repaired, "repaired", "", `Match a pattern such as "john isA ?Role" against the repaired view`)
	fl.BoolVar(&f.noInfer, "no-infer", false, "Query the asserted facts only")
	fl.StringVar(&f.format, "format", "text", "Output format: text or json")
	return cmd
}

func (a *app) proveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prove [program] [pattern]",
		Short: "Prove a goal by backward chaining",
		Long: `Answers a goal top-down without materializing the fixpoint. Terms
starting with "?" are variables; each answer is printed as bindings,
or "true" for a proven ground goal.

Example:
  kgraph prove family.yaml "ann ancestor ?Who"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()

			g, err := a.graph(ctx, args[0])
			if err != nil {
				return err
			}
			goal, err := parsePattern(g, args[1])
			if err != nil {
				return err
			}
			bindings, err := g.Prove(ctx, goal)
			if err != nil {
				return err
			}
			if err := printBindings(cmd, g, goal, bindings); err != nil {
				return err
			}
			return a.finish(cmd, g)
		},
	}
}
