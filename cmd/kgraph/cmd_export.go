package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kgraph/internal/export"
	"kgraph/internal/logging"
)

func (a *app) exportCmd() *cobra.Command {
	var sqlitePath, ntriplesPath string
	var repair bool
	cmd := &cobra.Command{
		Use:   "export [program]",
		Short: "Infer and export the resulting facts",
		Long: `Runs inference (and repair with --repair), then writes the facts as
N-Triples and/or into a SQLite snapshot. Paths default to the export
section of the configuration; "-" writes N-Triples to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()

			if sqlitePath == "" {
				sqlitePath = a.cfg.Export.SQLitePath
			}
			if ntriplesPath == "" {
				ntriplesPath = a.cfg.Export.NTriplesPath
			}
			if sqlitePath == "" && ntriplesPath == "" {
				ntriplesPath = "-"
			}

			g, err := a.graph(ctx, args[0])
			if err != nil {
				return err
			}
			if repair {
				_, err = g.InferNewFactsSemiNaiveWithRepairs(ctx)
			} else {
				_, err = g.InferNewFacts(ctx)
			}
			if err != nil {
				return err
			}
			snap := g.Snapshot()

			ntOpts := export.NTriplesOptions{BaseIRI: a.cfg.Export.GetBaseIRI()}
			switch ntriplesPath {
			case "":
			case "-":
				if err := export.NTriples(cmd.OutOrStdout(), snap, ntOpts); err != nil {
					return err
				}
			default:
				f, err := os.Create(ntriplesPath)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", ntriplesPath, err)
				}
				if err := export.NTriples(f, snap, ntOpts); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
			}

			if sqlitePath != "" {
				err := export.SQLite(ctx, sqlitePath, snap, export.SQLiteOptions{
					IncludeRules: a.cfg.Export.IncludeRules,
					Logger:       a.logs.Get(logging.CategoryExport),
				})
				if err != nil {
					return err
				}
			}
			return a.finish(cmd, g)
		},
	}
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "SQLite snapshot path")
	cmd.Flags().StringVar(&ntriplesPath, "ntriples", "", `N-Triples output path, or "-" for stdout`)
	cmd.Flags().BoolVar(&repair, "repair", false, "Repair constraint violations before exporting")
	return cmd
}
