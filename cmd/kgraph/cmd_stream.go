package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kgraph/internal/ingest"
	"kgraph/internal/logging"
	"kgraph/internal/stream"
)

func (a *app) streamCmd() *cobra.Command {
	var (
		size, slide                int64
		operator                   string
		subject, predicate, object string
		subjectLike, objectLike    string
		follow                     bool
	)
	cmd := &cobra.Command{
		Use:   "stream [events]",
		Short: "Run a sliding-window continuous query over an event file",
		Long: `Reads "subject predicate object timestamp" lines and evaluates the
window query at every slide boundary. Each non-empty batch is printed
as "@ts" followed by its facts. With --follow the file is tailed until
interrupted, and batches are printed as they are produced.

Example:
  kgraph stream events.txt --window 10 --slide 2 --predicate knows --operator istream`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context()
			defer cancel()

			g, err := a.graph(ctx, "")
			if err != nil {
				return err
			}
			b := g.NewStream()
			if cmd.Flags().Changed("window") || cmd.Flags().Changed("slide") {
				if !cmd.Flags().Changed("window") {
					size = int64(a.cfg.Stream.WindowSize)
				}
				if !cmd.Flags().Changed("slide") {
					slide = int64(a.cfg.Stream.Slide)
				}
				b = b.Window(size, slide)
			}
			if operator != "" {
				op, err := stream.ParseOperator(operator)
				if err != nil {
					return err
				}
				b = b.WithStreamOperator(op)
			}
			if subject != "" {
				b = b.WithSubject(subject)
			}
			if predicate != "" {
				b = b.WithPredicate(predicate)
			}
			if object != "" {
				b = b.WithObject(object)
			}
			if subjectLike != "" {
				b = b.WithSubjectLike(subjectLike)
			}
			if objectLike != "" {
				b = b.WithObjectLike(objectLike)
			}
			s, err := b.Build()
			if err != nil {
				return err
			}
			defer func() { _ = s.StopStream() }()

			handle := func(ev ingest.Event) error {
				return s.AddStreamTriple(ev.Subject, ev.Predicate, ev.Object, ev.Timestamp)
			}
			if follow {
				err = ingest.Follow(ctx, args[0], func(ev ingest.Event) error {
					if err := handle(ev); err != nil {
						return err
					}
					return printBatches(cmd, s)
				}, a.logs.Get(logging.CategoryIngest))
				if err != nil && ctx.Err() == nil {
					return err
				}
			} else if err := readEvents(ctx, args[0], handle); err != nil {
				return err
			}
			if err := printBatches(cmd, s); err != nil {
				return err
			}
			return a.finish(cmd, g)
		},
	}
	fl := cmd.Flags()
	fl.Int64Var(&size, "window", 0, "Window size in timestamp units (default from config)")
	fl.Int64Var(&slide, "slide", 0, "Slide in timestamp units (default from config)")
	fl.StringVar(&operator, "operator", "", "rstream, istream or dstream (default from config)")
	fl.StringVar(&subject, "subject", "", "Exact subject")
	fl.StringVar(&predicate, "predicate", "", "Exact predicate")
	fl.StringVar(&object, "object", "", "Exact object")
	fl.StringVar(&subjectLike, "subject-like", "", "Subject substring")
	fl.StringVar(&objectLike, "object-like", "", "Object substring")
	fl.BoolVarP(&follow, "follow", "f", false, "Tail the event file until interrupted")
	return cmd
}

func readEvents(ctx context.Context, path string, fn ingest.Handler) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open event file: %w", err)
	}
	defer f.Close()
	return ingest.Read(ctx, f, fn)
}

// printBatches drains the stream and prints each batch.
func printBatches(cmd *cobra.Command, s *stream.Stream) error {
	batches, err := s.GetStreamResults()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, b := range batches {
		fmt.Fprintf(out, "@%d\n", b.Timestamp)
		for _, t := range b.Triples {
			fmt.Fprintf(out, "  %s\n", t)
		}
	}
	return nil
}
