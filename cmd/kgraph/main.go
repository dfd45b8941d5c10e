// Command kgraph runs rule-based inference, constraint repair, queries and
// windowed stream queries over knowledge graph programs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kgraph/internal/config"
	"kgraph/internal/core"
	"kgraph/internal/logging"
	"kgraph/internal/store"
)

// app carries state shared by every command of one invocation.
type app struct {
	configPath string
	verbose    bool
	timeout    time.Duration
	metrics    bool

	cfg    *config.Config
	logger *zap.Logger
	logs   *logging.Set
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "kgraph",
		Short: "Rule-based knowledge graph reasoner",
		Long: `kgraph loads a YAML program of facts, inference rules and integrity
constraints, computes the semi-naive fixpoint, repairs constraint
violations and answers queries. Timestamped event files can be run
through sliding-window continuous queries.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "kgraph.yaml", "Configuration file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 5*time.Minute, "Operation timeout")
	root.PersistentFlags().BoolVar(&a.metrics, "metrics", false, "Print Prometheus metrics after the command")

	root.AddCommand(
		a.inferCmd(),
		a.repairCmd(),
		a.queryCmd(),
		a.proveCmd(),
		a.streamCmd(),
		a.checkCmd(),
		a.exportCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Logging.DebugMode = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	a.logs = logging.NewSet(logger, cfg.Logging)
	a.logs.Get(logging.CategoryBoot).Debug("configuration loaded",
		zap.String("path", a.configPath),
		zap.String("strategy", cfg.Engine.Strategy),
		zap.Int("max_iterations", cfg.Engine.MaxIterations))
	return nil
}

// context returns a context bounded by --timeout and cancelled on SIGINT
// or SIGTERM.
func (a *app) context() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

// graph creates a knowledge graph and loads the program at path into it.
func (a *app) graph(ctx context.Context, path string) (*core.KnowledgeGraph, error) {
	g := core.New(core.WithConfig(a.cfg), core.WithLogging(a.logs))
	if path == "" {
		return g, nil
	}
	if _, err := g.LoadProgram(ctx, path); err != nil {
		return nil, err
	}
	return g, nil
}

// finish prints metrics when --metrics is set and metrics are enabled.
func (a *app) finish(cmd *cobra.Command, g *core.KnowledgeGraph) error {
	if !a.metrics {
		return nil
	}
	if !g.Metrics().Enabled() {
		a.logs.Get(logging.CategoryBoot).Warn("--metrics ignored: metrics.enabled is false")
		return nil
	}
	return g.Metrics().WriteText(cmd.OutOrStdout())
}

// printTriples writes one decoded triple per line.
func printTriples(cmd *cobra.Command, g *core.KnowledgeGraph, ts []store.Triple) error {
	out := cmd.OutOrStdout()
	for _, t := range ts {
		d, err := g.DecodeTriple(t)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, d)
	}
	return nil
}

// parsePattern reads "s p o" where "?Name" terms are variables.
func parsePattern(g *core.KnowledgeGraph, s string) (store.Pattern, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return store.Pattern{}, fmt.Errorf("%w: pattern %q must have three terms", core.ErrInvalidArgument, s)
	}
	var terms [3]store.Term
	for i, f := range fields {
		if name, ok := strings.CutPrefix(f, "?"); ok && name != "" {
			terms[i] = store.Var(name)
			continue
		}
		terms[i] = store.Const(g.EncodeTerm(f))
	}
	return store.NewPattern(terms[0], terms[1], terms[2]), nil
}

// printBindings writes each binding as "?A=x ?B=y" in pattern variable order.
func printBindings(cmd *cobra.Command, g *core.KnowledgeGraph, p store.Pattern, bs []store.Binding) error {
	out := cmd.OutOrStdout()
	vars := p.Vars()
	for _, b := range bs {
		if len(vars) == 0 {
			fmt.Fprintln(out, "true")
			continue
		}
		parts := make([]string, 0, len(vars))
		for _, v := range vars {
			s, err := g.DecodeTerm(b[v])
			if err != nil {
				return err
			}
			parts = append(parts, fmt.Sprintf("?%s=%s", v, s))
		}
		fmt.Fprintln(out, strings.Join(parts, " "))
	}
	return nil
}
