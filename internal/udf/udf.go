// Package udf compiles user-defined filter functions written in Go source
// and evaluates them with the Yaegi interpreter.
//
// A filter source declares
//
//	func Filter(value string) bool
//
// in package main, or as a bare declaration that is wrapped in one. Only
// the configured standard library packages may be imported.
package udf

import (
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"kgraph/internal/config"
	"kgraph/internal/logging"
)

// EntryPoint is the function every filter source must define.
const EntryPoint = "Filter"

var (
	// ErrForbiddenImport is returned for sources importing a package outside
	// the allow list.
	ErrForbiddenImport = errors.New("forbidden import")
	// ErrSignature is returned when the entry point is missing or has the
	// wrong type.
	ErrSignature = errors.New("filter must be func(string) bool")
)

// Compiler turns filter sources into Go functions.
type Compiler struct {
	allowed map[string]bool
	timeout time.Duration
	logger  *zap.Logger
}

// NewCompiler builds a compiler from the UDF configuration.
func NewCompiler(cfg config.UDFConfig, logger *zap.Logger) (*Compiler, error) {
	timeout, err := cfg.GetTimeout()
	if err != nil {
		return nil, fmt.Errorf("udf timeout: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(cfg.AllowedPackages))
	for _, pkg := range cfg.AllowedPackages {
		allowed[pkg] = true
	}
	return &Compiler{allowed: allowed, timeout: timeout, logger: logger}, nil
}

// Compile interprets src and returns its entry point. The returned function
// reports false, and logs, when a call exceeds the per-call timeout.
func (c *Compiler) Compile(ctx context.Context, name, src string) (func(string) bool, error) {
	timer := logging.StartTimer(c.logger, "udf.Compile "+name)
	defer timer.StopWithThreshold(c.timeout / 2)

	src = wrap(src)
	if err := c.validateImports(src); err != nil {
		return nil, fmt.Errorf("udf %s: %w", name, err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("udf %s: load stdlib: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if _, err := i.EvalWithContext(ctx, src); err != nil {
		return nil, fmt.Errorf("udf %s: %w", name, err)
	}
	v, err := i.Eval("main." + EntryPoint)
	if err != nil {
		return nil, fmt.Errorf("udf %s: %w: %v", name, ErrSignature, err)
	}
	fn, ok := v.Interface().(func(string) bool)
	if !ok {
		return nil, fmt.Errorf("udf %s: %w, got %s", name, ErrSignature, v.Type())
	}

	log := c.logger.With(zap.String("udf", name))
	log.Debug("compiled filter function")
	return c.guard(log, fn), nil
}

// guard bounds each call of fn by the compiler's timeout.
func (c *Compiler) guard(log *zap.Logger, fn func(string) bool) func(string) bool {
	return func(value string) bool {
		result := make(chan bool, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Warn("filter function panicked", zap.Any("panic", r), zap.String("value", value))
					result <- false
				}
			}()
			result <- fn(value)
		}()

		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		select {
		case ok := <-result:
			return ok
		case <-timer.C:
			log.Warn("filter function timed out", zap.Duration("timeout", c.timeout), zap.String("value", value))
			return false
		}
	}
}

// validateImports rejects imports outside the allow list.
func (c *Compiler) validateImports(src string) error {
	f, err := parser.ParseFile(token.NewFileSet(), "filter.go", src, parser.ImportsOnly)
	if err != nil {
		return err
	}
	var forbidden []string
	for _, spec := range f.Imports {
		path, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			return err
		}
		if !c.allowed[path] {
			forbidden = append(forbidden, path)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("%w: %s (allowed: %s)", ErrForbiddenImport,
			strings.Join(forbidden, ", "), strings.Join(c.Allowed(), ", "))
	}
	return nil
}

// Allowed returns the allow list, sorted.
func (c *Compiler) Allowed() []string {
	out := make([]string, 0, len(c.allowed))
	for pkg := range c.allowed {
		out = append(out, pkg)
	}
	slices.Sort(out)
	return out
}

func wrap(src string) string {
	if strings.Contains(src, "package main") {
		return src
	}
	return "package main\n\n" + src
}
