// Package program reads knowledge graph programs from YAML: asserted facts,
// inference rules and integrity constraints.
//
//	facts:
//	  - john teaches math101
//	rules:
//	  - name: adult teachers are professors
//	    when:
//	      - ?X teaches ?Y
//	      - ?X age ?A
//	    where:
//	      - ?A >= 18
//	    then:
//	      - ?X isA professor
//	constraints:
//	  - name: professor and student
//	    when:
//	      - ?X isA professor
//	      - ?X isA student
//
// Patterns are three whitespace-separated terms; terms starting with "?"
// are variables. A "where" entry is either a comparison written as
// "?Var op value" or a mapping {var, udf} whose udf is Go source compiled
// by package udf.
package program

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"kgraph/internal/rules"
	"kgraph/internal/store"
	"kgraph/internal/udf"
)

// ErrInvalidProgram is returned for programs that fail to parse or validate.
var ErrInvalidProgram = errors.New("invalid program")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("triple", func(fl validator.FieldLevel) bool {
		return len(strings.Fields(fl.Field().String())) == 3
	})
	return v
}

// Program is the decoded YAML document.
type Program struct {
	Facts       []string   `yaml:"facts" validate:"dive,triple"`
	Rules       []RuleSpec `yaml:"rules" validate:"dive"`
	Constraints []RuleSpec `yaml:"constraints" validate:"dive"`
}

// RuleSpec is one rule or constraint. Constraints leave Then empty.
type RuleSpec struct {
	Name  string       `yaml:"name"`
	When  []string     `yaml:"when" validate:"min=1,dive,triple"`
	Where []FilterSpec `yaml:"where" validate:"dive"`
	Then  []string     `yaml:"then,omitempty" validate:"dive,triple"`
}

// FilterSpec restricts the value bound to Var.
type FilterSpec struct {
	Var   string `yaml:"var" validate:"required,startswith=?"`
	Op    string `yaml:"op,omitempty" validate:"required_without=UDF,excluded_with=UDF"`
	Value string `yaml:"value,omitempty"`
	UDF   string `yaml:"udf,omitempty"`
}

// UnmarshalYAML accepts the scalar form "?Var op value" as well as a mapping.
func (f *FilterSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		fields := strings.Fields(node.Value)
		if len(fields) < 3 {
			return fmt.Errorf("line %d: filter %q must read \"?Var op value\"", node.Line, node.Value)
		}
		f.Var, f.Op, f.Value = fields[0], fields[1], strings.Join(fields[2:], " ")
		return nil
	}
	type plain FilterSpec
	return node.Decode((*plain)(f))
}

// Target receives a program's contents. *core.KnowledgeGraph satisfies it.
type Target interface {
	EncodeTerm(s string) uint32
	AddABoxTriple(s, p, o string) store.Triple
	AddRule(r rules.Rule) (uint32, error)
	AddConstraint(r rules.Rule) (uint32, error)
}

// Summary counts what Apply registered.
type Summary struct {
	Facts       int
	Rules       int
	Constraints int
}

// Parse decodes and validates a program.
func Parse(data []byte) (*Program, error) {
	var p Program
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	for i, r := range p.Constraints {
		if len(r.Then) > 0 {
			return nil, fmt.Errorf("%w: constraint %d (%s) has a conclusion", ErrInvalidProgram, i, r.Name)
		}
	}
	for i, r := range p.Rules {
		if len(r.Then) == 0 {
			return nil, fmt.Errorf("%w: rule %d (%s) has no conclusion", ErrInvalidProgram, i, r.Name)
		}
	}
	return &p, nil
}

// Load reads and parses a program file.
func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Apply registers the program's rules and constraints, then asserts its
// facts. Rules are compiled before anything is registered, so a program
// with an unusable filter leaves the target unchanged. compiler may be nil
// for programs without UDF filters.
func (p *Program) Apply(ctx context.Context, t Target, compiler *udf.Compiler) (Summary, error) {
	var sum Summary
	infer := make([]rules.Rule, 0, len(p.Rules))
	for _, spec := range p.Rules {
		r, err := spec.compile(ctx, t, compiler, rules.Inference)
		if err != nil {
			return sum, err
		}
		infer = append(infer, r)
	}
	checks := make([]rules.Rule, 0, len(p.Constraints))
	for _, spec := range p.Constraints {
		r, err := spec.compile(ctx, t, compiler, rules.Constraint)
		if err != nil {
			return sum, err
		}
		checks = append(checks, r)
	}

	for _, r := range infer {
		if _, err := t.AddRule(r); err != nil {
			return sum, err
		}
		sum.Rules++
	}
	for _, r := range checks {
		if _, err := t.AddConstraint(r); err != nil {
			return sum, err
		}
		sum.Constraints++
	}
	for _, f := range p.Facts {
		w := strings.Fields(f)
		t.AddABoxTriple(w[0], w[1], w[2])
		sum.Facts++
	}
	return sum, nil
}

func (s RuleSpec) compile(ctx context.Context, t Target, compiler *udf.Compiler, kind rules.Kind) (rules.Rule, error) {
	r := rules.Rule{Name: s.Name, Kind: kind}
	for _, w := range s.When {
		r.Premise = append(r.Premise, pattern(t, w))
	}
	for _, w := range s.Then {
		r.Conclusion = append(r.Conclusion, pattern(t, w))
	}
	for _, f := range s.Where {
		filter := rules.Filter{Variable: strings.TrimPrefix(f.Var, "?"), Value: f.Value}
		if f.UDF != "" {
			if compiler == nil {
				return r, fmt.Errorf("%w: %s uses a udf filter but none can be compiled", ErrInvalidProgram, s.Name)
			}
			fn, err := compiler.Compile(ctx, s.Name+"/"+f.Var, f.UDF)
			if err != nil {
				return r, fmt.Errorf("%w: %v", ErrInvalidProgram, err)
			}
			filter.Op, filter.Fn = rules.OpUDF, fn
		} else {
			op, err := rules.ParseOp(f.Op)
			if err != nil {
				return r, fmt.Errorf("%w: %s: %v", ErrInvalidProgram, s.Name, err)
			}
			filter.Op = op
		}
		r.Filters = append(r.Filters, filter)
	}
	if _, err := rules.Normalize(r); err != nil {
		return r, err
	}
	return r, nil
}

func pattern(t Target, s string) store.Pattern {
	w := strings.Fields(s)
	return store.NewPattern(term(t, w[0]), term(t, w[1]), term(t, w[2]))
}

func term(t Target, s string) store.Term {
	if name, ok := strings.CutPrefix(s, "?"); ok && name != "" {
		return store.Var(name)
	}
	return store.Const(t.EncodeTerm(s))
}
